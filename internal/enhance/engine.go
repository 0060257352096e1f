// Package enhance runs AI tagging and summarization through an ordered chain
// of provider tiers.
//
// Enhance never returns an error. Each failed tier attempt is logged and
// recorded as an incident, then the next tier is tried. When every tier has
// failed the caller receives a degraded result with empty tags, an empty
// summary and a neutral quality score.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/starford/curator/internal/apperr"
	"github.com/starford/curator/internal/incident"
	"github.com/starford/curator/internal/models"
	"github.com/starford/curator/internal/parser"
	"github.com/starford/curator/internal/rategate"
)

// Defaults.
const (
	DefaultMaxTags = 8
	DefaultTimeout = 30 * time.Second
)

// ErrGateDenied is reported when a tier's rate gate refuses the call.
var ErrGateDenied = errors.New("rate gate denied the call")

// ErrNoTags is reported when a provider answered with nothing usable.
var ErrNoTags = errors.New("provider returned no usable tags")

// Provider is an inference backend.
type Provider interface {
	Name() string
	GenerateTags(ctx context.Context, text string) ([]string, error)
	Summarize(ctx context.Context, text string) (string, error)
}

// Tier is one step of the fallback chain.
type Tier struct {
	Source   models.Source
	Provider Provider
	// Gate is optional. A denied gate counts as a failed attempt.
	Gate rategate.Gate
}

// Config tunes the engine. Zero values take defaults.
type Config struct {
	MaxTags int
	Timeout time.Duration
}

// Engine is safe for concurrent use.
type Engine struct {
	tiers  []Tier
	cfg    Config
	sink   incident.Sink
	logger *slog.Logger
}

// New creates an engine over tiers, tried in order. Tiers without a
// provider are dropped.
func New(tiers []Tier, sink incident.Sink, logger *slog.Logger, cfg Config) *Engine {
	if cfg.MaxTags <= 0 {
		cfg.MaxTags = DefaultMaxTags
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if sink == nil {
		sink = incident.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	usable := make([]Tier, 0, len(tiers))
	for i, t := range tiers {
		if t.Provider == nil {
			logger.Warn("enhance: tier has no provider, skipping", slog.Int("tier", i), slog.String("source", string(t.Source)))
			continue
		}
		usable = append(usable, t)
	}
	return &Engine{tiers: usable, cfg: cfg, sink: sink, logger: logger}
}

// Enhance tags and, unless fast is set, summarizes note.
func (e *Engine) Enhance(ctx context.Context, note models.NoteRecord, fast bool) models.EnhancementResult {
	if len(e.tiers) == 0 {
		res := models.NoEnhancement()
		res.FailureReason = "no providers configured"
		return res
	}

	text := note.Text()
	var (
		incidents []string
		lastErr   error
	)
	for i, tier := range e.tiers {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		tags, summary, err := e.attempt(ctx, tier, text, fast)
		if err == nil {
			res := models.EnhancementResult{
				Success:      true,
				Source:       tier.Source,
				UsedFallback: i > 0,
				Provider:     tier.Provider.Name(),
				Tags:         tags,
				Summary:      summary,
				QualityScore: Score(tags, summary, fast, e.cfg.MaxTags),
				Incidents:    incidents,
			}
			e.logger.Debug("enhance: tier succeeded",
				slog.String("path", note.Path),
				slog.String("provider", res.Provider),
				slog.Int("tags", len(tags)),
				slog.Duration("elapsed", time.Since(start)))
			return res
		}

		// Parent cancellation is not a provider failure.
		if ctx.Err() != nil {
			break
		}
		lastErr = err
		e.logger.Warn("enhance: tier failed",
			slog.String("path", note.Path),
			slog.Int("tier", i),
			slog.String("provider", tier.Provider.Name()),
			slog.String("error", err.Error()))
		if id := e.sink.WriteIncident(incident.KindProviderFailure, map[string]any{
			"note":     note.Path,
			"checksum": note.Checksum,
			"stage":    models.StageEnhancement,
			"tier":     i,
			"source":   string(tier.Source),
			"provider": tier.Provider.Name(),
			"error":    err.Error(),
			"elapsed":  time.Since(start).Round(time.Millisecond).String(),
			"fast":     fast,
		}); id != "" {
			incidents = append(incidents, id)
		}
	}

	if err := ctx.Err(); err != nil {
		res := models.DegradedEnhancement("cancelled: " + err.Error())
		res.Incidents = incidents
		return res
	}
	res := models.DegradedEnhancement(fmt.Sprintf("all %d provider tiers failed: %v", len(e.tiers), lastErr))
	res.Incidents = incidents
	return res
}

// attempt runs one tier under its own deadline. Panics become errors.
func (e *Engine) attempt(ctx context.Context, tier Tier, text string, fast bool) (tags []string, summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Unknown("enhance.attempt", fmt.Errorf("provider panic: %v\n%s", r, debug.Stack()))
		}
	}()

	const op = "enhance.attempt"
	if tier.Gate != nil && !tier.Gate.TryAcquire() {
		return nil, "", apperr.Provider(op, ErrGateDenied)
	}

	actx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	raw, err := tier.Provider.GenerateTags(actx, text)
	if err != nil {
		return nil, "", apperr.Provider(op, timeoutAware(actx, err))
	}
	tags = parser.NormalizeTags(raw, e.cfg.MaxTags)
	if len(tags) == 0 {
		return nil, "", apperr.Provider(op, ErrNoTags)
	}
	if fast {
		return tags, "", nil
	}

	summary, err = tier.Provider.Summarize(actx, text)
	if err != nil {
		return nil, "", apperr.Provider(op, timeoutAware(actx, err))
	}
	return tags, summary, nil
}

// timeoutAware marks errors caused by the attempt's own deadline.
func timeoutAware(attemptCtx context.Context, err error) error {
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out: %w", err)
	}
	return err
}

// Score rates an enhancement by how much it produced. A full tag set and a
// summary earn 1.0; nothing earns 0. In fast mode the summary is not expected.
func Score(tags []string, summary string, fast bool, maxTags int) float64 {
	if maxTags <= 0 {
		maxTags = DefaultMaxTags
	}
	want := maxTags
	if want > 5 {
		want = 5
	}
	n := len(tags)
	if n > want {
		n = want
	}
	tagPart := float64(n) / float64(want)
	if fast {
		return round2(tagPart)
	}
	var summaryPart float64
	if summary != "" {
		summaryPart = 1
	}
	return round2(0.6*tagPart + 0.4*summaryPart)
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
