// Package orchestrator runs one note through quality assessment, enhancement
// and connection discovery and merges the outcomes into a single result.
//
// Only validation and not-found failures from the quality stage halt a pass.
// Every other failure is recorded, replaced by a neutral value, and the pass
// continues. Enhancement and connection discovery run concurrently.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/curator/internal/apperr"
	"github.com/starford/curator/internal/incident"
	"github.com/starford/curator/internal/models"
)

// Defaults for Config.
const (
	DefaultCostGateThreshold    = 0.3
	DefaultMaxTags              = 8
	DefaultMinSimilarity        = 0.5
	DefaultMaxConnectionResults = 5
	DefaultWorkers              = 4

	// pipelineIncidentThreshold is the error count at which every stage has failed.
	pipelineIncidentThreshold = 3
)

// QualityAssessor loads and scores a note.
type QualityAssessor interface {
	Assess(ctx context.Context, path string) (models.NoteRecord, models.QualityAssessment, error)
}

// Enhancer produces AI tags and a summary. It reports failure in the result.
type Enhancer interface {
	Enhance(ctx context.Context, note models.NoteRecord, fast bool) models.EnhancementResult
}

// ConnectionFinder suggests related notes. The slice is usable even when err is set.
type ConnectionFinder interface {
	FindLinks(ctx context.Context, note models.NoteRecord, maxResults int, minSimilarity float64) ([]models.ConnectionSuggestion, error)
}

// Persister writes merged metadata back to the note.
type Persister interface {
	Persist(ctx context.Context, note models.NoteRecord, res models.OrchestrationResult) error
}

// Deps are the collaborators of an Orchestrator. Quality, Enhancer and Finder
// are required; the rest are optional.
type Deps struct {
	Quality   QualityAssessor
	Enhancer  Enhancer
	Finder    ConnectionFinder
	Gate      CostGate
	Persister Persister
	Incidents incident.Sink
	Logger    *slog.Logger
	// OnResult is called with every finished result.
	OnResult func(models.OrchestrationResult)
}

// Config tunes the pipeline. Zero counts take defaults; thresholds are used
// as given, so a zero CostGateThreshold disables the gate and a zero
// MinSimilarity keeps every candidate.
type Config struct {
	CostGateThreshold    float64
	MaxTags              int
	MinSimilarity        float64
	MaxConnectionResults int
	Workers              int
}

// Options apply to a single pass.
type Options struct {
	DryRun bool `json:"dry_run"`
	Fast   bool `json:"fast"`
}

// Orchestrator is safe for concurrent use; passes share no mutable state.
type Orchestrator struct {
	deps Deps
	cfg  Config
}

// DefaultConfig returns the stock pipeline settings.
func DefaultConfig() Config {
	return Config{
		CostGateThreshold:    DefaultCostGateThreshold,
		MaxTags:              DefaultMaxTags,
		MinSimilarity:        DefaultMinSimilarity,
		MaxConnectionResults: DefaultMaxConnectionResults,
		Workers:              DefaultWorkers,
	}
}

// New creates an orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.MaxTags <= 0 {
		cfg.MaxTags = DefaultMaxTags
	}
	if cfg.MaxConnectionResults <= 0 {
		cfg.MaxConnectionResults = DefaultMaxConnectionResults
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if deps.Gate == nil {
		deps.Gate = ScoreGate{Threshold: cfg.CostGateThreshold}
	}
	if deps.Incidents == nil {
		deps.Incidents = incident.Discard{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{deps: deps, cfg: cfg}
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// pass accumulates the outcome of one Process call.
type pass struct {
	res    models.OrchestrationResult
	note   models.NoteRecord
	fatal  bool
	logger *slog.Logger
}

func (p *pass) fail(stage string, kind apperr.Kind, msg string) {
	p.res.Errors = append(p.res.Errors, models.StageError{Stage: stage, Kind: string(kind), Message: msg})
}

func (p *pass) warn(format string, args ...any) {
	p.res.Warnings = append(p.res.Warnings, fmt.Sprintf(format, args...))
}

// Process runs a single pass over the note at notePath. It never panics and
// always returns a complete result.
func (o *Orchestrator) Process(ctx context.Context, notePath string, opts Options) models.OrchestrationResult {
	start := time.Now()
	notePath = canonicalPath(notePath)
	logger := o.deps.Logger.With(slog.String("path", notePath))
	p := &pass{
		res: models.OrchestrationResult{
			Path:        notePath,
			Enhancement: models.NoEnhancement(),
			Connections: []models.ConnectionSuggestion{},
			Errors:      []models.StageError{},
			Warnings:    []string{},
			DryRun:      opts.DryRun,
		},
		logger: logger,
	}

	o.run(ctx, p, notePath, opts)

	p.res.Success = !p.fatal && len(p.res.Errors) < pipelineIncidentThreshold
	if !opts.DryRun && p.res.Success && o.deps.Persister != nil {
		o.persist(ctx, p)
	}

	p.res.Duration = time.Since(start)
	logger.Info("orchestrator: pass finished",
		slog.Bool("success", p.res.Success),
		slog.Int("errors", len(p.res.Errors)),
		slog.Int("warnings", len(p.res.Warnings)),
		slog.Duration("duration", p.res.Duration))

	if o.deps.OnResult != nil {
		o.deps.OnResult(p.res)
	}
	return p.res
}

func (o *Orchestrator) run(ctx context.Context, p *pass, notePath string, opts Options) {
	// Step 1: quality gate on the input itself.
	note, qa, err := o.assess(ctx, notePath)
	if note.Path == "" {
		note.Path = notePath
	}
	p.res.Path = note.Path
	p.note = note
	if err != nil {
		kind := apperr.KindOf(err)
		if ctx.Err() != nil {
			kind = apperr.KindCancelled
		}
		switch {
		case kind.Fatal() || kind == apperr.KindCancelled:
			p.fail(models.StageQuality, kind, err.Error())
			p.res.Quality = models.NeutralAssessment()
			p.fatal = true
			return
		default:
			// Step 2: unexpected failure, continue on a neutral score.
			p.logger.Error("orchestrator: quality stage failed", slog.String("error", err.Error()))
			p.fail(models.StageQuality, apperr.KindUnknown, err.Error())
			o.stageIncident(p, models.StageQuality, err)
			qa = models.NeutralAssessment()
		}
	}
	p.res.Quality = normalizeQuality(qa)

	// Step 3: cost gate.
	runEnhancement := true
	if ok, reason := o.deps.Gate.Allow(note, p.res.Quality); !ok {
		runEnhancement = false
		p.warn("skipped enhancement: %s", reason)
	}

	// Steps 4 and 5 run concurrently and are joined before normalization.
	enh := models.NoEnhancement()
	var (
		enhErr  error
		links   []models.ConnectionSuggestion
		linkErr error
	)
	var g errgroup.Group
	if runEnhancement {
		g.Go(func() error {
			enh, enhErr = o.enhance(ctx, p, note, opts.Fast)
			return nil
		})
	}
	g.Go(func() error {
		links, linkErr = o.findLinks(ctx, p, note)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		p.fail(models.StagePipeline, apperr.KindCancelled, err.Error())
		cancelled := models.NoEnhancement()
		cancelled.FailureReason = "cancelled"
		p.res.Enhancement = cancelled
		p.res.Connections = []models.ConnectionSuggestion{}
		p.fatal = true
		return
	}

	// Step 6: normalize.
	p.res.Enhancement = normalizeEnhancement(enh, o.cfg.MaxTags)
	p.res.Incidents = append(p.res.Incidents, enh.Incidents...)
	p.res.Connections = normalizeConnections(links, note.Path, o.cfg.MaxConnectionResults)

	switch {
	case enhErr != nil:
		p.fail(models.StageEnhancement, apperr.KindUnknown, enhErr.Error())
	case p.res.Enhancement.Source == models.SourceDegraded:
		p.fail(models.StageEnhancement, apperr.KindProvider, p.res.Enhancement.FailureReason)
	case p.res.Enhancement.Source == models.SourceNone:
		if runEnhancement {
			p.warn("enhancement unavailable: %s", p.res.Enhancement.FailureReason)
		}
	}
	if p.res.Enhancement.UsedFallback {
		p.warn("used external fallback provider %s; the call may have incurred cost", p.res.Enhancement.Provider)
	}

	if linkErr != nil {
		if isPanic(linkErr) {
			o.stageIncident(p, models.StageConnections, linkErr)
		}
		kind := apperr.KindOf(linkErr)
		if kind == apperr.KindUnknown && !isPanic(linkErr) {
			kind = apperr.KindEmbedding
		}
		p.fail(models.StageConnections, kind, linkErr.Error())
	}
	if len(p.res.Connections) == 0 {
		p.warn("no connections found")
	}

	// Step 7: every stage failed.
	if len(p.res.Errors) >= pipelineIncidentThreshold {
		o.pipelineIncident(p)
	}
}

func (o *Orchestrator) assess(ctx context.Context, notePath string) (note models.NoteRecord, qa models.QualityAssessment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError("quality.assess", r)
		}
	}()
	return o.deps.Quality.Assess(ctx, notePath)
}

// enhance returns an error only when the enhancer panicked.
func (o *Orchestrator) enhance(ctx context.Context, p *pass, note models.NoteRecord, fast bool) (res models.EnhancementResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError("enhance", r)
			p.logger.Error("orchestrator: enhancement panicked", slog.String("error", err.Error()))
			res = models.DegradedEnhancement(err.Error())
			if id := o.deps.Incidents.WriteIncident(incident.KindStageFailure, stageFields(note, models.StageEnhancement, err)); id != "" {
				res.Incidents = []string{id}
			}
		}
	}()
	return o.deps.Enhancer.Enhance(ctx, note, fast), nil
}

func (o *Orchestrator) findLinks(ctx context.Context, p *pass, note models.NoteRecord) (links []models.ConnectionSuggestion, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError("connect", r)
			p.logger.Error("orchestrator: connection stage panicked", slog.String("error", err.Error()))
			links = nil
		}
	}()
	return o.deps.Finder.FindLinks(ctx, note, o.cfg.MaxConnectionResults, o.cfg.MinSimilarity)
}

func (o *Orchestrator) persist(ctx context.Context, p *pass) {
	if err := o.deps.Persister.Persist(ctx, p.note, p.res); err != nil {
		p.logger.Warn("orchestrator: persist failed", slog.String("error", err.Error()))
		p.warn("metadata not persisted: %v", err)
	}
}

func (o *Orchestrator) stageIncident(p *pass, stage string, err error) {
	if id := o.deps.Incidents.WriteIncident(incident.KindStageFailure, stageFields(p.note, stage, err)); id != "" {
		p.res.Incidents = append(p.res.Incidents, id)
	}
}

func (o *Orchestrator) pipelineIncident(p *pass) {
	errs := make([]string, 0, len(p.res.Errors))
	for _, e := range p.res.Errors {
		errs = append(errs, fmt.Sprintf("%s/%s: %s", e.Stage, e.Kind, e.Message))
	}
	p.logger.Error("orchestrator: every stage failed", slog.Int("errors", len(errs)))
	id := o.deps.Incidents.WriteIncident(incident.KindPipelineFailure, map[string]any{
		"note":         p.res.Path,
		"checksum":     p.note.Checksum,
		"stage":        models.StagePipeline,
		"error":        fmt.Sprintf("%d stages failed", len(errs)),
		"errors":       errs,
		"warnings":     append([]string(nil), p.res.Warnings...),
		"needs_review": true,
	})
	if id != "" {
		p.res.Incidents = append(p.res.Incidents, id)
	}
	p.warn("every stage failed; note flagged for human review")
}

func stageFields(note models.NoteRecord, stage string, err error) map[string]any {
	return map[string]any{
		"note":     note.Path,
		"checksum": note.Checksum,
		"stage":    stage,
		"error":    err.Error(),
	}
}

type panicErr struct {
	op    string
	value any
	stack []byte
}

func (e *panicErr) Error() string {
	return fmt.Sprintf("%s: panic: %v", e.op, e.value)
}

func panicError(op string, v any) error {
	return apperr.Unknown(op, &panicErr{op: op, value: v, stack: debug.Stack()})
}

func isPanic(err error) bool {
	var pe *panicErr
	return errors.As(err, &pe)
}
