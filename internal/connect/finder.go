// Package connect discovers notes related to the one being processed.
//
// FindLinks never fails the caller: the suggestion slice is always non-nil
// and an error, when returned, only describes why the lookup degraded.
package connect

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/starford/curator/internal/apperr"
	"github.com/starford/curator/internal/index"
	"github.com/starford/curator/internal/models"
	"github.com/starford/curator/internal/parser"
)

// DefaultTimeout bounds one lookup.
const DefaultTimeout = 30 * time.Second

// Match is one backend score for a corpus note.
type Match struct {
	ID    string
	Score float64
}

// Backend scores corpus notes against text.
type Backend interface {
	SimilarNotes(ctx context.Context, text string, ids []string, topK int) ([]Match, error)
}

// Corpus lists the notes that may be suggested.
type Corpus interface {
	Corpus(ctx context.Context) ([]index.NoteRow, error)
}

// Finder ranks corpus notes by similarity.
type Finder struct {
	corpus  Corpus
	backend Backend
	timeout time.Duration
	logger  *slog.Logger
}

// NewFinder creates a finder. timeout <= 0 uses DefaultTimeout.
func NewFinder(corpus Corpus, backend Backend, timeout time.Duration, logger *slog.Logger) *Finder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{corpus: corpus, backend: backend, timeout: timeout, logger: logger}
}

// FindLinks returns up to maxResults suggestions scoring at least minSimilarity,
// best first. Ties go to the most recently modified target, then to path order.
// The note itself and notes it already links to are never suggested.
func (f *Finder) FindLinks(ctx context.Context, note models.NoteRecord, maxResults int, minSimilarity float64) ([]models.ConnectionSuggestion, error) {
	const op = "connect.find_links"
	out := []models.ConnectionSuggestion{}
	if maxResults <= 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	rows, err := f.corpus.Corpus(ctx)
	if err != nil {
		return out, apperr.Embedding(op, fmt.Errorf("list corpus: %w", err))
	}

	linked := linkKeys(note.Links)
	candidates := make(map[string]index.NoteRow, len(rows))
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Path == note.Path || isLinked(linked, r.Path) {
			continue
		}
		candidates[r.Path] = r
		ids = append(ids, r.Path)
	}
	if len(ids) == 0 {
		return out, nil
	}

	// Ask for every candidate so ties at the cut-off are broken here, not by the backend.
	matches, err := f.backend.SimilarNotes(ctx, note.Text(), ids, len(ids))
	if err != nil {
		f.logger.Warn("connect: backend failed", slog.String("path", note.Path), slog.String("error", err.Error()))
		return out, apperr.Embedding(op, err)
	}

	best := make(map[string]float64, len(matches))
	for _, m := range matches {
		if _, ok := candidates[m.ID]; !ok {
			continue
		}
		s := clamp(m.Score)
		if s < minSimilarity {
			continue
		}
		if prev, seen := best[m.ID]; !seen || s > prev {
			best[m.ID] = s
		}
	}

	ranked := make([]index.NoteRow, 0, len(best))
	for id := range best {
		ranked = append(ranked, candidates[id])
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if best[a.Path] != best[b.Path] {
			return best[a.Path] > best[b.Path]
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.Path < b.Path
	})
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}

	noteTags := parser.NormalizeTags(note.Tags, 0)
	for _, r := range ranked {
		out = append(out, models.ConnectionSuggestion{
			Target: r.Path,
			Score:  best[r.Path],
			Reason: reason(best[r.Path], noteTags, r.Tags),
		})
	}
	return out, nil
}

func reason(score float64, noteTags, targetTags []string) string {
	msg := fmt.Sprintf("%.0f%% content similarity", score*100)
	shared := sharedTags(noteTags, targetTags)
	if len(shared) > 0 {
		msg += "; shared tags: " + strings.Join(shared, ", ")
	}
	return msg
}

func sharedTags(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[t] = struct{}{}
	}
	var out []string
	for _, t := range a {
		if _, ok := set[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// linkKeys normalizes wikilink targets for comparison against vault paths.
func linkKeys(links []string) map[string]struct{} {
	keys := make(map[string]struct{}, len(links))
	for _, l := range links {
		l = strings.ToLower(strings.TrimSpace(l))
		l = strings.TrimSuffix(l, ".md")
		if l != "" {
			keys[l] = struct{}{}
		}
	}
	return keys
}

// isLinked matches "dir/note.md" against [[dir/note]], [[note]] and [[note.md]].
func isLinked(keys map[string]struct{}, notePath string) bool {
	full := strings.ToLower(strings.TrimSuffix(notePath, ".md"))
	if _, ok := keys[full]; ok {
		return true
	}
	_, ok := keys[path.Base(full)]
	return ok
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
