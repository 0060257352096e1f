// Package incident writes diagnostic records for human review.
//
// Incidents are best-effort: a sink never returns an error and never blocks
// the pass that produced it. Each record is a Markdown file with a YAML
// frontmatter header, so it can be triaged in the same editor as the vault.
package incident

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/curator/internal/parser"
	"github.com/starford/curator/internal/storage"
)

// Incident kinds.
const (
	KindProviderFailure = "provider-failure"
	KindStageFailure    = "stage-failure"
	KindPipelineFailure = "pipeline-failure"
)

// Sink records incidents. WriteIncident returns an identifier for the record
// (a file path for FileSink) or "" if nothing could be written.
//
// The identifier depends only on kind and the identity fields of the
// context, so the same failure on the same note content always yields the
// same identifier.
type Sink interface {
	WriteIncident(kind string, fields map[string]any) string
}

// IdentityFields are the context keys that distinguish one incident from
// another. Volatile details such as the error text or elapsed time are
// recorded but do not change the identifier.
var IdentityFields = []string{"note", "checksum", "stage", "tier", "source", "provider", "fast"}

// ID returns the identifier of an incident of kind with fields. When no
// identity field is present the identifier is random.
func ID(kind string, fields map[string]any) string {
	var b strings.Builder
	b.WriteString(kind)
	found := false
	for _, k := range IdentityFields {
		v, ok := fields[k]
		if !ok {
			continue
		}
		found = true
		fmt.Fprintf(&b, "\x00%s=%v", k, v)
	}
	if !found {
		return uuid.NewString()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(b.String())).String()
}

// Discard drops every incident.
type Discard struct{}

// WriteIncident implements Sink.
func (Discard) WriteIncident(string, map[string]any) string { return "" }

// FileSink writes one Markdown file per incident into a queue directory.
type FileSink struct {
	dir    string
	store  storage.Provider
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewFileSink creates the queue directory if needed.
func NewFileSink(dir string, logger *slog.Logger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("incident: create queue dir: %w", err)
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("incident: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSink{dir: dir, store: store, logger: logger, now: time.Now}, nil
}

// Dir returns the queue directory.
func (s *FileSink) Dir() string { return s.dir }

// WriteIncident implements Sink. Failures are logged and swallowed.
func (s *FileSink) WriteIncident(kind string, fields map[string]any) (id string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("incident: write panicked", slog.String("kind", kind), slog.Any("panic", r))
			id = ""
		}
	}()

	ts := s.now().UTC()
	incidentID := ID(kind, fields)
	name := fmt.Sprintf("%s-%s.md", kind, incidentID[:13])

	fm := map[string]any{
		"id":          incidentID,
		"kind":        kind,
		"recorded_at": ts.Format(time.RFC3339),
		"status":      "open",
	}
	if len(fields) > 0 {
		fm["context"] = fields
	}
	data, err := parser.Render(fm, renderBody(kind, fields))
	if err != nil {
		s.logger.Warn("incident: render failed", slog.String("kind", kind), slog.String("error", err.Error()))
		return ""
	}

	// A repeated failure replaces the earlier record of the same incident.
	s.mu.Lock()
	err = s.store.Write(name, data)
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("incident: write failed", slog.String("kind", kind), slog.String("error", err.Error()))
		return ""
	}

	path := filepath.Join(s.dir, name)
	s.logger.Info("incident: recorded", slog.String("kind", kind), slog.String("path", path))
	return path
}

func renderBody(kind string, fields map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Incident: %s\n\n", kind)
	if note, ok := fields["note"]; ok {
		fmt.Fprintf(&b, "Note: `%v`\n\n", note)
	}
	if msg, ok := fields["error"]; ok {
		fmt.Fprintf(&b, "## Error\n\n```\n%v\n```\n\n", msg)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != "note" && k != "error" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		b.WriteString("## Context\n\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- **%s**: %v\n", k, fields[k])
		}
		b.WriteString("\n")
	}

	b.WriteString("## Remediation\n\n")
	for _, step := range Checklist(kind) {
		fmt.Fprintf(&b, "- [ ] %s\n", step)
	}
	return b.String()
}

// Checklist returns the remediation steps suggested for kind.
func Checklist(kind string) []string {
	switch kind {
	case KindProviderFailure:
		return []string{
			"Check that the provider endpoint is reachable (for a local model, `ollama list`).",
			"Confirm the configured model is installed or available to the account.",
			"For remote providers, verify the API key and remaining quota.",
			"Raise pipeline.provider_timeout_seconds if the failure was a timeout.",
			"Re-run `curator process <note>` once the provider is healthy.",
		}
	case KindStageFailure:
		return []string{
			"Inspect the error and stack trace above for a defect in the failing stage.",
			"Check the note for unusual content (very large files, binary data, odd frontmatter).",
			"Re-run with `--dry-run` to reproduce without writing to the vault.",
		}
	case KindPipelineFailure:
		return []string{
			"Every stage failed for this note; review it manually.",
			"Check the per-stage incidents written in the same pass.",
			"Verify vault permissions, index database health and provider availability.",
			"Close this incident after the note has been processed successfully.",
		}
	default:
		return []string{"Review the context above and re-run the pass."}
	}
}
