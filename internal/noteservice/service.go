// Package noteservice reads notes for the outer surfaces and writes the
// merged pipeline metadata back into a note's frontmatter.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/starford/curator/internal/apperr"
	"github.com/starford/curator/internal/checksum"
	"github.com/starford/curator/internal/index"
	"github.com/starford/curator/internal/models"
	"github.com/starford/curator/internal/parser"
	"github.com/starford/curator/internal/storage"
)

// Frontmatter keys owned by the pipeline.
const (
	KeyTags         = "tags"
	KeySummary      = "summary"
	KeyQualityScore = "quality_score"
	KeyQualityLevel = "quality_level"
	KeyRelated      = "related"
	KeyEnhancedBy   = "enhanced_by"
	KeyEnhancedAt   = "enhanced_at"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Backlinks   []string       `json:"backlinks"`
}

// Service coordinates storage and index operations.
type Service struct {
	store storage.Provider
	db    *index.DB
	now   func() time.Time

	mu      sync.Mutex
	written map[string]string // path -> checksum of our last write
}

// NewService creates a new note service.
func NewService(store storage.Provider, db *index.DB) *Service {
	return &Service{store: store, db: db, now: time.Now, written: make(map[string]string)}
}

// GetNote reads a note from storage, parses it, and enriches with backlinks.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(strings.TrimSuffix(path, ".md"))
	if err != nil {
		return nil, err
	}
	return &NoteDetail{
		Path:        path,
		Title:       res.Title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Frontmatter,
		Backlinks:   nonNilSlice(bl),
	}, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Persist merges the pass outcome into the note's frontmatter, writes the
// file atomically and re-indexes it. The write is refused with
// apperr.ErrConflict when the file changed since note was loaded.
func (s *Service) Persist(_ context.Context, note models.NoteRecord, res models.OrchestrationResult) error {
	data, err := s.store.Read(note.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	if note.Checksum != "" && note.Checksum != checksum.Sum(data) {
		return fmt.Errorf("noteservice: %s changed during processing: %w", note.Path, apperr.ErrConflict)
	}

	parsed, err := parser.Parse(data)
	if err != nil {
		return err
	}
	fm := make(map[string]any, len(parsed.Frontmatter)+6)
	for k, v := range parsed.Frontmatter {
		fm[k] = v
	}
	merge(fm, res, s.now())

	out, err := parser.Render(fm, parsed.Body)
	if err != nil {
		return fmt.Errorf("noteservice: render: %w", err)
	}
	// Recorded before the write so a fast watcher event is still recognised.
	s.mu.Lock()
	s.written[note.Path] = checksum.Sum(out)
	s.mu.Unlock()
	if err := s.store.Write(note.Path, out); err != nil {
		s.mu.Lock()
		delete(s.written, note.Path)
		s.mu.Unlock()
		return err
	}

	return s.IndexFile(note.Path, out)
}

// merge applies the result to fm.
func merge(fm map[string]any, res models.OrchestrationResult, now time.Time) {
	enh := res.Enhancement
	if enh.Success {
		existing := stringList(fm[KeyTags])
		fm[KeyTags] = parser.NormalizeTags(append(existing, enh.Tags...), 0)
		if enh.Summary != "" {
			fm[KeySummary] = enh.Summary
		}
		if enh.Provider != "" {
			fm[KeyEnhancedBy] = enh.Provider
		}
	}
	fm[KeyQualityScore] = res.Quality.Score
	fm[KeyQualityLevel] = string(res.Quality.Level)

	if len(res.Connections) > 0 {
		related := stringList(fm[KeyRelated])
		seen := make(map[string]struct{}, len(related))
		for _, r := range related {
			seen[r] = struct{}{}
		}
		for _, c := range res.Connections {
			link := "[[" + strings.TrimSuffix(c.Target, ".md") + "]]"
			if _, dup := seen[link]; !dup {
				seen[link] = struct{}{}
				related = append(related, link)
			}
		}
		fm[KeyRelated] = related
	}
	fm[KeyEnhancedAt] = now.UTC().Format(time.RFC3339)
}

// stringList reads a frontmatter value written as a YAML list or a
// comma-separated string.
func stringList(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		out = append(out, t...)
	case string:
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// OwnWrite reports whether the file at path with checksum cs is the last
// write made by Persist. Any other checksum means the file was edited since,
// so the entry is dropped.
func (s *Service) OwnWrite(path, cs string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	want, ok := s.written[path]
	if !ok {
		return false
	}
	if want != cs {
		delete(s.written, path)
		return false
	}
	return true
}

// IndexFile parses data and upserts it into the index.
func (s *Service) IndexFile(path string, data []byte) error {
	return index.IndexFile(s.db, path, data)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
