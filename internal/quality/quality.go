// Package quality scores the structure of a Markdown note.
//
// Scoring is a deterministic function of file content. The rubric awards
// fixed bands for frontmatter presence, body length, tag count and link
// count; the sum is capped to [0,1] and mapped onto a quality level.
package quality

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/starford/curator/internal/apperr"
	"github.com/starford/curator/internal/checksum"
	"github.com/starford/curator/internal/models"
	"github.com/starford/curator/internal/parser"
	"github.com/starford/curator/internal/storage"
)

// Rubric bands.
const (
	weightFrontmatter = 0.20

	wordsRich        = 300
	wordsSolid       = 100
	wordsStub        = 30
	weightWordsRich  = 0.40
	weightWordsSolid = 0.25
	weightWordsStub  = 0.10

	tagsMany        = 3
	weightTagsMany  = 0.20
	weightTagsSome  = 0.10
	linksMany       = 3
	weightLinksMany = 0.20
	weightLinksSome = 0.10

	thresholdExcellent = 0.8
	thresholdGood      = 0.6
	thresholdFair      = 0.3
)

// Assessor loads notes from a vault and scores them.
type Assessor struct {
	store storage.Provider
}

// New creates an Assessor reading from store.
func New(store storage.Provider) *Assessor {
	return &Assessor{store: store}
}

// Assess loads the note at path and scores it. Errors are classified as
// apperr.KindValidation for unusable paths or content and
// apperr.KindNotFound when the file does not exist.
func (a *Assessor) Assess(ctx context.Context, notePath string) (models.NoteRecord, models.QualityAssessment, error) {
	note, err := a.Load(ctx, notePath)
	if err != nil {
		return models.NoteRecord{Path: notePath}, models.QualityAssessment{}, err
	}
	return note, Score(note), nil
}

// Load reads and parses the note at notePath without scoring it.
func (a *Assessor) Load(ctx context.Context, notePath string) (models.NoteRecord, error) {
	const op = "quality.load"
	if err := ctx.Err(); err != nil {
		return models.NoteRecord{}, err
	}
	if err := ValidatePath(notePath); err != nil {
		return models.NoteRecord{}, apperr.Validation(op, err)
	}

	meta, err := a.store.Stat(notePath)
	if err != nil {
		return models.NoteRecord{}, classify(op, err)
	}
	data, err := a.store.Read(notePath)
	if err != nil {
		return models.NoteRecord{}, classify(op, err)
	}
	if !utf8.Valid(data) {
		return models.NoteRecord{}, apperr.Validation(op, fmt.Errorf("%s is not valid UTF-8", notePath))
	}

	res, err := parser.Parse(data)
	if err != nil {
		return models.NoteRecord{}, apperr.Validation(op, err)
	}
	return models.NoteRecord{
		Path:        meta.Path,
		Frontmatter: res.Frontmatter,
		Body:        res.Body,
		Title:       res.Title,
		Links:       res.Links,
		Tags:        res.Tags,
		Checksum:    checksum.Sum(data),
		UpdatedAt:   meta.UpdatedAt,
	}, nil
}

// ValidatePath rejects paths that can never name a note.
func ValidatePath(p string) error {
	switch {
	case strings.TrimSpace(p) == "":
		return errors.New("note path is empty")
	case !utf8.ValidString(p):
		return errors.New("note path is not valid UTF-8")
	case strings.ContainsRune(p, 0):
		return errors.New("note path contains a NUL byte")
	case !strings.EqualFold(path.Ext(p), ".md"):
		return fmt.Errorf("note path %q must have a .md extension", p)
	}
	return nil
}

func classify(op string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return apperr.NotFound(op, err)
	case errors.Is(err, storage.ErrInvalidPath):
		return apperr.Validation(op, err)
	default:
		return apperr.Unknown(op, err)
	}
}

// Score computes the assessment for an already-loaded note.
func Score(note models.NoteRecord) models.QualityAssessment {
	qa := models.QualityAssessment{
		WordCount:      parser.WordCount(note.Body),
		TagCount:       len(note.Tags),
		LinkCount:      len(note.Links),
		HasFrontmatter: note.Frontmatter != nil,
	}

	var score float64
	if qa.HasFrontmatter {
		score += weightFrontmatter
	}
	switch {
	case qa.WordCount >= wordsRich:
		score += weightWordsRich
	case qa.WordCount >= wordsSolid:
		score += weightWordsSolid
	case qa.WordCount >= wordsStub:
		score += weightWordsStub
	}
	switch {
	case qa.TagCount >= tagsMany:
		score += weightTagsMany
	case qa.TagCount >= 1:
		score += weightTagsSome
	}
	switch {
	case qa.LinkCount >= linksMany:
		score += weightLinksMany
	case qa.LinkCount >= 1:
		score += weightLinksSome
	}

	qa.Score = Clamp(round2(score))
	qa.Level = LevelFor(qa.Score)
	qa.Recommendations = recommend(note, qa)
	return qa
}

// LevelFor maps a score onto a quality level.
func LevelFor(score float64) models.QualityLevel {
	switch {
	case score >= thresholdExcellent:
		return models.LevelExcellent
	case score >= thresholdGood:
		return models.LevelGood
	case score >= thresholdFair:
		return models.LevelFair
	default:
		return models.LevelPoor
	}
}

// Clamp bounds v to [0,1].
func Clamp(v float64) float64 {
	if v != v || v < 0 { // NaN or negative
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// round2 removes float noise from summed weights (0.2+0.4+0.2 != 0.8).
func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func recommend(note models.NoteRecord, qa models.QualityAssessment) []string {
	recs := []string{}
	if !qa.HasFrontmatter {
		recs = append(recs, "Add a YAML frontmatter block with at least a title.")
	} else if _, ok := note.Frontmatter["title"]; !ok {
		recs = append(recs, "Add a title field to the frontmatter.")
	}
	if qa.WordCount < wordsSolid {
		recs = append(recs, fmt.Sprintf("Expand the body: %d words, aim for at least %d.", qa.WordCount, wordsSolid))
	}
	switch {
	case qa.TagCount == 0:
		recs = append(recs, "Add tags so the note can be filtered and grouped.")
	case qa.TagCount < tagsMany:
		recs = append(recs, fmt.Sprintf("Add more tags: %d present, %d recommended.", qa.TagCount, tagsMany))
	}
	if qa.LinkCount == 0 {
		recs = append(recs, "Link related notes with [[wikilinks]].")
	}
	return recs
}
