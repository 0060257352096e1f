package quality

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/curator/internal/apperr"
	"github.com/starford/curator/internal/models"
	"github.com/starford/curator/internal/testutil"
)

func TestAssess_WellFormedNote(t *testing.T) {
	dir, store := testutil.TestVault(t)
	body := "# Go\n" + strings.Repeat("word ", 120) + "\nSee [[x]], [[y]] and [[z]].\n"
	testutil.WriteNote(t, dir, "go.md", "---\ntitle: Go\ntags: [a, b, c]\n---\n"+body)

	note, qa, err := New(store).Assess(context.Background(), "go.md")
	require.NoError(t, err)

	assert.Equal(t, "go.md", note.Path)
	assert.Equal(t, "Go", note.Title)
	assert.NotEmpty(t, note.Checksum)
	assert.True(t, qa.HasFrontmatter)
	assert.Equal(t, 3, qa.TagCount)
	assert.Equal(t, 3, qa.LinkCount)
	assert.InDelta(t, 0.85, qa.Score, 1e-9)
	assert.Equal(t, models.LevelExcellent, qa.Level)
	assert.Empty(t, qa.Recommendations)
}

func TestAssess_StubNote(t *testing.T) {
	dir, store := testutil.TestVault(t)
	testutil.WriteNote(t, dir, "stub.md", "# Tiny\nshort note\n")

	_, qa, err := New(store).Assess(context.Background(), "stub.md")
	require.NoError(t, err)

	assert.False(t, qa.HasFrontmatter)
	assert.Zero(t, qa.Score)
	assert.Equal(t, models.LevelPoor, qa.Level)
	assert.Len(t, qa.Recommendations, 4)
}

func TestAssess_Deterministic(t *testing.T) {
	dir, store := testutil.TestVault(t)
	testutil.WriteNote(t, dir, "n.md", "---\ntitle: N\n---\nsome words and a [[link]] #tag\n")

	a := New(store)
	_, first, err := a.Assess(context.Background(), "n.md")
	require.NoError(t, err)
	_, second, err := a.Assess(context.Background(), "n.md")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAssess_Errors(t *testing.T) {
	dir, store := testutil.TestVault(t)
	testutil.WriteNote(t, dir, "bad.md", "\xff\xfe not utf8")
	a := New(store)

	cases := []struct {
		name string
		path string
		kind apperr.Kind
	}{
		{"empty path", "", apperr.KindValidation},
		{"wrong extension", "notes.txt", apperr.KindValidation},
		{"traversal", "../outside.md", apperr.KindValidation},
		{"missing", "missing.md", apperr.KindNotFound},
		{"invalid utf8", "bad.md", apperr.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := a.Assess(context.Background(), tc.path)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}
}

func TestAssess_CancelledContext(t *testing.T) {
	_, store := testutil.TestVault(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := New(store).Assess(ctx, "any.md")
	assert.Equal(t, apperr.KindCancelled, apperr.KindOf(err))
}

func TestLevelFor(t *testing.T) {
	cases := map[float64]models.QualityLevel{
		0:    models.LevelPoor,
		0.29: models.LevelPoor,
		0.3:  models.LevelFair,
		0.6:  models.LevelGood,
		0.8:  models.LevelExcellent,
		1:    models.LevelExcellent,
	}
	for score, want := range cases {
		assert.Equal(t, want, LevelFor(score), "score %v", score)
	}
}

func TestClamp(t *testing.T) {
	assert.Zero(t, Clamp(-1))
	assert.Zero(t, Clamp(math.NaN()))
	assert.Equal(t, 1.0, Clamp(4))
	assert.Equal(t, 0.4, Clamp(0.4))
}

func TestScore_CapturesRecommendationsForMissingTitle(t *testing.T) {
	qa := Score(models.NoteRecord{Frontmatter: map[string]any{"author": "x"}})
	assert.Contains(t, qa.Recommendations, "Add a title field to the frontmatter.")
}
