package orchestrator

import (
	"math"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/curator/internal/models"
	"github.com/starford/curator/internal/parser"
	"github.com/starford/curator/internal/quality"
)

// canonicalPath returns the vault-relative form of p, the same form the
// index and the watcher use. Blank paths are returned as is so validation
// can reject them.
func canonicalPath(p string) string {
	if strings.TrimSpace(p) == "" {
		return p
	}
	return path.Clean(filepath.ToSlash(p))
}

// normalizeQuality fills gaps in an assessment so it always renders.
func normalizeQuality(qa models.QualityAssessment) models.QualityAssessment {
	if math.IsNaN(qa.Score) {
		qa.Score = models.NeutralScore
	}
	qa.Score = quality.Clamp(qa.Score)
	if qa.Level == "" {
		qa.Level = quality.LevelFor(qa.Score)
	}
	if qa.Recommendations == nil {
		qa.Recommendations = []string{}
	}
	return qa
}

func normalizeEnhancement(e models.EnhancementResult, maxTags int) models.EnhancementResult {
	if e.Source == "" {
		e.Source = models.SourceNone
	}
	e.Tags = parser.NormalizeTags(e.Tags, maxTags)
	e.Summary = strings.TrimSpace(e.Summary)
	if math.IsNaN(e.QualityScore) {
		e.QualityScore = models.NeutralScore
	}
	e.QualityScore = quality.Clamp(e.QualityScore)
	if e.Source == models.SourceDegraded {
		e.Success = false
		e.Tags = []string{}
		e.Summary = ""
		e.QualityScore = models.NeutralScore
	}
	e.Incidents = nil
	return e
}

// normalizeConnections drops blank, self and duplicate targets, clamps
// scores and enforces the result limit. Order is preserved.
func normalizeConnections(in []models.ConnectionSuggestion, self string, max int) []models.ConnectionSuggestion {
	out := make([]models.ConnectionSuggestion, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		c.Target = strings.TrimSpace(c.Target)
		if c.Target == "" || c.Target == self {
			continue
		}
		if _, dup := seen[c.Target]; dup {
			continue
		}
		seen[c.Target] = struct{}{}
		c.Score = quality.Clamp(c.Score)
		if c.Reason == "" {
			c.Reason = "similar content"
		}
		out = append(out, c)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}
