package orchestrator

import (
	"fmt"

	"github.com/starford/curator/internal/models"
)

// CostGate decides whether a note is worth paying for AI enhancement.
// reason explains a refusal and is surfaced as a warning.
type CostGate interface {
	Allow(note models.NoteRecord, qa models.QualityAssessment) (ok bool, reason string)
}

// ScoreGate refuses notes whose quality score is below Threshold.
type ScoreGate struct {
	Threshold float64
}

// Allow implements CostGate.
func (g ScoreGate) Allow(_ models.NoteRecord, qa models.QualityAssessment) (bool, string) {
	if qa.Score < g.Threshold {
		return false, fmt.Sprintf("quality score %.2f is below the cost gate threshold %.2f", qa.Score, g.Threshold)
	}
	return true, ""
}

// GateFunc adapts a function to CostGate.
type GateFunc func(note models.NoteRecord, qa models.QualityAssessment) (bool, string)

// Allow implements CostGate.
func (f GateFunc) Allow(note models.NoteRecord, qa models.QualityAssessment) (bool, string) {
	return f(note, qa)
}
