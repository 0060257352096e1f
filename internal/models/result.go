package models

import "time"

// QualityLevel is the tier derived from a quality score.
type QualityLevel string

// Quality tiers.
const (
	LevelPoor      QualityLevel = "poor"
	LevelFair      QualityLevel = "fair"
	LevelGood      QualityLevel = "good"
	LevelExcellent QualityLevel = "excellent"
)

// NeutralScore is substituted whenever a score cannot be computed.
const NeutralScore = 0.5

// QualityAssessment is the structural score of a single note.
type QualityAssessment struct {
	Score           float64      `json:"score"`
	Level           QualityLevel `json:"level"`
	WordCount       int          `json:"word_count"`
	TagCount        int          `json:"tag_count"`
	LinkCount       int          `json:"link_count"`
	HasFrontmatter  bool         `json:"has_frontmatter"`
	Recommendations []string     `json:"recommendations"`
}

// NeutralAssessment is used when the assessor failed unexpectedly.
func NeutralAssessment() QualityAssessment {
	return QualityAssessment{
		Score:           NeutralScore,
		Level:           LevelFair,
		Recommendations: []string{},
	}
}

// Source identifies which tier produced an enhancement.
type Source string

// Enhancement sources.
const (
	SourceLocal    Source = "local"
	SourceRemote   Source = "remote"
	SourceDegraded Source = "degraded"
	SourceNone     Source = "none"
)

// EnhancementResult is the output of the AI enhancement stage.
type EnhancementResult struct {
	Success       bool     `json:"success"`
	Source        Source   `json:"source"`
	UsedFallback  bool     `json:"used_fallback"`
	Provider      string   `json:"provider,omitempty"`
	Tags          []string `json:"tags"`
	Summary       string   `json:"summary"`
	QualityScore  float64  `json:"quality_score"`
	FailureReason string   `json:"failure_reason,omitempty"`
	// Incidents lists records written for failed attempts during this call.
	Incidents []string `json:"-"`
}

// NoEnhancement is the result recorded when the stage did not run.
func NoEnhancement() EnhancementResult {
	return EnhancementResult{
		Source:       SourceNone,
		Tags:         []string{},
		QualityScore: NeutralScore,
	}
}

// DegradedEnhancement is returned when every provider tier failed.
func DegradedEnhancement(reason string) EnhancementResult {
	return EnhancementResult{
		Source:        SourceDegraded,
		Tags:          []string{},
		QualityScore:  NeutralScore,
		FailureReason: reason,
	}
}

// ConnectionSuggestion proposes a link from the processed note to Target.
type ConnectionSuggestion struct {
	Target string  `json:"target"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Pipeline stage names.
const (
	StageQuality     = "quality"
	StageEnhancement = "enhancement"
	StageConnections = "connections"
	StagePipeline    = "pipeline"
)

// StageError records one failure observed during a pass.
type StageError struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// OrchestrationResult is the terminal artifact of one pass.
type OrchestrationResult struct {
	Path        string                 `json:"path"`
	Success     bool                   `json:"success"`
	Quality     QualityAssessment      `json:"quality"`
	Enhancement EnhancementResult      `json:"enhancement"`
	Connections []ConnectionSuggestion `json:"connections"`
	Errors      []StageError           `json:"errors"`
	Warnings    []string               `json:"warnings"`
	Incidents   []string               `json:"incidents,omitempty"`
	Duration    time.Duration          `json:"duration"`
	DryRun      bool                   `json:"dry_run"`
}

// HasErrorKind reports whether any recorded error has the given kind.
func (r *OrchestrationResult) HasErrorKind(kind string) bool {
	for _, e := range r.Errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}
