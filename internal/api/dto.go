package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/curator/internal/index"
	"github.com/starford/curator/internal/models"
	"github.com/starford/curator/internal/noteservice"
	"github.com/starford/curator/internal/quality"
)

// maxBatchPaths bounds a single batch request.
const maxBatchPaths = 500

// ProcessRequest is the request body for running the pipeline on one note.
type ProcessRequest struct {
	Path   string `json:"path" example:"notes/hello.md" validate:"required"`
	DryRun bool   `json:"dry_run" example:"false"`
	Fast   bool   `json:"fast" example:"false"`
}

// Validate validates the process request.
func (r ProcessRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required, validation.By(notePathRule)),
	)
}

// BatchRequest is the request body for running the pipeline on many notes.
type BatchRequest struct {
	Paths   []string `json:"paths" validate:"required"`
	DryRun  bool     `json:"dry_run"`
	Fast    bool     `json:"fast"`
	Workers int      `json:"workers" example:"4"`
}

// Validate validates the batch request.
func (r BatchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Paths, validation.Required, validation.Length(1, maxBatchPaths)),
		validation.Field(&r.Workers, validation.Min(0), validation.Max(64)),
	)
}

func notePathRule(v any) error {
	s, _ := v.(string)
	return quality.ValidatePath(s)
}

// BatchResponse wraps the results of a batch run, in request order.
type BatchResponse struct {
	Results []models.OrchestrationResult `json:"results" validate:"required"`
}

// QualityResponse is the structural assessment of one note.
type QualityResponse struct {
	Path    string                   `json:"path" example:"notes/hello.md" validate:"required"`
	Quality models.QualityAssessment `json:"quality" validate:"required"`
}

// ConnectionsResponse lists suggested links for one note.
type ConnectionsResponse struct {
	Path        string                        `json:"path" example:"notes/hello.md" validate:"required"`
	Connections []models.ConnectionSuggestion `json:"connections" validate:"required"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// SearchResult is a single search hit in the API response.
type SearchResult = index.SearchResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}
