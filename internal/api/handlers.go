package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/curator/internal/apperr"
	"github.com/starford/curator/internal/models"
	"github.com/starford/curator/internal/noteservice"
	"github.com/starford/curator/internal/orchestrator"
)

// Pipeline runs notes through the orchestrator.
type Pipeline interface {
	Process(ctx context.Context, path string, opts orchestrator.Options) models.OrchestrationResult
	ProcessBatch(ctx context.Context, paths []string, opts orchestrator.Options, workers int) []models.OrchestrationResult
}

// NoteLoader loads and scores notes without running the pipeline.
type NoteLoader interface {
	Assess(ctx context.Context, path string) (models.NoteRecord, models.QualityAssessment, error)
	Load(ctx context.Context, path string) (models.NoteRecord, error)
}

// NoteReader serves stored notes and full-text search.
type NoteReader interface {
	GetNote(ctx context.Context, path string) (*noteservice.NoteDetail, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Pipeline Pipeline
	Loader   NoteLoader
	Finder   orchestrator.ConnectionFinder
	Notes    NoteReader
	// Defaults for GET /connections when the query omits them.
	MaxConnectionResults int
	MinSimilarity        float64
}

// Handler holds API route handlers.
type Handler struct {
	d Deps
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	if d.MaxConnectionResults <= 0 {
		d.MaxConnectionResults = orchestrator.DefaultMaxConnectionResults
	}
	return &Handler{d: d}
}

// notePath extracts the note path from the wildcard URL segment.
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Process handles POST /api/process.
//
//	@Summary		Run the curation pipeline on one note
//	@Tags			pipeline
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ProcessRequest	true	"Note to process"
//	@Success		200		{object}	models.OrchestrationResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	models.OrchestrationResult
//	@Failure		422		{object}	models.OrchestrationResult
//	@Security		BearerAuth
//	@Router			/process [post]
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	res := h.d.Pipeline.Process(r.Context(), req.Path, orchestrator.Options{DryRun: req.DryRun, Fast: req.Fast})
	writeJSON(w, resultStatus(res), res)
}

// ProcessBatch handles POST /api/process/batch.
//
//	@Summary		Run the curation pipeline on several notes
//	@Tags			pipeline
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BatchRequest	true	"Notes to process"
//	@Success		200		{object}	BatchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/process/batch [post]
func (h *Handler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	results := h.d.Pipeline.ProcessBatch(r.Context(), req.Paths, orchestrator.Options{DryRun: req.DryRun, Fast: req.Fast}, req.Workers)
	writeJSON(w, http.StatusOK, BatchResponse{Results: results})
}

// Quality handles GET /api/quality/*.
//
//	@Summary		Score the structure of a note
//	@Tags			pipeline
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	QualityResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/quality/{path} [get]
func (h *Handler) Quality(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, qa, err := h.d.Loader.Assess(r.Context(), path)
	if err != nil {
		writeError(w, "assess note failed", path, err)
		return
	}
	writeJSON(w, http.StatusOK, QualityResponse{Path: note.Path, Quality: qa})
}

// Connections handles GET /api/connections/*.
//
//	@Summary		Suggest related notes
//	@Tags			pipeline
//	@Produce		json
//	@Param			path			path		string	true	"Note path"
//	@Param			limit			query		int		false	"Max suggestions"
//	@Param			min_similarity	query		number	false	"Similarity floor in [0,1]"
//	@Success		200				{object}	ConnectionsResponse
//	@Failure		400				{object}	errResponse
//	@Failure		404				{object}	errResponse
//	@Failure		502				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/connections/{path} [get]
func (h *Handler) Connections(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	q := r.URL.Query()
	limit := h.d.MaxConnectionResults
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a positive integer"))
			return
		}
		limit = n
	}
	minSim := h.d.MinSimilarity
	if v := q.Get("min_similarity"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			writeJSON(w, http.StatusBadRequest, errorBody("min_similarity must be within [0,1]"))
			return
		}
		minSim = f
	}

	note, err := h.d.Loader.Load(r.Context(), path)
	if err != nil {
		writeError(w, "load note failed", path, err)
		return
	}
	links, err := h.d.Finder.FindLinks(r.Context(), note, limit, minSim)
	if err != nil {
		writeError(w, "find connections failed", path, err)
		return
	}
	writeJSON(w, http.StatusOK, ConnectionsResponse{Path: note.Path, Connections: links})
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.d.Notes.GetNote(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get note failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.d.Notes.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// resultStatus maps a finished pass to an HTTP status. Only fatal input
// errors change the status; degraded passes are still 200.
func resultStatus(res models.OrchestrationResult) int {
	if res.Success {
		return http.StatusOK
	}
	for _, e := range res.Errors {
		switch apperr.Kind(e.Kind) {
		case apperr.KindNotFound:
			return http.StatusNotFound
		case apperr.KindValidation:
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusOK
}

// writeError maps a classified error to a status and body.
func writeError(w http.ResponseWriter, msg, path string, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case apperr.KindNotFound:
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case apperr.KindEmbedding, apperr.KindProvider:
		slog.Warn(msg, slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("similarity backend unavailable"))
	case apperr.KindCancelled:
		writeJSON(w, http.StatusServiceUnavailable, errorBody("request cancelled"))
	default:
		slog.Error(msg, slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
