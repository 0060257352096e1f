// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the curation pipeline as tools via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/curator/internal/apperr"
	"github.com/starford/curator/internal/index"
	"github.com/starford/curator/internal/models"
	"github.com/starford/curator/internal/noteservice"
	"github.com/starford/curator/internal/orchestrator"
)

// NoteFormatURI identifies the note format resource.
const NoteFormatURI = "curator://note-format"

// Pipeline runs one note through the orchestrator.
type Pipeline interface {
	Process(ctx context.Context, path string, opts orchestrator.Options) models.OrchestrationResult
}

// NoteLoader loads and scores notes.
type NoteLoader interface {
	Assess(ctx context.Context, path string) (models.NoteRecord, models.QualityAssessment, error)
	Load(ctx context.Context, path string) (models.NoteRecord, error)
}

// NoteReader serves stored notes and full-text search.
type NoteReader interface {
	GetNote(ctx context.Context, path string) (*noteservice.NoteDetail, error)
	Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error)
}

// Deps are the collaborators exposed as tools.
type Deps struct {
	Pipeline             Pipeline
	Loader               NoteLoader
	Finder               orchestrator.ConnectionFinder
	Notes                NoteReader
	MaxConnectionResults int
	MinSimilarity        float64
}

// Server wraps the MCP server with curator tools.
type Server struct {
	mcp *server.MCPServer
	d   Deps
}

// New creates a new MCP server with all curator tools registered.
func New(d Deps, version string) *Server {
	if d.MaxConnectionResults <= 0 {
		d.MaxConnectionResults = orchestrator.DefaultMaxConnectionResults
	}
	s := &Server{d: d}

	s.mcp = server.NewMCPServer(
		"Curator",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("process_note",
		mcp.WithDescription("Run the full curation pipeline on a note: quality assessment, "+
			"AI tags and summary, and related-note suggestions. Unless dry_run is set, the "+
			"merged metadata is written back into the note's frontmatter."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
		mcp.WithBoolean("dry_run", mcp.Description("Compute the result without writing the note")),
		mcp.WithBoolean("fast", mcp.Description("Tags only, skip the summary")),
	), s.processNote)

	s.mcp.AddTool(mcp.NewTool("assess_note",
		mcp.WithDescription("Score the structure of a note without calling any AI provider."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
	), s.assessNote)

	s.mcp.AddTool(mcp.NewTool("suggest_connections",
		mcp.WithDescription("Suggest existing notes that the given note could link to."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of suggestions")),
		mcp.WithNumber("min_similarity", mcp.Description("Similarity floor in [0,1]")),
	), s.suggestConnections)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note with its frontmatter and backlinks."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through notes content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the note format contract, including the frontmatter "+
			"fields written by the curation pipeline."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(NoteFormatURI, "Note Format Contract",
			mcp.WithResourceDescription("Markdown note format and the curator-owned frontmatter fields."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) processNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := s.d.Pipeline.Process(ctx, path, orchestrator.Options{
		DryRun: req.GetBool("dry_run", false),
		Fast:   req.GetBool("fast", false),
	})
	out, _ := json.MarshalIndent(res, "", "  ")
	if !res.Success {
		return mcp.NewToolResultError(string(out)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) assessNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	_, qa, err := s.d.Loader.Assess(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	out, _ := json.MarshalIndent(qa, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) suggestConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", s.d.MaxConnectionResults)
	minSim := req.GetFloat("min_similarity", s.d.MinSimilarity)
	if limit <= 0 {
		return mcp.NewToolResultError("limit must be positive"), nil
	}
	if minSim < 0 || minSim > 1 {
		return mcp.NewToolResultError("min_similarity must be within [0,1]"), nil
	}

	note, err := s.d.Loader.Load(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	links, err := s.d.Finder.FindLinks(ctx, note, limit, minSim)
	if err != nil {
		return toolError(path, err), nil
	}
	if len(links) == 0 {
		return mcp.NewToolResultText("no connections found"), nil
	}
	out, _ := json.MarshalIndent(links, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.d.Notes.GetNote(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	out, _ := json.MarshalIndent(note, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.d.Notes.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getNoteContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      NoteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

func toolError(path string, err error) *mcp.CallToolResult {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path))
	case apperr.KindValidation:
		return mcp.NewToolResultError(fmt.Sprintf("invalid note: %v", err))
	default:
		return mcp.NewToolResultError(err.Error())
	}
}
