// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes mdn tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/halvar/mdn/internal/noteservice"
	"github.com/halvar/mdn/internal/query"
)

// Server wraps the MCP server with mdn tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all mdn tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"mdn",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, optionally narrowed by group, tag formula and fuzzy title pattern."),
		mcp.WithString("group", mcp.Description("Group path or prefix, e.g. work or sw.golang")),
		mcp.WithString("tags", mcp.Description("Boolean tag formula, e.g. '@foo & -@bar'")),
		mcp.WithString("title", mcp.Description("Fuzzy title pattern")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search note contents. Returns matching notes with context snippets."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search pattern; * acts as a wildcard")),
		mcp.WithString("group", mcp.Description("Optional group filter")),
		mcp.WithString("tags", mcp.Description("Optional tag formula filter")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a note. Token is a numeric id, "+
			"a fuzzy title pattern, or one of _c (last created), _e (last edited), _s (last shown)."),
		mcp.WithString("token", mcp.Required(), mcp.Description("Note id, title pattern or recency token")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("resolve_note",
		mcp.WithDescription("Resolve a token to a single note id without reading its content."),
		mcp.WithString("token", mcp.Required(), mcp.Description("Note id, title pattern or recency token")),
	), s.resolveNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. Content MUST follow the canonical note format "+
			"(YAML front matter with title and group, @word tags in the body). Read the contract "+
			"first via the get_note_contract tool or the mdn://note-format resource."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note content following the mdn note format contract")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the canonical mdn note format contract. "+
			"Call this before creating notes to ensure correct structure."),
	), s.getNoteContract)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource("mdn://note-format", "Note Format Contract",
			mcp.WithResourceDescription("Canonical note format that all notes must follow."),
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

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := query.Filter{
		Group: req.GetString("group", ""),
		Tags:  req.GetString("tags", ""),
		Title: req.GetString("title", ""),
	}
	rows, err := s.svc.List(f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(rows, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pattern, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f := query.Filter{
		Group: req.GetString("group", ""),
		Tags:  req.GetString("tags", ""),
	}
	hits, err := s.svc.SearchContent(ctx, pattern, query.PatternWildcard, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(hits, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := req.RequireString("token")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := s.svc.Resolve(token)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.svc.Vault().Read(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %d", id)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) resolveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := req.RequireString("token")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := s.svc.Resolve(token)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.svc.Entry(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(entry, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := s.svc.New([]byte(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created note %d", id)), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "mdn://note-format",
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
