// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes voice note tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/uos-liuyang/deepin-voice-note/internal/models"
	"github.com/uos-liuyang/deepin-voice-note/internal/noteservice"
	"github.com/uos-liuyang/deepin-voice-note/internal/store"
)

// Server wraps the MCP server with voice note tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"deepin-voice-note",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notebooks",
		mcp.WithDescription("List all notebooks with their note counts."),
	), s.listNotebooks)

	s.mcp.AddTool(mcp.NewTool("create_notebook",
		mcp.WithDescription("Create a notebook. An empty name gets a default name."),
		mcp.WithString("name", mcp.Description("Notebook display name")),
	), s.createNotebook)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List the notes of a notebook, sticky notes first."),
		mcp.WithString("notebook_id", mcp.Required(), mcp.Description("Notebook id")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note, including a voice note's transcript if present."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a text note inside a notebook."),
		mcp.WithString("notebook_id", mcp.Required(), mcp.Description("Notebook id")),
		mcp.WithString("name", mcp.Description("Note display name (optional)")),
		mcp.WithString("content", mcp.Description("Note text content")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note names, content and transcripts."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("start_conversion",
		mcp.WithDescription("Start converting a voice note's recording to text."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Voice note id")),
	), s.startConversion)

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

func requireID(req mcp.CallToolRequest, key string) (int64, error) {
	raw, err := req.RequireString(key)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a numeric id", key)
	}
	return id, nil
}

func (s *Server) listNotebooks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nbs, err := s.svc.ListNotebooks(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(nbs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createNotebook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var name string
	if v, nErr := req.RequireString("name"); nErr == nil {
		name = v
	}
	nb, err := s.svc.CreateNotebook(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(nb, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "notebook_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes, err := s.svc.ListNotes(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(notes, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(note, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nbID, err := requireID(req, "notebook_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var name, content string
	if v, nErr := req.RequireString("name"); nErr == nil {
		name = v
	}
	if v, cErr := req.RequireString("content"); cErr == nil {
		content = v
	}
	note, err := s.svc.CreateNote(ctx, nbID, models.KindText, name, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(note, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits := make([]store.SearchHit, 0, 20)
	for hit := range s.svc.Search(ctx, query) {
		hits = append(hits, hit)
		if len(hits) >= 20 {
			break
		}
	}
	out, _ := json.MarshalIndent(hits, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) startConversion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := s.svc.StartConversion(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(view, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
