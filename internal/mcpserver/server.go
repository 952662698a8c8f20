// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Raido deck tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/raido/internal/deckservice"
)

// Server wraps the MCP server with Raido tools.
type Server struct {
	mcp *server.MCPServer
	svc *deckservice.Service
}

// New creates a new MCP server with all Raido tools registered.
func New(svc *deckservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("load_deck",
		mcp.WithDescription("Open a deck archive (.apkg) and return its cards and note types."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Filesystem path to the .apkg archive")),
	), s.loadDeck)

	s.mcp.AddTool(mcp.NewTool("list_cards",
		mcp.WithDescription("List the cards of the currently open deck in presentation order."),
	), s.listCards)

	s.mcp.AddTool(mcp.NewTool("update_field",
		mcp.WithDescription("Replace the HTML content of one field on a note. "+
			"Embedded images are carried as data URIs inside the HTML."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Note id as a decimal string")),
		mcp.WithString("field", mcp.Required(), mcp.Description("Field name as defined by the note's type")),
		mcp.WithString("html", mcp.Required(), mcp.Description("New HTML value for the field")),
	), s.updateField)

	s.mcp.AddTool(mcp.NewTool("create_card",
		mcp.WithDescription("Create a blank note of the given note type and insert its card "+
			"at a position in the presentation order."),
		mcp.WithString("model_id", mcp.Required(), mcp.Description("Note type id as a decimal string")),
		mcp.WithNumber("position", mcp.Description("Insert position in presentation order (default: append)")),
	), s.createCard)

	s.mcp.AddTool(mcp.NewTool("delete_card",
		mcp.WithDescription("Delete a note and all of its cards from the deck."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Note id as a decimal string")),
	), s.deleteCard)

	s.mcp.AddTool(mcp.NewTool("export_deck",
		mcp.WithDescription("Export the open deck back to an archive. Mode 'overwrite' replaces "+
			"the source file atomically; 'copy' writes to a new path."),
		mcp.WithString("mode", mcp.Description("'overwrite' or 'copy' (default: configured save mode)")),
		mcp.WithString("path", mcp.Description("Destination path for copy mode")),
	), s.exportDeck)

	s.mcp.AddTool(mcp.NewTool("close_deck",
		mcp.WithDescription("Close the currently open deck without exporting."),
	), s.closeDeck)

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

func (s *Server) loadDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap, err := s.svc.LoadArchive(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(snap, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.svc.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(snap.Cards, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) updateField(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	noteID, err := requireID(req, "note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	field, err := req.RequireString("field")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	html, err := req.RequireString("html")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.UpdateField(ctx, noteID, field, html); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated note %d field %q", noteID, field)), nil
}

func (s *Server) createCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	modelID, err := requireID(req, "model_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	position := req.GetInt("position", -1)

	card, err := s.svc.CreateCard(ctx, modelID, position)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(card, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) deleteCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	noteID, err := requireID(req, "note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.DeleteCard(ctx, noteID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted note %d", noteID)), nil
}

func (s *Server) exportDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode := req.GetString("mode", "")
	path := req.GetString("path", "")

	dest, err := s.svc.Export(ctx, mode, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("exported: %s", dest)), nil
}

func (s *Server) closeDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.svc.CloseSession(ctx)
	return mcp.NewToolResultText("deck closed"), nil
}

func requireID(req mcp.CallToolRequest, key string) (int64, error) {
	raw, err := req.RequireString(key)
	if err != nil {
		return 0, err
	}
	var id int64
	if _, err := fmt.Sscanf(raw, "%d", &id); err != nil {
		return 0, fmt.Errorf("%s must be a decimal integer: %q", key, raw)
	}
	return id, nil
}
