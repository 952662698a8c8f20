package mcpserver

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/raido/internal/deckservice"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/settings"
	"github.com/starford/raido/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	store, err := settings.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	svc := deckservice.NewService(context.Background(), store, nil, nil)
	t.Cleanup(svc.Close)
	return New(svc)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper; the handler
	// functions are exercised directly.
	var result *mcp.CallToolResult
	var err error
	switch name {
	case "load_deck":
		result, err = srv.loadDeck(ctx, req)
	case "list_cards":
		result, err = srv.listCards(ctx, req)
	case "update_field":
		result, err = srv.updateField(ctx, req)
	case "create_card":
		result, err = srv.createCard(ctx, req)
	case "delete_card":
		result, err = srv.deleteCard(ctx, req)
	case "export_deck":
		result, err = srv.exportDeck(ctx, req)
	case "close_deck":
		result, err = srv.closeDeck(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestLoadListUpdate(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "load_deck", map[string]interface{}{
		"path": testutil.BuildModernArchive(t),
	})
	if r.IsError {
		t.Fatalf("load_deck: %s", resultText(r))
	}
	var snap deckservice.Snapshot
	if err := json.Unmarshal([]byte(resultText(r)), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Schema != "modern" || len(snap.Cards) != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	r = callTool(t, srv, "update_field", map[string]interface{}{
		"note_id": "1700000002000",
		"field":   "Back",
		"html":    "answer via mcp",
	})
	if r.IsError {
		t.Fatalf("update_field: %s", resultText(r))
	}

	r = callTool(t, srv, "list_cards", nil)
	var cards []models.CardView
	if err := json.Unmarshal([]byte(resultText(r)), &cards); err != nil {
		t.Fatal(err)
	}
	if cards[1].Fields["Back"] != "answer via mcp" {
		t.Errorf("Back = %q", cards[1].Fields["Back"])
	}
}

func TestCreateAndDeleteCardTools(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "load_deck", map[string]interface{}{
		"path": testutil.BuildModernArchive(t),
	})

	r := callTool(t, srv, "create_card", map[string]interface{}{
		"model_id": strconv.FormatInt(testutil.BasicModelID, 10),
		"position": 0,
	})
	if r.IsError {
		t.Fatalf("create_card: %s", resultText(r))
	}
	var card models.CardView
	if err := json.Unmarshal([]byte(resultText(r)), &card); err != nil {
		t.Fatal(err)
	}
	if card.Model != "Basic" {
		t.Errorf("card = %+v", card)
	}

	r = callTool(t, srv, "delete_card", map[string]interface{}{
		"note_id": strconv.FormatInt(card.NoteID, 10),
	})
	if r.IsError {
		t.Fatalf("delete_card: %s", resultText(r))
	}
}

func TestToolErrors(t *testing.T) {
	srv := testServer(t)

	// No deck loaded.
	if r := callTool(t, srv, "list_cards", nil); !r.IsError {
		t.Error("list_cards without a deck should report an error result")
	}

	callTool(t, srv, "load_deck", map[string]interface{}{
		"path": testutil.BuildModernArchive(t),
	})

	if r := callTool(t, srv, "update_field", map[string]interface{}{
		"note_id": "not-a-number", "field": "Back", "html": "x",
	}); !r.IsError {
		t.Error("non-numeric note_id should report an error result")
	}
	if r := callTool(t, srv, "delete_card", map[string]interface{}{
		"note_id": "999",
	}); !r.IsError {
		t.Error("deleting an absent note should report an error result")
	}
}

func TestExportAndCloseTools(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "load_deck", map[string]interface{}{
		"path": testutil.BuildModernArchive(t),
	})

	dest := t.TempDir() + "/mcp-out.apkg"
	r := callTool(t, srv, "export_deck", map[string]interface{}{
		"mode": "copy",
		"path": dest,
	})
	if r.IsError {
		t.Fatalf("export_deck: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), dest) {
		t.Errorf("result = %q", resultText(r))
	}

	r = callTool(t, srv, "close_deck", nil)
	if resultText(r) != "deck closed" {
		t.Errorf("close result = %q", resultText(r))
	}
	if r := callTool(t, srv, "list_cards", nil); !r.IsError {
		t.Error("list_cards after close should report an error result")
	}
}
