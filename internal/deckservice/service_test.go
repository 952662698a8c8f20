package deckservice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/settings"
	"github.com/starford/raido/internal/sse"
	"github.com/starford/raido/internal/testutil"
)

func testService(t *testing.T) *Service {
	t.Helper()
	store, err := settings.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(context.Background(), store, nil, nil)
	t.Cleanup(svc.Close)
	return svc
}

func TestLoadArchiveAndSnapshot(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	path := testutil.BuildModernArchive(t)
	snap, err := svc.LoadArchive(ctx, path)
	if err != nil {
		t.Fatalf("LoadArchive: %v", err)
	}
	if snap.Path != path || snap.Schema != "modern" {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.Cards) != 2 {
		t.Errorf("cards = %d", len(snap.Cards))
	}
	if len(snap.NoteTypes) != 1 || snap.NoteTypes[0].Name != "Basic" {
		t.Errorf("note types = %+v", snap.NoteTypes)
	}

	again, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again.Path != path {
		t.Errorf("Snapshot path = %q", again.Path)
	}
}

func TestLoadArchive_ReplacesPreviousSession(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	if _, err := svc.LoadArchive(ctx, testutil.BuildModernArchive(t)); err != nil {
		t.Fatal(err)
	}
	legacy := testutil.BuildLegacyArchive(t)
	snap, err := svc.LoadArchive(ctx, legacy)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Path != legacy || snap.Schema != "legacy" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestLoadArchive_RecordsRecent(t *testing.T) {
	dir := t.TempDir()
	store, err := settings.NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(context.Background(), store, nil, nil)
	defer svc.Close()

	path := testutil.BuildModernArchive(t)
	if _, err := svc.LoadArchive(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	recent := store.Load().Recent
	if len(recent) != 1 || recent[0] != path {
		t.Errorf("recent = %v", recent)
	}
}

func TestOperationsWithoutSession(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	if _, err := svc.Snapshot(ctx); !errors.Is(err, apperr.ErrSessionClosed) {
		t.Errorf("Snapshot: %v", err)
	}
	if err := svc.UpdateField(ctx, 1, "Front", "x"); !errors.Is(err, apperr.ErrSessionClosed) {
		t.Errorf("UpdateField: %v", err)
	}
	if _, err := svc.CreateCard(ctx, 1, 0); !errors.Is(err, apperr.ErrSessionClosed) {
		t.Errorf("CreateCard: %v", err)
	}
	if err := svc.DeleteCard(ctx, 1); !errors.Is(err, apperr.ErrSessionClosed) {
		t.Errorf("DeleteCard: %v", err)
	}
	if _, err := svc.Export(ctx, "", ""); !errors.Is(err, apperr.ErrSessionClosed) {
		t.Errorf("Export: %v", err)
	}
	// Closing with nothing open is a no-op.
	svc.CloseSession(ctx)
}

func TestMutationsRoundTrip(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	if _, err := svc.LoadArchive(ctx, testutil.BuildModernArchive(t)); err != nil {
		t.Fatal(err)
	}

	if err := svc.UpdateField(ctx, 1700000002000, "Back", "via service"); err != nil {
		t.Fatalf("UpdateField: %v", err)
	}
	card, err := svc.CreateCard(ctx, testutil.BasicModelID, 0)
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if err := svc.DeleteCard(ctx, card.NoteID); err != nil {
		t.Fatalf("DeleteCard: %v", err)
	}

	snap, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Cards) != 2 {
		t.Errorf("cards = %d", len(snap.Cards))
	}
	if snap.Cards[1].Fields["Back"] != "via service" {
		t.Errorf("Back = %q", snap.Cards[1].Fields["Back"])
	}
}

func TestExport_DefaultModeAndPath(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	src := testutil.BuildModernArchive(t)
	if _, err := svc.LoadArchive(ctx, src); err != nil {
		t.Fatal(err)
	}

	// Empty mode falls back to the stored preference (copy) and an empty
	// path derives the _modified sibling.
	dest, err := svc.Export(ctx, "", "")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	want := filepath.Join(filepath.Dir(src), "modern_modified.apkg")
	if dest != want {
		t.Errorf("dest = %q, want %q", dest, want)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("exported file missing: %v", err)
	}
}

func TestExport_OverwriteMode(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	src := testutil.BuildModernArchive(t)
	if _, err := svc.LoadArchive(ctx, src); err != nil {
		t.Fatal(err)
	}
	dest, err := svc.Export(ctx, settings.SaveModeOverwrite, "")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if dest != src {
		t.Errorf("dest = %q, want %q", dest, src)
	}
}

func TestExport_UnknownMode(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if _, err := svc.LoadArchive(ctx, testutil.BuildModernArchive(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Export(ctx, "teleport", ""); !errors.Is(err, apperr.ErrExportFailed) {
		t.Errorf("err = %v", err)
	}
}

func collectEvents(t *testing.T, ch chan []byte, n int) []string {
	t.Helper()
	var got []string
	deadline := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case msg := <-ch:
			got = append(got, string(msg))
		case <-deadline:
			t.Fatalf("timeout; events so far: %v", got)
		}
	}
	return got
}

func TestEventsPublished(t *testing.T) {
	broker := sse.NewBroker(time.Hour) // throttle high so only named events arrive after the first
	defer broker.Close()
	store, err := settings.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(context.Background(), store, broker, nil)
	defer svc.Close()
	ctx := context.Background()

	ch := broker.Subscribe()
	defer broker.Unsubscribe(ch)

	if _, err := svc.LoadArchive(ctx, testutil.BuildModernArchive(t)); err != nil {
		t.Fatal(err)
	}
	// deck.loaded plus the one unthrottled deck.changed.
	events := collectEvents(t, ch, 2)
	if !strings.Contains(events[0], "event: deck.loaded") {
		t.Errorf("first event = %q", events[0])
	}

	if err := svc.UpdateField(ctx, 1700000001000, "Front", "x"); err != nil {
		t.Fatal(err)
	}
	events = collectEvents(t, ch, 1)
	if !strings.Contains(events[0], "event: note.updated") {
		t.Errorf("event = %q", events[0])
	}

	svc.CloseSession(ctx)
	events = collectEvents(t, ch, 1)
	if !strings.Contains(events[0], "event: deck.closed") {
		t.Errorf("event = %q", events[0])
	}
}
