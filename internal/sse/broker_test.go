package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "deck.loaded", Data: map[string]string{"path": "a.apkg"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: deck.loaded") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"path":"a.apkg"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishDeckEvent_RefreshThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First mutation emits its event plus a deck.changed refresh; a
	// second mutation inside the throttle window emits only its event.
	b.PublishDeckEvent("note.updated", map[string]string{"note_id": "1"})
	b.PublishDeckEvent("card.created", map[string]string{"note_id": "2"})

	var got []string
	deadline := time.After(time.Second)
	for len(got) < 3 {
		select {
		case msg := <-ch:
			got = append(got, string(msg))
		case <-deadline:
			t.Fatalf("timeout; received %d messages: %v", len(got), got)
		}
	}

	if !strings.Contains(got[0], "event: note.updated") {
		t.Errorf("first = %q", got[0])
	}
	if !strings.Contains(got[1], "event: deck.changed") {
		t.Errorf("second = %q", got[1])
	}
	if !strings.Contains(got[2], "event: card.created") {
		t.Errorf("third = %q", got[2])
	}

	select {
	case extra := <-ch:
		t.Errorf("unexpected extra message inside throttle window: %q", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseUnblocksClients(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	// Operations after Close are safe no-ops.
	b.Publish(Event{Type: "x"})
	b.PublishDeckEvent("y", nil)
	if b.ClientCount() != 0 {
		t.Error("ClientCount after Close should be 0")
	}
}

func TestServeHTTP_StreamsEvents(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(rec, req)
		close(done)
	}()

	// Wait for the subscription to land, then publish.
	for i := 0; i < 100 && b.ClientCount() == 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	b.Publish(Event{Type: "deck.exported", Data: map[string]string{}})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "event: deck.exported") {
		t.Errorf("body = %q", rec.Body.String())
	}
}
