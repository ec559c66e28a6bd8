package sse

import (
	"context"
	"errors"
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

	b.Publish(Event{Type: EventCatalogUpdated, Data: map[string]string{"catalog": "exams"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: catalog.updated") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"catalog":"exams"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestPublishCatalogEvent_ReloadThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First event should trigger site.reload.
	b.PublishCatalogEvent("exams", 3, nil)
	// Second event immediately should NOT trigger another site.reload.
	b.PublishCatalogEvent("projects", 1, nil)

	time.Sleep(50 * time.Millisecond)
	reloads, updates := 0, 0
	for _, s := range drain(ch) {
		switch {
		case strings.Contains(s, EventSiteReload):
			reloads++
		case strings.Contains(s, EventCatalogUpdated):
			updates++
			if strings.Contains(s, `"catalog":"exams"`) && !strings.Contains(s, `"accepted":3`) {
				t.Errorf("accepted count missing in %q", s)
			}
		}
	}

	if updates != 2 {
		t.Errorf("catalog events = %d, want 2", updates)
	}
	if reloads != 1 {
		t.Errorf("reload events = %d, want 1 (throttled)", reloads)
	}
}

func TestPublishCatalogEvent_Failure(t *testing.T) {
	b := NewBroker(time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishCatalogEvent("exams", 0, errors.New("source directory missing"))
	time.Sleep(50 * time.Millisecond)

	msgs := drain(ch)
	if len(msgs) != 1 {
		t.Fatalf("messages = %v, want exactly one failure event", msgs)
	}
	if !strings.Contains(msgs[0], "event: catalog.failed") || !strings.Contains(msgs[0], "source directory missing") {
		t.Errorf("unexpected message %q", msgs[0])
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: EventCatalogUpdated, Data: map[string]string{"catalog": "projects"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: catalog.updated") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: EventCatalogUpdated, Data: map[string]string{"catalog": "exams"}})
	b.PublishCatalogEvent("exams", 1, nil)
}
