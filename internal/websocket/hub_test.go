package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, formID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   nil,
		formID: formID,
		send:   make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := testHub()

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 1)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := testHub()
	c := mockClient(hub, 1)
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastReachesFormWatchers(t *testing.T) {
	hub := testHub()

	watcher := mockClient(hub, 7)
	other := mockClient(hub, 8)
	hub.Register(watcher)
	hub.Register(other)

	created := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	hub.Broadcast(NewSubmissionMessage(7, 42, created))

	select {
	case data := <-watcher.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != "submission_created" {
			t.Errorf("type = %s, want submission_created", got.Type)
		}
		if got.FormID != 7 || got.SubmissionID != 42 {
			t.Errorf("ids = %d/%d, want 7/42", got.FormID, got.SubmissionID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}

	select {
	case <-other.send:
		t.Fatal("watcher of another form received the message")
	default:
	}

	hub.Unregister(watcher)
	hub.Unregister(other)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := testHub()
	// Should not panic
	hub.Broadcast(NewSubmissionMessage(1, 1, time.Now()))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := testHub()

	c := mockClient(hub, 1)
	hub.Register(c)

	// Fill the send buffer
	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewSubmissionMessage(1, int64(i), time.Now()))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(NewSubmissionMessage(1, 999, time.Now()))

	// Drain to verify buffer was full
	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestWatcherCount(t *testing.T) {
	hub := testHub()

	hub.Register(mockClient(hub, 1))
	hub.Register(mockClient(hub, 1))
	hub.Register(mockClient(hub, 2))

	if got := hub.WatcherCount(1); got != 2 {
		t.Errorf("WatcherCount(1) = %d, want 2", got)
	}
	if got := hub.WatcherCount(2); got != 1 {
		t.Errorf("WatcherCount(2) = %d, want 1", got)
	}
	if got := hub.WatcherCount(99); got != 0 {
		t.Errorf("WatcherCount(99) = %d, want 0", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := testHub()
	var wg sync.WaitGroup

	// Register, broadcast, and unregister concurrently
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, 1)
			hub.Register(c)
			hub.Broadcast(NewSubmissionMessage(1, 0, time.Now()))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
