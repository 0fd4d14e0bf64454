package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// startWire spins up a server over a fresh Memory store and connects one
// client to it. The returned URL can be dialed again for extra participants.
func startWire(t *testing.T) (*Client, string) {
	t.Helper()

	srv := NewServer(NewMemory())
	addr, err := srv.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("server start: %v", err)
	}
	t.Cleanup(srv.Close)

	url := "ws://" + addr + "/store"
	client, err := Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, url
}

func TestWireRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, _ := startWire(t)

	id, err := client.Create(ctx, "calls")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatal("Create returned empty id")
	}

	path := "calls/" + id
	offer := Document{"offer": map[string]any{"type": "offer", "sdp": "v=0 wire"}}
	if err := client.Set(ctx, path, offer); err != nil {
		t.Fatalf("Set: %v", err)
	}

	doc, err := client.Get(ctx, path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	nested, ok := doc["offer"].(map[string]any)
	if !ok || nested["sdp"] != "v=0 wire" {
		t.Errorf("Get doc = %v, want nested offer", doc)
	}

	if err := client.Update(ctx, path, Document{"status": "ended"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	doc, _ = client.Get(ctx, path)
	if doc["status"] != "ended" || doc["offer"] == nil {
		t.Errorf("merged doc = %v", doc)
	}

	if _, err := client.Get(ctx, "calls/other"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
	if err := client.Update(ctx, "calls/other", Document{"x": 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestWireWatchDocument(t *testing.T) {
	ctx := context.Background()
	client, _ := startWire(t)

	id, err := client.Create(ctx, "calls")
	if err != nil {
		t.Fatal(err)
	}
	path := "calls/" + id

	snapshots := make(chan Document, 8)
	cancel, err := client.WatchDocument(ctx, path, func(doc Document) {
		snapshots <- doc
	})
	if err != nil {
		t.Fatalf("WatchDocument: %v", err)
	}

	if err := client.Set(ctx, path, Document{"n": float64(1)}); err != nil {
		t.Fatal(err)
	}
	doc := waitDoc(t, snapshots)
	if doc["n"] != float64(1) {
		t.Errorf("snapshot = %v, want n=1", doc)
	}

	cancel()
	if err := client.Set(ctx, path, Document{"n": float64(2)}); err != nil {
		t.Fatal(err)
	}
	select {
	case doc := <-snapshots:
		t.Errorf("snapshot after cancel: %v", doc)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWireWatchCollection(t *testing.T) {
	ctx := context.Background()
	client, url := startWire(t)

	const col = "calls/c1/answerCandidates"
	if _, err := client.Add(ctx, col, Document{"candidate": "pre"}); err != nil {
		t.Fatal(err)
	}

	changes := make(chan Change, 8)
	cancel, err := client.WatchCollection(ctx, col, func(ch Change) {
		changes <- ch
	})
	if err != nil {
		t.Fatalf("WatchCollection: %v", err)
	}
	defer cancel()

	// Backlog.
	ch := waitChange(t, changes)
	if ch.Kind != ChangeAdded || ch.Data["candidate"] != "pre" {
		t.Errorf("backlog change = %+v", ch)
	}

	// Live append, from a second participant's connection.
	client2, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("second dial: %v", err)
	}
	defer client2.Close()

	if _, err := client2.Add(ctx, col, Document{"candidate": "live"}); err != nil {
		t.Fatal(err)
	}
	ch = waitChange(t, changes)
	if ch.Data["candidate"] != "live" {
		t.Errorf("live change = %+v", ch)
	}
}

// Watch registration is a round trip like any other store call; a dead
// context must not leave the caller blocked on an unresponsive server.
func TestWireWatchRegistrationHonorsContext(t *testing.T) {
	client, _ := startWire(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.WatchDocument(ctx, "calls/c1", func(Document) {
		t.Error("callback registered despite failed registration")
	}); !errors.Is(err, context.Canceled) {
		t.Errorf("WatchDocument error = %v, want context.Canceled", err)
	}
	if _, err := client.WatchCollection(ctx, "calls/c1/offerCandidates", func(Change) {
		t.Error("callback registered despite failed registration")
	}); !errors.Is(err, context.Canceled) {
		t.Errorf("WatchCollection error = %v, want context.Canceled", err)
	}
}

func waitDoc(t *testing.T, ch <-chan Document) Document {
	t.Helper()
	select {
	case doc := <-ch:
		return doc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for document snapshot")
		return nil
	}
}

func waitChange(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case change := <-ch:
		return change
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for collection change")
		return Change{}
	}
}
