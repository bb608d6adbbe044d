package notify_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-tutor/internal/notify"
)

func TestHub_PublishRoutesByKey(t *testing.T) {
	hub := notify.NewHub()

	alice, cancelAlice := hub.Subscribe("user:alice")
	defer cancelAlice()
	bob, cancelBob := hub.Subscribe("user:bob")
	defer cancelBob()

	hub.Publish("user:alice", "hello alice")

	select {
	case got := <-alice:
		if got != "hello alice" {
			t.Errorf("alice got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("alice received nothing")
	}
	select {
	case got := <-bob:
		t.Errorf("bob got %v, want nothing", got)
	default:
	}
}

func TestHub_SlowSubscriberKeepsNewest(t *testing.T) {
	hub := notify.NewHub()
	ch, cancel := hub.Subscribe("k")
	defer cancel()

	for i := 0; i < 100; i++ {
		hub.Publish("k", i)
	}

	var last any
	for len(ch) > 0 {
		last = <-ch
	}
	if last != 99 {
		t.Errorf("last = %v, want 99", last)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := notify.NewHub()
	ch, cancel := hub.Subscribe("k")
	if hub.Subscribers("k") != 1 {
		t.Fatalf("Subscribers() = %d, want 1", hub.Subscribers("k"))
	}

	cancel()
	cancel()
	if hub.Subscribers("k") != 0 {
		t.Errorf("Subscribers() = %d, want 0", hub.Subscribers("k"))
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	hub.Publish("k", "after cancel")
}

type state struct {
	State string `json:"state"`
}

func TestHub_ServeWS(t *testing.T) {
	hub := notify.NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := hub.ServeWS(w, r, "user:alice", state{State: "roadmap"}); err != nil {
			t.Logf("ServeWS: %v", err)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	var got state
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("reading initial: %v", err)
	}
	if got.State != "roadmap" {
		t.Errorf("initial = %+v", got)
	}

	// Wait until the handler has subscribed before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("user:alice") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	hub.Publish("user:alice", state{State: "quiz"})

	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("reading update: %v", err)
	}
	if got.State != "quiz" {
		t.Errorf("update = %+v, want quiz", got)
	}

	conn.Close(websocket.StatusNormalClosure, "")
	deadline = time.Now().Add(2 * time.Second)
	for hub.Subscribers("user:alice") != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := hub.Subscribers("user:alice"); n != 0 {
		t.Errorf("Subscribers() = %d after close, want 0", n)
	}
}
