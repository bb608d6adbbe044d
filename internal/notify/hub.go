// Package notify fans roadmap snapshots out to a learner's open websocket
// connections.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	defaultBuffer = 8
	writeTimeout  = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Hub routes payloads to subscribers by session key. A slow subscriber
// loses its oldest pending payloads, never blocking the publisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan any]struct{}
	buffer int
}

// NewHub creates a hub.
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]map[chan any]struct{}),
		buffer: defaultBuffer,
	}
}

// Subscribe registers a new subscriber for key. Call cancel to unsubscribe;
// the channel is closed afterwards.
func (h *Hub) Subscribe(key string) (<-chan any, func()) {
	ch := make(chan any, h.buffer)

	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[chan any]struct{})
	}
	h.subs[key][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[key], ch)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers payload to every subscriber of key.
func (h *Hub) Publish(key string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[key] {
		select {
		case ch <- payload:
		default:
			// Drop the oldest so the newest state always gets through.
			select {
			case <-ch:
			default:
			}
			ch <- payload
		}
	}
}

// Subscribers returns how many subscribers key has.
func (h *Hub) Subscribers(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[key])
}

// ServeWS upgrades the request, sends initial and then streams everything
// published for key until the client goes away or ctx ends.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, key string, initial any) error {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return fmt.Errorf("accepting websocket: %w", err)
	}
	defer conn.CloseNow()

	updates, cancel := h.Subscribe(key)
	defer cancel()

	// Clients only listen; CloseRead handles their close frames.
	ctx := conn.CloseRead(r.Context())

	if err := write(ctx, conn, initial); err != nil {
		return err
	}
	slog.Debug("websocket subscribed", "key", key)

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return nil
		case payload := <-updates:
			if err := write(ctx, conn, payload); err != nil {
				return err
			}
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("writing update: %w", err)
	}
	return nil
}
