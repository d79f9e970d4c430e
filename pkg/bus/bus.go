// Package bus carries tournament traffic between server instances.
package bus

import (
	"context"
	"encoding/json"
	"sync"
)

// Kinds of bus messages
const (
	KindEvent   = "event"
	KindPairing = "pairing"
)

// Message is one bus frame. Payload is an already-encoded protocol message
// for events, or a Pairing for pairing commands.
type Message struct {
	Origin       string          `json:"origin"`
	Kind         string          `json:"kind"`
	TournamentID string          `json:"tournamentId"`
	Payload      json.RawMessage `json:"payload"`
}

// Pairing asks the instance holding both players to start a tournament game.
type Pairing struct {
	White  string `json:"white"`
	Black  string `json:"black"`
	TC     string `json:"tc"`
	Rated  bool   `json:"rated"`
	GameID string `json:"gameId,omitempty"`
}

// Handler consumes delivered messages. It runs on the subscriber's
// goroutine and must not block.
type Handler func(Message)

// Bus is a cross-process publish/subscribe channel for tournament traffic.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe registers h and returns once the subscription is live.
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}

// Local is an in-process Bus for single-instance deployments and tests.
type Local struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewLocal creates an in-process bus.
func NewLocal() *Local {
	return &Local{}
}

// Publish delivers msg synchronously to every handler.
func (l *Local) Publish(_ context.Context, msg Message) error {
	l.mu.RLock()
	handlers := append([]Handler(nil), l.handlers...)
	l.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
	return nil
}

// Subscribe adds h.
func (l *Local) Subscribe(_ context.Context, h Handler) error {
	l.mu.Lock()
	l.handlers = append(l.handlers, h)
	l.mu.Unlock()
	return nil
}

// Close drops all handlers.
func (l *Local) Close() error {
	l.mu.Lock()
	l.handlers = nil
	l.mu.Unlock()
	return nil
}
