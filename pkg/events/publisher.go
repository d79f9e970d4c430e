// Package events is the in-process domain-event publisher. Observers such
// as stats counters and debug logging subscribe here; game logic never
// depends on a handler running.
package events

import "sync"

// EventType represents the type of event
type EventType string

// Define event types
const (
	EventGameCreated       EventType = "GAME_CREATED"
	EventMoveProcessed     EventType = "MOVE_PROCESSED"
	EventGameEnded         EventType = "GAME_ENDED"
	EventGameEvicted       EventType = "GAME_EVICTED"
	EventPlayersPaired     EventType = "PLAYERS_PAIRED"
	EventConnectionOpened  EventType = "CONNECTION_OPENED"
	EventConnectionClosed  EventType = "CONNECTION_CLOSED"
	EventPersistenceFailed EventType = "PERSISTENCE_FAILED"
)

const allEvents EventType = "*"

// Event represents an event in the system. Payloads are values copied out
// of the event loop, never live session pointers.
type Event struct {
	Type    EventType
	GameID  string // Optional, can be empty for non-game events
	Payload interface{}
}

// GameCreated is the payload of EventGameCreated.
type GameCreated struct {
	White, Black string
	TimeControl  string
	Rated        bool
	TournamentID string
}

// MoveProcessed is the payload of EventMoveProcessed.
type MoveProcessed struct {
	Move  string
	Ply   int
	Spent int64
}

// GameEnded is the payload of EventGameEnded.
type GameEnded struct {
	Result string
	Reason string
	Plies  int
}

// Handler is a function that processes events
type Handler func(event Event)

// Publisher is the central event publisher
type Publisher struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
	wg          sync.WaitGroup
}

// NewPublisher creates a new event publisher
func NewPublisher() *Publisher {
	return &Publisher{
		subscribers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for a specific event type
func (p *Publisher) Subscribe(eventType EventType, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subscribers[eventType] = append(p.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for all event types
func (p *Publisher) SubscribeAll(handler Handler) {
	p.Subscribe(allEvents, handler)
}

// Publish broadcasts an event to its subscribers and to the "all events"
// handlers. Handlers run on their own goroutines.
func (p *Publisher) Publish(event Event) {
	if p == nil {
		return
	}

	p.mu.RLock()
	handlers := append([]Handler(nil), p.subscribers[event.Type]...)
	handlers = append(handlers, p.subscribers[allEvents]...)
	p.mu.RUnlock()

	for _, handler := range handlers {
		p.wg.Add(1)
		go func(h Handler) {
			defer p.wg.Done()
			h(event)
		}(handler)
	}
}

// Wait blocks until every handler started so far has returned.
func (p *Publisher) Wait() {
	p.wg.Wait()
}
