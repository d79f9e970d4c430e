// Package manager is the session lifecycle orchestrator: every inbound
// protocol operation lands here and mutates the registry, the queue and
// the game store. All methods except Maintenance must run on the event
// loop; none of them lock.
package manager

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tecu23/blitz-server/pkg/broadcast"
	"github.com/tecu23/blitz-server/pkg/bus"
	"github.com/tecu23/blitz-server/pkg/chess"
	"github.com/tecu23/blitz-server/pkg/events"
	"github.com/tecu23/blitz-server/pkg/game"
	"github.com/tecu23/blitz-server/pkg/matchmaking"
	"github.com/tecu23/blitz-server/pkg/messages"
	"github.com/tecu23/blitz-server/pkg/repository"
	"github.com/tecu23/blitz-server/pkg/session"
)

// Timer is a cancellable scheduled callback.
type Timer = game.Timer

// Loop is the single-consumer event loop the manager runs on.
type Loop interface {
	Now() time.Time
	// AfterFunc runs fn on the loop after d.
	AfterFunc(d time.Duration, fn func()) Timer
	// Go runs work on its own goroutine under a timeout and runs the
	// returned completion on the loop.
	Go(timeout time.Duration, work func(ctx context.Context) func())
}

// Persistence records games and reads back rating changes.
type Persistence interface {
	GameStarted(ctx context.Context, rec repository.GameRecord) error
	GameEnded(ctx context.Context, rec repository.GameRecord) error
	RatingChanges(ctx context.Context, gameID string) (map[string]int, error)
	TournamentResult(ctx context.Context, tournamentID string, rec repository.GameRecord) error
}

// Options tunes timing and defaults.
type Options struct {
	GracePeriod     time.Duration
	DisconnectGrace time.Duration
	DeadlineBuffer  time.Duration
	RematchWindow   time.Duration
	PersistTimeout  time.Duration
	IdleTimeout     time.Duration

	TimeControls    []string
	Variant         chess.Variant
	DefaultRating   int
	DefaultRD       int
	MaxChatLength   int
	InstanceID      string
	PersistAttempts uint64

	// Intn returns a value in [0, n). Used for colors and Chess960 setups.
	Intn func(n int) int
	// NewID mints game ids.
	NewID func() string
	// RetryBackoff builds the backoff policy of result persistence.
	RetryBackoff func() backoff.BackOff
}

// DefaultOptions returns production timings.
func DefaultOptions() Options {
	return Options{
		GracePeriod:     15 * time.Second,
		DisconnectGrace: 5 * time.Second,
		DeadlineBuffer:  100 * time.Millisecond,
		RematchWindow:   60 * time.Second,
		PersistTimeout:  5 * time.Second,
		IdleTimeout:     2 * time.Minute,
		TimeControls:    []string{"1+0", "2+1", "3+0", "3+2", "5+0"},
		Variant:         chess.VariantStandard,
		DefaultRating:   1500,
		DefaultRD:       350,
		MaxChatLength:   500,
		PersistAttempts: 3,
	}
}

// Deps are the collaborators of the manager.
type Deps struct {
	Loop        Loop
	Registry    *session.Registry
	Queue       *matchmaking.Queue
	Store       *game.Store
	Router      *broadcast.Router
	Rules       chess.Rules
	Persistence Persistence
	Events      *events.Publisher
	Bus         bus.Bus
	Logger      *zap.Logger
}

// Manager orchestrates matchmaking, games and the social sub-protocols.
type Manager struct {
	opts Options

	loop     Loop
	registry *session.Registry
	queue    *matchmaking.Queue
	store    *game.Store
	router   *broadcast.Router
	rules    chess.Rules
	persist  Persistence
	events   *events.Publisher
	bus      bus.Bus
	logger   *zap.Logger

	timeControls map[string]chess.TimeControl
	maintenance  atomic.Bool
}

// NewManager validates opts and wires the collaborators.
func NewManager(deps Deps, opts Options) (*Manager, error) {
	if deps.Loop == nil || deps.Registry == nil || deps.Queue == nil || deps.Store == nil ||
		deps.Router == nil || deps.Rules == nil || deps.Persistence == nil {
		return nil, errors.New("manager: missing dependency")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.Intn == nil {
		opts.Intn = rand.New(rand.NewSource(time.Now().UnixNano())).Intn
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.RetryBackoff == nil {
		opts.RetryBackoff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			return b
		}
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	if opts.MaxChatLength <= 0 {
		opts.MaxChatLength = 500
	}

	tcs := make(map[string]chess.TimeControl, len(opts.TimeControls))
	for _, raw := range opts.TimeControls {
		tc, err := chess.ParseTimeControl(raw)
		if err != nil {
			return nil, fmt.Errorf("manager: %w", err)
		}
		tcs[tc.Name] = tc
	}
	if len(tcs) == 0 {
		return nil, errors.New("manager: no time controls configured")
	}

	return &Manager{
		opts:         opts,
		loop:         deps.Loop,
		registry:     deps.Registry,
		queue:        deps.Queue,
		store:        deps.Store,
		router:       deps.Router,
		rules:        deps.Rules,
		persist:      deps.Persistence,
		events:       deps.Events,
		bus:          deps.Bus,
		logger:       deps.Logger,
		timeControls: tcs,
	}, nil
}

// Stats is a point-in-time view for the health and stats endpoints.
type Stats struct {
	Connections     int  `json:"connections"`
	OnlinePlayers   int  `json:"onlinePlayers"`
	GamesInProgress int  `json:"gamesInProgress"`
	GamesStored     int  `json:"gamesStored"`
	QueuedPlayers   int  `json:"queuedPlayers"`
	Maintenance     bool `json:"maintenance"`

	// Queues counts the waiting players per non-empty pool, keyed
	// "<tc>/rated" or "<tc>/casual".
	Queues map[string]int `json:"queues,omitempty"`
}

// Stats counts the live state.
func (m *Manager) Stats() Stats {
	return Stats{
		Connections:     m.registry.Len(),
		OnlinePlayers:   m.registry.OnlineUsers(),
		GamesInProgress: m.store.Active(),
		GamesStored:     m.store.Len(),
		QueuedPlayers:   m.queue.Len(),
		Maintenance:     m.Maintenance(),
		Queues:          m.queueDepths(),
	}
}

func (m *Manager) queueDepths() map[string]int {
	if m.queue.Len() == 0 {
		return nil
	}
	out := make(map[string]int)
	for name := range m.timeControls {
		for _, rated := range []bool{false, true} {
			n := m.queue.BucketLen(matchmaking.Key{TimeControl: name, Rated: rated})
			if n == 0 {
				continue
			}
			pool := name + "/casual"
			if rated {
				pool = name + "/rated"
			}
			out[pool] = n
		}
	}
	return out
}

// Maintenance reports whether the service is draining. Safe from any
// goroutine.
func (m *Manager) Maintenance() bool {
	return m.maintenance.Load()
}

// SetMaintenance toggles maintenance mode. Enabling it empties the queue
// and tells the waiting players why.
func (m *Manager) SetMaintenance(on bool) {
	if m.maintenance.Swap(on) == on {
		return
	}
	m.logger.Info("maintenance mode changed", zap.Bool("enabled", on))
	if !on {
		return
	}

	for _, e := range m.queue.Drain() {
		m.router.ToUsers([]string{e.UserID}, messages.QueueLeft{T: messages.TypeQueueLeft})
		m.router.ToUsers([]string{e.UserID}, messages.NewErrorReply(errMaintenance))
	}
}

// Session returns a stored session. Callers on the loop only.
func (m *Manager) Session(gameID string) (*game.Session, bool) {
	return m.store.Get(gameID)
}

func (m *Manager) timeLeft(s *game.Session, now time.Time) (int64, int64) {
	return s.Clock.Snapshot(s.ToMove(), now)
}
