package manager

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tecu23/blitz-server/pkg/events"
	"github.com/tecu23/blitz-server/pkg/messages"
	"github.com/tecu23/blitz-server/pkg/session"
)

// Connect registers a new transport.
func (m *Manager) Connect(connID string, t session.Transport) *session.Connection {
	c := m.registry.Register(connID, t, m.loop.Now())
	m.events.Publish(events.Event{Type: events.EventConnectionOpened, Payload: connID})
	return c
}

// Hello resolves the credential off the loop and binds the identity when
// the verification returns. A missing or bad credential yields a guest.
func (m *Manager) Hello(c *session.Connection, p messages.Hello) error {
	connID := c.ID
	cred := p.SessionID

	m.loop.Go(m.opts.PersistTimeout, func(ctx context.Context) func() {
		id, err := m.registry.ResolveIdentity(ctx, cred)
		return func() { m.completeHello(connID, id, err) }
	})
	return nil
}

func (m *Manager) completeHello(connID string, id session.Identity, err error) {
	c := m.registry.Get(connID)
	if c == nil {
		return
	}
	if err != nil {
		m.logger.Error("identity resolution failed", zap.String("conn_id", connID), zap.Error(err))
		m.router.ToConn(c, messages.NewErrorReply(err))
		return
	}

	if id.Rating == 0 {
		id.Rating = m.opts.DefaultRating
	}
	if id.RatingDeviation == 0 {
		id.RatingDeviation = m.opts.DefaultRD
	}

	reconnected, err := m.registry.Authenticate(c, id)
	if err != nil {
		return
	}

	m.router.ToConn(c, messages.Welcome{
		T:      messages.TypeWelcome,
		UserID: id.UserID,
		Handle: id.Handle,
		Guest:  id.Guest,
		Token:  id.Token,
	})

	m.logger.Info("connection authenticated",
		zap.String("conn_id", connID),
		zap.String("user_id", id.UserID),
		zap.Bool("guest", id.Guest),
		zap.Bool("reconnected", reconnected),
	)

	// a reconnecting player picks the game back up
	if s, ok := m.store.ActiveByUser(id.UserID); ok {
		m.registry.Bind(c, s.ID)
		m.router.ToConn(c, m.gameState(s, m.loop.Now()))
	}
}

// Disconnect removes the connection. The user's queue entry survives for
// DisconnectGrace so a quick reconnect keeps it.
func (m *Manager) Disconnect(connID string) {
	c, offline := m.registry.Unregister(connID)
	if c == nil {
		return
	}
	m.events.Publish(events.Event{Type: events.EventConnectionClosed, Payload: connID})

	if !offline {
		return
	}
	uid := c.UserID()
	m.registry.Defer(uid, func(seq uint64) session.Timer {
		return m.loop.AfterFunc(m.opts.DisconnectGrace, func() { m.expireUser(uid, seq) })
	})
	m.logger.Debug("user offline, cleanup deferred", zap.String("user_id", uid))
}

func (m *Manager) expireUser(userID string, seq uint64) {
	if !m.registry.Expire(userID, seq) {
		return
	}
	if m.queue.Dequeue(userID) {
		m.logger.Info("dropped queue entry of disconnected user", zap.String("user_id", userID))
	}
	for _, s := range m.store.List() {
		if !s.Ended {
			continue
		}
		if color, ok := s.ColorOf(userID); ok && s.RematchOffer == color {
			s.RematchOffer = ""
		}
	}
}

// Heartbeat refreshes the liveness timestamp of c.
func (m *Manager) Heartbeat(c *session.Connection) {
	m.registry.Touch(c, m.loop.Now())
}

// Ping answers with the server time.
func (m *Manager) Ping(c *session.Connection) error {
	m.router.ToConn(c, messages.Pong{T: messages.TypePong, Now: m.loop.Now().UnixMilli()})
	return nil
}

// Sweep is the periodic backstop: it re-arms sessions that lost their
// timer, finishes ended sessions whose hand-off never came back, evicts
// sessions past the rematch window and closes idle connections.
func (m *Manager) Sweep() {
	now := m.loop.Now()

	for _, s := range m.store.List() {
		switch {
		case !s.Ended && s.Timer == nil:
			m.logger.Warn("re-arming session without a deadline", zap.String("game_id", s.ID))
			m.armDeadline(s)
		case s.Ended && !s.Released && now.Sub(s.EndedAt) > 2*m.opts.PersistTimeout:
			m.logger.Warn("forcing end of game without hand-off", zap.String("game_id", s.ID))
			m.finishGame(s.ID, nil)
		case s.Released && now.Sub(s.EndedAt) > m.opts.RematchWindow+m.opts.PersistTimeout:
			m.removeSession(s)
		}
	}

	if m.opts.IdleTimeout <= 0 {
		return
	}
	m.registry.Each(func(c *session.Connection) {
		if now.Sub(c.LastHeartbeat) > m.opts.IdleTimeout {
			m.logger.Info("closing idle connection", zap.String("conn_id", c.ID), zap.Duration("idle", now.Sub(c.LastHeartbeat).Round(time.Second)))
			_ = c.Transport.Close()
		}
	})
}

// Connection returns the registered connection with id, or nil.
func (m *Manager) Connection(id string) *session.Connection {
	return m.registry.Get(id)
}

// Reject reports err to the sender only. Anything that is not a protocol
// rejection is logged and surfaces as INTERNAL_ERROR.
func (m *Manager) Reject(c *session.Connection, err error) {
	var perr *messages.Error
	if !errors.As(err, &perr) {
		m.logger.Error("handler failed", zap.String("conn_id", c.ID), zap.Error(err))
	}
	m.router.ToConn(c, messages.NewErrorReply(err))
}
