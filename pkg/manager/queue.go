package manager

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/tecu23/blitz-server/pkg/chess"
	"github.com/tecu23/blitz-server/pkg/events"
	"github.com/tecu23/blitz-server/pkg/game"
	"github.com/tecu23/blitz-server/pkg/matchmaking"
	"github.com/tecu23/blitz-server/pkg/messages"
	"github.com/tecu23/blitz-server/pkg/session"
)

// JoinQueue puts the sender in the (tc, rated) bucket.
func (m *Manager) JoinQueue(c *session.Connection, p messages.QueueJoin) error {
	if !c.Authenticated() {
		return errNotAuthenticated
	}
	if m.Maintenance() {
		return errMaintenance
	}
	tc, ok := m.timeControls[strings.TrimSpace(p.TC)]
	if !ok {
		return errInvalidTimeControl
	}
	uid := c.UserID()
	if _, busy := m.store.ActiveByUser(uid); busy {
		return errAlreadyInGame
	}

	key := matchmaking.Key{TimeControl: tc.Name, Rated: p.Rated}
	err := m.queue.Enqueue(matchmaking.Entry{
		UserID:          uid,
		Handle:          c.Identity.Handle,
		Guest:           c.Identity.Guest,
		ConnID:          c.ID,
		Key:             key,
		Rating:          c.Identity.Rating,
		RatingDeviation: c.Identity.RatingDeviation,
		EnqueuedAt:      m.loop.Now(),
	})
	if errors.Is(err, matchmaking.ErrAlreadyQueued) {
		return errAlreadyQueued
	}
	if err != nil {
		return err
	}

	m.router.ToConn(c, messages.QueueJoined{
		T:             messages.TypeQueueJoined,
		TC:            tc.Name,
		Rated:         p.Rated,
		EstimatedWait: m.queue.EstimatedWait(key).Milliseconds(),
	})
	m.logger.Debug("queued", zap.String("user_id", uid), zap.String("tc", tc.Name), zap.Bool("rated", p.Rated))
	return nil
}

// LeaveQueue removes the sender from its bucket.
func (m *Manager) LeaveQueue(c *session.Connection) error {
	if !c.Authenticated() {
		return errNotAuthenticated
	}
	if !m.queue.Dequeue(c.UserID()) {
		return errNotInQueue
	}
	m.router.ToConn(c, messages.QueueLeft{T: messages.TypeQueueLeft})
	return nil
}

// Tick runs one pairing pass and opens a game for every pair.
func (m *Manager) Tick() {
	now := m.loop.Now()
	for _, pair := range m.queue.Tick(now) {
		tc := m.timeControls[pair.Key.TimeControl]

		white, black := pair.A, pair.B
		if m.opts.Intn(2) == 1 {
			white, black = black, white
		}

		m.events.Publish(events.Event{Type: events.EventPlayersPaired, Payload: [2]string{white.UserID, black.UserID}})
		m.createGame(game.CreateGameParams{
			GameID:      m.opts.NewID(),
			White:       playerFromEntry(white),
			Black:       playerFromEntry(black),
			TimeControl: tc,
			Rated:       pair.Key.Rated,
			Start:       chess.NewPosition(m.opts.Variant, m.opts.Intn),
		})
	}
}

func playerFromEntry(e matchmaking.Entry) game.Player {
	return game.Player{
		UserID:          e.UserID,
		Handle:          e.Handle,
		Rating:          e.Rating,
		RatingDeviation: e.RatingDeviation,
		Guest:           e.Guest,
	}
}

// createGame stores a new session, binds both players, arms the grace
// deadline and announces the match. The start is persisted in the
// background; a failure there never blocks the game.
func (m *Manager) createGame(params game.CreateGameParams) *game.Session {
	now := m.loop.Now()
	s := game.CreateGame(params, now, m.opts.GracePeriod)

	m.store.Add(s)
	m.registry.BindUser(s.White.UserID, s.ID)
	m.registry.BindUser(s.Black.UserID, s.ID)
	m.armDeadline(s)

	for _, color := range []chess.Color{chess.White, chess.Black} {
		m.router.ToUsers([]string{s.PlayerOf(color).UserID}, m.matchFound(s, color, now))
	}

	m.logger.Info("game created",
		zap.String("game_id", s.ID),
		zap.String("white", s.White.UserID),
		zap.String("black", s.Black.UserID),
		zap.String("tc", s.TimeControl.Name),
		zap.Bool("rated", s.Rated),
	)
	m.events.Publish(events.Event{
		Type:   events.EventGameCreated,
		GameID: s.ID,
		Payload: events.GameCreated{
			White:        s.White.UserID,
			Black:        s.Black.UserID,
			TimeControl:  s.TimeControl.Name,
			Rated:        s.Rated,
			TournamentID: s.TournamentID,
		},
	})

	rec := m.record(s)
	m.loop.Go(m.opts.PersistTimeout, func(ctx context.Context) func() {
		err := m.persist.GameStarted(ctx, rec)
		return func() {
			if err != nil {
				m.logger.Warn("failed to persist game start", zap.String("game_id", rec.GameID), zap.Error(err))
			}
		}
	})
	return s
}
