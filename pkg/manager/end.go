package manager

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/tecu23/blitz-server/pkg/events"
	"github.com/tecu23/blitz-server/pkg/game"
	"github.com/tecu23/blitz-server/pkg/messages"
	"github.com/tecu23/blitz-server/pkg/repository"
)

// EndGame terminates gameID. It is a no-op for unknown or ended games.
func (m *Manager) EndGame(gameID string, result game.Result, reason string) bool {
	s, ok := m.store.Get(gameID)
	if !ok {
		return false
	}
	return m.endGame(s, result, reason)
}

// endGame freezes the clocks, writes the terminal fields, cancels the
// timer and hands the result to persistence. The game.end broadcast
// follows when the hand-off completes.
func (m *Manager) endGame(s *game.Session, result game.Result, reason string) bool {
	if s.Ended {
		return false
	}
	now := m.loop.Now()

	if s.Clock.Running() {
		w, b := s.Clock.Snapshot(s.ToMove(), now)
		s.Clock.WhiteMs, s.Clock.BlackMs = w, b
		s.Clock.Stop()
	}
	s.End(result, reason, now)
	m.cancelTimer(s)
	m.store.Release(s)

	m.logger.Info("game ended",
		zap.String("game_id", s.ID),
		zap.String("result", string(result)),
		zap.String("reason", reason),
		zap.Int("plies", len(s.Moves)),
	)
	m.events.Publish(events.Event{
		Type:    events.EventGameEnded,
		GameID:  s.ID,
		Payload: events.GameEnded{Result: string(result), Reason: reason, Plies: len(s.Moves)},
	})

	rec := m.record(s)
	m.loop.Go(m.opts.PersistTimeout, func(ctx context.Context) func() {
		changes := m.handOff(ctx, rec)
		return func() { m.finishGame(rec.GameID, changes) }
	})
	return true
}

// handOff runs off the loop: it persists the result with retries, records
// tournament results and fetches rating changes. Any failure degrades to
// nil rating changes.
func (m *Manager) handOff(ctx context.Context, rec repository.GameRecord) map[string]int {
	policy := backoff.WithContext(backoff.WithMaxRetries(m.opts.RetryBackoff(), m.opts.PersistAttempts), ctx)
	err := backoff.Retry(func() error {
		return m.persist.GameEnded(ctx, rec)
	}, policy)
	if err != nil {
		m.logger.Error("failed to persist game result", zap.String("game_id", rec.GameID), zap.Error(err))
		m.events.Publish(events.Event{Type: events.EventPersistenceFailed, GameID: rec.GameID, Payload: err.Error()})
		return nil
	}

	if rec.TournamentID != "" {
		if err := m.persist.TournamentResult(ctx, rec.TournamentID, rec); err != nil {
			m.logger.Error("failed to record tournament result",
				zap.String("game_id", rec.GameID), zap.String("tournament_id", rec.TournamentID), zap.Error(err))
		}
	}

	if !rec.Rated || game.Result(rec.Result).Aborted() {
		return nil
	}
	changes, err := m.persist.RatingChanges(ctx, rec.GameID)
	if err != nil {
		m.logger.Warn("rating changes unavailable", zap.String("game_id", rec.GameID), zap.Error(err))
		return nil
	}
	return changes
}

// finishGame broadcasts the single game.end, releases the players and
// starts the rematch window.
func (m *Manager) finishGame(gameID string, changes map[string]int) {
	s, ok := m.store.Get(gameID)
	if !ok || s.Released {
		return
	}
	s.Released = true

	end := messages.GameEnd{
		T:             messages.TypeGameEnd,
		GameID:        s.ID,
		Result:        string(s.Result),
		Reason:        s.Reason,
		RatingChanges: changes,
	}
	// players were released at endGame and may already sit in a new game,
	// so they are addressed by user rather than by game binding
	players := s.UserIDs()
	m.router.ToUsers(players, end)
	m.router.ToGameExcept(s.ID, end, players...)

	for _, uid := range players {
		m.registry.UnbindUser(uid, s.ID)
	}

	if s.TournamentID != "" {
		m.router.ToTournament(s.TournamentID, messages.TournamentEvent{
			T:            messages.TypeTournamentEvent,
			TournamentID: s.TournamentID,
			Kind:         "game.end",
			GameID:       s.ID,
			Result:       string(s.Result),
			White:        s.White.UserID,
			Black:        s.Black.UserID,
		})
	}

	m.armEviction(s)
}

// removeSession evicts s from the store and from every spectator set.
func (m *Manager) removeSession(s *game.Session) {
	m.cancelTimer(s)
	m.store.Remove(s.ID)
	m.registry.DropGame(s.ID)
	m.events.Publish(events.Event{Type: events.EventGameEvicted, GameID: s.ID})
	m.logger.Debug("game evicted", zap.String("game_id", s.ID))
}

func (m *Manager) record(s *game.Session) repository.GameRecord {
	rec := repository.GameRecord{
		GameID:       s.ID,
		WhiteID:      s.White.UserID,
		BlackID:      s.Black.UserID,
		WhiteHandle:  s.White.Handle,
		BlackHandle:  s.Black.Handle,
		TimeControl:  s.TimeControl.Name,
		Rated:        s.Rated,
		Variant:      string(s.Start.Variant),
		StartFEN:     s.Start.FEN,
		TournamentID: s.TournamentID,
		Moves:        append([]string(nil), s.Moves...),
		SAN:          append([]string(nil), s.SAN...),
		StartedAt:    s.CreatedAt,
	}
	if s.Ended {
		rec.Result = string(s.Result)
		rec.Reason = s.Reason
		rec.Score = s.Result.Score()
		rec.EndedAt = s.EndedAt
	}
	return rec
}
