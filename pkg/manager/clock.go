package manager

import (
	"time"

	"go.uber.org/zap"

	"github.com/tecu23/blitz-server/pkg/game"
)

// deadline returns when the next check of s is due: the grace deadline
// before both sides moved, otherwise the instant the side to move flags.
func (m *Manager) deadline(s *game.Session) time.Time {
	if s.InGrace() {
		return s.GraceDeadline
	}
	return s.Clock.ExpiresAt(s.ToMove())
}

// cancelTimer stops the outstanding timer of s and invalidates any
// callback already queued on the loop.
func (m *Manager) cancelTimer(s *game.Session) {
	if s.Timer != nil {
		s.Timer.Stop()
		s.Timer = nil
	}
	s.TimerSeq++
}

// armDeadline replaces the timer of s with one firing at the next
// deadline plus the jitter buffer.
func (m *Manager) armDeadline(s *game.Session) {
	m.cancelTimer(s)
	if s.Ended {
		return
	}

	d := m.deadline(s).Sub(m.loop.Now()) + m.opts.DeadlineBuffer
	if d < 0 {
		d = 0
	}
	seq, id := s.TimerSeq, s.ID
	s.Timer = m.loop.AfterFunc(d, func() { m.onDeadline(id, seq) })
}

// armEviction reuses the timer slot of an ended session for its removal
// once the rematch window closes.
func (m *Manager) armEviction(s *game.Session) {
	m.cancelTimer(s)
	seq, id := s.TimerSeq, s.ID
	s.Timer = m.loop.AfterFunc(m.opts.RematchWindow, func() { m.evict(id, seq) })
}

// onDeadline re-validates the deadline against live state before acting.
func (m *Manager) onDeadline(gameID string, seq uint64) {
	s, ok := m.store.Get(gameID)
	if !ok || s.Ended || s.TimerSeq != seq {
		return
	}
	s.Timer = nil
	now := m.loop.Now()

	if s.InGrace() {
		if now.Before(s.GraceDeadline) {
			m.armDeadline(s)
			return
		}
		who := s.ToMove()
		m.logger.Info("first move not made in time", zap.String("game_id", s.ID), zap.String("color", who.Name()))
		m.endGame(s, game.ResultTimeoutStart, game.Describe(game.ResultTimeoutStart, who))
		return
	}

	loser := s.ToMove()
	if s.Clock.RemainingAt(loser, now) > 0 {
		m.armDeadline(s)
		return
	}
	result := game.Timeout(loser)
	m.endGame(s, result, game.Describe(result, loser))
}

func (m *Manager) evict(gameID string, seq uint64) {
	s, ok := m.store.Get(gameID)
	if !ok || s.TimerSeq != seq {
		return
	}
	m.removeSession(s)
}
