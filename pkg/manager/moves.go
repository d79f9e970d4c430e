package manager

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tecu23/blitz-server/pkg/chess"
	"github.com/tecu23/blitz-server/pkg/events"
	"github.com/tecu23/blitz-server/pkg/game"
	"github.com/tecu23/blitz-server/pkg/messages"
	"github.com/tecu23/blitz-server/pkg/session"
)

// playerSession resolves the game and the sender's color, rejecting with
// the first failing guard.
func (m *Manager) playerSession(c *session.Connection, gameID string, allowEnded bool) (*game.Session, chess.Color, error) {
	if !c.Authenticated() {
		return nil, "", errNotAuthenticated
	}
	s, ok := m.store.Get(gameID)
	if !ok {
		return nil, "", errGameNotFound
	}
	if s.Ended && !allowEnded {
		return nil, "", errGameEnded
	}
	color, ok := s.ColorOf(c.UserID())
	if !ok {
		return nil, "", errNotAPlayer
	}
	return s, color, nil
}

// SubmitMove validates and applies a move, moves the session through the
// grace protocol, re-arms the deadline and broadcasts the result.
func (m *Manager) SubmitMove(c *session.Connection, p messages.Move) error {
	s, color, err := m.playerSession(c, p.GameID, false)
	if err != nil {
		return err
	}
	if s.ToMove() != color {
		return errNotYourTurn
	}

	now := m.loop.Now()
	// a side whose time ran out loses even if its flag timer is still
	// inside the jitter buffer
	if s.Clock.Running() && s.Clock.RemainingAt(color, now) <= 0 {
		result := game.Timeout(color)
		m.logger.Info("move arrived after flag",
			zap.String("game_id", s.ID),
			zap.String("color", color.Name()),
			zap.String("late_by", chess.FormatClockTime(-s.Clock.RemainingAt(color, now))),
		)
		m.endGame(s, result, game.Describe(result, color))
		return errGameEnded
	}

	verdict, err := m.rules.Validate(s.Start, s.Moves, p.Move)
	if errors.Is(err, chess.ErrIllegalMove) {
		return messages.Errorf(messages.CodeIllegalMove, "illegal move %q", p.Move)
	}
	if err != nil {
		m.logger.Error("rules adapter failed", zap.String("game_id", s.ID), zap.Error(err))
		return err
	}

	uci := strings.ToLower(strings.TrimSpace(p.Move))

	var spent int64
	switch {
	case s.WaitingForFirstMove:
		// white moved: the grace window restarts for black
		s.WaitingForFirstMove = false
		s.WaitingForSecondMove = true
		s.GraceDeadline = now.Add(m.opts.GracePeriod)
	case s.WaitingForSecondMove:
		s.WaitingForSecondMove = false
		s.GraceDeadline = time.Time{}
		s.Clock.Start(now)
	default:
		spent = s.Clock.Debit(color, now)
	}

	s.Moves = append(s.Moves, uci)
	s.SAN = append(s.SAN, verdict.SAN)
	s.LastMoveAt = now
	s.ClearOffers()

	m.armDeadline(s)

	w, b := m.timeLeft(s, now)
	m.logger.Debug("move applied",
		zap.String("game_id", s.ID),
		zap.String("move", uci),
		zap.String("white_clock", chess.FormatClockTime(w)),
		zap.String("black_clock", chess.FormatClockTime(b)),
	)
	m.router.ToGame(s.ID, messages.MoveMade{
		T:        messages.TypeMoveMade,
		GameID:   s.ID,
		Move:     uci,
		SAN:      verdict.SAN,
		By:       color,
		ServerTs: now.UnixMilli(),
		Seq:      len(s.Moves),
		TimeLeft: messages.TimeLeft{W: w, B: b},
	}, "")

	m.events.Publish(events.Event{
		Type:    events.EventMoveProcessed,
		GameID:  s.ID,
		Payload: events.MoveProcessed{Move: uci, Ply: len(s.Moves), Spent: spent},
	})

	if verdict.Terminal() {
		result := game.FromTermination(verdict)
		m.endGame(s, result, game.Describe(result, color))
	}
	return nil
}
