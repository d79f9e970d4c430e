// Package game holds the authoritative live state of every game and the
// table that owns them.
package game

import (
	"time"

	"github.com/tecu23/blitz-server/pkg/chess"
)

// MaxChatLines caps the per-game chat log.
const MaxChatLines = 100

// Phase is the derived state of a session.
type Phase string

// Session phases, in order
const (
	PhaseWaitingWhite Phase = "PRE_GAME_WAITING_WHITE_FIRST_MOVE"
	PhaseWaitingBlack Phase = "PRE_GAME_WAITING_BLACK_FIRST_MOVE"
	PhaseClockRunning Phase = "CLOCK_RUNNING"
	PhaseEnded        Phase = "ENDED"
)

// Timer is the single outstanding scheduled wake-up of a session.
type Timer interface {
	Stop() bool
}

// Player is one side of a game.
type Player struct {
	UserID          string
	Handle          string
	Rating          int
	RatingDeviation int
	Guest           bool
}

// ChatLine is one chat entry.
type ChatLine struct {
	UserID  string
	Handle  string
	Message string
	At      time.Time
}

// CreateGameParams holds what is needed to open a session.
type CreateGameParams struct {
	GameID       string
	White        Player
	Black        Player
	TimeControl  chess.TimeControl
	Rated        bool
	Start        chess.Position
	TournamentID string
	RematchOf    string
}

// Session is the live state of one game. It has no locking: the owner
// serializes every access.
type Session struct {
	ID           string
	White        Player
	Black        Player
	TimeControl  chess.TimeControl
	Rated        bool
	Start        chess.Position
	TournamentID string
	RematchOf    string

	Moves []string
	SAN   []string
	Clock *chess.Clock

	WaitingForFirstMove  bool
	WaitingForSecondMove bool
	GraceDeadline        time.Time

	Timer    Timer
	TimerSeq uint64

	Ended   bool
	Result  Result
	Reason  string
	EndedAt time.Time

	// Released is set once the end-of-game hand-off has completed.
	Released bool

	DrawOffer     chess.Color
	TakebackOffer chess.Color
	RematchOffer  chess.Color
	Chat          []ChatLine

	CreatedAt  time.Time
	LastMoveAt time.Time
}

// CreateGame opens a session in the white-first-move grace phase.
func CreateGame(params CreateGameParams, now time.Time, grace time.Duration) *Session {
	return &Session{
		ID:                  params.GameID,
		White:               params.White,
		Black:               params.Black,
		TimeControl:         params.TimeControl,
		Rated:               params.Rated,
		Start:               params.Start,
		TournamentID:        params.TournamentID,
		RematchOf:           params.RematchOf,
		Moves:               []string{},
		SAN:                 []string{},
		Clock:               chess.NewClock(params.TimeControl),
		WaitingForFirstMove: true,
		GraceDeadline:       now.Add(grace),
		CreatedAt:           now,
	}
}

// Phase derives the current state from the clock-start flags.
func (s *Session) Phase() Phase {
	switch {
	case s.Ended:
		return PhaseEnded
	case s.WaitingForFirstMove:
		return PhaseWaitingWhite
	case s.WaitingForSecondMove:
		return PhaseWaitingBlack
	default:
		return PhaseClockRunning
	}
}

// InGrace reports whether the pre-game grace window is active.
func (s *Session) InGrace() bool {
	return !s.Ended && (s.WaitingForFirstMove || s.WaitingForSecondMove)
}

// ToMove derives the side to move from the move count.
func (s *Session) ToMove() chess.Color {
	return chess.ToMove(len(s.Moves))
}

// ColorOf returns the color userID plays, or false for non-players.
func (s *Session) ColorOf(userID string) (chess.Color, bool) {
	switch userID {
	case "":
		return "", false
	case s.White.UserID:
		return chess.White, true
	case s.Black.UserID:
		return chess.Black, true
	default:
		return "", false
	}
}

// PlayerOf returns the player of color.
func (s *Session) PlayerOf(color chess.Color) Player {
	if color == chess.White {
		return s.White
	}
	return s.Black
}

// Opponent returns the other player of userID.
func (s *Session) Opponent(userID string) Player {
	if userID == s.White.UserID {
		return s.Black
	}
	return s.White
}

// UserIDs returns both player ids, white first.
func (s *Session) UserIDs() []string {
	return []string{s.White.UserID, s.Black.UserID}
}

// End writes the terminal fields once. It reports false when the session
// already ended.
func (s *Session) End(result Result, reason string, now time.Time) bool {
	if s.Ended {
		return false
	}
	s.Ended = true
	s.Result = result
	s.Reason = reason
	s.EndedAt = now
	s.DrawOffer = ""
	s.TakebackOffer = ""
	return true
}

// ClearOffers drops pending draw and takeback offers.
func (s *Session) ClearOffers() {
	s.DrawOffer = ""
	s.TakebackOffer = ""
}

// AddChat appends a line, dropping the oldest beyond MaxChatLines.
func (s *Session) AddChat(line ChatLine) {
	s.Chat = append(s.Chat, line)
	if len(s.Chat) > MaxChatLines {
		s.Chat = s.Chat[len(s.Chat)-MaxChatLines:]
	}
}
