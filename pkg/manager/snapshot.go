package manager

import (
	"time"

	"github.com/tecu23/blitz-server/pkg/chess"
	"github.com/tecu23/blitz-server/pkg/game"
	"github.com/tecu23/blitz-server/pkg/messages"
)

func publicPlayer(p game.Player) messages.Player {
	return messages.Player{UserID: p.UserID, Handle: p.Handle, Rating: p.Rating, Guest: p.Guest}
}

func chatLine(l game.ChatLine) messages.ChatLine {
	return messages.ChatLine{From: l.UserID, Handle: l.Handle, Message: l.Message, At: l.At.UnixMilli()}
}

func initial(tc chess.TimeControl) messages.Initial {
	return messages.Initial{W: tc.InitialMs, B: tc.InitialMs, Inc: tc.IncrementMs}
}

func (m *Manager) matchFound(s *game.Session, color chess.Color, now time.Time) messages.MatchFound {
	w, b := m.timeLeft(s, now)
	return messages.MatchFound{
		T:               messages.TypeMatchFound,
		GameID:          s.ID,
		Color:           color,
		Opponent:        publicPlayer(s.PlayerOf(color.Opp())),
		TimeLeft:        messages.TimeLeft{W: w, B: b},
		Initial:         initial(s.TimeControl),
		InitialPosition: s.Start,
		ServerStartAt:   s.CreatedAt.UnixMilli(),
		Rated:           s.Rated,
		TC:              s.TimeControl.Name,
		TournamentID:    s.TournamentID,
	}
}

// gameState is the full snapshot of s. It is valid while a hand-off is
// still outstanding.
func (m *Manager) gameState(s *game.Session, now time.Time) messages.GameState {
	w, b := m.timeLeft(s, now)
	st := messages.GameState{
		T:               messages.TypeGameState,
		GameID:          s.ID,
		White:           publicPlayer(s.White),
		Black:           publicPlayer(s.Black),
		TC:              s.TimeControl.Name,
		Rated:           s.Rated,
		Initial:         initial(s.TimeControl),
		InitialPosition: s.Start,
		Moves:           append([]string{}, s.Moves...),
		SAN:             append([]string{}, s.SAN...),
		ToMove:          s.ToMove(),
		TimeLeft:        messages.TimeLeft{W: w, B: b},
		Phase:           string(s.Phase()),
		Ended:           s.Ended,
		Result:          string(s.Result),
		Reason:          s.Reason,
		Chat:            make([]messages.ChatLine, 0, len(s.Chat)),
		ServerTs:        now.UnixMilli(),
	}
	if s.InGrace() {
		st.GraceDeadline = s.GraceDeadline.UnixMilli()
	}
	for _, l := range s.Chat {
		st.Chat = append(st.Chat, chatLine(l))
	}
	return st
}
