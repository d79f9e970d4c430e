package manager

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/tecu23/blitz-server/pkg/bus"
	"github.com/tecu23/blitz-server/pkg/chess"
	"github.com/tecu23/blitz-server/pkg/game"
	"github.com/tecu23/blitz-server/pkg/messages"
	"github.com/tecu23/blitz-server/pkg/session"
)

// SubscribeTournament adds the connection to a tournament topic.
func (m *Manager) SubscribeTournament(c *session.Connection, p messages.TournamentRef) error {
	id := strings.TrimSpace(p.TournamentID)
	if id == "" {
		return messages.Errorf(messages.CodeInvalidMessage, "tournamentId is required")
	}
	m.registry.Subscribe(c, id)
	return nil
}

// UnsubscribeTournament removes the connection from a tournament topic.
func (m *Manager) UnsubscribeTournament(c *session.Connection, p messages.TournamentRef) error {
	id := strings.TrimSpace(p.TournamentID)
	if id == "" {
		return messages.Errorf(messages.CodeInvalidMessage, "tournamentId is required")
	}
	m.registry.Unsubscribe(c, id)
	return nil
}

// StartTournamentGame opens a game for a tournament pairing. Both players
// must be connected to this instance and free.
func (m *Manager) StartTournamentGame(tournamentID string, p bus.Pairing) (*game.Session, error) {
	tc, err := chess.ParseTimeControl(p.TC)
	if err != nil {
		return nil, errInvalidTimeControl
	}
	players := make([]game.Player, 0, 2)
	for _, uid := range []string{p.White, p.Black} {
		conns := m.registry.ConnectionsOf(uid)
		if len(conns) == 0 || conns[0].Identity == nil {
			return nil, errOpponentOffline
		}
		if _, busy := m.store.ActiveByUser(uid); busy {
			return nil, errAlreadyInGame
		}
		id := conns[0].Identity
		players = append(players, game.Player{
			UserID:          uid,
			Handle:          id.Handle,
			Rating:          id.Rating,
			RatingDeviation: id.RatingDeviation,
			Guest:           id.Guest,
		})
	}

	for _, uid := range []string{p.White, p.Black} {
		m.queue.Dequeue(uid)
	}

	gameID := p.GameID
	if gameID == "" {
		gameID = m.opts.NewID()
	}
	s := m.createGame(game.CreateGameParams{
		GameID:       gameID,
		White:        players[0],
		Black:        players[1],
		TimeControl:  tc,
		Rated:        p.Rated,
		Start:        chess.NewPosition(m.opts.Variant, m.opts.Intn),
		TournamentID: tournamentID,
	})

	m.router.ToTournament(tournamentID, messages.TournamentEvent{
		T:            messages.TypeTournamentEvent,
		TournamentID: tournamentID,
		Kind:         "game.start",
		GameID:       s.ID,
		White:        s.White.UserID,
		Black:        s.Black.UserID,
	})
	return s, nil
}

// OnBusMessage handles a frame delivered by the tournament bus. Events
// published by this instance were already delivered locally.
func (m *Manager) OnBusMessage(msg bus.Message) {
	switch msg.Kind {
	case bus.KindEvent:
		if msg.Origin == m.opts.InstanceID {
			return
		}
		m.router.DeliverTournament(msg.TournamentID, msg.Payload)
	case bus.KindPairing:
		var p bus.Pairing
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			m.logger.Warn("malformed tournament pairing", zap.String("tournament_id", msg.TournamentID), zap.Error(err))
			return
		}
		if !m.registry.Online(p.White) || !m.registry.Online(p.Black) {
			return
		}
		if _, err := m.StartTournamentGame(msg.TournamentID, p); err != nil {
			m.logger.Warn("tournament pairing rejected",
				zap.String("tournament_id", msg.TournamentID),
				zap.String("white", p.White),
				zap.String("black", p.Black),
				zap.Error(err),
			)
		}
	default:
		m.logger.Debug("ignoring bus message", zap.String("kind", msg.Kind))
	}
}
