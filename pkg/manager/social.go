package manager

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tecu23/blitz-server/pkg/chess"
	"github.com/tecu23/blitz-server/pkg/game"
	"github.com/tecu23/blitz-server/pkg/messages"
	"github.com/tecu23/blitz-server/pkg/session"
)

// abortPlies is the last ply count at which a game may still be aborted.
const abortPlies = 2

// Resign ends the game as a loss for the sender.
func (m *Manager) Resign(c *session.Connection, p messages.GameRef) error {
	s, color, err := m.playerSession(c, p.GameID, false)
	if err != nil {
		return err
	}
	result := game.Resign(color)
	m.endGame(s, result, game.Describe(result, color))
	return nil
}

// Abort ends the game without a result while it has not meaningfully
// started.
func (m *Manager) Abort(c *session.Connection, p messages.GameRef) error {
	s, color, err := m.playerSession(c, p.GameID, false)
	if err != nil {
		return err
	}
	if len(s.Moves) > abortPlies {
		return errCannotAbort
	}
	m.endGame(s, game.ResultAborted, game.Describe(game.ResultAborted, color))
	return nil
}

// OfferDraw records a draw offer. An offer crossing the opponent's own
// pending offer is an agreement.
func (m *Manager) OfferDraw(c *session.Connection, p messages.GameRef) error {
	s, color, err := m.playerSession(c, p.GameID, false)
	if err != nil {
		return err
	}
	if s.DrawOffer == color.Opp() {
		return m.AcceptDraw(c, p)
	}
	if s.DrawOffer == color {
		return nil
	}
	s.DrawOffer = color
	m.router.ToGame(s.ID, messages.Offer{T: messages.TypeDrawOffered, GameID: s.ID, By: color}, "")
	return nil
}

// AcceptDraw ends the game by agreement.
func (m *Manager) AcceptDraw(c *session.Connection, p messages.GameRef) error {
	s, color, err := m.playerSession(c, p.GameID, false)
	if err != nil {
		return err
	}
	if s.DrawOffer != color.Opp() {
		return errNoPendingOffer
	}
	m.endGame(s, game.ResultDrawAgreement, game.Describe(game.ResultDrawAgreement, color))
	return nil
}

// DeclineDraw drops the opponent's draw offer.
func (m *Manager) DeclineDraw(c *session.Connection, p messages.GameRef) error {
	s, color, err := m.playerSession(c, p.GameID, false)
	if err != nil {
		return err
	}
	if s.DrawOffer != color.Opp() {
		return errNoPendingOffer
	}
	s.DrawOffer = ""
	m.router.ToGame(s.ID, messages.Offer{T: messages.TypeDrawDeclined, GameID: s.ID, By: color}, "")
	return nil
}

// OfferTakeback asks the opponent to undo the sender's last move. Only
// available while the clock runs.
func (m *Manager) OfferTakeback(c *session.Connection, p messages.GameRef) error {
	s, color, err := m.playerSession(c, p.GameID, false)
	if err != nil {
		return err
	}
	if s.InGrace() || len(s.Moves) <= abortPlies || s.ToMove() == color {
		return errCannotTakeback
	}
	if s.TakebackOffer == color {
		return nil
	}
	s.TakebackOffer = color
	m.router.ToGame(s.ID, messages.Offer{T: messages.TypeTakebackOffered, GameID: s.ID, By: color}, "")
	return nil
}

// AcceptTakeback undoes the last ply. The accepter's thinking time so far
// is charged before the requester's clock resumes.
func (m *Manager) AcceptTakeback(c *session.Connection, p messages.GameRef) error {
	s, color, err := m.playerSession(c, p.GameID, false)
	if err != nil {
		return err
	}
	if s.TakebackOffer != color.Opp() {
		return errNoPendingOffer
	}
	if s.ToMove() != color || len(s.Moves) <= abortPlies {
		s.TakebackOffer = ""
		return errCannotTakeback
	}

	now := m.loop.Now()
	s.Clock.Charge(color, now)
	s.Moves = s.Moves[:len(s.Moves)-1]
	s.SAN = s.SAN[:len(s.SAN)-1]
	s.Clock.Start(now)
	s.ClearOffers()
	m.armDeadline(s)

	w, b := m.timeLeft(s, now)
	m.router.ToGame(s.ID, messages.TakebackApplied{
		T:        messages.TypeTakebackApplied,
		GameID:   s.ID,
		Moves:    append([]string(nil), s.Moves...),
		Seq:      len(s.Moves),
		TimeLeft: messages.TimeLeft{W: w, B: b},
	}, "")
	m.logger.Debug("takeback applied", zap.String("game_id", s.ID), zap.Int("plies", len(s.Moves)))
	return nil
}

// DeclineTakeback drops the opponent's takeback request.
func (m *Manager) DeclineTakeback(c *session.Connection, p messages.GameRef) error {
	s, color, err := m.playerSession(c, p.GameID, false)
	if err != nil {
		return err
	}
	if s.TakebackOffer != color.Opp() {
		return errNoPendingOffer
	}
	s.TakebackOffer = ""
	m.router.ToGame(s.ID, messages.Offer{T: messages.TypeTakebackDeclined, GameID: s.ID, By: color}, "")
	return nil
}

// rematchSession resolves an ended game during its rematch window.
func (m *Manager) rematchSession(c *session.Connection, gameID string) (*game.Session, chess.Color, error) {
	s, color, err := m.playerSession(c, gameID, true)
	if err != nil {
		return nil, "", err
	}
	if !s.Ended {
		return nil, "", errGameNotEnded
	}
	return s, color, nil
}

func (m *Manager) rematchAllowed(s *game.Session, color chess.Color) error {
	if m.Maintenance() {
		return errMaintenance
	}
	if !m.registry.Online(s.PlayerOf(color.Opp()).UserID) {
		return errOpponentOffline
	}
	for _, uid := range s.UserIDs() {
		if _, busy := m.store.ActiveByUser(uid); busy {
			return errAlreadyInGame
		}
	}
	return nil
}

// OfferRematch proposes a new game with colors swapped. Crossing offers
// start the rematch.
func (m *Manager) OfferRematch(c *session.Connection, p messages.GameRef) error {
	s, color, err := m.rematchSession(c, p.GameID)
	if err != nil {
		return err
	}
	if err := m.rematchAllowed(s, color); err != nil {
		return err
	}
	if s.RematchOffer == color.Opp() {
		return m.AcceptRematch(c, p)
	}
	if s.RematchOffer == color {
		return nil
	}
	s.RematchOffer = color
	m.router.ToUsers(s.UserIDs(), messages.Offer{T: messages.TypeRematchOffered, GameID: s.ID, By: color})
	return nil
}

// AcceptRematch opens the rematch. The old session is left untouched
// apart from its offer.
func (m *Manager) AcceptRematch(c *session.Connection, p messages.GameRef) error {
	s, color, err := m.rematchSession(c, p.GameID)
	if err != nil {
		return err
	}
	if s.RematchOffer != color.Opp() {
		return errNoPendingOffer
	}
	if err := m.rematchAllowed(s, color); err != nil {
		return err
	}
	s.RematchOffer = ""

	for _, uid := range s.UserIDs() {
		m.queue.Dequeue(uid)
	}
	next := m.createGame(game.CreateGameParams{
		GameID:      m.opts.NewID(),
		White:       s.Black,
		Black:       s.White,
		TimeControl: s.TimeControl,
		Rated:       s.Rated,
		Start:       chess.NewPosition(s.Start.Variant, m.opts.Intn),
		RematchOf:   s.ID,
	})
	m.logger.Info("rematch started", zap.String("game_id", next.ID), zap.String("rematch_of", s.ID))
	return nil
}

// DeclineRematch drops the opponent's rematch offer.
func (m *Manager) DeclineRematch(c *session.Connection, p messages.GameRef) error {
	s, color, err := m.rematchSession(c, p.GameID)
	if err != nil {
		return err
	}
	if s.RematchOffer != color.Opp() {
		return errNoPendingOffer
	}
	s.RematchOffer = ""
	m.router.ToUsers(s.UserIDs(), messages.Offer{T: messages.TypeRematchDeclined, GameID: s.ID, By: color})
	return nil
}

// Chat appends a line to the game's log and relays it to players and
// spectators. It stays open after the game ends.
func (m *Manager) Chat(c *session.Connection, p messages.Chat) error {
	if !c.Authenticated() {
		return errNotAuthenticated
	}
	s, ok := m.store.Get(p.GameID)
	if !ok {
		return errGameNotFound
	}
	if _, player := s.ColorOf(c.UserID()); !player && !c.Watches(s.ID) {
		return errNotAPlayer
	}

	text := strings.TrimSpace(p.Message)
	if text == "" {
		return messages.Errorf(messages.CodeInvalidMessage, "empty chat message")
	}
	if utf8.RuneCountInString(text) > m.opts.MaxChatLength {
		text = string([]rune(text)[:m.opts.MaxChatLength])
	}

	now := m.loop.Now()
	line := game.ChatLine{UserID: c.UserID(), Handle: c.Identity.Handle, Message: text, At: now}
	s.AddChat(line)
	m.router.ToGame(s.ID, messages.ChatMessage{
		T:        messages.TypeChatMessage,
		GameID:   s.ID,
		ChatLine: chatLine(line),
	}, "")
	return nil
}

// Spectate attaches the connection to a game and sends the snapshot.
func (m *Manager) Spectate(c *session.Connection, p messages.GameRef) error {
	s, ok := m.store.Get(p.GameID)
	if !ok {
		return errGameNotFound
	}
	m.registry.AddSpectator(c, s.ID)
	m.router.ToConn(c, m.gameState(s, m.loop.Now()))
	return nil
}

// Unspectate detaches the connection from a game.
func (m *Manager) Unspectate(c *session.Connection, p messages.GameRef) error {
	if !m.registry.RemoveSpectator(c, p.GameID) {
		return errGameNotFound
	}
	return nil
}
