// Package messages defines the wire protocol: a flat JSON envelope whose "t"
// field selects the handler.
package messages

import (
	"encoding/json"
	"strings"
)

// Inbound message types
const (
	TypeHello                 = "hello"
	TypeQueueJoin             = "queue.join"
	TypeQueueLeave            = "queue.leave"
	TypeGameMove              = "game.move"
	TypeMoveMake              = "move.make" // alias of game.move
	TypeGameResign            = "game.resign"
	TypeGameAbort             = "game.abort"
	TypeDrawOffer             = "draw.offer"
	TypeDrawAccept            = "draw.accept"
	TypeDrawDecline           = "draw.decline"
	TypeTakebackOffer         = "takeback.offer"
	TypeTakebackAccept        = "takeback.accept"
	TypeTakebackDecline       = "takeback.decline"
	TypeRematchOffer          = "rematch.offer"
	TypeRematchAccept         = "rematch.accept"
	TypeRematchDecline        = "rematch.decline"
	TypeChatMessage           = "chat.message"
	TypeGameSpectate          = "game.spectate"
	TypeGameUnspectate        = "game.unspectate"
	TypeTournamentSubscribe   = "tournament.subscribe"
	TypeTournamentUnsubscribe = "tournament.unsubscribe"
	TypePing                  = "ping"
)

// Envelope is an inbound frame with its type decoded and the rest of the
// fields kept raw for the handler.
type Envelope struct {
	T   string
	Raw json.RawMessage
}

// Decode parses a frame. Malformed JSON and a missing or empty "t" are both
// reported as INVALID_MESSAGE.
func Decode(data []byte) (Envelope, error) {
	var head struct {
		T *string `json:"t"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Envelope{}, Errorf(CodeInvalidMessage, "malformed JSON")
	}
	if head.T == nil || strings.TrimSpace(*head.T) == "" {
		return Envelope{}, Errorf(CodeInvalidMessage, "missing message type")
	}

	return Envelope{T: *head.T, Raw: json.RawMessage(data)}, nil
}

// Bind decodes the envelope fields into v.
func (e Envelope) Bind(v any) error {
	if err := json.Unmarshal(e.Raw, v); err != nil {
		return Errorf(CodeInvalidMessage, "invalid %s payload", e.T)
	}
	return nil
}

// Hello authenticates the connection. SessionID is the opaque credential.
type Hello struct {
	SessionID string `json:"sessionId"`
}

// QueueJoin asks to be paired in the (tc, rated) bucket.
type QueueJoin struct {
	TC    string `json:"tc"`
	Rated bool   `json:"rated"`
}

// GameRef is the payload of every message that only names a game.
type GameRef struct {
	GameID string `json:"gameId"`
}

// Move is the payload of game.move / move.make.
type Move struct {
	GameID   string `json:"gameId"`
	Move     string `json:"move"`
	ClientTs int64  `json:"clientTs,omitempty"`
}

// Chat is a chat line sent to a game.
type Chat struct {
	GameID  string `json:"gameId"`
	Message string `json:"message"`
}

// TournamentRef names a tournament topic.
type TournamentRef struct {
	TournamentID string `json:"tournamentId"`
}
