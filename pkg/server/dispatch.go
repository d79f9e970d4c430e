package server

import (
	"github.com/tecu23/blitz-server/pkg/manager"
	"github.com/tecu23/blitz-server/pkg/messages"
	"github.com/tecu23/blitz-server/pkg/session"
)

type handler func(m *manager.Manager, c *session.Connection, env messages.Envelope) error

// bind adapts a typed operation to a handler.
func bind[P any](op func(m *manager.Manager, c *session.Connection, p P) error) handler {
	return func(m *manager.Manager, c *session.Connection, env messages.Envelope) error {
		var p P
		if err := env.Bind(&p); err != nil {
			return err
		}
		return op(m, c, p)
	}
}

var handlers = map[string]handler{
	messages.TypeHello:     bind((*manager.Manager).Hello),
	messages.TypeQueueJoin: bind((*manager.Manager).JoinQueue),
	messages.TypeQueueLeave: func(m *manager.Manager, c *session.Connection, _ messages.Envelope) error {
		return m.LeaveQueue(c)
	},
	messages.TypeGameMove:              bind((*manager.Manager).SubmitMove),
	messages.TypeMoveMake:              bind((*manager.Manager).SubmitMove),
	messages.TypeGameResign:            bind((*manager.Manager).Resign),
	messages.TypeGameAbort:             bind((*manager.Manager).Abort),
	messages.TypeDrawOffer:             bind((*manager.Manager).OfferDraw),
	messages.TypeDrawAccept:            bind((*manager.Manager).AcceptDraw),
	messages.TypeDrawDecline:           bind((*manager.Manager).DeclineDraw),
	messages.TypeTakebackOffer:         bind((*manager.Manager).OfferTakeback),
	messages.TypeTakebackAccept:        bind((*manager.Manager).AcceptTakeback),
	messages.TypeTakebackDecline:       bind((*manager.Manager).DeclineTakeback),
	messages.TypeRematchOffer:          bind((*manager.Manager).OfferRematch),
	messages.TypeRematchAccept:         bind((*manager.Manager).AcceptRematch),
	messages.TypeRematchDecline:        bind((*manager.Manager).DeclineRematch),
	messages.TypeChatMessage:           bind((*manager.Manager).Chat),
	messages.TypeGameSpectate:          bind((*manager.Manager).Spectate),
	messages.TypeGameUnspectate:        bind((*manager.Manager).Unspectate),
	messages.TypeTournamentSubscribe:   bind((*manager.Manager).SubscribeTournament),
	messages.TypeTournamentUnsubscribe: bind((*manager.Manager).UnsubscribeTournament),
	messages.TypePing: func(m *manager.Manager, c *session.Connection, _ messages.Envelope) error {
		return m.Ping(c)
	},
}

// dispatch routes one inbound frame. Rejections go back to the sender
// only; the connection stays open.
func (h *Hub) dispatch(in inboundFrame) {
	c := h.manager.Connection(in.connID)
	if c == nil {
		return
	}
	h.manager.Heartbeat(c)

	env, err := messages.Decode(in.data)
	if err != nil {
		h.manager.Reject(c, err)
		return
	}
	handle, ok := handlers[env.T]
	if !ok {
		h.manager.Reject(c, messages.Errorf(messages.CodeUnknownMessageType, "unknown message type %q", env.T))
		return
	}
	if err := handle(h.manager, c, env); err != nil {
		h.manager.Reject(c, err)
	}
}
