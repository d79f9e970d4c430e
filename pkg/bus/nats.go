package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectPrefix is prepended to every tournament subject.
const SubjectPrefix = "blitz.tournaments"

// NATS is a Bus over core NATS subjects, one per tournament.
type NATS struct {
	conn   *nats.Conn
	logger *zap.Logger
	sub    *nats.Subscription
}

// DialNATS connects with unlimited reconnects.
func DialNATS(url string, logger *zap.Logger) (*NATS, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("blitz-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: conn, logger: logger}, nil
}

// Subject returns the subject of tournamentID. Tokens are restricted to
// characters that cannot split or wildcard a subject.
func Subject(tournamentID string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, tournamentID)
	if clean == "" {
		clean = "_"
	}
	return SubjectPrefix + "." + clean
}

// Publish sends msg on the tournament's subject.
func (n *NATS) Publish(_ context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode bus message: %w", err)
	}
	if err := n.conn.Publish(Subject(msg.TournamentID), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Subscribe listens on every tournament subject.
func (n *NATS) Subscribe(_ context.Context, h Handler) error {
	sub, err := n.conn.Subscribe(SubjectPrefix+".>", func(m *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			n.logger.Warn("dropping malformed bus message", zap.String("subject", m.Subject), zap.Error(err))
			return
		}
		h(msg)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := n.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	n.sub = sub
	return nil
}

// Close drains the connection.
func (n *NATS) Close() error {
	if n.conn.IsClosed() {
		return nil
	}
	return n.conn.Drain()
}
