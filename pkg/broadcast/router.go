// Package broadcast resolves the recipients of an event and delivers the
// serialized frame to each of them.
package broadcast

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/tecu23/blitz-server/pkg/bus"
	"github.com/tecu23/blitz-server/pkg/session"
)

const publishTimeout = 2 * time.Second

// Directory is the view of the connection registry the router needs.
type Directory interface {
	Each(fn func(*session.Connection))
	ConnectionsOf(userID string) []*session.Connection
}

// Router fans messages out to connections. Delivery is fire-and-forget: a
// failing connection is logged and skipped.
type Router struct {
	dir        Directory
	bus        bus.Bus
	instanceID string
	logger     *zap.Logger
}

// NewRouter creates a router. b may be nil when tournament traffic stays
// local.
func NewRouter(dir Directory, b bus.Bus, instanceID string, logger *zap.Logger) *Router {
	return &Router{dir: dir, bus: b, instanceID: instanceID, logger: logger}
}

func (r *Router) encode(msg any) ([]byte, bool) {
	if raw, ok := msg.([]byte); ok {
		return raw, true
	}
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("failed to encode outbound message", zap.Error(err))
		return nil, false
	}
	return data, true
}

func (r *Router) deliver(c *session.Connection, data []byte) bool {
	if c.Transport == nil || !c.Transport.Open() {
		return false
	}
	if err := c.Transport.Send(data); err != nil {
		r.logger.Debug("delivery failed", zap.String("conn_id", c.ID), zap.Error(err))
		return false
	}
	return true
}

// ToConn sends msg to a single connection.
func (r *Router) ToConn(c *session.Connection, msg any) bool {
	data, ok := r.encode(msg)
	if !ok {
		return false
	}
	return r.deliver(c, data)
}

// ToGame delivers msg to every player and spectator of gameID except the
// connections of excludeUserID. It returns the number of deliveries.
func (r *Router) ToGame(gameID string, msg any, excludeUserID string) int {
	if excludeUserID == "" {
		return r.ToGameExcept(gameID, msg)
	}
	return r.ToGameExcept(gameID, msg, excludeUserID)
}

// ToGameExcept delivers msg to the connections watching gameID that do not
// belong to any of skipUsers.
func (r *Router) ToGameExcept(gameID string, msg any, skipUsers ...string) int {
	data, ok := r.encode(msg)
	if !ok {
		return 0
	}

	n := 0
	r.dir.Each(func(c *session.Connection) {
		if !c.Watches(gameID) || slices.Contains(skipUsers, c.UserID()) {
			return
		}
		if r.deliver(c, data) {
			n++
		}
	})
	return n
}

// ToUsers delivers msg to every connection of the given users.
func (r *Router) ToUsers(userIDs []string, msg any) int {
	data, ok := r.encode(msg)
	if !ok {
		return 0
	}

	n := 0
	for _, uid := range userIDs {
		for _, c := range r.dir.ConnectionsOf(uid) {
			if r.deliver(c, data) {
				n++
			}
		}
	}
	return n
}

// ToTournament delivers msg to local subscribers and publishes it on the
// bus for the other instances.
func (r *Router) ToTournament(tournamentID string, msg any) int {
	data, ok := r.encode(msg)
	if !ok {
		return 0
	}

	n := r.DeliverTournament(tournamentID, data)

	if r.bus != nil {
		frame := bus.Message{Origin: r.instanceID, Kind: bus.KindEvent, TournamentID: tournamentID, Payload: data}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if err := r.bus.Publish(ctx, frame); err != nil {
				r.logger.Warn("tournament publish failed", zap.String("tournament_id", tournamentID), zap.Error(err))
			}
		}()
	}
	return n
}

// DeliverTournament fans an already-encoded frame out to local subscribers.
func (r *Router) DeliverTournament(tournamentID string, data []byte) int {
	n := 0
	r.dir.Each(func(c *session.Connection) {
		if _, ok := c.Tournaments[tournamentID]; !ok {
			return
		}
		if r.deliver(c, data) {
			n++
		}
	})
	return n
}

// InstanceID identifies this process on the bus.
func (r *Router) InstanceID() string {
	return r.instanceID
}
