// Package session tracks live transport connections and the identities,
// games, spectated games and tournament topics bound to them.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Transport is the write side of a live link.
type Transport interface {
	Send(data []byte) error
	Open() bool
	Close() error
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Identity is who a connection speaks for.
type Identity struct {
	UserID          string
	Handle          string
	Guest           bool
	Rating          int
	RatingDeviation int
	Token           string
}

// Authenticator verifies opaque credentials and mints guests.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (Identity, error)
	Guest() (Identity, error)
}

// Connection is one live transport link.
type Connection struct {
	ID            string
	Transport     Transport
	Identity      *Identity
	GameID        string
	Spectating    map[string]struct{}
	Tournaments   map[string]struct{}
	ConnectedAt   time.Time
	LastHeartbeat time.Time
}

// UserID returns the bound user id, empty before hello.
func (c *Connection) UserID() string {
	if c.Identity == nil {
		return ""
	}
	return c.Identity.UserID
}

// Authenticated reports whether an identity is bound.
func (c *Connection) Authenticated() bool {
	return c.Identity != nil
}

// Watches reports whether the connection plays or spectates gameID.
func (c *Connection) Watches(gameID string) bool {
	if c.GameID == gameID {
		return true
	}
	_, ok := c.Spectating[gameID]
	return ok
}

type deferral struct {
	seq   uint64
	timer Timer
}

// Registry owns every Connection. It is not safe for concurrent use: all
// mutating methods must be called from the event loop.
type Registry struct {
	auth   Authenticator
	logger *zap.Logger

	conns    map[string]*Connection
	byUser   map[string]map[string]*Connection
	deferred map[string]deferral
	seq      uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(auth Authenticator, logger *zap.Logger) *Registry {
	return &Registry{
		auth:     auth,
		logger:   logger,
		conns:    make(map[string]*Connection),
		byUser:   make(map[string]map[string]*Connection),
		deferred: make(map[string]deferral),
	}
}

// Register adds a fresh, unauthenticated connection.
func (r *Registry) Register(id string, t Transport, now time.Time) *Connection {
	c := &Connection{
		ID:            id,
		Transport:     t,
		Spectating:    make(map[string]struct{}),
		Tournaments:   make(map[string]struct{}),
		ConnectedAt:   now,
		LastHeartbeat: now,
	}
	r.conns[id] = c
	return c
}

// Get returns the connection with id, or nil.
func (r *Registry) Get(id string) *Connection {
	return r.conns[id]
}

// ResolveIdentity verifies credential and falls back to a freshly minted
// guest when it is missing or invalid. It only reads immutable state and
// may run off the event loop.
func (r *Registry) ResolveIdentity(ctx context.Context, credential string) (Identity, error) {
	if credential != "" {
		id, err := r.auth.Authenticate(ctx, credential)
		if err == nil {
			return id, nil
		}
		r.logger.Debug("credential rejected, minting guest", zap.Error(err))
	}

	id, err := r.auth.Guest()
	if err != nil {
		return Identity{}, fmt.Errorf("mint guest: %w", err)
	}
	return id, nil
}

// ErrUnknownConnection is returned when the connection was already removed.
var ErrUnknownConnection = errors.New("unknown connection")

// Authenticate binds identity to c and cancels any pending deferred cleanup
// for that user. It reports whether a cleanup was cancelled.
func (r *Registry) Authenticate(c *Connection, id Identity) (bool, error) {
	if _, ok := r.conns[c.ID]; !ok {
		return false, ErrUnknownConnection
	}

	if prev := c.UserID(); prev != "" && prev != id.UserID {
		r.removeUserConn(prev, c.ID)
		c.GameID = ""
	}

	c.Identity = &id
	set, ok := r.byUser[id.UserID]
	if !ok {
		set = make(map[string]*Connection)
		r.byUser[id.UserID] = set
	}
	set[c.ID] = c

	return r.CancelDeferred(id.UserID), nil
}

// Unregister removes the connection. offline is true when it was the last
// connection of an authenticated user; the caller then decides whether to
// Defer a cleanup.
func (r *Registry) Unregister(id string) (c *Connection, offline bool) {
	c, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)

	uid := c.UserID()
	if uid == "" {
		return c, false
	}
	r.removeUserConn(uid, id)
	return c, len(r.byUser[uid]) == 0
}

func (r *Registry) removeUserConn(userID, connID string) {
	set := r.byUser[userID]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.byUser, userID)
	}
}

// Defer schedules the cleanup for userID, replacing any pending one. arm
// receives the generation the callback must present to Expire.
func (r *Registry) Defer(userID string, arm func(seq uint64) Timer) {
	r.CancelDeferred(userID)
	r.seq++
	r.deferred[userID] = deferral{seq: r.seq, timer: arm(r.seq)}
}

// CancelDeferred stops the pending cleanup for userID.
func (r *Registry) CancelDeferred(userID string) bool {
	d, ok := r.deferred[userID]
	if !ok {
		return false
	}
	delete(r.deferred, userID)
	if d.timer != nil {
		d.timer.Stop()
	}
	return true
}

// Expire consumes the pending cleanup for userID if seq still matches and
// the user has not reconnected. It reports whether the cleanup should run.
func (r *Registry) Expire(userID string, seq uint64) bool {
	d, ok := r.deferred[userID]
	if !ok || d.seq != seq {
		return false
	}
	delete(r.deferred, userID)
	return !r.Online(userID)
}

// pending reports whether a deferred cleanup is outstanding for userID.
func (r *Registry) pending(userID string) bool {
	_, ok := r.deferred[userID]
	return ok
}

// Bind records gameID as the game c plays in.
func (r *Registry) Bind(c *Connection, gameID string) {
	c.GameID = gameID
}

// BindUser binds every connection of userID to gameID.
func (r *Registry) BindUser(userID, gameID string) {
	for _, c := range r.byUser[userID] {
		c.GameID = gameID
	}
}

// UnbindUser clears the game binding of userID's connections that still
// point at gameID.
func (r *Registry) UnbindUser(userID, gameID string) {
	for _, c := range r.byUser[userID] {
		if c.GameID == gameID {
			c.GameID = ""
		}
	}
}

// AddSpectator attaches c to gameID as an observer.
func (r *Registry) AddSpectator(c *Connection, gameID string) {
	c.Spectating[gameID] = struct{}{}
}

// RemoveSpectator detaches c from gameID. It reports whether c was attached.
func (r *Registry) RemoveSpectator(c *Connection, gameID string) bool {
	if _, ok := c.Spectating[gameID]; !ok {
		return false
	}
	delete(c.Spectating, gameID)
	return true
}

// DropGame removes gameID from every spectator set.
func (r *Registry) DropGame(gameID string) {
	for _, c := range r.conns {
		delete(c.Spectating, gameID)
	}
}

// Subscribe adds a tournament topic to c.
func (r *Registry) Subscribe(c *Connection, tournamentID string) {
	c.Tournaments[tournamentID] = struct{}{}
}

// Unsubscribe removes a tournament topic from c.
func (r *Registry) Unsubscribe(c *Connection, tournamentID string) bool {
	if _, ok := c.Tournaments[tournamentID]; !ok {
		return false
	}
	delete(c.Tournaments, tournamentID)
	return true
}

// Touch refreshes the heartbeat of c.
func (r *Registry) Touch(c *Connection, now time.Time) {
	c.LastHeartbeat = now
}

// Online reports whether userID has at least one live connection.
func (r *Registry) Online(userID string) bool {
	return len(r.byUser[userID]) > 0
}

// ConnectionsOf returns the live connections of userID.
func (r *Registry) ConnectionsOf(userID string) []*Connection {
	set := r.byUser[userID]
	out := make([]*Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Each calls fn for every connection.
func (r *Registry) Each(fn func(*Connection)) {
	for _, c := range r.conns {
		fn(c)
	}
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	return len(r.conns)
}

// OnlineUsers returns the number of distinct authenticated users.
func (r *Registry) OnlineUsers() int {
	return len(r.byUser)
}
