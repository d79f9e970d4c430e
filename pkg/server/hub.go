// Package server runs the event loop and the websocket transports feeding
// it.
package server

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tecu23/blitz-server/pkg/manager"
)

// ErrStopped is returned once the hub has shut down.
var ErrStopped = errors.New("hub stopped")

// Options tunes the loop's periodic work.
type Options struct {
	PairInterval  time.Duration
	SweepInterval time.Duration
}

// DefaultOptions returns the production intervals.
func DefaultOptions() Options {
	return Options{PairInterval: 250 * time.Millisecond, SweepInterval: 30 * time.Second}
}

type inboundFrame struct {
	connID string
	data   []byte
}

// Hub is the single-consumer event loop. Every registry, queue and session
// mutation runs on the goroutine executing Run.
type Hub struct {
	opts   Options
	logger *zap.Logger

	register   chan *Connection
	unregister chan *Connection
	inbound    chan inboundFrame
	tasks      chan func()

	quit     chan struct{}
	done     chan struct{}
	quitOnce sync.Once

	conns   map[string]*Connection // loop-only
	manager *manager.Manager
	stats   atomic.Pointer[manager.Stats]
}

// NewHub creates a hub. Attach the manager before calling Run.
func NewHub(opts Options, logger *zap.Logger) *Hub {
	if opts.PairInterval <= 0 {
		opts.PairInterval = DefaultOptions().PairInterval
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultOptions().SweepInterval
	}
	h := &Hub{
		opts:       opts,
		logger:     logger,
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		inbound:    make(chan inboundFrame, 256),
		tasks:      make(chan func(), 256),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		conns:      make(map[string]*Connection),
	}
	h.stats.Store(&manager.Stats{})
	return h
}

// Attach sets the manager driven by the loop.
func (h *Hub) Attach(m *manager.Manager) {
	h.manager = m
}

// Now implements manager.Loop.
func (h *Hub) Now() time.Time {
	return time.Now()
}

// AfterFunc implements manager.Loop: fn is posted into the loop when the
// timer fires.
func (h *Hub) AfterFunc(d time.Duration, fn func()) manager.Timer {
	return time.AfterFunc(d, func() { h.Post(fn) })
}

// Go implements manager.Loop.
func (h *Hub) Go(timeout time.Duration, work func(ctx context.Context) func()) {
	go func() {
		defer h.recoverPanic("async work")

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if done := work(ctx); done != nil {
			h.Post(done)
		}
	}()
}

// Post queues fn for execution on the loop. It drops fn after shutdown.
func (h *Hub) Post(fn func()) {
	select {
	case h.tasks <- fn:
	case <-h.quit:
	}
}

// Do runs fn on the loop and waits for it.
func (h *Hub) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case h.tasks <- func() { defer close(done); fn() }:
	case <-h.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-h.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register hands a new transport to the loop.
func (h *Hub) Register(c *Connection) error {
	select {
	case h.register <- c:
		return nil
	case <-h.quit:
		return ErrStopped
	}
}

// Unregister removes a transport. Safe to call more than once.
func (h *Hub) Unregister(c *Connection) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) deliver(connID string, data []byte) {
	select {
	case h.inbound <- inboundFrame{connID: connID, data: data}:
	case <-h.quit:
	}
}

// Stats returns the snapshot published after the last loop iteration.
func (h *Hub) Stats() manager.Stats {
	st := *h.stats.Load()
	if h.manager != nil {
		st.Maintenance = h.manager.Maintenance()
	}
	return st
}

// Run processes events until Shutdown.
func (h *Hub) Run() {
	if h.manager == nil {
		panic("server: hub has no manager attached")
	}
	defer close(h.done)

	pair := time.NewTicker(h.opts.PairInterval)
	defer pair.Stop()
	sweep := time.NewTicker(h.opts.SweepInterval)
	defer sweep.Stop()

	h.logger.Info("event loop started")
	for {
		select {
		case c := <-h.register:
			h.safely("register", func() { h.registerConnection(c) })
		case c := <-h.unregister:
			h.safely("unregister", func() { h.unregisterConnection(c) })
		case in := <-h.inbound:
			h.safely("dispatch", func() { h.dispatch(in) })
		case fn := <-h.tasks:
			h.safely("task", fn)
		case <-pair.C:
			h.safely("pairing", h.manager.Tick)
		case <-sweep.C:
			h.safely("sweep", h.manager.Sweep)
		case <-h.quit:
			for _, c := range h.conns {
				c.closeSend()
			}
			h.logger.Info("event loop stopped")
			return
		}
		st := h.manager.Stats()
		h.stats.Store(&st)
	}
}

// Shutdown stops the loop and closes every transport.
func (h *Hub) Shutdown() {
	h.quitOnce.Do(func() { close(h.quit) })
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		h.logger.Warn("event loop did not stop in time")
	}
}

func (h *Hub) registerConnection(c *Connection) {
	h.conns[c.ID] = c
	h.manager.Connect(c.ID, c)
	h.logger.Debug("connection registered", zap.String("conn_id", c.ID), zap.Int("connections", len(h.conns)))
}

func (h *Hub) unregisterConnection(c *Connection) {
	if cur, ok := h.conns[c.ID]; !ok || cur != c {
		return
	}
	delete(h.conns, c.ID)
	c.closeSend()
	h.manager.Disconnect(c.ID)
	h.logger.Debug("connection unregistered", zap.String("conn_id", c.ID), zap.Int("connections", len(h.conns)))
}

// safely runs fn, containing a panic to the event that caused it.
func (h *Hub) safely(what string, fn func()) {
	defer h.recoverPanic(what)
	fn()
}

func (h *Hub) recoverPanic(what string) {
	if r := recover(); r != nil {
		h.logger.Error("recovered from panic",
			zap.String("in", what),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
	}
}
