package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAuth struct {
	users  map[string]Identity
	guests int
}

func (a *stubAuth) Authenticate(_ context.Context, credential string) (Identity, error) {
	id, ok := a.users[credential]
	if !ok {
		return Identity{}, errors.New("invalid token")
	}
	return id, nil
}

func (a *stubAuth) Guest() (Identity, error) {
	a.guests++
	return Identity{UserID: "guest-" + string(rune('0'+a.guests)), Handle: "Guest", Guest: true}, nil
}

type nopTransport struct{ open bool }

func (t *nopTransport) Send([]byte) error { return nil }
func (t *nopTransport) Open() bool        { return t.open }
func (t *nopTransport) Close() error      { t.open = false; return nil }

type stubTimer struct{ stopped bool }

func (t *stubTimer) Stop() bool { t.stopped = true; return true }

func newTestRegistry() (*Registry, *stubAuth) {
	auth := &stubAuth{users: map[string]Identity{"tok-alice": {UserID: "alice", Handle: "Alice", Rating: 1700}}}
	return NewRegistry(auth, zap.NewNop()), auth
}

func TestResolveIdentity(t *testing.T) {
	reg, auth := newTestRegistry()
	ctx := context.Background()

	id, err := reg.ResolveIdentity(ctx, "tok-alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserID)
	assert.False(t, id.Guest)

	id, err = reg.ResolveIdentity(ctx, "bogus")
	require.NoError(t, err)
	assert.True(t, id.Guest)

	id, err = reg.ResolveIdentity(ctx, "")
	require.NoError(t, err)
	assert.True(t, id.Guest)
	assert.Equal(t, 2, auth.guests)
}

func TestRegisterAuthenticateUnregister(t *testing.T) {
	reg, _ := newTestRegistry()
	now := time.Now()

	c1 := reg.Register("c1", &nopTransport{open: true}, now)
	c2 := reg.Register("c2", &nopTransport{open: true}, now)
	assert.Equal(t, 2, reg.Len())
	assert.False(t, c1.Authenticated())

	_, err := reg.Authenticate(c1, Identity{UserID: "alice"})
	require.NoError(t, err)
	_, err = reg.Authenticate(c2, Identity{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, reg.OnlineUsers())
	assert.Len(t, reg.ConnectionsOf("alice"), 2)

	got, offline := reg.Unregister("c1")
	assert.Same(t, c1, got)
	assert.False(t, offline, "second connection still live")

	_, offline = reg.Unregister("c2")
	assert.True(t, offline)
	assert.False(t, reg.Online("alice"))

	got, _ = reg.Unregister("c2")
	assert.Nil(t, got)

	_, err = reg.Authenticate(c1, Identity{UserID: "alice"})
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestDeferredCleanup(t *testing.T) {
	reg, _ := newTestRegistry()
	now := time.Now()

	c := reg.Register("c1", &nopTransport{open: true}, now)
	_, err := reg.Authenticate(c, Identity{UserID: "alice"})
	require.NoError(t, err)
	reg.Unregister("c1")

	var firstSeq uint64
	first := &stubTimer{}
	reg.Defer("alice", func(seq uint64) Timer { firstSeq = seq; return first })
	assert.True(t, reg.pending("alice"))

	var secondSeq uint64
	reg.Defer("alice", func(seq uint64) Timer { secondSeq = seq; return &stubTimer{} })
	assert.True(t, first.stopped, "replaced deferral is stopped")
	assert.False(t, reg.Expire("alice", firstSeq), "stale generation ignored")

	// reconnect within grace cancels the cleanup
	c2 := reg.Register("c2", &nopTransport{open: true}, now)
	cancelled, err := reg.Authenticate(c2, Identity{UserID: "alice"})
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.False(t, reg.Expire("alice", secondSeq))

	reg.Unregister("c2")
	var thirdSeq uint64
	reg.Defer("alice", func(seq uint64) Timer { thirdSeq = seq; return &stubTimer{} })
	assert.True(t, reg.Expire("alice", thirdSeq))
	assert.False(t, reg.pending("alice"))
}

func TestBindingsAndSpectators(t *testing.T) {
	reg, _ := newTestRegistry()
	now := time.Now()

	a := reg.Register("a", &nopTransport{open: true}, now)
	s := reg.Register("s", &nopTransport{open: true}, now)
	_, _ = reg.Authenticate(a, Identity{UserID: "alice"})

	reg.BindUser("alice", "g1")
	assert.Equal(t, "g1", a.GameID)
	assert.True(t, a.Watches("g1"))

	reg.AddSpectator(s, "g1")
	assert.True(t, s.Watches("g1"))
	assert.True(t, reg.RemoveSpectator(s, "g1"))
	assert.False(t, reg.RemoveSpectator(s, "g1"))

	reg.AddSpectator(s, "g2")
	reg.DropGame("g2")
	assert.False(t, s.Watches("g2"))

	reg.UnbindUser("alice", "other")
	assert.Equal(t, "g1", a.GameID)
	reg.UnbindUser("alice", "g1")
	assert.Empty(t, a.GameID)

	reg.Subscribe(s, "t1")
	assert.Contains(t, s.Tournaments, "t1")
	assert.True(t, reg.Unsubscribe(s, "t1"))
	assert.False(t, reg.Unsubscribe(s, "t1"))

	later := now.Add(time.Minute)
	reg.Touch(s, later)
	assert.Equal(t, later, s.LastHeartbeat)
}
