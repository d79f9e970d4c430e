package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tecu23/blitz-server/pkg/broadcast"
	"github.com/tecu23/blitz-server/pkg/chess"
	"github.com/tecu23/blitz-server/pkg/game"
	"github.com/tecu23/blitz-server/pkg/manager"
	"github.com/tecu23/blitz-server/pkg/matchmaking"
	"github.com/tecu23/blitz-server/pkg/messages"
	"github.com/tecu23/blitz-server/pkg/repository"
	"github.com/tecu23/blitz-server/pkg/session"
)

type guestAuth struct{}

func (guestAuth) Authenticate(context.Context, string) (session.Identity, error) {
	return session.Identity{}, errors.New("no accounts")
}

func (guestAuth) Guest() (session.Identity, error) {
	return session.Identity{UserID: "guest-" + time.Now().Format("150405.000000000"), Handle: "Guest", Guest: true}, nil
}

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	hub := NewHub(Options{PairInterval: 20 * time.Millisecond, SweepInterval: time.Second}, logger)
	reg := session.NewRegistry(guestAuth{}, logger)
	m, err := manager.NewManager(manager.Deps{
		Loop:        hub,
		Registry:    reg,
		Queue:       matchmaking.NewQueue(),
		Store:       game.NewStore(),
		Router:      broadcast.NewRouter(reg, nil, "test", logger),
		Rules:       chess.NewRules(),
		Persistence: repository.NewInMemoryRepository(logger, nil),
		Logger:      logger,
	}, manager.DefaultOptions())
	require.NoError(t, err)
	hub.Attach(m)
	go hub.Run()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewConnection(ws, hub, logger)
		if err := hub.Register(c); err != nil {
			ws.Close()
			return
		}
		go c.WritePump()
		go c.ReadPump()
	}))

	t.Cleanup(func() {
		srv.Close()
		hub.Shutdown()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readType reads frames until one of type typ arrives.
func readType(t *testing.T, ws *websocket.Conn, typ string) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err, "waiting for %s", typ)
		var frame map[string]any
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame["t"] == typ {
			return frame
		}
	}
}

func TestDispatchRejections(t *testing.T) {
	_, url := startHub(t)
	ws := dial(t, url)

	tests := []struct {
		name  string
		frame string
		code  messages.Code
	}{
		{name: "malformed json", frame: `{"t":`, code: messages.CodeInvalidMessage},
		{name: "missing type", frame: `{"gameId":"x"}`, code: messages.CodeInvalidMessage},
		{name: "unknown type", frame: `{"t":"castle.now"}`, code: messages.CodeUnknownMessageType},
		{name: "bad payload", frame: `{"t":"queue.join","tc":5}`, code: messages.CodeInvalidMessage},
		{name: "queue before hello", frame: `{"t":"queue.join","tc":"1+0"}`, code: messages.CodeNotAuthenticated},
		{name: "unknown game", frame: `{"t":"game.spectate","gameId":"nope"}`, code: messages.CodeGameNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(tt.frame)))
			reply := readType(t, ws, messages.TypeError)
			assert.Equal(t, string(tt.code), reply["code"])
		})
	}

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"t":"ping"}`)))
	pong := readType(t, ws, messages.TypePong)
	assert.NotZero(t, pong["now"])
}

func TestHelloAndStats(t *testing.T) {
	hub, url := startHub(t)
	ws := dial(t, url)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"t":"hello"}`)))
	welcome := readType(t, ws, messages.TypeWelcome)
	assert.Equal(t, true, welcome["guest"])

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"t":"queue.join","tc":"1+0","rated":false}`)))
	readType(t, ws, messages.TypeQueueJoined)

	require.Eventually(t, func() bool {
		st := hub.Stats()
		return st.Connections == 1 && st.QueuedPlayers == 1
	}, 2*time.Second, 10*time.Millisecond)

	ws.Close()
	require.Eventually(t, func() bool { return hub.Stats().Connections == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestLoopPrimitives(t *testing.T) {
	hub, _ := startHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ran := make(chan struct{})
	hub.AfterFunc(10*time.Millisecond, func() { close(ran) })
	select {
	case <-ran:
	case <-ctx.Done():
		t.Fatal("timer callback never ran")
	}

	result := make(chan string, 1)
	hub.Go(time.Second, func(ctx context.Context) func() {
		_, ok := ctx.Deadline()
		return func() {
			if ok {
				result <- "done"
			}
		}
	})
	assert.Equal(t, "done", <-result)

	var calls int
	require.NoError(t, hub.Do(ctx, func() { calls++ }))
	assert.Equal(t, 1, calls)

	hub.Shutdown()
	assert.ErrorIs(t, hub.Do(ctx, func() {}), ErrStopped)
	hub.Post(func() {})
}

func TestPanicIsContained(t *testing.T) {
	hub, _ := startHub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub.Post(func() { panic("boom") })
	require.NoError(t, hub.Do(ctx, func() {}))
}
