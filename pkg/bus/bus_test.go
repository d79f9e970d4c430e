package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalBus(t *testing.T) {
	b := NewLocal()
	ctx := context.Background()

	var got []Message
	require.NoError(t, b.Subscribe(ctx, func(m Message) { got = append(got, m) }))
	require.NoError(t, b.Publish(ctx, Message{Origin: "i1", Kind: KindEvent, TournamentID: "t1"}))

	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].TournamentID)

	require.NoError(t, b.Close())
	require.NoError(t, b.Publish(ctx, Message{Kind: KindEvent}))
	assert.Len(t, got, 1)
}

func TestRedisBus(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := DialRedis(ctx, "redis://"+mr.Addr()+"/0", zap.NewNop())
	require.NoError(t, err)
	defer sub.Close()

	pub, err := DialRedis(ctx, "redis://"+mr.Addr()+"/0", zap.NewNop())
	require.NoError(t, err)
	defer pub.Close()

	received := make(chan Message, 1)
	require.NoError(t, sub.Subscribe(ctx, func(m Message) { received <- m }))

	payload, _ := json.Marshal(Pairing{White: "a", Black: "b", TC: "3+2"})
	require.NoError(t, pub.Publish(ctx, Message{Origin: "i2", Kind: KindPairing, TournamentID: "arena", Payload: payload}))

	select {
	case m := <-received:
		assert.Equal(t, "i2", m.Origin)
		assert.Equal(t, KindPairing, m.Kind)
		var p Pairing
		require.NoError(t, json.Unmarshal(m.Payload, &p))
		assert.Equal(t, "3+2", p.TC)
	case <-ctx.Done():
		t.Fatal("bus message not delivered")
	}
}

func TestDialRedisBadURL(t *testing.T) {
	_, err := DialRedis(context.Background(), "not-a-url", zap.NewNop())
	assert.Error(t, err)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "blitz.tournaments.spring", Subject("spring"))
	assert.Equal(t, "blitz.tournaments.a_b_c_", Subject("a.b*c>"))
	assert.Equal(t, "blitz.tournaments._", Subject(""))
}
