package manager

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tecu23/blitz-server/pkg/bus"
	"github.com/tecu23/blitz-server/pkg/chess"
	"github.com/tecu23/blitz-server/pkg/game"
	"github.com/tecu23/blitz-server/pkg/messages"
)

func TestAbortWindow(t *testing.T) {
	tests := []struct {
		name    string
		moves   []string
		wantErr bool
	}{
		{name: "no moves", moves: nil},
		{name: "after white's first move", moves: []string{"e2e4"}},
		{name: "after both first moves", moves: []string{"e2e4", "e7e5"}},
		{name: "third ply", moves: []string{"e2e4", "e7e5", "g1f3"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			s := h.startGame()
			if len(tt.moves) > 0 {
				h.mustMove("alice", s.ID, tt.moves...)
			}

			err := h.m.Abort(h.conns["bob"], messages.GameRef{GameID: s.ID})
			if tt.wantErr {
				assert.True(t, messages.IsCode(err, messages.CodeCannotAbort))
				assert.False(t, s.Ended)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, game.ResultAborted, s.Result)
			assert.Equal(t, "Game aborted by Black", s.Reason)
		})
	}
}

func TestResign(t *testing.T) {
	h := newHarness(t)
	s := h.startGame()

	require.NoError(t, h.m.Resign(h.conns["alice"], messages.GameRef{GameID: s.ID}))
	assert.Equal(t, game.ResultResignBlack, s.Result)
	assert.Equal(t, "White resigned", s.Reason)

	err := h.m.Resign(h.conns["bob"], messages.GameRef{GameID: s.ID})
	assert.True(t, messages.IsCode(err, messages.CodeGameEnded))
}

func TestGameEndReachesRequeuedPlayer(t *testing.T) {
	h := newHarness(t)
	s := h.startGame()
	carol := h.connect("carol", "tok-carol")
	dave := h.connect("dave", "tok-dave")
	require.NoError(t, h.m.Spectate(dave, messages.GameRef{GameID: s.ID}))

	h.loop.hold = true
	require.NoError(t, h.m.Resign(h.conns["alice"], messages.GameRef{GameID: s.ID}))
	require.True(t, s.Ended)
	assert.Zero(t, h.tx["alice"].count(messages.TypeGameEnd), "result goes out after the hand-off")

	// alice is free again before the hand-off returns and starts a new game
	require.NoError(t, h.m.JoinQueue(h.conns["alice"], messages.QueueJoin{TC: "1+0"}))
	require.NoError(t, h.m.JoinQueue(carol, messages.QueueJoin{TC: "1+0"}))
	h.m.Tick()
	next, ok := h.m.store.ActiveByUser("alice")
	require.True(t, ok)
	require.NotEqual(t, s.ID, next.ID)
	require.Equal(t, next.ID, h.conns["alice"].GameID)

	h.loop.flush()

	for _, name := range []string{"alice", "bob", "dave"} {
		assert.Equal(t, 1, h.tx[name].count(messages.TypeGameEnd), name)
		var end messages.GameEnd
		h.tx[name].decodeLast(t, messages.TypeGameEnd, &end)
		assert.Equal(t, s.ID, end.GameID, name)
		assert.Equal(t, string(game.ResultResignBlack), end.Result, name)
	}
	assert.Equal(t, map[string]int{"alice": -8, "bob": 8}, decodeChanges(t, h.tx["alice"]))
	assert.Zero(t, h.tx["carol"].count(messages.TypeGameEnd))
	assert.Equal(t, next.ID, h.conns["alice"].GameID, "new game binding survives")
}

func decodeChanges(t *testing.T, r *recorder) map[string]int {
	t.Helper()
	var end messages.GameEnd
	r.decodeLast(t, messages.TypeGameEnd, &end)
	return end.RatingChanges
}

func TestDrawOffers(t *testing.T) {
	h := newHarness(t)
	s := h.startGame()
	h.mustMove("alice", s.ID, "e2e4", "e7e5")

	err := h.m.AcceptDraw(h.conns["bob"], messages.GameRef{GameID: s.ID})
	assert.True(t, messages.IsCode(err, messages.CodeNoPendingOffer))

	require.NoError(t, h.m.OfferDraw(h.conns["alice"], messages.GameRef{GameID: s.ID}))
	assert.Equal(t, chess.White, s.DrawOffer)
	assert.Equal(t, 1, h.tx["bob"].count(messages.TypeDrawOffered))

	err = h.m.AcceptDraw(h.conns["alice"], messages.GameRef{GameID: s.ID})
	assert.True(t, messages.IsCode(err, messages.CodeNoPendingOffer), "cannot accept own offer")

	require.NoError(t, h.m.DeclineDraw(h.conns["bob"], messages.GameRef{GameID: s.ID}))
	assert.Empty(t, s.DrawOffer)
	assert.Equal(t, 1, h.tx["alice"].count(messages.TypeDrawDeclined))

	require.NoError(t, h.m.OfferDraw(h.conns["alice"], messages.GameRef{GameID: s.ID}))
	h.mustMove("alice", s.ID, "g1f3")
	assert.Empty(t, s.DrawOffer, "a move withdraws the offer")

	require.NoError(t, h.m.OfferDraw(h.conns["alice"], messages.GameRef{GameID: s.ID}))
	require.NoError(t, h.m.OfferDraw(h.conns["bob"], messages.GameRef{GameID: s.ID}))
	require.True(t, s.Ended)
	assert.Equal(t, game.ResultDrawAgreement, s.Result)

	var end messages.GameEnd
	h.tx["alice"].decodeLast(t, messages.TypeGameEnd, &end)
	assert.Equal(t, map[string]int{"alice": 0, "bob": 0}, end.RatingChanges)
}

func TestTakeback(t *testing.T) {
	h := newHarness(t)
	s := h.startGame()
	h.mustMove("alice", s.ID, "e2e4", "e7e5")

	err := h.m.OfferTakeback(h.conns["bob"], messages.GameRef{GameID: s.ID})
	assert.True(t, messages.IsCode(err, messages.CodeCannotTakeback), "inside the first two plies")

	h.loop.Advance(time.Second)
	h.mustMove("alice", s.ID, "g1f3")
	assert.Equal(t, int64(59_000), s.Clock.WhiteMs)

	err = h.m.OfferTakeback(h.conns["bob"], messages.GameRef{GameID: s.ID})
	assert.True(t, messages.IsCode(err, messages.CodeCannotTakeback), "bob made no last move")

	require.NoError(t, h.m.OfferTakeback(h.conns["alice"], messages.GameRef{GameID: s.ID}))
	assert.Equal(t, 1, h.tx["bob"].count(messages.TypeTakebackOffered))

	h.loop.Advance(2 * time.Second)
	require.NoError(t, h.m.AcceptTakeback(h.conns["bob"], messages.GameRef{GameID: s.ID}))

	assert.Equal(t, []string{"e2e4", "e7e5"}, s.Moves)
	assert.Equal(t, []string{"e4", "e5"}, s.SAN)
	assert.Equal(t, chess.White, s.ToMove())
	assert.Equal(t, int64(58_000), s.Clock.BlackMs, "accepter pays for the time spent")
	assert.Equal(t, h.loop.Now(), s.Clock.Anchor)
	assert.Empty(t, s.TakebackOffer)

	var applied messages.TakebackApplied
	h.tx["alice"].decodeLast(t, messages.TypeTakebackApplied, &applied)
	assert.Equal(t, 2, applied.Seq)
	assert.Equal(t, messages.TimeLeft{W: 59_000, B: 58_000}, applied.TimeLeft)

	h.mustMove("alice", s.ID, "d2d4")
	assert.Equal(t, "d4", s.SAN[2])
}

func TestDeclineTakeback(t *testing.T) {
	h := newHarness(t)
	s := h.startGame()
	h.mustMove("alice", s.ID, "e2e4", "e7e5", "g1f3")

	err := h.m.DeclineTakeback(h.conns["bob"], messages.GameRef{GameID: s.ID})
	assert.True(t, messages.IsCode(err, messages.CodeNoPendingOffer))

	require.NoError(t, h.m.OfferTakeback(h.conns["alice"], messages.GameRef{GameID: s.ID}))
	require.NoError(t, h.m.DeclineTakeback(h.conns["bob"], messages.GameRef{GameID: s.ID}))
	assert.Len(t, s.Moves, 3)
	assert.Equal(t, 1, h.tx["alice"].count(messages.TypeTakebackDeclined))
}

func TestRematch(t *testing.T) {
	h := newHarness(t)
	s := h.startGame()

	err := h.m.OfferRematch(h.conns["alice"], messages.GameRef{GameID: s.ID})
	assert.True(t, messages.IsCode(err, messages.CodeGameNotEnded))

	require.NoError(t, h.m.Resign(h.conns["bob"], messages.GameRef{GameID: s.ID}))

	require.NoError(t, h.m.OfferRematch(h.conns["alice"], messages.GameRef{GameID: s.ID}))
	assert.Equal(t, 1, h.tx["bob"].count(messages.TypeRematchOffered))

	require.NoError(t, h.m.AcceptRematch(h.conns["bob"], messages.GameRef{GameID: s.ID}))

	next, ok := h.m.store.ActiveByUser("bob")
	require.True(t, ok)
	assert.NotEqual(t, s.ID, next.ID)
	assert.Equal(t, "bob", next.White.UserID, "colors swapped")
	assert.Equal(t, "alice", next.Black.UserID)
	assert.Equal(t, s.ID, next.RematchOf)
	assert.Equal(t, s.TimeControl, next.TimeControl)
	assert.True(t, next.Rated)
	assert.Equal(t, game.ResultResignWhite, s.Result, "old session untouched")
	assert.Equal(t, 2, h.tx["alice"].count(messages.TypeMatchFound))

	err = h.m.OfferRematch(h.conns["alice"], messages.GameRef{GameID: s.ID})
	assert.True(t, messages.IsCode(err, messages.CodeAlreadyInGame))
}

func TestRematchGuards(t *testing.T) {
	h := newHarness(t)
	s := h.startGame()
	require.NoError(t, h.m.Abort(h.conns["alice"], messages.GameRef{GameID: s.ID}))

	err := h.m.DeclineRematch(h.conns["bob"], messages.GameRef{GameID: s.ID})
	assert.True(t, messages.IsCode(err, messages.CodeNoPendingOffer))

	require.NoError(t, h.m.OfferRematch(h.conns["alice"], messages.GameRef{GameID: s.ID}))
	require.NoError(t, h.m.DeclineRematch(h.conns["bob"], messages.GameRef{GameID: s.ID}))
	assert.Equal(t, 1, h.tx["alice"].count(messages.TypeRematchDeclined))

	h.m.Disconnect("bob")
	err = h.m.OfferRematch(h.conns["alice"], messages.GameRef{GameID: s.ID})
	assert.True(t, messages.IsCode(err, messages.CodeOpponentUnavailable))
}

func TestRematchOfferExpiresWithOfferer(t *testing.T) {
	h := newHarness(t)
	s := h.startGame()
	require.NoError(t, h.m.Resign(h.conns["bob"], messages.GameRef{GameID: s.ID}))
	require.NoError(t, h.m.OfferRematch(h.conns["alice"], messages.GameRef{GameID: s.ID}))

	h.m.Disconnect("alice")
	h.loop.Advance(6 * time.Second)
	assert.Empty(t, s.RematchOffer)

	err := h.m.AcceptRematch(h.conns["bob"], messages.GameRef{GameID: s.ID})
	assert.True(t, messages.IsCode(err, messages.CodeNoPendingOffer))
}

func TestChat(t *testing.T) {
	h := newHarness(t)
	s := h.startGame()
	carol := h.connect("carol", "tok-carol")

	require.NoError(t, h.m.Chat(h.conns["alice"], messages.Chat{GameID: s.ID, Message: "  good luck  "}))
	var msg messages.ChatMessage
	h.tx["bob"].decodeLast(t, messages.TypeChatMessage, &msg)
	assert.Equal(t, "good luck", msg.Message)
	assert.Equal(t, "alice", msg.From)
	assert.Equal(t, "Alice", msg.Handle)

	err := h.m.Chat(carol, messages.Chat{GameID: s.ID, Message: "hi"})
	assert.True(t, messages.IsCode(err, messages.CodeNotAPlayer))

	require.NoError(t, h.m.Spectate(carol, messages.GameRef{GameID: s.ID}))
	require.NoError(t, h.m.Chat(carol, messages.Chat{GameID: s.ID, Message: strings.Repeat("x", 600)}))
	assert.Len(t, s.Chat[len(s.Chat)-1].Message, 500)

	err = h.m.Chat(h.conns["bob"], messages.Chat{GameID: s.ID, Message: "   "})
	assert.True(t, messages.IsCode(err, messages.CodeInvalidMessage))

	require.NoError(t, h.m.Resign(h.conns["bob"], messages.GameRef{GameID: s.ID}))
	require.NoError(t, h.m.Chat(h.conns["bob"], messages.Chat{GameID: s.ID, Message: "gg"}))
	assert.Len(t, s.Chat, 3)

	var st messages.GameState
	require.NoError(t, h.m.Spectate(carol, messages.GameRef{GameID: s.ID}))
	h.tx["carol"].decodeLast(t, messages.TypeGameState, &st)
	assert.True(t, st.Ended)
	assert.Equal(t, "resign-white", st.Result)
	require.Len(t, st.Chat, 3)
	assert.Equal(t, "gg", st.Chat[2].Message)
}

func TestSpectateWithoutHello(t *testing.T) {
	h := newHarness(t)
	s := h.startGame()

	rec := &recorder{open: true}
	c := h.m.Connect("watcher", rec)
	require.NoError(t, h.m.Spectate(c, messages.GameRef{GameID: s.ID}))
	assert.Equal(t, 1, rec.count(messages.TypeGameState))

	h.mustMove("alice", s.ID, "e2e4")
	assert.Equal(t, 1, rec.count(messages.TypeMoveMade))

	require.NoError(t, h.m.Unspectate(c, messages.GameRef{GameID: s.ID}))
	h.mustMove("bob", s.ID, "e7e5")
	assert.Equal(t, 1, rec.count(messages.TypeMoveMade))

	err := h.m.Unspectate(c, messages.GameRef{GameID: s.ID})
	assert.True(t, messages.IsCode(err, messages.CodeGameNotFound))

	err = h.m.Spectate(c, messages.GameRef{GameID: "nope"})
	assert.True(t, messages.IsCode(err, messages.CodeGameNotFound))
}

func TestTournamentPairing(t *testing.T) {
	h := newHarness(t)
	h.connect("alice", "tok-alice")
	h.connect("bob", "tok-bob")
	carol := h.connect("carol", "tok-carol")
	require.NoError(t, h.m.SubscribeTournament(carol, messages.TournamentRef{TournamentID: "arena-1"}))

	payload, err := json.Marshal(bus.Pairing{White: "bob", Black: "alice", TC: "3+2", Rated: true, GameID: "t-game"})
	require.NoError(t, err)
	h.m.OnBusMessage(bus.Message{Origin: "scheduler", Kind: bus.KindPairing, TournamentID: "arena-1", Payload: payload})

	s, ok := h.m.Session("t-game")
	require.True(t, ok)
	assert.Equal(t, "bob", s.White.UserID)
	assert.Equal(t, "arena-1", s.TournamentID)
	assert.Equal(t, int64(2_000), s.TimeControl.IncrementMs)

	var ev messages.TournamentEvent
	h.tx["carol"].decodeLast(t, messages.TypeTournamentEvent, &ev)
	assert.Equal(t, "game.start", ev.Kind)
	assert.Equal(t, "t-game", ev.GameID)

	require.NoError(t, h.m.Resign(h.conns["alice"], messages.GameRef{GameID: s.ID}))
	h.tx["carol"].decodeLast(t, messages.TypeTournamentEvent, &ev)
	assert.Equal(t, "game.end", ev.Kind)
	assert.Equal(t, "resign-white", ev.Result)
	assert.Len(t, h.repo.TournamentResults("arena-1"), 1)
}

func TestTournamentBusEvents(t *testing.T) {
	h := newHarness(t)
	carol := h.connect("carol", "tok-carol")

	err := h.m.SubscribeTournament(carol, messages.TournamentRef{TournamentID: " "})
	assert.True(t, messages.IsCode(err, messages.CodeInvalidMessage))
	require.NoError(t, h.m.SubscribeTournament(carol, messages.TournamentRef{TournamentID: "arena-1"}))

	frame := []byte(`{"t":"tournament.event","tournamentId":"arena-1","kind":"standings"}`)
	h.m.OnBusMessage(bus.Message{Origin: "test", Kind: bus.KindEvent, TournamentID: "arena-1", Payload: frame})
	assert.Zero(t, h.tx["carol"].count(messages.TypeTournamentEvent), "own events are already delivered")

	h.m.OnBusMessage(bus.Message{Origin: "other", Kind: bus.KindEvent, TournamentID: "arena-1", Payload: frame})
	assert.Equal(t, 1, h.tx["carol"].count(messages.TypeTournamentEvent))

	require.NoError(t, h.m.UnsubscribeTournament(carol, messages.TournamentRef{TournamentID: "arena-1"}))
	h.m.OnBusMessage(bus.Message{Origin: "other", Kind: bus.KindEvent, TournamentID: "arena-1", Payload: frame})
	assert.Equal(t, 1, h.tx["carol"].count(messages.TypeTournamentEvent))
}

func TestTournamentPairingNeedsPlayers(t *testing.T) {
	h := newHarness(t)
	h.connect("alice", "tok-alice")

	_, err := h.m.StartTournamentGame("arena-1", bus.Pairing{White: "alice", Black: "ghost", TC: "1+0"})
	assert.True(t, messages.IsCode(err, messages.CodeOpponentUnavailable))

	_, err = h.m.StartTournamentGame("arena-1", bus.Pairing{White: "alice", Black: "ghost", TC: "x"})
	assert.True(t, messages.IsCode(err, messages.CodeInvalidTimeControl))
	assert.Zero(t, h.m.store.Len())
}
