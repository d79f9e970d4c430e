package messages

import "github.com/tecu23/blitz-server/pkg/chess"

// Outbound message types
const (
	TypeWelcome          = "welcome"
	TypeQueueJoined      = "queue.joined"
	TypeQueueLeft        = "queue.left"
	TypeMatchFound       = "match.found"
	TypeMoveMade         = "move.made"
	TypeGameEnd          = "game.end"
	TypeGameState        = "game.state"
	TypeDrawOffered      = "draw.offered"
	TypeDrawDeclined     = "draw.declined"
	TypeTakebackOffered  = "takeback.offered"
	TypeTakebackDeclined = "takeback.declined"
	TypeTakebackApplied  = "takeback.applied"
	TypeRematchOffered   = "rematch.offered"
	TypeRematchDeclined  = "rematch.declined"
	TypeTournamentEvent  = "tournament.event"
	TypeError            = "error"
	TypePong             = "pong"
)

// Welcome confirms the identity bound to the connection.
type Welcome struct {
	T      string `json:"t"`
	UserID string `json:"userId"`
	Handle string `json:"handle"`
	Guest  bool   `json:"guest"`
	Token  string `json:"token,omitempty"`
}

// QueueJoined acknowledges a queue.join.
type QueueJoined struct {
	T             string `json:"t"`
	TC            string `json:"tc"`
	Rated         bool   `json:"rated"`
	EstimatedWait int64  `json:"estimatedWait"` // milliseconds
}

// QueueLeft acknowledges a queue.leave.
type QueueLeft struct {
	T string `json:"t"`
}

// Player is the public view of a game participant.
type Player struct {
	UserID string `json:"userId"`
	Handle string `json:"handle"`
	Rating int    `json:"rating"`
	Guest  bool   `json:"guest"`
}

// TimeLeft carries both clocks in milliseconds.
type TimeLeft struct {
	W int64 `json:"w"`
	B int64 `json:"b"`
}

// Initial describes the time control of a game.
type Initial struct {
	W   int64 `json:"w"`
	B   int64 `json:"b"`
	Inc int64 `json:"inc"`
}

// MatchFound is sent to each player of a freshly created game.
type MatchFound struct {
	T               string         `json:"t"`
	GameID          string         `json:"gameId"`
	Color           chess.Color    `json:"color"`
	Opponent        Player         `json:"opponent"`
	TimeLeft        TimeLeft       `json:"timeLeft"`
	Initial         Initial        `json:"initial"`
	InitialPosition chess.Position `json:"initialPosition"`
	ServerStartAt   int64          `json:"serverStartAt"`
	Rated           bool           `json:"rated"`
	TC              string         `json:"tc"`
	TournamentID    string         `json:"tournamentId,omitempty"`
}

// MoveMade is broadcast to players and spectators after an accepted move.
type MoveMade struct {
	T        string      `json:"t"`
	GameID   string      `json:"gameId"`
	Move     string      `json:"move"`
	SAN      string      `json:"san"`
	By       chess.Color `json:"by"`
	ServerTs int64       `json:"serverTs"`
	Seq      int         `json:"seq"`
	TimeLeft TimeLeft    `json:"timeLeft"`
}

// GameEnd is the single terminal broadcast. RatingChanges is null when the
// game was unrated or the rating fetch failed.
type GameEnd struct {
	T             string         `json:"t"`
	GameID        string         `json:"gameId"`
	Result        string         `json:"result"`
	Reason        string         `json:"reason"`
	RatingChanges map[string]int `json:"ratingChanges"`
}

// ChatLine is one entry of a game's chat log.
type ChatLine struct {
	From    string `json:"from"`
	Handle  string `json:"handle"`
	Message string `json:"message"`
	At      int64  `json:"at"`
}

// GameState is the full snapshot sent to a newly attached spectator.
type GameState struct {
	T               string         `json:"t"`
	GameID          string         `json:"gameId"`
	White           Player         `json:"white"`
	Black           Player         `json:"black"`
	TC              string         `json:"tc"`
	Rated           bool           `json:"rated"`
	Initial         Initial        `json:"initial"`
	InitialPosition chess.Position `json:"initialPosition"`
	Moves           []string       `json:"moves"`
	SAN             []string       `json:"san"`
	ToMove          chess.Color    `json:"toMove"`
	TimeLeft        TimeLeft       `json:"timeLeft"`
	Phase           string         `json:"phase"`
	GraceDeadline   int64          `json:"graceDeadline,omitempty"`
	Ended           bool           `json:"ended"`
	Result          string         `json:"result,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	Chat            []ChatLine     `json:"chat"`
	ServerTs        int64          `json:"serverTs"`
}

// Offer is used for draw, takeback and rematch offers and declines.
type Offer struct {
	T      string      `json:"t"`
	GameID string      `json:"gameId"`
	By     chess.Color `json:"by"`
}

// TakebackApplied tells everyone the last ply was undone.
type TakebackApplied struct {
	T        string   `json:"t"`
	GameID   string   `json:"gameId"`
	Moves    []string `json:"moves"`
	Seq      int      `json:"seq"`
	TimeLeft TimeLeft `json:"timeLeft"`
}

// ChatMessage relays a chat line to a game.
type ChatMessage struct {
	T      string `json:"t"`
	GameID string `json:"gameId"`
	ChatLine
}

// TournamentEvent is fanned out to tournament subscribers.
type TournamentEvent struct {
	T            string `json:"t"`
	TournamentID string `json:"tournamentId"`
	Kind         string `json:"kind"`
	GameID       string `json:"gameId,omitempty"`
	Result       string `json:"result,omitempty"`
	White        string `json:"white,omitempty"`
	Black        string `json:"black,omitempty"`
}

// ErrorReply is the error{code, message} frame.
type ErrorReply struct {
	T       string `json:"t"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// NewErrorReply converts err into an error frame.
func NewErrorReply(err error) ErrorReply {
	perr := AsError(err)
	return ErrorReply{T: TypeError, Code: perr.Code, Message: perr.Message}
}

// Pong answers a ping with the server time in unix milliseconds.
type Pong struct {
	T   string `json:"t"`
	Now int64  `json:"now"`
}
