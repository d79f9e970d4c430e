package game

import (
	"strings"

	"github.com/tecu23/blitz-server/pkg/chess"
)

// Result is the machine-readable outcome. Decisive results name the winner.
type Result string

// Possible results
const (
	ResultCheckmateWhite   Result = "checkmate-white"
	ResultCheckmateBlack   Result = "checkmate-black"
	ResultResignWhite      Result = "resign-white"
	ResultResignBlack      Result = "resign-black"
	ResultTimeoutWhite     Result = "timeout-white"
	ResultTimeoutBlack     Result = "timeout-black"
	ResultTimeoutStart     Result = "timeout-start"
	ResultAborted          Result = "aborted"
	ResultDrawAgreement    Result = "draw-agreement"
	ResultStalemate        Result = "stalemate"
	ResultDrawRepetition   Result = "draw-repetition"
	ResultDrawInsufficient Result = "draw-insufficient-material"
	ResultDrawFiftyMove    Result = "draw-fifty-move"
)

// Checkmate returns the checkmate result won by winner.
func Checkmate(winner chess.Color) Result {
	return Result("checkmate-" + winner.Name())
}

// Resign returns the result of loser resigning.
func Resign(loser chess.Color) Result {
	return Result("resign-" + loser.Opp().Name())
}

// Timeout returns the result of loser running out of time.
func Timeout(loser chess.Color) Result {
	return Result("timeout-" + loser.Opp().Name())
}

// Winner returns the winning color, or false for draws and aborts.
func (r Result) Winner() (chess.Color, bool) {
	switch {
	case strings.HasSuffix(string(r), "-white") && !r.Draw():
		return chess.White, true
	case strings.HasSuffix(string(r), "-black") && !r.Draw():
		return chess.Black, true
	default:
		return "", false
	}
}

// Draw reports whether the result is drawn.
func (r Result) Draw() bool {
	return r == ResultStalemate || strings.HasPrefix(string(r), "draw-")
}

// Aborted reports whether the game never meaningfully started.
func (r Result) Aborted() bool {
	return r == ResultAborted || r == ResultTimeoutStart
}

// Score returns the PGN result tag.
func (r Result) Score() string {
	if w, ok := r.Winner(); ok {
		if w == chess.White {
			return "1-0"
		}
		return "0-1"
	}
	if r.Draw() {
		return "1/2-1/2"
	}
	return "*"
}

// FromTermination maps a rules-level terminal condition to a result.
func FromTermination(v chess.Verdict) Result {
	switch v.Termination {
	case chess.TerminationCheckmate:
		return Checkmate(v.Winner)
	case chess.TerminationStalemate:
		return ResultStalemate
	case chess.TerminationRepetition:
		return ResultDrawRepetition
	case chess.TerminationInsufficientMaterial:
		return ResultDrawInsufficient
	case chess.TerminationFiftyMove:
		return ResultDrawFiftyMove
	default:
		return ""
	}
}

// Describe renders the human-readable reason for result.
func Describe(result Result, who chess.Color) string {
	switch result {
	case ResultCheckmateWhite, ResultCheckmateBlack:
		w, _ := result.Winner()
		return w.Title() + " wins by checkmate"
	case ResultResignWhite, ResultResignBlack:
		w, _ := result.Winner()
		return w.Opp().Title() + " resigned"
	case ResultTimeoutWhite, ResultTimeoutBlack:
		w, _ := result.Winner()
		return w.Opp().Title() + " ran out of time"
	case ResultTimeoutStart:
		return who.Title() + " did not make the first move in time"
	case ResultAborted:
		if who == "" {
			return "Game aborted"
		}
		return "Game aborted by " + who.Title()
	case ResultDrawAgreement:
		return "Draw by agreement"
	case ResultStalemate:
		return "Draw by stalemate"
	case ResultDrawRepetition:
		return "Draw by threefold repetition"
	case ResultDrawInsufficient:
		return "Draw by insufficient material"
	case ResultDrawFiftyMove:
		return "Draw by the fifty-move rule"
	default:
		return string(result)
	}
}
