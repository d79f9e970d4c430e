package chess

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// ErrIllegalMove is returned when a candidate move is not legal in the position.
var ErrIllegalMove = errors.New("illegal move")

// Termination is a rules-level end condition reported after a move.
type Termination string

// Terminal conditions detected by the rules adapter
const (
	TerminationNone                 Termination = ""
	TerminationCheckmate            Termination = "checkmate"
	TerminationStalemate            Termination = "stalemate"
	TerminationRepetition           Termination = "repetition"
	TerminationInsufficientMaterial Termination = "insufficient-material"
	TerminationFiftyMove            Termination = "fifty-move"
)

// Verdict describes an accepted move.
type Verdict struct {
	SAN         string
	Termination Termination
	Winner      Color // only set on checkmate
}

// Terminal reports whether the move ended the game.
func (v Verdict) Terminal() bool {
	return v.Termination != TerminationNone
}

// Rules validates moves against a starting position and move list.
type Rules interface {
	Validate(start Position, moves []string, candidate string) (Verdict, error)
	SAN(start Position, moves []string) ([]string, error)
}

// StandardRules implements Rules on top of corentings/chess. It is
// stateless and safe for concurrent use.
type StandardRules struct{}

// NewRules returns the default rules adapter.
func NewRules() *StandardRules {
	return &StandardRules{}
}

// Validate replays moves from start and tries candidate (UCI notation).
func (r *StandardRules) Validate(start Position, moves []string, candidate string) (Verdict, error) {
	game, err := replay(start, moves)
	if err != nil {
		return Verdict{}, err
	}

	uci := strings.ToLower(strings.TrimSpace(candidate))
	if uci == "" {
		return Verdict{}, ErrIllegalMove
	}

	pos := game.Position()
	if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return Verdict{}, fmt.Errorf("%w: %s", ErrIllegalMove, candidate)
	}

	played := game.Moves()
	verdict := Verdict{SAN: nchess.AlgebraicNotation{}.Encode(pos, played[len(played)-1])}

	switch game.Outcome() {
	case nchess.NoOutcome:
		for _, method := range game.EligibleDraws() {
			switch method {
			case nchess.ThreefoldRepetition:
				verdict.Termination = TerminationRepetition
			case nchess.FiftyMoveRule:
				verdict.Termination = TerminationFiftyMove
			}
		}
	case nchess.WhiteWon:
		verdict.Termination = TerminationCheckmate
		verdict.Winner = White
	case nchess.BlackWon:
		verdict.Termination = TerminationCheckmate
		verdict.Winner = Black
	default:
		verdict.Termination = drawTermination(game.Method())
	}

	return verdict, nil
}

// SAN renders the move list in standard algebraic notation.
func (r *StandardRules) SAN(start Position, moves []string) ([]string, error) {
	game, err := replay(start, nil)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(moves))
	for i, mv := range moves {
		pos := game.Position()
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay ply %d %q: %w", i+1, mv, err)
		}
		played := game.Moves()
		out = append(out, nchess.AlgebraicNotation{}.Encode(pos, played[len(played)-1]))
	}
	return out, nil
}

func replay(start Position, moves []string) (*nchess.Game, error) {
	fen := start.FEN
	if fen == "" {
		fen = StandardFEN
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse start position: %w", err)
	}

	game := nchess.NewGame(opt)
	for i, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay ply %d %q: %w", i+1, mv, err)
		}
	}
	return game, nil
}

func drawTermination(method nchess.Method) Termination {
	switch method {
	case nchess.Stalemate:
		return TerminationStalemate
	case nchess.InsufficientMaterial:
		return TerminationInsufficientMaterial
	case nchess.FivefoldRepetition, nchess.ThreefoldRepetition:
		return TerminationRepetition
	case nchess.SeventyFiveMoveRule, nchess.FiftyMoveRule:
		return TerminationFiftyMove
	default:
		return TerminationStalemate
	}
}
