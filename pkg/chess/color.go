package chess

// Color identifies one side of the board.
type Color string

// Possible color variations in a chess game
const (
	White Color = "w"
	Black Color = "b"
)

// Opp returns the opposite color for the given color.
func (c Color) Opp() Color {
	if c == White {
		return Black
	}

	return White
}

// Name returns the long form used in results and human-readable reasons.
func (c Color) Name() string {
	if c == White {
		return "white"
	}
	return "black"
}

// Title is Name with a leading capital.
func (c Color) Title() string {
	if c == White {
		return "White"
	}
	return "Black"
}

// ToMove returns the side to move after the given number of plies from the
// initial position. White always moves first.
func ToMove(plies int) Color {
	if plies%2 == 0 {
		return White
	}
	return Black
}
