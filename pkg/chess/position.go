package chess

import (
	"fmt"
	"strings"
)

// Variant names the starting-position family.
type Variant string

// Supported variants
const (
	VariantStandard Variant = "standard"
	VariantChess960 Variant = "chess960"
)

// StandardFEN is the orthodox starting position.
const StandardFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Position is a starting position: the white back-rank arrangement and its
// FEN encoding.
type Position struct {
	Variant  Variant `json:"variant"`
	BackRank string  `json:"backRank"`
	FEN      string  `json:"fen"`
}

// Standard returns the orthodox starting position.
func Standard() Position {
	return Position{Variant: VariantStandard, BackRank: "RNBQKBNR", FEN: StandardFEN}
}

// Chess960 builds a random Fischer-random starting position. intn must
// return a value in [0, n). The FEN only carries the castling rights the
// move generator can play, see castlingRights.
func Chess960(intn func(n int) int) Position {
	var rank [8]byte

	// bishops on opposite colors
	rank[intn(4)*2] = 'B'
	rank[intn(4)*2+1] = 'B'

	place := func(piece byte) {
		free := make([]int, 0, 8)
		for i, p := range rank {
			if p == 0 {
				free = append(free, i)
			}
		}
		rank[free[intn(len(free))]] = piece
	}
	place('Q')
	place('N')
	place('N')

	// the remaining three squares take R, K, R so the king sits between rooks
	rest := []byte{'R', 'K', 'R'}
	for i := range rank {
		if rank[i] == 0 {
			rank[i] = rest[0]
			rest = rest[1:]
		}
	}

	backRank := string(rank[:])
	fen := fmt.Sprintf("%s/pppppppp/8/8/8/8/PPPPPPPP/%s w %s - 0 1", strings.ToLower(backRank), backRank, castlingRights(backRank))
	return Position{Variant: VariantChess960, BackRank: backRank, FEN: fen}
}

// castlingRights returns the FEN castling field for backRank. The rules
// engine only castles a king standing on the e-file with rooks on the a-
// and h-files, so any other Chess960 arrangement starts without rights.
func castlingRights(backRank string) string {
	if len(backRank) != 8 || backRank[4] != 'K' {
		return "-"
	}
	var white, black string
	if backRank[7] == 'R' {
		white, black = white+"K", black+"k"
	}
	if backRank[0] == 'R' {
		white, black = white+"Q", black+"q"
	}
	if white == "" {
		return "-"
	}
	return white + black
}

// NewPosition returns a starting position for variant.
func NewPosition(variant Variant, intn func(n int) int) Position {
	if variant == VariantChess960 {
		return Chess960(intn)
	}
	return Standard()
}
