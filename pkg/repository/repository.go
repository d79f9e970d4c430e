// Package repository records game starts and results and reads back rating
// changes. It is the persistence collaborator of the lifecycle manager.
package repository

import (
	"errors"
	"time"
)

// ErrGameNotFound is returned when no record exists for a game id.
var ErrGameNotFound = errors.New("game not found")

// GameRecord is the durable view of one game.
type GameRecord struct {
	GameID       string
	WhiteID      string
	BlackID      string
	WhiteHandle  string
	BlackHandle  string
	TimeControl  string
	Rated        bool
	Variant      string
	StartFEN     string
	TournamentID string
	Moves        []string
	SAN          []string
	Result       string
	Reason       string
	Score        string // PGN result tag
	StartedAt    time.Time
	EndedAt      time.Time
}

// Finished reports whether the record carries a result.
func (g GameRecord) Finished() bool {
	return g.Result != ""
}
