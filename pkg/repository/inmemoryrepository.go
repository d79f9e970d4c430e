package repository

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// RatingFunc computes the rating deltas of a finished game, keyed by user id.
type RatingFunc func(rec GameRecord) map[string]int

// InMemoryGameRepository is an in-memory implementation of the persistence
// collaborator, used when no database is configured.
type InMemoryGameRepository struct {
	games      map[string]GameRecord
	results    map[string][]GameRecord
	ratings    map[string]map[string]int
	ratingFunc RatingFunc
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewInMemoryRepository creates a new in-memory repository. rating may be
// nil, in which case no rating changes are ever reported.
func NewInMemoryRepository(logger *zap.Logger, rating RatingFunc) *InMemoryGameRepository {
	return &InMemoryGameRepository{
		games:      make(map[string]GameRecord),
		results:    make(map[string][]GameRecord),
		ratings:    make(map[string]map[string]int),
		ratingFunc: rating,
		logger:     logger,
	}
}

// GameStarted stores the opening record. A second call for the same game is
// ignored.
func (r *InMemoryGameRepository) GameStarted(_ context.Context, rec GameRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.games[rec.GameID]; ok {
		return nil
	}
	r.games[rec.GameID] = rec
	r.logger.Debug("game start recorded", zap.String("game_id", rec.GameID))
	return nil
}

// GameEnded stores the final record and computes rating changes for rated
// games.
func (r *InMemoryGameRepository) GameEnded(_ context.Context, rec GameRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.games[rec.GameID] = rec
	if rec.Rated && r.ratingFunc != nil {
		r.ratings[rec.GameID] = r.ratingFunc(rec)
	}
	r.logger.Debug("game result recorded", zap.String("game_id", rec.GameID), zap.String("result", rec.Result))
	return nil
}

// RatingChanges returns the deltas of gameID, nil when there are none.
func (r *InMemoryGameRepository) RatingChanges(_ context.Context, gameID string) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.games[gameID]; !ok {
		return nil, ErrGameNotFound
	}
	return r.ratings[gameID], nil
}

// TournamentResult appends rec to the tournament's results.
func (r *InMemoryGameRepository) TournamentResult(_ context.Context, tournamentID string, rec GameRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results[tournamentID] = append(r.results[tournamentID], rec)
	return nil
}

// GetGame retrieves a game by ID
func (r *InMemoryGameRepository) GetGame(_ context.Context, gameID string) (GameRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.games[gameID]
	if !ok {
		return GameRecord{}, ErrGameNotFound
	}
	return rec, nil
}

// TournamentResults returns the recorded results of tournamentID.
func (r *InMemoryGameRepository) TournamentResults(tournamentID string) []GameRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]GameRecord(nil), r.results[tournamentID]...)
}

// ListActiveGames returns the games that have started but not finished.
func (r *InMemoryGameRepository) ListActiveGames() []GameRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []GameRecord
	for _, g := range r.games {
		if !g.Finished() {
			active = append(active, g)
		}
	}
	return active
}
