package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Schema is the minimal table layout the repository reads and writes.
// rating_changes is filled by the rating service.
const Schema = `
CREATE TABLE IF NOT EXISTS games (
	game_id       TEXT PRIMARY KEY,
	white_id      TEXT NOT NULL,
	black_id      TEXT NOT NULL,
	time_control  TEXT NOT NULL,
	rated         BOOLEAN NOT NULL,
	variant       TEXT NOT NULL,
	start_fen     TEXT NOT NULL,
	tournament_id TEXT,
	moves_uci     JSONB NOT NULL DEFAULT '[]',
	result        TEXT,
	reason        TEXT,
	pgn           TEXT,
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS rating_changes (
	game_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	delta   INTEGER NOT NULL,
	PRIMARY KEY (game_id, user_id)
);
CREATE TABLE IF NOT EXISTS tournament_results (
	tournament_id TEXT NOT NULL,
	game_id       TEXT NOT NULL,
	white_id      TEXT NOT NULL,
	black_id      TEXT NOT NULL,
	result        TEXT NOT NULL,
	recorded_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tournament_id, game_id)
);`

// PostgresRepository persists games in PostgreSQL through lib/pq.
type PostgresRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresRepository opens and pings the database.
func NewPostgresRepository(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("database url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresRepository{db: db, logger: logger}, nil
}

// EnsureSchema creates the tables when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	r.logger.Info("database schema ready")
	return nil
}

// Close closes the pool.
func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// GameStarted inserts the opening row; replays are ignored.
func (r *PostgresRepository) GameStarted(ctx context.Context, rec GameRecord) error {
	const query = `
		INSERT INTO games (game_id, white_id, black_id, time_control, rated, variant, start_fen, tournament_id, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		ON CONFLICT (game_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		rec.GameID, rec.WhiteID, rec.BlackID, rec.TimeControl, rec.Rated,
		rec.Variant, rec.StartFEN, rec.TournamentID, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("insert game %s: %w", rec.GameID, err)
	}
	return nil
}

// GameEnded writes the result, the move list and the PGN. The row is
// upserted so a lost GameStarted does not lose the result.
func (r *PostgresRepository) GameEnded(ctx context.Context, rec GameRecord) error {
	moves, err := json.Marshal(rec.Moves)
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}

	const query = `
		INSERT INTO games (game_id, white_id, black_id, time_control, rated, variant, start_fen, tournament_id,
			started_at, moves_uci, result, reason, pgn, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10::jsonb, $11, $12, $13, $14)
		ON CONFLICT (game_id) DO UPDATE SET
			moves_uci = EXCLUDED.moves_uci,
			result    = EXCLUDED.result,
			reason    = EXCLUDED.reason,
			pgn       = EXCLUDED.pgn,
			ended_at  = EXCLUDED.ended_at`

	_, err = r.db.ExecContext(ctx, query,
		rec.GameID, rec.WhiteID, rec.BlackID, rec.TimeControl, rec.Rated,
		rec.Variant, rec.StartFEN, rec.TournamentID, rec.StartedAt,
		moves, rec.Result, rec.Reason, BuildPGN(rec), rec.EndedAt)
	if err != nil {
		return fmt.Errorf("update game %s: %w", rec.GameID, err)
	}
	return nil
}

// RatingChanges reads the deltas written by the rating service. It returns
// nil when none have been written yet.
func (r *PostgresRepository) RatingChanges(ctx context.Context, gameID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, delta FROM rating_changes WHERE game_id = $1`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query rating changes: %w", err)
	}
	defer rows.Close()

	var out map[string]int
	for rows.Next() {
		var (
			userID string
			delta  int
		)
		if err := rows.Scan(&userID, &delta); err != nil {
			return nil, fmt.Errorf("scan rating change: %w", err)
		}
		if out == nil {
			out = make(map[string]int, 2)
		}
		out[userID] = delta
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rating changes: %w", err)
	}
	return out, nil
}

// TournamentResult records a finished tournament game.
func (r *PostgresRepository) TournamentResult(ctx context.Context, tournamentID string, rec GameRecord) error {
	const query = `
		INSERT INTO tournament_results (tournament_id, game_id, white_id, black_id, result)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tournament_id, game_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, tournamentID, rec.GameID, rec.WhiteID, rec.BlackID, rec.Result); err != nil {
		return fmt.Errorf("insert tournament result: %w", err)
	}
	return nil
}

// GetGame loads a stored game.
func (r *PostgresRepository) GetGame(ctx context.Context, gameID string) (GameRecord, error) {
	const query = `
		SELECT game_id, white_id, black_id, time_control, rated, variant, start_fen,
			COALESCE(tournament_id, ''), moves_uci, COALESCE(result, ''), COALESCE(reason, ''), started_at, ended_at
		FROM games WHERE game_id = $1`

	var (
		rec     GameRecord
		moves   []byte
		endedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, gameID).Scan(
		&rec.GameID, &rec.WhiteID, &rec.BlackID, &rec.TimeControl, &rec.Rated, &rec.Variant, &rec.StartFEN,
		&rec.TournamentID, &moves, &rec.Result, &rec.Reason, &rec.StartedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return GameRecord{}, ErrGameNotFound
	}
	if err != nil {
		return GameRecord{}, fmt.Errorf("select game: %w", err)
	}
	if err := json.Unmarshal(moves, &rec.Moves); err != nil {
		return GameRecord{}, fmt.Errorf("decode moves: %w", err)
	}
	if endedAt.Valid {
		rec.EndedAt = endedAt.Time
	}
	return rec, nil
}
