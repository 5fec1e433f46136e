package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/shpitdev/bgg-enricher/internal/games"
)

// DefaultBatchSize is the number of rows per multi-row INSERT.
const DefaultBatchSize = 1000

const insertGame = `INSERT INTO board_games (
	id, name, year_published, min_players, max_players, play_time, min_age,
	users_rated, rating_average, bgg_rank, complexity_average, owned_users,
	mechanics, domains, mechanics_list, description
) VALUES (
	:id, :name, :year_published, :min_players, :max_players, :play_time, :min_age,
	:users_rated, :rating_average, :bgg_rank, :complexity_average, :owned_users,
	:mechanics, :domains, :mechanics_list, :description
)`

type GameRepo struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewGameRepo(db *sqlx.DB, logger *slog.Logger) *GameRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &GameRepo{db: db, logger: logger}
}

// ReplaceAll deletes every stored game and inserts gs in batches inside one transaction.
// A failure rolls back to the previous contents.
func (r *GameRepo) ReplaceAll(ctx context.Context, gs []games.Game, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	r.logger.Info("clearing existing records")
	if _, err := tx.ExecContext(ctx, `DELETE FROM board_games`); err != nil {
		return 0, fmt.Errorf("clear board_games: %w", err)
	}

	inserted := 0
	for start := 0; start < len(gs); start += batchSize {
		end := min(start+batchSize, len(gs))
		if _, err := tx.NamedExecContext(ctx, insertGame, gs[start:end]); err != nil {
			return inserted, fmt.Errorf("insert records %d to %d: %w", start, end, err)
		}
		inserted = end
		r.logger.Info("inserted records", "from", start, "to", end, "total", len(gs))
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// Count returns the number of stored games.
func (r *GameRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM board_games`); err != nil {
		return 0, err
	}
	return n, nil
}

// Get returns one stored game.
func (r *GameRepo) Get(ctx context.Context, id int64) (games.Game, error) {
	var g games.Game
	err := r.db.GetContext(ctx, &g, `SELECT * FROM board_games WHERE id = $1`, id)
	return g, err
}
