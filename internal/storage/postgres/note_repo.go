package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/shpitdev/bgg-enricher/internal/games"
)

type NoteRepo struct {
	db *sqlx.DB
}

func NewNoteRepo(db *sqlx.DB) *NoteRepo {
	return &NoteRepo{db: db}
}

// Get returns the note for gameID, or an empty note when none exists.
func (r *NoteRepo) Get(ctx context.Context, gameID int64) (games.Note, error) {
	var n games.Note
	err := r.db.GetContext(ctx, &n,
		`SELECT id, game_id, note_text, created_at, updated_at FROM game_notes WHERE game_id = $1`, gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return games.Note{GameID: gameID}, nil
	}
	return n, err
}

// Save creates or replaces the note for gameID. Replacing sets updated_at.
func (r *NoteRepo) Save(ctx context.Context, gameID int64, text string) (games.Note, error) {
	var n games.Note
	err := r.db.GetContext(ctx, &n, `
		INSERT INTO game_notes (game_id, note_text) VALUES ($1, $2)
		ON CONFLICT (game_id) DO UPDATE SET note_text = EXCLUDED.note_text, updated_at = now()
		RETURNING id, game_id, note_text, created_at, updated_at`, gameID, text)
	return n, err
}
