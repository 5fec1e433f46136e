// Package games turns enriched dataset rows into typed board game records.
package games

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// DefaultYear is stored when a game has no publication year.
const DefaultYear = 1900

// Missing fills absent mechanics and domains.
const Missing = "missing"

// Game is one normalized board game row, as stored in board_games.
type Game struct {
	ID                int64           `db:"id"`
	Name              string          `db:"name"`
	YearPublished     int             `db:"year_published"`
	MinPlayers        sql.NullInt64   `db:"min_players"`
	MaxPlayers        sql.NullInt64   `db:"max_players"`
	PlayTime          sql.NullInt64   `db:"play_time"`
	MinAge            sql.NullInt64   `db:"min_age"`
	UsersRated        sql.NullInt64   `db:"users_rated"`
	RatingAverage     sql.NullFloat64 `db:"rating_average"`
	BGGRank           sql.NullInt64   `db:"bgg_rank"`
	ComplexityAverage sql.NullFloat64 `db:"complexity_average"`
	OwnedUsers        sql.NullInt64   `db:"owned_users"`
	Mechanics         string          `db:"mechanics"`
	Domains           string          `db:"domains"`
	MechanicsList     pq.StringArray  `db:"mechanics_list"`
	Description       string          `db:"description"`
}

// Note is a free-text note attached to one game.
type Note struct {
	ID        int64      `db:"id"         json:"id"`
	GameID    int64      `db:"game_id"    json:"game_id"`
	NoteText  string     `db:"note_text"  json:"note_text"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
