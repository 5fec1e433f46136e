package games

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shpitdev/bgg-enricher/internal/dataset"
)

type field int

const (
	fieldID field = iota
	fieldName
	fieldYear
	fieldMinPlayers
	fieldMaxPlayers
	fieldPlayTime
	fieldMinAge
	fieldUsersRated
	fieldRatingAverage
	fieldBGGRank
	fieldComplexity
	fieldOwnedUsers
	fieldMechanics
	fieldDomains
	fieldDescription
)

// columnNames maps the dataset's display headers and their snake_case forms.
var columnNames = map[string]field{
	"id":                 fieldID,
	"name":               fieldName,
	"year published":     fieldYear,
	"year_published":     fieldYear,
	"min players":        fieldMinPlayers,
	"min_players":        fieldMinPlayers,
	"max players":        fieldMaxPlayers,
	"max_players":        fieldMaxPlayers,
	"play time":          fieldPlayTime,
	"play_time":          fieldPlayTime,
	"min age":            fieldMinAge,
	"min_age":            fieldMinAge,
	"users rated":        fieldUsersRated,
	"users_rated":        fieldUsersRated,
	"rating average":     fieldRatingAverage,
	"rating_average":     fieldRatingAverage,
	"bgg rank":           fieldBGGRank,
	"bgg_rank":           fieldBGGRank,
	"complexity average": fieldComplexity,
	"complexity_average": fieldComplexity,
	"owned users":        fieldOwnedUsers,
	"owned_users":        fieldOwnedUsers,
	"mechanics":          fieldMechanics,
	"domains":            fieldDomains,
	"description":        fieldDescription,
}

// ErrNoID marks a row that cannot be stored because its identifier is missing or not numeric.
var ErrNoID = errors.New("row has no numeric id")

// Decoder converts rows of one table into Games.
type Decoder struct {
	cols map[field]string
}

// NewDecoder resolves header columns. Unknown columns are ignored; an id column is required.
func NewDecoder(header []string) (*Decoder, error) {
	d := &Decoder{cols: make(map[field]string)}
	for _, col := range header {
		f, ok := columnNames[strings.ToLower(strings.TrimSpace(col))]
		if !ok {
			continue
		}
		if _, dup := d.cols[f]; !dup {
			d.cols[f] = col
		}
	}
	if _, ok := d.cols[fieldID]; !ok {
		return nil, errors.New("games: missing id column")
	}
	return d, nil
}

func (d *Decoder) value(r dataset.Row, f field) string {
	col, ok := d.cols[f]
	if !ok {
		return ""
	}
	return strings.TrimSpace(r.Value(col))
}

// Decode normalizes one row. Numeric fields accept comma decimals ("7,61").
func (d *Decoder) Decode(r dataset.Row) (Game, error) {
	rawID := d.value(r, fieldID)
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return Game{}, fmt.Errorf("%w: %q", ErrNoID, rawID)
	}

	g := Game{
		ID:          id,
		Name:        d.value(r, fieldName),
		Description: d.value(r, fieldDescription),
	}

	var errs []error
	intField := func(f field, name string) sql.NullInt64 {
		v, err := parseInt(d.value(r, f))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return v
	}
	floatField := func(f field, name string) sql.NullFloat64 {
		v, err := parseFloat(d.value(r, f))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return v
	}

	year := intField(fieldYear, "year_published")
	g.YearPublished = DefaultYear
	if year.Valid {
		g.YearPublished = int(year.Int64)
	}
	g.MinPlayers = intField(fieldMinPlayers, "min_players")
	g.MaxPlayers = intField(fieldMaxPlayers, "max_players")
	g.PlayTime = intField(fieldPlayTime, "play_time")
	g.MinAge = intField(fieldMinAge, "min_age")
	g.UsersRated = intField(fieldUsersRated, "users_rated")
	g.RatingAverage = floatField(fieldRatingAverage, "rating_average")
	g.BGGRank = intField(fieldBGGRank, "bgg_rank")
	g.ComplexityAverage = floatField(fieldComplexity, "complexity_average")
	g.OwnedUsers = intField(fieldOwnedUsers, "owned_users")

	g.Mechanics = orMissing(d.value(r, fieldMechanics))
	g.Domains = orMissing(d.value(r, fieldDomains))
	g.MechanicsList = MechanicsList(g.Mechanics)

	if len(errs) > 0 {
		return Game{}, fmt.Errorf("game %d: %w", id, errors.Join(errs...))
	}
	return g, nil
}

// MechanicsList splits a comma-separated mechanics value. "missing" yields an empty list.
func MechanicsList(mechanics string) []string {
	mechanics = strings.TrimSpace(mechanics)
	out := []string{}
	if mechanics == "" || strings.EqualFold(mechanics, Missing) {
		return out
	}
	for _, m := range strings.Split(mechanics, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

func orMissing(v string) string {
	if v == "" {
		return Missing
	}
	return v
}

func normalizeNumber(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
}

func parseFloat(s string) (sql.NullFloat64, error) {
	s = normalizeNumber(s)
	if s == "" {
		return sql.NullFloat64{}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return sql.NullFloat64{}, fmt.Errorf("invalid number %q", s)
	}
	return sql.NullFloat64{Float64: f, Valid: true}, nil
}

// parseInt accepts integral floats such as "1995.0", which spreadsheet exports produce.
func parseInt(s string) (sql.NullInt64, error) {
	s = normalizeNumber(s)
	if s == "" {
		return sql.NullInt64{}, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return sql.NullInt64{Int64: n, Valid: true}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return sql.NullInt64{}, fmt.Errorf("invalid integer %q", s)
	}
	return sql.NullInt64{Int64: int64(f), Valid: true}, nil
}
