package games

import (
	"fmt"
	"log/slog"

	"github.com/shpitdev/bgg-enricher/internal/dataset"
)

// Rejection describes a dataset row that could not become a Game.
type Rejection struct {
	Line int
	Err  error
}

// FromTable decodes every row of t. Invalid rows and repeated ids are rejected, not fatal;
// the first occurrence of an id wins.
func FromTable(t dataset.Table, logger *slog.Logger) ([]Game, []Rejection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dec, err := NewDecoder(t.Header)
	if err != nil {
		return nil, nil, err
	}
	out := make([]Game, 0, len(t.Rows))
	var rejected []Rejection
	seen := make(map[int64]int, len(t.Rows))
	for i, r := range t.Rows {
		// Line 1 is the header.
		line := i + 2
		g, err := dec.Decode(r)
		if err == nil {
			if first, dup := seen[g.ID]; dup {
				err = fmt.Errorf("duplicate id %d (first on line %d)", g.ID, first)
			} else {
				seen[g.ID] = line
			}
		}
		if err != nil {
			rejected = append(rejected, Rejection{Line: line, Err: err})
			logger.Warn("rejecting dataset row", "line", line, "error", err)
			continue
		}
		out = append(out, g)
	}
	return out, rejected, nil
}
