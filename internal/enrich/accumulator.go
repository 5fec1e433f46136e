package enrich

import "github.com/shpitdev/bgg-enricher/internal/dataset"

// Accumulator holds the output rows of one run in emission order.
type Accumulator struct {
	header []string
	rows   []dataset.Row
}

func NewAccumulator(header []string) *Accumulator {
	h := make([]string, len(header))
	copy(h, header)
	return &Accumulator{header: h}
}

func (a *Accumulator) Add(r dataset.Row) { a.rows = append(a.rows, r) }

func (a *Accumulator) Len() int { return len(a.rows) }

// Header returns the output header: the input columns followed by the enrichment column.
func (a *Accumulator) Header() []string {
	out := make([]string, len(a.header))
	copy(out, a.header)
	return out
}

// Rows returns the accumulated rows. The slice is a copy; rows are immutable values.
func (a *Accumulator) Rows() []dataset.Row {
	out := make([]dataset.Row, len(a.rows))
	copy(out, a.rows)
	return out
}
