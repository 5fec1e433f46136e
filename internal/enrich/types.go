package enrich

import (
	"context"
	"errors"

	"github.com/shpitdev/bgg-enricher/internal/dataset"
)

// OutcomeKind classifies the result of fetching one identifier.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeNotFound
	OutcomeRateLimited
	OutcomeMalformed
	OutcomeTransientError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeTransientError:
		return "transient_error"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of one fetch. Payload is set only for OutcomeSuccess;
// Err explains every other kind. Outcomes drive the pipeline and are never persisted.
type Outcome struct {
	Kind    OutcomeKind
	Payload string
	Err     error
}

func Success(payload string) Outcome { return Outcome{Kind: OutcomeSuccess, Payload: payload} }

func NotFound(err error) Outcome { return failure(OutcomeNotFound, err) }

func RateLimited(err error) Outcome { return failure(OutcomeRateLimited, err) }

func Malformed(err error) Outcome { return failure(OutcomeMalformed, err) }

func Transient(err error) Outcome { return failure(OutcomeTransientError, err) }

func failure(kind OutcomeKind, err error) Outcome {
	if err == nil {
		err = errors.New(kind.String())
	}
	return Outcome{Kind: kind, Err: err}
}

// OK reports whether the outcome carries a payload.
func (o Outcome) OK() bool { return o.Kind == OutcomeSuccess }

// Fetcher retrieves the enrichment payload for one identifier.
//
// Implementations must not return per-identifier failures as panics or out-of-band errors;
// every failure is an Outcome.
type Fetcher interface {
	Fetch(ctx context.Context, id string) Outcome
}

// FetchFunc adapts a function to the Fetcher interface.
type FetchFunc func(ctx context.Context, id string) Outcome

func (f FetchFunc) Fetch(ctx context.Context, id string) Outcome {
	return f(ctx, id)
}

// Checkpoints is the durable record of identifiers whose enrichment succeeded.
type Checkpoints interface {
	Has(id string) bool
	Record(id string) error
}

// SnapshotWriter persists the complete accumulated output, replacing any earlier snapshot.
type SnapshotWriter interface {
	WriteSnapshot(header []string, rows []dataset.Row) error
}
