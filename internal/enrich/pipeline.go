// Package enrich drives the sequential dataset enrichment pass.
//
// Resume contract: the checkpoint file and the previous output file are the only state
// that survives a restart, and each can be loaded independently from a cold start.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shpitdev/bgg-enricher/internal/dataset"
	"github.com/shpitdev/bgg-enricher/internal/metrics"
)

var (
	// ErrMissingColumn is returned before any processing when the identifier column is absent.
	ErrMissingColumn = errors.New("missing identifier column")
	// ErrFailureCeiling is returned when the consecutive-failure ceiling aborted the run.
	ErrFailureCeiling = errors.New("consecutive failure ceiling reached")
)

type Options struct {
	// IDColumn names the identifier column (matched case-insensitively).
	IDColumn string
	// EnrichColumn names the column that receives the fetched payload.
	EnrichColumn string

	// FlushEvery writes a full snapshot after this many processed rows.
	FlushEvery int
	// MaxConsecutiveFailures aborts the run when the failure streak reaches it.
	MaxConsecutiveFailures int

	// PolitenessDelay is slept after every successful fetch. Zero disables the pause;
	// a negative value selects the 2s default.
	PolitenessDelay time.Duration
	// RateLimitBackoff is slept after a rate-limit signal, before the next call. Zero
	// disables the pause; a negative value selects the 30s default.
	RateLimitBackoff time.Duration

	// Sleep pauses the driver. Defaults to a timer that returns early with ctx.Err().
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.IDColumn) == "" {
		o.IDColumn = "ID"
	}
	if strings.TrimSpace(o.EnrichColumn) == "" {
		o.EnrichColumn = "description"
	}
	if o.FlushEvery <= 0 {
		o.FlushEvery = 10
	}
	if o.MaxConsecutiveFailures <= 0 {
		o.MaxConsecutiveFailures = 1000
	}
	if o.PolitenessDelay < 0 {
		o.PolitenessDelay = 2 * time.Second
	}
	if o.RateLimitBackoff < 0 {
		o.RateLimitBackoff = 30 * time.Second
	}
	if o.Sleep == nil {
		o.Sleep = sleepCtx
	}
	return o
}

// Deps are the collaborators of one run.
type Deps struct {
	Fetcher     Fetcher
	Checkpoints Checkpoints
	// Cache maps identifiers to payloads from a previous run's output.
	Cache  map[string]string
	Output SnapshotWriter
	Logger *slog.Logger
}

// Summary reports what a run did.
type Summary struct {
	Rows      int
	Processed int
	Cached    int
	Enriched  int
	Refetched int
	Skipped   int

	NotFound    int
	Malformed   int
	RateLimited int
	Transient   int

	Flushes             int
	ConsecutiveFailures int
	Aborted             bool
	Interrupted         bool
}

// Failed returns the number of fetches that did not yield a payload.
func (s Summary) Failed() int {
	return s.NotFound + s.Malformed + s.RateLimited + s.Transient
}

// Run enriches table rows in input order and writes snapshots through deps.Output.
//
// Per-identifier failures keep the original row. Only a missing identifier column, a
// checkpoint or output write failure, the failure ceiling, or ctx cancellation end the
// run early. Once processing starts, every exit path writes a final snapshot.
func Run(ctx context.Context, table dataset.Table, deps Deps, opts Options) (sum Summary, err error) {
	opts = opts.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Fetcher == nil || deps.Checkpoints == nil || deps.Output == nil {
		return sum, errors.New("enrich: fetcher, checkpoints and output are required")
	}
	cache := deps.Cache
	if cache == nil {
		cache = map[string]string{}
	}

	idCol, ok := dataset.FindColumn(table.Header, opts.IDColumn)
	if !ok {
		return sum, fmt.Errorf("%w %q", ErrMissingColumn, opts.IDColumn)
	}
	enrichCol := opts.EnrichColumn
	if existing, ok := dataset.FindColumn(table.Header, enrichCol); ok {
		enrichCol = existing
	}

	acc := NewAccumulator(outputHeader(table.Header, enrichCol))
	streak := failureStreak{ceiling: opts.MaxConsecutiveFailures}
	sum.Rows = len(table.Rows)

	flush := func() error {
		if err := deps.Output.WriteSnapshot(acc.Header(), acc.Rows()); err != nil {
			return fmt.Errorf("write output snapshot: %w", err)
		}
		sum.Flushes++
		metrics.Flushes.Inc()
		logger.Debug("flushed output snapshot", "rows", acc.Len())
		return nil
	}
	defer func() {
		sum.ConsecutiveFailures = streak.n
		if ferr := flush(); ferr != nil {
			err = errors.Join(err, ferr)
			return
		}
		logger.Info("final flush complete", "rows", acc.Len())
	}()

	for i, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			sum.Interrupted = true
			return sum, err
		}
		id := strings.TrimSpace(row.Value(idCol))
		log := logger.With("id", id, "pos", fmt.Sprintf("%d/%d", i+1, len(table.Rows)))

		if id == "" {
			sum.Skipped++
			log.Warn("skipping row with empty identifier")
			continue
		}

		if payload, ok := cache[id]; ok {
			acc.Add(row.With(enrichCol, payload))
			sum.Cached++
			metrics.RowsEmitted.WithLabelValues("cache").Inc()
			log.Info("using cached payload")
		} else {
			refetch := deps.Checkpoints.Has(id)
			out := deps.Fetcher.Fetch(ctx, id)
			if err := ctx.Err(); err != nil {
				// The in-flight row is not emitted; it is fetched again on resume.
				sum.Interrupted = true
				log.Warn("interrupted during fetch")
				return sum, err
			}
			source := "fetch"
			if refetch {
				source = "checkpoint_refetch"
				sum.Refetched++
			}

			var pause time.Duration
			switch out.Kind {
			case OutcomeSuccess:
				acc.Add(row.With(enrichCol, out.Payload))
				sum.Enriched++
				metrics.RowsEmitted.WithLabelValues(source).Inc()
				if !refetch {
					if err := deps.Checkpoints.Record(id); err != nil {
						return sum, fmt.Errorf("record checkpoint %q: %w", id, err)
					}
				}
				streak.reset()
				pause = opts.PolitenessDelay
				log.Info("enriched", "outcome", out.Kind.String(), "refetch", refetch)
			case OutcomeRateLimited:
				// Not re-queued within this pass; the next run picks it up.
				acc.Add(row)
				sum.RateLimited++
				metrics.RowsEmitted.WithLabelValues(source).Inc()
				streak.inc()
				pause = opts.RateLimitBackoff
				log.Warn("rate limited, keeping original row", "outcome", out.Kind.String(), "backoff", opts.RateLimitBackoff, "error", errString(out.Err))
			default:
				acc.Add(row)
				countFailure(&sum, out.Kind)
				metrics.RowsEmitted.WithLabelValues(source).Inc()
				streak.inc()
				log.Warn("no payload, keeping original row", "outcome", out.Kind.String(), "error", errString(out.Err))
			}

			if streak.reached() {
				sum.Aborted = true
				sum.Processed++
				log.Error("aborting run", "consecutive_failures", streak.n)
				return sum, fmt.Errorf("%w: %d consecutive failures", ErrFailureCeiling, streak.n)
			}
			if pause > 0 {
				if err := opts.Sleep(ctx, pause); err != nil {
					sum.Processed++
					sum.Interrupted = true
					return sum, err
				}
			}
		}

		sum.Processed++
		if sum.Processed%opts.FlushEvery == 0 {
			if err := flush(); err != nil {
				return sum, err
			}
		}
	}
	return sum, nil
}

func countFailure(sum *Summary, kind OutcomeKind) {
	switch kind {
	case OutcomeNotFound:
		sum.NotFound++
	case OutcomeMalformed:
		sum.Malformed++
	default:
		sum.Transient++
	}
}

func outputHeader(inputHeader []string, enrichCol string) []string {
	header := make([]string, 0, len(inputHeader)+1)
	header = append(header, inputHeader...)
	for _, col := range inputHeader {
		if col == enrichCol {
			return header
		}
	}
	return append(header, enrichCol)
}

type failureStreak struct {
	n       int
	ceiling int
}

func (f *failureStreak) inc() {
	f.n++
	metrics.ConsecutiveFailures.Set(float64(f.n))
}

func (f *failureStreak) reset() {
	f.n = 0
	metrics.ConsecutiveFailures.Set(0)
}

func (f *failureStreak) reached() bool { return f.n >= f.ceiling }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
