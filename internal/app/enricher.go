package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shpitdev/bgg-enricher/internal/checkpoint"
	"github.com/shpitdev/bgg-enricher/internal/dataset"
	"github.com/shpitdev/bgg-enricher/internal/enrich"
	"github.com/shpitdev/bgg-enricher/internal/metrics"
	"github.com/shpitdev/bgg-enricher/internal/redact"
)

// LocalRun describes one resumable enrichment of a local dataset file.
type LocalRun struct {
	InputPath  string
	OutputPath string
	Delimiter  rune
	Options    enrich.Options
}

// RunLocal enriches InputPath into OutputPath, resuming from the checkpoint file next to
// the input and from payloads already present in OutputPath.
func RunLocal(ctx context.Context, run LocalRun, fetcher enrich.Fetcher, logger *slog.Logger) (enrich.Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if run.Delimiter == 0 {
		run.Delimiter = ','
	}
	opts := run.Options
	if strings.TrimSpace(opts.IDColumn) == "" {
		opts.IDColumn = "ID"
	}
	if strings.TrimSpace(opts.EnrichColumn) == "" {
		opts.EnrichColumn = "description"
	}
	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	logger = logger.With("run", runID)
	runStart := time.Now()

	readStart := time.Now()
	table, err := dataset.ReadTableFile(run.InputPath, run.Delimiter)
	if err != nil {
		return enrich.Summary{}, fmt.Errorf("read input %s: %w", run.InputPath, err)
	}
	if _, ok := dataset.FindColumn(table.Header, opts.IDColumn); !ok {
		return enrich.Summary{}, fmt.Errorf("%w %q in %s", enrich.ErrMissingColumn, opts.IDColumn, run.InputPath)
	}
	logger.Info("loaded input", "path", run.InputPath, "rows", len(table.Rows), "duration", time.Since(readStart).Round(time.Millisecond))

	cache := readPriorOutput(run.OutputPath, run.Delimiter, opts, logger)

	cpPath := checkpoint.PathFor(run.InputPath)
	cps, err := checkpoint.Open(cpPath)
	if err != nil {
		return enrich.Summary{}, err
	}
	defer func() {
		if cerr := cps.Close(); cerr != nil {
			logger.Warn("close checkpoint file", "path", cpPath, "error", cerr)
		}
	}()

	idCol, _ := dataset.FindColumn(table.Header, opts.IDColumn)
	plan := summarizePlan(table, idCol, cache, cps)
	logger.Info("incremental plan",
		"inputRows", len(table.Rows),
		"cachedRows", plan.cached,
		"refetchRows", plan.refetch,
		"rowsToFetch", plan.pending,
		"checkpointed", cps.Len(),
	)

	sum, err := enrich.Run(ctx, table, enrich.Deps{
		Fetcher:     newTracedFetcher(fetcher, logger),
		Checkpoints: cps,
		Cache:       cache,
		Output:      dataset.FileWriter{Path: run.OutputPath, Delimiter: run.Delimiter},
		Logger:      logger,
	}, opts)

	logger.Info("enrichment finished",
		"processed", sum.Processed,
		"cached", sum.Cached,
		"enriched", sum.Enriched,
		"failed", sum.Failed(),
		"skipped", sum.Skipped,
		"flushes", sum.Flushes,
		"aborted", sum.Aborted,
		"interrupted", sum.Interrupted,
		"duration", time.Since(runStart).Round(time.Millisecond),
	)
	return sum, err
}

// readPriorOutput loads payloads from a previous run. An unreadable file starts the run fresh.
func readPriorOutput(path string, delim rune, opts enrich.Options, logger *slog.Logger) map[string]string {
	cache, err := dataset.ReadPayloads(path, delim, opts.IDColumn, opts.EnrichColumn)
	if err != nil {
		logger.Warn("could not read existing output, starting fresh", "path", path, "error", redact.Error(err))
		return map[string]string{}
	}
	if len(cache) > 0 {
		logger.Info("loaded prior output", "path", path, "payloads", len(cache))
	} else if _, statErr := os.Stat(path); statErr != nil {
		logger.Info("no prior output found", "path", path)
	}
	return cache
}

type planCounts struct {
	cached  int
	refetch int
	pending int
}

func summarizePlan(t dataset.Table, idCol string, cache map[string]string, cps *checkpoint.Store) planCounts {
	var p planCounts
	for _, r := range t.Rows {
		id := strings.TrimSpace(r.Value(idCol))
		switch {
		case id == "":
		case cache[id] != "":
			p.cached++
		case cps.Has(id):
			p.refetch++
		default:
			p.pending++
		}
	}
	return p
}

// tracedFetcher logs every request and response and records fetch metrics.
type tracedFetcher struct {
	next   enrich.Fetcher
	logger *slog.Logger
}

func newTracedFetcher(next enrich.Fetcher, logger *slog.Logger) *tracedFetcher {
	return &tracedFetcher{next: next, logger: logger}
}

func (t *tracedFetcher) Fetch(ctx context.Context, id string) enrich.Outcome {
	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	t.logger.Debug("fetch request", "id", id, "deadlineIn", deadlineIn)

	start := time.Now()
	out := t.next.Fetch(ctx, id)
	elapsed := time.Since(start)

	metrics.FetchDuration.Observe(elapsed.Seconds())
	metrics.FetchOutcomes.WithLabelValues(out.Kind.String()).Inc()

	if !out.OK() {
		t.logger.Debug("fetch response",
			"id", id,
			"duration", elapsed.Round(time.Millisecond),
			"outcome", out.Kind.String(),
			"error", redact.Error(out.Err),
		)
		return out
	}
	t.logger.Debug("fetch response",
		"id", id,
		"duration", elapsed.Round(time.Millisecond),
		"outcome", out.Kind.String(),
		"payloadBytes", len(out.Payload),
	)
	return out
}
