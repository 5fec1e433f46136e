package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shpitdev/bgg-enricher/internal/dataset"
	"github.com/shpitdev/bgg-enricher/internal/games"
	"github.com/shpitdev/bgg-enricher/internal/metrics"
)

// GameStore replaces the stored game catalogue.
type GameStore interface {
	ReplaceAll(ctx context.Context, gs []games.Game, batchSize int) (int, error)
}

// LoadResult reports a RunLoad.
type LoadResult struct {
	Rows     int
	Inserted int
	Rejected []games.Rejection
}

// RunLoad normalizes an enriched dataset file and replaces the stored games with it.
func RunLoad(ctx context.Context, inputPath string, delim rune, store GameStore, batchSize int, logger *slog.Logger) (LoadResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if delim == 0 {
		delim = ','
	}
	start := time.Now()

	logger.Info("reading dataset", "path", inputPath)
	table, err := dataset.ReadTableFile(inputPath, delim)
	if err != nil {
		return LoadResult{}, fmt.Errorf("read dataset %s: %w", inputPath, err)
	}

	gs, rejected, err := games.FromTable(table, logger)
	if err != nil {
		return LoadResult{}, err
	}
	res := LoadResult{Rows: len(table.Rows), Rejected: rejected}
	metrics.LoadedRows.WithLabelValues("rejected").Add(float64(len(rejected)))

	n, err := store.ReplaceAll(ctx, gs, batchSize)
	if err != nil {
		return res, fmt.Errorf("load games: %w", err)
	}
	res.Inserted = n
	metrics.LoadedRows.WithLabelValues("inserted").Add(float64(n))

	logger.Info("loaded games into the database",
		"rows", res.Rows,
		"inserted", res.Inserted,
		"rejected", len(res.Rejected),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}
