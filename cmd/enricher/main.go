package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shpitdev/bgg-enricher/internal/app"
	"github.com/shpitdev/bgg-enricher/internal/bgg"
	"github.com/shpitdev/bgg-enricher/internal/config"
	"github.com/shpitdev/bgg-enricher/internal/enrich"
	"github.com/shpitdev/bgg-enricher/internal/logging"
	"github.com/shpitdev/bgg-enricher/internal/redact"
	"github.com/shpitdev/bgg-enricher/internal/version"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	env, err := config.EnrichFromEnv()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", redact.Error(err))
		return 1
	}

	fs := flag.NewFlagSet("enricher", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr, fs) }
	baseURL := fs.String("bgg-base-url", env.BaseURL, "BGG XML API base URL (env: BGG_BASE_URL)")
	requestTimeout := fs.Duration("request-timeout", env.RequestTimeout, "Per-request timeout (env: REQUEST_TIMEOUT)")
	rateLimitRPS := fs.Float64("rate-limit-rps", env.RateLimitRPS, "Outbound request cap (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	politeness := fs.Duration("politeness-delay", env.PolitenessDelay, "Pause after each successful fetch (env: POLITENESS_DELAY)")
	backoff := fs.Duration("rate-limit-backoff", env.RateLimitBackoff, "Pause after a rate-limit response (env: RATE_LIMIT_BACKOFF)")
	maxFailures := fs.Int("max-consecutive-failures", env.MaxConsecutiveFailures, "Abort after this many failures in a row (env: MAX_CONSECUTIVE_FAILURES)")
	flushEvery := fs.Int("flush-every", env.FlushEvery, "Rewrite the output file every N rows (env: FLUSH_EVERY)")
	idColumn := fs.String("id-column", env.IDColumn, "Identifier column name (env: ID_COLUMN)")
	enrichColumn := fs.String("enrich-column", env.EnrichColumn, "Column receiving the description (env: ENRICH_COLUMN)")
	delimiter := fs.String("delimiter", env.Delimiter, "Field delimiter of input and output (env: DELIMITER)")
	metricsAddr := fs.String("metrics-addr", env.MetricsAddr, "Serve Prometheus metrics on this address when set (env: METRICS_ADDR)")
	logLevel := fs.String("log-level", env.LogLevel, "debug, info, warn or error (env: LOG_LEVEL)")
	debug := fs.Bool("debug", false, "Shorthand for -log-level=debug")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if *showVersion {
		_, _ = fmt.Fprintln(stdout, version.Current)
		return 0
	}
	if fs.NArg() != 2 {
		_, _ = fmt.Fprintln(stderr, "enricher requires <input-file> <output-file>")
		fs.Usage()
		return 1
	}
	inputPath, outputPath := fs.Arg(0), fs.Arg(1)
	if err := validateRun(*politeness, *backoff, *maxFailures, *flushEvery); err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", err)
		return 1
	}

	level := *logLevel
	if *debug {
		level = "debug"
	}
	logger, err := logging.Setup(stderr, level)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", err)
		return 1
	}
	delim, err := config.Delimiter(*delimiter)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", err)
		return 1
	}

	client, err := bgg.NewClient(bgg.Config{
		BaseURL:      *baseURL,
		Token:        env.APIToken,
		UserAgent:    "bgg-enricher/" + version.Current,
		Timeout:      *requestTimeout,
		RateLimitRPS: *rateLimitRPS,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "bgg config error: %s\n", redact.Error(err))
		return 1
	}

	if *metricsAddr != "" {
		shutdown := serveMetrics(*metricsAddr, logger)
		defer shutdown()
	}

	logger.Info("enricher starting", "version", version.Current, "input", inputPath, "output", outputPath)
	_, err = app.RunLocal(ctx, app.LocalRun{
		InputPath:  inputPath,
		OutputPath: outputPath,
		Delimiter:  delim,
		Options: enrich.Options{
			IDColumn:               *idColumn,
			EnrichColumn:           *enrichColumn,
			FlushEvery:             *flushEvery,
			MaxConsecutiveFailures: *maxFailures,
			PolitenessDelay:        *politeness,
			RateLimitBackoff:       *backoff,
		},
	}, client, logger)
	switch {
	case err == nil:
		logger.Info("enricher finished")
		return 0
	case errors.Is(err, context.Canceled):
		logger.Warn("interrupted; progress saved, rerun with the same arguments to resume")
		return 1
	case errors.Is(err, enrich.ErrFailureCeiling):
		logger.Error("aborted after too many consecutive failures", "error", redact.Error(err))
		return 1
	default:
		logger.Error("enricher run failed", "error", redact.Error(err))
		return 1
	}
}

func validateRun(politeness, backoff time.Duration, maxFailures, flushEvery int) error {
	switch {
	case politeness < 0:
		return fmt.Errorf("politeness-delay must not be negative, got %s", politeness)
	case backoff < 0:
		return fmt.Errorf("rate-limit-backoff must not be negative, got %s", backoff)
	case maxFailures < 1:
		return fmt.Errorf("max-consecutive-failures must be at least 1, got %d", maxFailures)
	case flushEvery < 1:
		return fmt.Errorf("flush-every must be at least 1, got %d", flushEvery)
	}
	return nil
}

func serveMetrics(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func usage(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `enricher: add BoardGameGeek descriptions to a board game dataset

Usage:
  enricher [flags] <input-file> <output-file>

Reruns with the same arguments resume: ids already present in <output-file> are reused and
successful ids are recorded in a hidden .<input>.checkpoint file next to the input.

Examples:
  enricher -delimiter ";" data/bgg_dataset.csv data/silver_enriched.csv
  BGG_BASE_URL=http://localhost:8080/xmlapi2 enricher -politeness-delay=0s in.csv out.csv

Flags:
`)
	fs.PrintDefaults()
}
