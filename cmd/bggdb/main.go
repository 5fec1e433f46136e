package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/shpitdev/bgg-enricher/internal/app"
	"github.com/shpitdev/bgg-enricher/internal/config"
	"github.com/shpitdev/bgg-enricher/internal/logging"
	"github.com/shpitdev/bgg-enricher/internal/redact"
	"github.com/shpitdev/bgg-enricher/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	case "migrate":
		return runMigrate(ctx, args[1:], stderr)
	case "load":
		return runLoad(ctx, args[1:], stderr)
	case "note":
		return runNote(ctx, args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command: %s\n\n", args[0])
		usage(stderr)
		return 2
	}
}

type common struct {
	configPath string
	logLevel   string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", config.String("BGGDB_CONFIG", ""), "Optional YAML config file with a database section (env: BGGDB_CONFIG)")
	fs.StringVar(&c.logLevel, "log-level", config.String("LOG_LEVEL", "info"), "debug, info, warn or error (env: LOG_LEVEL)")
}

// open resolves the database settings (YAML file first, then env) and connects.
func (c *common) open(ctx context.Context, stderr io.Writer) (*sqlx.DB, *slog.Logger, error) {
	dbCfg, err := config.DatabaseFromEnv()
	if err != nil {
		return nil, nil, err
	}
	level := c.logLevel
	if c.configPath != "" {
		file, err := config.Load(c.configPath)
		if err != nil {
			return nil, nil, err
		}
		dbCfg = file.Database.Merge(dbCfg)
		if file.Logging.Level != "" && level == "info" {
			level = file.Logging.Level
		}
	}
	logger, err := logging.Setup(stderr, level)
	if err != nil {
		return nil, nil, err
	}
	dsn, err := dbCfg.DSN()
	if err != nil {
		return nil, nil, err
	}
	db, err := postgres.Open(ctx, postgres.Config{DSN: dsn, MaxConns: dbCfg.MaxConns, MinConns: dbCfg.MinConns})
	if err != nil {
		return nil, nil, err
	}
	return db, logger, nil
}

func runMigrate(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	db, logger, err := c.open(ctx, stderr)
	if err != nil {
		return fail(stderr, "database error", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if err := postgres.Migrate(ctx, db); err != nil {
		return fail(stderr, "migrate failed", err)
	}
	logger.Info("migrations applied")
	return 0
}

func runLoad(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	delimiter := fs.String("delimiter", config.String("DELIMITER", ","), "Field delimiter of the dataset (env: DELIMITER)")
	batchSize := fs.Int("batch-size", postgres.DefaultBatchSize, "Rows per INSERT statement")
	skipMigrate := fs.Bool("skip-migrate", false, "Do not apply migrations before loading")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "load requires <enriched-file>")
		return 2
	}
	delim, err := config.Delimiter(*delimiter)
	if err != nil {
		return fail(stderr, "config error", err)
	}

	db, logger, err := c.open(ctx, stderr)
	if err != nil {
		return fail(stderr, "database error", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if !*skipMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return fail(stderr, "migrate failed", err)
		}
	}
	res, err := app.RunLoad(ctx, fs.Arg(0), delim, postgres.NewGameRepo(db, logger), *batchSize, logger)
	if err != nil {
		return fail(stderr, "load failed", err)
	}
	if len(res.Rejected) > 0 {
		logger.Warn("some rows were rejected", "rejected", len(res.Rejected))
	}
	return 0
}

func runNote(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || (args[0] != "get" && args[0] != "set") {
		_, _ = fmt.Fprintln(stderr, "note requires a subcommand: get <game-id> | set <game-id> <text>")
		return 2
	}
	sub := args[0]
	fs := flag.NewFlagSet("note "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	want := 1
	if sub == "set" {
		want = 2
	}
	if fs.NArg() < want {
		_, _ = fmt.Fprintf(stderr, "note %s: missing arguments\n", sub)
		return 2
	}
	gameID, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil || gameID <= 0 {
		_, _ = fmt.Fprintf(stderr, "invalid game id %q\n", fs.Arg(0))
		return 2
	}

	db, _, err := c.open(ctx, stderr)
	if err != nil {
		return fail(stderr, "database error", err)
	}
	defer func() {
		_ = db.Close()
	}()
	notes := postgres.NewNoteRepo(db)

	var out any
	if sub == "get" {
		out, err = notes.Get(ctx, gameID)
	} else {
		out, err = notes.Save(ctx, gameID, strings.Join(fs.Args()[1:], " "))
	}
	if err != nil {
		return fail(stderr, "note "+sub+" failed", err)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fail(stderr, "encode note", err)
	}
	return 0
}

func fail(stderr io.Writer, what string, err error) int {
	if errors.Is(err, context.Canceled) {
		_, _ = fmt.Fprintf(stderr, "%s: interrupted\n", what)
		return 1
	}
	_, _ = fmt.Fprintf(stderr, "%s: %s\n", what, redact.Error(err))
	return 1
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `bggdb: load enriched board game datasets into PostgreSQL

Usage:
  bggdb <command> [flags]

Commands:
  migrate                      Apply schema migrations
  load <enriched-file>         Replace stored games with a normalized dataset
  note get <game-id>           Print the note for a game (empty when none)
  note set <game-id> <text>    Create or replace the note for a game

Environment:
  DATABASE_URL   PostgreSQL URL; overrides the DB_* variables
  DB_USERNAME    Database user
  DB_PASSWORD    Database password
  DB_HOST        Database host (default localhost)
  DB_NAME        Database name (default board_game_db)

`)
}
