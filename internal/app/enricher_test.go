package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shpitdev/bgg-enricher/internal/bgg"
	"github.com/shpitdev/bgg-enricher/internal/checkpoint"
	"github.com/shpitdev/bgg-enricher/internal/dataset"
	"github.com/shpitdev/bgg-enricher/internal/enrich"
	"github.com/shpitdev/bgg-enricher/internal/mockbgg"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type fixture struct {
	mock   *mockbgg.Server
	client *bgg.Client
	dir    string
	input  string
	output string
}

func newFixture(t *testing.T, ids ...string) fixture {
	t.Helper()
	mock := mockbgg.New()
	var b strings.Builder
	b.WriteString("ID;Name\n")
	for _, id := range ids {
		mock.AddGame(mockbgg.Game{ID: id, Name: "Game " + id, Description: "desc " + id})
		b.WriteString(id + ";Game " + id + "\n")
	}
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)

	client, err := bgg.NewClient(bgg.Config{BaseURL: srv.URL + "/xmlapi2"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	dir := t.TempDir()
	input := filepath.Join(dir, "bgg_dataset.csv")
	if err := os.WriteFile(input, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return fixture{mock: mock, client: client, dir: dir, input: input, output: filepath.Join(dir, "enriched.csv")}
}

func (f fixture) run(ctx context.Context, t *testing.T, fetcher enrich.Fetcher) (enrich.Summary, error) {
	t.Helper()
	return RunLocal(ctx, LocalRun{
		InputPath:  f.input,
		OutputPath: f.output,
		Delimiter:  ';',
		Options:    enrich.Options{Sleep: noSleep, FlushEvery: 2},
	}, fetcher, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func readOutput(t *testing.T, path string) [][]string {
	t.Helper()
	tbl, err := dataset.ReadTableFile(path, ';')
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	out := [][]string{tbl.Header}
	for _, r := range tbl.Rows {
		out = append(out, r.Values(tbl.Header))
	}
	return out
}

func TestRunLocal_ResumeAfterInterruptDoesNotRefetch(t *testing.T) {
	f := newFixture(t, "1", "2", "3", "4", "5")

	ctx, cancel := context.WithCancel(context.Background())
	interrupting := enrich.FetchFunc(func(ctx context.Context, id string) enrich.Outcome {
		out := f.client.Fetch(ctx, id)
		if id == "3" {
			cancel()
		}
		return out
	})
	sum, err := f.run(ctx, t, interrupting)
	if !errors.Is(err, context.Canceled) || !sum.Interrupted {
		t.Fatalf("expected interrupted run, got sum=%+v err=%v", sum, err)
	}
	partial := readOutput(t, f.output)
	if len(partial) != 3 {
		t.Fatalf("expected header plus 2 rows after interrupt, got %v", partial)
	}

	if _, err := f.run(context.Background(), t, f.client); err != nil {
		t.Fatalf("resume run: %v", err)
	}

	want := [][]string{
		{"ID", "Name", "description"},
		{"1", "Game 1", "desc 1"},
		{"2", "Game 2", "desc 2"},
		{"3", "Game 3", "desc 3"},
		{"4", "Game 4", "desc 4"},
		{"5", "Game 5", "desc 5"},
	}
	if diff := cmp.Diff(want, readOutput(t, f.output)); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
	for _, id := range []string{"1", "2", "4", "5"} {
		if got := f.mock.CallsFor(id); got != 1 {
			t.Fatalf("id %s fetched %d times, want 1", id, got)
		}
	}
	// The in-flight request of the interrupted run is repeated once.
	if got := f.mock.CallsFor("3"); got != 2 {
		t.Fatalf("id 3 fetched %d times, want 2", got)
	}

	set, err := checkpoint.Load(checkpoint.PathFor(f.input))
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	if len(set) != 5 {
		t.Fatalf("expected 5 checkpointed ids, got %v", set)
	}
}

func TestRunLocal_LostOutputIsRebuiltFromRefetch(t *testing.T) {
	f := newFixture(t, "10", "20")
	if _, err := f.run(context.Background(), t, f.client); err != nil {
		t.Fatalf("first run: %v", err)
	}
	cpPath := checkpoint.PathFor(f.input)
	before, err := os.ReadFile(cpPath)
	if err != nil {
		t.Fatalf("read checkpoint: %v", err)
	}
	if err := os.Remove(f.output); err != nil {
		t.Fatalf("remove output: %v", err)
	}

	sum, err := f.run(context.Background(), t, f.client)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.Refetched != 2 || sum.Cached != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	after, err := os.ReadFile(cpPath)
	if err != nil {
		t.Fatalf("read checkpoint: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("checkpoint changed on refetch: before=%q after=%q", before, after)
	}
	if got := readOutput(t, f.output); len(got) != 3 || got[2][2] != "desc 20" {
		t.Fatalf("unexpected rebuilt output: %v", got)
	}
}

func TestRunLocal_FailuresKeepOriginalRow(t *testing.T) {
	f := newFixture(t, "1", "2")
	f.mock.SetStatus("2", 404)

	sum, err := f.run(context.Background(), t, f.client)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.NotFound != 1 || sum.Enriched != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	want := [][]string{
		{"ID", "Name", "description"},
		{"1", "Game 1", "desc 1"},
		{"2", "Game 2", ""},
	}
	if diff := cmp.Diff(want, readOutput(t, f.output)); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}

	f.mock.ClearOverride("2")
	sum, err = f.run(context.Background(), t, f.client)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if sum.Cached != 1 || sum.Enriched != 1 {
		t.Fatalf("expected failed id to be retried on the next run, got %+v", sum)
	}
}

func TestRunLocal_MissingIDColumnLeavesFilesUntouched(t *testing.T) {
	f := newFixture(t)
	if err := os.WriteFile(f.input, []byte("Name\nCatan\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	if err := os.WriteFile(f.output, []byte("previous"), 0o644); err != nil {
		t.Fatalf("write output: %v", err)
	}

	_, err := f.run(context.Background(), t, f.client)
	if !errors.Is(err, enrich.ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
	b, _ := os.ReadFile(f.output)
	if string(b) != "previous" {
		t.Fatalf("output was modified: %q", b)
	}
	if _, err := os.Stat(checkpoint.PathFor(f.input)); !os.IsNotExist(err) {
		t.Fatalf("checkpoint file should not be created, stat err=%v", err)
	}
}

func TestRunLocal_UnreadablePriorOutputStartsFresh(t *testing.T) {
	f := newFixture(t, "1")
	if err := os.WriteFile(f.output, []byte("ID;description\n1;x;extra\n"), 0o644); err != nil {
		t.Fatalf("write output: %v", err)
	}
	sum, err := f.run(context.Background(), t, f.client)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Cached != 0 || sum.Enriched != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestTracedFetcher_LogsRequestAndResponse(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	next := enrich.FetchFunc(func(context.Context, string) enrich.Outcome {
		return enrich.NotFound(errors.New("no such game"))
	})

	out := newTracedFetcher(next, logger).Fetch(context.Background(), "42")
	if out.Kind != enrich.OutcomeNotFound {
		t.Fatalf("outcome must pass through unchanged, got %s", out.Kind)
	}
	logs := buf.String()
	for _, want := range []string{`msg="fetch request" id=42`, `msg="fetch response" id=42`, "outcome=not_found", `error="no such game"`} {
		if !strings.Contains(logs, want) {
			t.Fatalf("expected %q in logs:\n%s", want, logs)
		}
	}
}
