package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/shpitdev/bgg-enricher/internal/mockbgg"
)

func main() {
	addr := defaultString("MOCK_BGG_ADDR", ":8080")
	fixtureDir := defaultString("MOCK_BGG_FIXTURE_DIR", "")
	statuses := defaultString("MOCK_BGG_STATUSES", "")
	token := defaultString("MOCK_BGG_TOKEN", "")

	fs := flag.NewFlagSet("mock-bgg", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&fixtureDir, "fixture-dir", fixtureDir, "Directory of <id>.txt files served as game descriptions")
	fs.StringVar(&statuses, "statuses", statuses, "Comma-separated id=status overrides, e.g. 13=429,42=404 (also supports env: MOCK_BGG_STATUSES)")
	fs.StringVar(&token, "token", token, "Require this bearer token when set")
	_ = fs.Parse(os.Args[1:])

	srv := mockbgg.New()
	srv.RequireBearerToken(token)
	if fixtureDir != "" {
		n, err := srv.LoadDir(fixtureDir)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "load fixtures: %v\n", err)
			os.Exit(1)
		}
		_, _ = fmt.Fprintf(os.Stdout, "loaded %d fixtures from %s\n", n, fixtureDir)
	}
	overrides, err := parseStatuses(statuses)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid -statuses: %v\n", err)
		os.Exit(2)
	}
	for id, status := range overrides {
		srv.SetStatus(id, status)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-bgg listening on %s (base=/xmlapi2)\n", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func parseStatuses(s string) (map[string]int, error) {
	out := map[string]int{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, code, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("expected id=status, got %q", p)
		}
		n, err := strconv.Atoi(strings.TrimSpace(code))
		if err != nil || n < 100 || n > 599 {
			return nil, fmt.Errorf("invalid status in %q", p)
		}
		out[strings.TrimSpace(id)] = n
	}
	return out, nil
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
