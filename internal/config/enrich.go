package config

import "time"

// Enrich holds the settings of one enrichment run.
type Enrich struct {
	BaseURL        string
	APIToken       string
	RequestTimeout time.Duration
	RateLimitRPS   float64

	PolitenessDelay        time.Duration
	RateLimitBackoff       time.Duration
	MaxConsecutiveFailures int
	FlushEvery             int

	IDColumn     string
	EnrichColumn string
	Delimiter    string

	MetricsAddr string
	LogLevel    string
}

// EnrichFromEnv reads Enrich defaults from the environment.
func EnrichFromEnv() (Enrich, error) {
	var (
		cfg Enrich
		err error
	)
	cfg.BaseURL = String("BGG_BASE_URL", "https://boardgamegeek.com/xmlapi2")
	cfg.APIToken = String("BGG_API_TOKEN", "")
	if cfg.RequestTimeout, err = Duration("REQUEST_TIMEOUT", 5*time.Second); err != nil {
		return Enrich{}, err
	}
	if cfg.RateLimitRPS, err = Float("RATE_LIMIT_RPS", 0); err != nil {
		return Enrich{}, err
	}
	if cfg.PolitenessDelay, err = Duration("POLITENESS_DELAY", 2*time.Second); err != nil {
		return Enrich{}, err
	}
	if cfg.RateLimitBackoff, err = Duration("RATE_LIMIT_BACKOFF", 30*time.Second); err != nil {
		return Enrich{}, err
	}
	if cfg.MaxConsecutiveFailures, err = Int("MAX_CONSECUTIVE_FAILURES", 1000); err != nil {
		return Enrich{}, err
	}
	if cfg.FlushEvery, err = Int("FLUSH_EVERY", 10); err != nil {
		return Enrich{}, err
	}
	cfg.IDColumn = String("ID_COLUMN", "ID")
	cfg.EnrichColumn = String("ENRICH_COLUMN", "description")
	cfg.Delimiter = String("DELIMITER", ",")
	cfg.MetricsAddr = String("METRICS_ADDR", "")
	cfg.LogLevel = String("LOG_LEVEL", "info")
	return cfg, nil
}
