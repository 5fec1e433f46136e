// Package bgg fetches game descriptions from the BoardGameGeek XML API v2.
package bgg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/shpitdev/bgg-enricher/internal/enrich"
)

const (
	DefaultBaseURL = "https://boardgamegeek.com/xmlapi2"
	DefaultTimeout = 5 * time.Second

	maxBodyBytes = 8 << 20
)

var errBodyTooLarge = fmt.Errorf("response body exceeds %d bytes", maxBodyBytes)

type Config struct {
	// BaseURL is the API root, e.g. "https://boardgamegeek.com/xmlapi2".
	BaseURL string
	// Token is sent as a bearer token when set.
	Token     string
	UserAgent string

	// Timeout bounds a single request. Defaults to DefaultTimeout.
	Timeout time.Duration
	// RateLimitRPS caps outbound requests when > 0.
	RateLimitRPS float64

	// HTTPClient overrides the transport. Its Timeout is left untouched.
	HTTPClient *http.Client
}

// Client implements enrich.Fetcher against the thing endpoint.
type Client struct {
	thingURL  *url.URL
	token     string
	userAgent string
	timeout   time.Duration
	limiter   *rate.Limiter
	http      *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse bgg base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid bgg base URL %q", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/thing"
	u.RawQuery = ""

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "bgg-enricher"
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}

	return &Client{
		thingURL:  u,
		token:     strings.TrimSpace(cfg.Token),
		userAgent: ua,
		timeout:   timeout,
		limiter:   limiter,
		http:      hc,
	}, nil
}

// Fetch requests /thing?id=<id>&stats=1 and classifies the response.
//
// 404 or an item-less document is NotFound, 429 is RateLimited, an unparseable body or a
// missing description is Malformed, and everything else that fails is Transient.
func (c *Client) Fetch(ctx context.Context, id string) enrich.Outcome {
	id = strings.TrimSpace(id)
	if id == "" {
		return enrich.Malformed(errors.New("empty identifier"))
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return enrich.Transient(fmt.Errorf("rate limiter: %w", err))
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, resp, err := c.get(reqCtx, id)
	switch {
	case errors.Is(err, errBodyTooLarge):
		return enrich.Malformed(fmt.Errorf("game %s: %w", id, err))
	case err != nil:
		return enrich.Transient(err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return enrich.NotFound(newHTTPError("thing", resp, body))
	case resp.StatusCode == http.StatusTooManyRequests:
		return enrich.RateLimited(newHTTPError("thing", resp, body))
	case resp.StatusCode != http.StatusOK:
		// Includes 202: BGG queues the request and wants a later retry.
		return enrich.Transient(newHTTPError("thing", resp, body))
	}

	if err := checkContentType(resp.Header.Get("Content-Type")); err != nil {
		return enrich.Malformed(err)
	}
	desc, err := parseDescription(bytes.NewReader(body))
	switch {
	case errors.Is(err, errNoItem):
		return enrich.NotFound(fmt.Errorf("game %s: %w", id, err))
	case err != nil:
		return enrich.Malformed(fmt.Errorf("game %s: %w", id, err))
	}
	return enrich.Success(desc)
}

func (c *Client) get(ctx context.Context, id string) ([]byte, *http.Response, error) {
	u := *c.thingURL
	q := url.Values{}
	q.Set("id", id)
	q.Set("stats", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/xml, text/xml")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}
	if len(b) > maxBodyBytes {
		return nil, resp, errBodyTooLarge
	}
	return b, resp, nil
}

func checkContentType(v string) error {
	if strings.TrimSpace(v) == "" {
		return errors.New("response has no content type")
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return fmt.Errorf("parse content type %q: %w", v, err)
	}
	switch {
	case mt == "text/xml", mt == "application/xml", strings.HasSuffix(mt, "+xml"):
		return nil
	default:
		return fmt.Errorf("unexpected content type %q", mt)
	}
}
