package bgg

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shpitdev/bgg-enricher/internal/redact"
)

// HTTPError is a sanitized summary of a non-2xx BGG API response.
//
// Raw bodies are never kept; Snippet is redacted and truncated.
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	RetryAfter string

	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "bgg http error"
	}
	parts := []string{
		fmt.Sprintf("bgg api error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.RetryAfter) != "" {
		parts = append(parts, "retryAfter="+strings.TrimSpace(e.RetryAfter))
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

func newHTTPError(op string, resp *http.Response, body []byte) *HTTPError {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
		h.RetryAfter = resp.Header.Get("Retry-After")
	}
	h.Snippet = redactAndTruncate(body)
	return h
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := redact.Secrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
