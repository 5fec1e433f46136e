// Package mockbgg is an in-process fake of the BoardGameGeek XML API thing endpoint.
package mockbgg

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
	ID     string
	Stats  string
}

// Game is a fixture served for one identifier.
type Game struct {
	ID          string
	Name        string
	Year        int
	Description string
}

type override struct {
	status      int
	contentType string
	body        []byte
}

// Server implements the /xmlapi2/thing surface used by the enricher.
type Server struct {
	mu    sync.Mutex
	calls []Call
	games map[string]Game

	// overrides force a raw response for an identifier, bypassing fixtures.
	overrides map[string]override

	expectedAuthorization string
}

func New() *Server {
	return &Server{
		games:     make(map[string]Game),
		overrides: make(map[string]override),
	}
}

// AddGame registers g as the fixture for g.ID.
func (s *Server) AddGame(g Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[strings.TrimSpace(g.ID)] = g
}

// SetStatus makes requests for id answer with a bare status code.
func (s *Server) SetStatus(id string, status int) {
	s.SetRaw(id, status, "text/plain; charset=utf-8", []byte(http.StatusText(status)))
}

// SetRaw makes requests for id answer with exactly this status, content type and body.
func (s *Server) SetRaw(id string, status int, contentType string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[strings.TrimSpace(id)] = override{status: status, contentType: contentType, body: body}
}

// ClearOverride removes a SetStatus/SetRaw override for id.
func (s *Server) ClearOverride(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, strings.TrimSpace(id))
}

// RequireBearerToken enforces that requests include an Authorization header matching the token.
// If token is empty, authorization is not enforced.
func (s *Server) RequireBearerToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token = strings.TrimSpace(token)
	if token == "" {
		s.expectedAuthorization = ""
		return
	}
	s.expectedAuthorization = "Bearer " + token
}

// LoadDir registers every <id>.txt file in dir as a game whose description is the file body.
func (s *Server) LoadDir(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return 0, err
	}
	sort.Strings(matches)
	for _, path := range matches {
		b, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("read fixture %s: %w", path, err)
		}
		id := strings.TrimSuffix(filepath.Base(path), ".txt")
		s.AddGame(Game{ID: id, Name: "Game " + id, Description: string(b)})
	}
	return len(matches), nil
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/xmlapi2/thing", s.handleThing)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsFor counts thing requests for id.
func (s *Server) CallsFor(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.ID == id {
			n++
		}
	}
	return n
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := r.URL.Query()
	s.calls = append(s.calls, Call{
		Method: r.Method,
		Path:   r.URL.Path,
		ID:     strings.TrimSpace(q.Get("id")),
		Stats:  q.Get("stats"),
	})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	expected := s.expectedAuthorization
	s.mu.Unlock()

	if expected == "" {
		return true
	}
	if r.Header.Get("Authorization") != expected {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

type thingItems struct {
	XMLName xml.Name    `xml:"items"`
	Terms   string      `xml:"termsofuse,attr"`
	Items   []thingItem `xml:"item"`
}

type thingItem struct {
	Type        string     `xml:"type,attr"`
	ID          string     `xml:"id,attr"`
	Name        thingValue `xml:"name"`
	Year        thingValue `xml:"yearpublished"`
	Description string     `xml:"description"`
}

type thingValue struct {
	Type  string `xml:"type,attr,omitempty"`
	Value string `xml:"value,attr"`
}

func (s *Server) handleThing(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorize(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))

	s.mu.Lock()
	ov, forced := s.overrides[id]
	g, known := s.games[id]
	s.mu.Unlock()

	if forced {
		if ov.contentType != "" {
			w.Header().Set("Content-Type", ov.contentType)
		}
		if ov.status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "30")
		}
		w.WriteHeader(ov.status)
		_, _ = w.Write(ov.body)
		return
	}

	// Unknown ids get an empty <items> document with 200, like the real API.
	doc := thingItems{Terms: "https://boardgamegeek.com/xmlapi/termsofuse"}
	if known {
		item := thingItem{
			Type:        "boardgame",
			ID:          g.ID,
			Name:        thingValue{Type: "primary", Value: g.Name},
			Description: g.Description,
		}
		if g.Year != 0 {
			item.Year = thingValue{Value: fmt.Sprint(g.Year)}
		}
		doc.Items = append(doc.Items, item)
	}

	b, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(b)
}
