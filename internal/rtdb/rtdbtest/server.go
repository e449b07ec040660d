// Package rtdbtest provides an in-process fake of the realtime database REST
// interface for tests.
package rtdbtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Server mimics the /health.json and /healthHistory.json resources. Push keys
// are generated in insertion order.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	current json.RawMessage
	history map[string]json.RawMessage
	seq     int

	// Status, when non-zero for a "METHOD path" entry, makes that request fail
	// with the given status code.
	status map[string]int
	delay  time.Duration
	calls  map[string]int
	auth   string
}

func NewServer() *Server {
	s := &Server{
		history: make(map[string]json.RawMessage),
		status:  make(map[string]int),
		calls:   make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// SetCurrent stores v (marshalled to JSON) as the live snapshot. A nil v
// clears it.
func (s *Server) SetCurrent(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v == nil {
		s.current = nil
		return
	}
	s.current = mustJSON(v)
}

// SetCurrentRaw stores a raw JSON body as the live snapshot.
func (s *Server) SetCurrentRaw(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = json.RawMessage(body)
}

// Put stores v under key in the history collection.
func (s *Server) Put(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[key] = mustJSON(v)
}

// PutRaw stores a raw JSON value under key in the history collection.
func (s *Server) PutRaw(key, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[key] = json.RawMessage(body)
}

// History returns a copy of the stored history collection.
func (s *Server) History() map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]json.RawMessage, len(s.history))
	for k, v := range s.history {
		out[k] = v
	}
	return out
}

// Fail makes every "METHOD path" request (e.g. "POST /healthHistory.json")
// answer with status. A zero status clears the failure.
func (s *Server) Fail(methodPath string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.status, methodPath)
		return
	}
	s.status[methodPath] = status
}

// SetDelay holds every response for d before answering.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// RequireAuth rejects requests whose auth query parameter differs from secret.
func (s *Server) RequireAuth(secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = secret
}

// Calls returns how many "METHOD path" requests were received.
func (s *Server) Calls(methodPath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[methodPath]
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path

	s.mu.Lock()
	s.calls[key]++
	delay := s.delay
	status := s.status[key]
	auth := s.auth
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if auth != "" && r.URL.Query().Get("auth") != auth {
		http.Error(w, `{"error":"Permission denied"}`, http.StatusUnauthorized)
		return
	}
	if status != 0 {
		http.Error(w, `{"error":"injected failure"}`, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/health.json" && r.Method == http.MethodGet:
		s.mu.Lock()
		body := s.current
		s.mu.Unlock()
		writeOrNull(w, body)
	case r.URL.Path == "/health.json" && r.Method == http.MethodPut:
		b, err := io.ReadAll(r.Body)
		if err != nil || !json.Valid(b) {
			http.Error(w, `{"error":"Invalid data"}`, http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.current = b
		s.mu.Unlock()
		w.Write(b)
	case r.URL.Path == "/healthHistory.json" && r.Method == http.MethodGet:
		s.mu.Lock()
		var body json.RawMessage
		if len(s.history) > 0 {
			body = mustJSON(s.history)
		}
		s.mu.Unlock()
		writeOrNull(w, body)
	case r.URL.Path == "/healthHistory.json" && r.Method == http.MethodPost:
		b, err := io.ReadAll(r.Body)
		if err != nil || !json.Valid(b) {
			http.Error(w, `{"error":"Invalid data"}`, http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.seq++
		name := fmt.Sprintf("-N%012d", s.seq)
		s.history[name] = b
		s.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"name": name})
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}
}

func writeOrNull(w http.ResponseWriter, body json.RawMessage) {
	if len(strings.TrimSpace(string(body))) == 0 {
		w.Write([]byte("null"))
		return
	}
	w.Write(body)
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
