package eyestest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Stop is one session stop received by the fake Eyes server.
type Stop struct {
	ID      string
	Aborted bool
}

// EyesServer is a fake Eyes REST server. Every session it starts passes
// unless Status says otherwise.
type EyesServer struct {
	*httptest.Server

	// APIKey is the key requests must carry. Empty accepts any key.
	APIKey string

	mu         sync.Mutex
	status     string
	mismatches int
	failStart  int
	starts     []map[string]interface{}
	stops      []Stop
	next       int
}

// NewEyesServer starts a fake Eyes server. Close it when done.
func NewEyesServer() *EyesServer {
	s := &EyesServer{status: "Passed"}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handler))
	return s
}

// SetResult sets the status and mismatch count reported by session stops.
func (s *EyesServer) SetResult(status string, mismatches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status, s.mismatches = status, mismatches
}

// FailStartAfter makes every session start after the first n fail with a
// server error.
func (s *EyesServer) FailStartAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStart = n + 1
}

// Starts returns the startInfo of every session start, including failed ones.
func (s *EyesServer) Starts() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]interface{}(nil), s.starts...)
}

// Stops returns every session stop.
func (s *EyesServer) Stops() []Stop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Stop(nil), s.stops...)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

const runningPath = "/api/sessions/running"

func (s *EyesServer) handler(w http.ResponseWriter, r *http.Request) {
	if s.APIKey != "" && r.URL.Query().Get("apiKey") != s.APIKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid api key"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == runningPath:
		var body struct {
			StartInfo map[string]interface{} `json:"startInfo"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		s.starts = append(s.starts, body.StartInfo)
		if s.failStart > 0 && len(s.starts) >= s.failStart {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "start refused"})
			return
		}
		s.next++
		id := fmt.Sprintf("running-%d", s.next)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":        id,
			"sessionId": fmt.Sprintf("session-%d", s.next),
			"batchId":   "batch",
			"url":       s.URL + "/app/sessions/" + id,
			"isNew":     true,
		})
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, runningPath+"/"):
		stop := Stop{
			ID:      strings.TrimPrefix(r.URL.Path, runningPath+"/"),
			Aborted: r.URL.Query().Get("aborted") == "true",
		}
		s.stops = append(s.stops, stop)
		status := s.status
		if stop.Aborted {
			status = "Unresolved"
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":         stop.ID,
			"status":     status,
			"steps":      1,
			"matches":    1 - min(s.mismatches, 1),
			"mismatches": s.mismatches,
		})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no route " + r.Method + " " + r.URL.Path})
	}
}
