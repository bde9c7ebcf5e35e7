// Command capacity is a local target with a fixed concurrency budget. Requests
// beyond the budget get 503, so a rampfire run against it shows the controller
// climbing to the budget, backing off and climbing again.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"
)

type server struct {
	capacity int64
	latency  time.Duration
	inFlight atomic.Int64
	served   atomic.Int64
	rejected atomic.Int64
}

func main() {
	port := flag.Int("port", 8080, "Listening port")
	capacity := flag.Int("capacity", 32, "Concurrent requests served before answering 503")
	latency := flag.Duration("latency", 20*time.Millisecond, "Time spent on each accepted request")
	flag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}
	if *capacity <= 0 {
		log.Fatalf("capacity must be > 0")
	}

	s := &server{capacity: int64(*capacity), latency: *latency}

	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/", s.handleLoad)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("capacity server listening on %s (capacity %d, latency %s)", addr, *capacity, *latency)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func (s *server) handleLoad(w http.ResponseWriter, r *http.Request) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	if n > s.capacity {
		s.rejected.Add(1)
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "over capacity", "in_flight": n})
		return
	}

	select {
	case <-time.After(s.latency):
	case <-r.Context().Done():
		return
	}

	s.served.Add(1)
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "in_flight": n})
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"capacity":  s.capacity,
		"in_flight": s.inFlight.Load(),
		"served":    s.served.Load(),
		"rejected":  s.rejected.Load(),
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
