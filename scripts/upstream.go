// Upstream is a flaky HTTP endpoint simulator for exercising the outbound
// client by hand: it returns 500s at a configurable rate, adds latency, and
// can be told to go fully down for a while to watch the circuit trip.
//
// Usage:
//
//	go run upstream.go -port 9001 -failrate 0.3 -latency 200ms
//	curl -X POST localhost:9001/down?for=90s
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type flakyState struct {
	mutex     sync.Mutex
	downUntil time.Time
}

func (s *flakyState) down() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return time.Now().Before(s.downUntil)
}

func (s *flakyState) setDown(d time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.downUntil = time.Now().Add(d)
}

func main() {
	port := flag.Int("port", 9001, "port to listen on")
	failRate := flag.Float64("failrate", 0.0, "fraction of requests answered with 500")
	latency := flag.Duration("latency", 0, "added response latency")
	flag.Parse()

	state := &flakyState{}
	var requests atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if *latency > 0 {
			time.Sleep(*latency)
		}

		n := requests.Add(1)
		log.Printf("request: method=%s path=%s from=%s n=%d", r.Method, r.URL.Path, r.RemoteAddr, n)

		if state.down() {
			// Simulate a dead host: hang until the client gives up
			<-r.Context().Done()
			return
		}

		if rand.Float64() < *failRate {
			http.Error(w, "simulated upstream failure", http.StatusInternalServerError)
			return
		}

		resp := map[string]any{"status": "ok", "served": n}
		b, _ := json.Marshal(resp)
		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	})

	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		d := 60 * time.Second
		if v := r.URL.Query().Get("for"); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				http.Error(w, "invalid duration", http.StatusBadRequest)
				return
			}
			d = parsed
		}

		state.setDown(d)
		log.Printf("going down for %s", d)
		fmt.Fprintf(w, "down for %s\n", d)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("starting flaky upstream on %s (failrate=%.2f latency=%s)", addr, *failRate, *latency)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
