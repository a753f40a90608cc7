package httpserver

import (
	"encoding/json"
	"net/http"
)

// TelemetryHandler builds the telemetry mux: metricsHandler on /metrics and
// a JSON rendering of stats on /stats. stats is called per request so the
// page is always current.
func TelemetryHandler(metricsHandler http.Handler, stats func() any) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := json.NewEncoder(w).Encode(stats()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return mux
}
