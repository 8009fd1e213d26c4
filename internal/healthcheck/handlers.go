package healthcheck

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthHandler serves /healthz responses.
func HealthHandler(tracker *Tracker, pollInterval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := http.StatusServiceUnavailable
		if tracker.Healthy(time.Now().UTC(), pollInterval) {
			code = http.StatusOK
		}
		writeJSON(w, code, tracker.Snapshot())
	}
}

// ReadyHandler serves /readyz responses.
func ReadyHandler(tracker *Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := http.StatusServiceUnavailable
		if tracker.Ready() {
			code = http.StatusOK
		}
		writeJSON(w, code, tracker.Snapshot())
	}
}

func writeJSON(w http.ResponseWriter, code int, payload Snapshot) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
