package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nholik/openstack-service-checks/internal/healthcheck"
	"github.com/nholik/openstack-service-checks/internal/metrics"
)

func TestMuxes(t *testing.T) {
	tracker := healthcheck.NewTracker()
	tracker.RecordPass(time.Millisecond, 2, "active", "Unit is ready")
	status := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name   string
		opts   Options
		routes map[int]map[string]int
	}{
		{
			name:   "disabled",
			opts:   Options{},
			routes: map[int]map[string]int{},
		},
		{
			name: "shared port",
			opts: Options{HealthPort: 9100, MetricsPort: 9100},
			routes: map[int]map[string]int{
				9100: {"/healthz": http.StatusOK, "/readyz": http.StatusOK, "/metrics": http.StatusOK, "/status": http.StatusNotFound},
			},
		},
		{
			name: "split ports with status",
			opts: Options{HealthPort: 9100, MetricsPort: 9200, Status: status},
			routes: map[int]map[string]int{
				9100: {"/healthz": http.StatusOK, "/status": http.StatusTeapot, "/metrics": http.StatusNotFound},
				9200: {"/metrics": http.StatusOK, "/healthz": http.StatusNotFound},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Tracker = tracker
			tt.opts.Metrics = metrics.New()
			tt.opts.PollInterval = time.Minute

			muxes := Muxes(tt.opts)
			if len(muxes) != len(tt.routes) {
				t.Fatalf("expected %d muxes, got %d", len(tt.routes), len(muxes))
			}
			for port, routes := range tt.routes {
				mux, ok := muxes[port]
				if !ok {
					t.Fatalf("missing mux for port %d", port)
				}
				for path, want := range routes {
					rec := httptest.NewRecorder()
					mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
					if rec.Code != want {
						t.Fatalf("port %d %s: expected %d, got %d", port, path, want, rec.Code)
					}
				}
			}
		})
	}
}
