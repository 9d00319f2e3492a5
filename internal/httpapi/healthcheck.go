package httpapi

import (
	"net/http"
	"time"

	"github.com/wunderabt/power-meter/internal/storage"
)

// HealthReporter exposes the persistence log state. Handlers run beside the
// gateway loop and must not open the store themselves.
type HealthReporter interface {
	Health() storage.Health
}

type healthResponse struct {
	Status     string `json:"status"`
	Log        string `json:"log"`
	Appends    int64  `json:"appends"`
	Failures   int64  `json:"failures"`
	LastAppend string `json:"last_append,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

type healthchecker struct {
	health HealthReporter
}

// handleHealthz is unhealthy only while the latest append failed.
func (h *healthchecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s := h.health.Health()
	resp := healthResponse{
		Status:    "ok",
		Log:       "writable",
		Appends:   s.Appends,
		Failures:  s.Failures,
		LastError: s.LastError,
	}
	if !s.LastAppend.IsZero() {
		resp.LastAppend = s.LastAppend.UTC().Format(time.RFC3339)
	}

	status := http.StatusOK
	switch {
	case s.LastError != "":
		status = http.StatusServiceUnavailable
		resp.Status = "degraded"
		resp.Log = "failing"
	case s.Appends == 0:
		resp.Log = "empty"
	}
	writeJSON(w, status, resp)
}

func registerHealthcheck(mux *http.ServeMux, health HealthReporter) {
	h := &healthchecker{health: health}
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}
