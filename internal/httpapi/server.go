package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/wunderabt/power-meter/internal/logging"
)

// NewServer serves the gateway's observability endpoints on addr.
func NewServer(addr string, mux *http.ServeMux, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           accessLog(logging.OrDefault(logger), mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
