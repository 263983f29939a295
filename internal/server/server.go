// Package server exposes the call query and control API, the audio ingest
// websocket and the dashboard event stream over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"time"
)

type Deps struct {
	Calls   CallService
	Hub     *Hub
	Gateway IngestServer
	Logger  *slog.Logger
}

func Handler(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := d.Hub
	if hub == nil {
		hub = NewHub(logger)
	}

	mux := http.NewServeMux()
	registerWSRoutes(mux, hub, d.Gateway, logger)
	registerAPIRoutes(mux, d.Calls, logger)
	return mux
}

// New returns the HTTP server for addr. The caller owns ListenAndServe and
// Shutdown.
func New(addr string, d Deps) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           Handler(d),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
