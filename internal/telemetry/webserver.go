package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/sdrlab/txwave/internal/logging"
)

// WebServer exposes the hub over HTTP: status, transition history, live
// SSE updates, the latest IQ snapshot and its spectrum, and parameter
// updates. It serves JSON only; rendering is the consumer's concern.
type WebServer struct {
	srv    *http.Server
	hub    *Hub
	logger logging.Logger
}

// NewWebServer builds an HTTP server around the hub.
func NewWebServer(addr string, hub *Hub, logger logging.Logger) *WebServer {
	if logger == nil {
		logger = logging.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", hub.handleStatus)
	mux.HandleFunc("/api/history", hub.handleHistory)
	mux.HandleFunc("/api/live", hub.handleLive)
	mux.HandleFunc("/api/iq", hub.handleIQ)
	mux.HandleFunc("/api/spectrum", hub.handleSpectrum)
	mux.HandleFunc("/api/params", hub.handleParams)

	return &WebServer{
		hub:    hub,
		logger: logger.With(logging.Field{Key: "subsystem", Value: "webserver"}),
		srv:    &http.Server{Addr: addr, Handler: mux},
	}
}

// Start begins serving in a background goroutine.
func (s *WebServer) Start() {
	go func() {
		s.logger.Info("listening", logging.Field{Key: "addr", Value: s.srv.Addr})
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("serve failed", logging.Field{Key: "err", Value: err})
		}
	}()
}

// Shutdown stops the server, waiting up to five seconds for in-flight
// requests.
func (s *WebServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
