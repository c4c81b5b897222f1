// Package httpapi exposes the session status and lets a host inject
// lifecycle signals over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"voxcam/internal/domain"
	"voxcam/internal/ports"
)

type Session interface {
	ports.StatusSource
	ports.LifecycleSink
}

// NewRouter builds the routes:
//
//	GET  /healthz
//	GET  /v1/status
//	POST /v1/lifecycle/{signal}
func NewRouter(session Session, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/v1/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, session.Status())
	})
	r.Post("/v1/lifecycle/{signal}", func(w http.ResponseWriter, req *http.Request) {
		signal, err := domain.ParseLifecycleSignal(chi.URLParam(req, "signal"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		logger.Info().Str("signal", string(signal)).Str("remote", req.RemoteAddr).Msg("lifecycle signal over http")
		session.Signal(signal)
		writeJSON(w, http.StatusAccepted, map[string]any{"signal": signal})
	})
	return r
}

// Server runs the router until its context ends.
type Server struct {
	addr    string
	handler http.Handler
	logger  zerolog.Logger
}

func NewServer(addr string, session Session, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "http").Logger()
	return &Server{addr: addr, handler: NewRouter(session, logger), logger: logger}
}

// Run listens on the configured address and shuts down gracefully when ctx ends.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, listener)
}

func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", listener.Addr().String()).Msg("http api started")
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("http shutdown failed")
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
