// Package control exposes metering and a few mixer actions over HTTP.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"promixer/internal/domain"
	"promixer/internal/ratelimit"
)

// Mixer is the part of the engine the server drives.
type Mixer interface {
	Running() bool
	SampleRate() float64
	Meters() domain.Meters
	State() domain.State
	PlayClip(name string) error
	StopClip(name string) error
	StartRecording(busID string) error
	StopRecording(path string) (string, error)
}

type Server struct {
	addr      string
	authToken string
	mixer     Mixer
	logger    *slog.Logger
	mux       *http.ServeMux
	limiter   *ratelimit.Limiter
	events    *EventLog

	mu      sync.Mutex
	server  *http.Server
	running bool
}

// NewServer serves mixer. Device problems recorded in events are listed by
// GET /events; events may be nil.
func NewServer(addr, authToken string, mixer Mixer, events *EventLog, logger *slog.Logger) *Server {
	if events == nil {
		events = NewEventLog(0)
	}
	s := &Server{
		addr:      addr,
		authToken: authToken,
		mixer:     mixer,
		events:    events,
		logger:    logger,
		mux:       http.NewServeMux(),
		limiter:   ratelimit.New(30, time.Minute), // 30 actions per minute per client
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /meters", s.auth(s.handleMeters))
	s.mux.HandleFunc("GET /state", s.auth(s.handleState))
	s.mux.HandleFunc("GET /events", s.auth(s.handleEvents))
	s.mux.HandleFunc("POST /clips/{name}/play", s.auth(s.limiter.Middleware(s.handleClip(true))))
	s.mux.HandleFunc("POST /clips/{name}/stop", s.auth(s.limiter.Middleware(s.handleClip(false))))
	s.mux.HandleFunc("POST /recording/start", s.auth(s.limiter.Middleware(s.handleRecordingStart)))
	s.mux.HandleFunc("POST /recording/stop", s.auth(s.limiter.Middleware(s.handleRecordingStop)))
	return s
}

func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("control server starting", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("control server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			if err := s.server.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
	}

	s.running = false
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			token := r.Header.Get("X-Auth-Token")
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token != s.authToken {
				s.logger.Warn("unauthorized control request", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	running := s.mixer.Running()

	status := "ok"
	statusCode := http.StatusOK
	if !running {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, statusCode, map[string]any{
		"status":      status,
		"running":     running,
		"sample_rate": s.mixer.SampleRate(),
	})
}

func (s *Server) handleMeters(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.mixer.Meters())
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.mixer.State())
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.events.Events())
}

func (s *Server) handleClip(play bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		action, err := "stopped", error(nil)
		if play {
			action, err = "playing", s.mixer.PlayClip(name)
		} else {
			err = s.mixer.StopClip(name)
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.logger.Info("clip via control server", "clip", name, "action", action)
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": action, "clip": name})
	}
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	bus := r.URL.Query().Get("bus")
	if err := s.mixer.StartRecording(bus); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "recording", "bus": bus})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	path, err := s.mixer.StopRecording(r.URL.Query().Get("path"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "path": path})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnknownClip),
		errors.Is(err, domain.ErrUnknownBus),
		errors.Is(err, domain.ErrUnknownChannel):
		code = http.StatusNotFound
	default:
		s.logger.Error("control request failed", "error", err)
	}
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response", "error", err)
	}
}
