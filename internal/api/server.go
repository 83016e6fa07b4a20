// Package api exposes the dispatch HTTP surface: the driver endpoints field
// devices sync against and the board endpoints the dashboard drives.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dispatchboard/internal/board"
	"dispatchboard/internal/config"
	"dispatchboard/internal/database"
	"dispatchboard/internal/domain"
	"dispatchboard/internal/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Server struct {
	cfg    config.APIConfig
	db     *database.DB
	boards *board.Controller
	state  domain.StateRepository
	events domain.EventPublisher
	auth   *Auth
	server *http.Server
	log    zerolog.Logger
}

func NewServer(cfg config.APIConfig, db *database.DB, boards *board.Controller, state domain.StateRepository, bus domain.EventPublisher, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		db:     db,
		boards: boards,
		state:  state,
		events: bus,
		log:    logger.With().Str("component", "api").Logger(),
	}
	s.auth = NewAuth(cfg, state)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/driver/jobs", s.handleDriverJobs)
	mux.HandleFunc("/api/v1/driver/status", s.handleDriverStatus)
	mux.HandleFunc("/api/v1/driver/pod", s.handleDriverPOD)
	mux.HandleFunc("/api/v1/driver/location", s.handleDriverLocation)
	mux.HandleFunc("/api/v1/board", s.handleBoardView)
	mux.HandleFunc("/api/v1/board/dragend", s.handleBoardDragEnd)
	mux.HandleFunc("/api/v1/board/placeholders", s.handleBoardPlaceholder)
	mux.HandleFunc("/api/v1/board/read-markers", s.handleBoardMarkRead)

	handler := s.loggingMiddleware(s.auth.Wrap(mux))

	root := http.NewServeMux()
	root.Handle("/api/", handler)
	root.HandleFunc("/healthz", s.handleHealth)
	root.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return s
}

// Handler exposes the root handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.IncHTTP(r.URL.Path)
		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeAck answers the driver POST endpoints, whose clients treat any 200
// as delivered and inspect the success flag for application rejections.
func writeAck(w http.ResponseWriter, err error) {
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
