// Package status serves a read-only HTTP view of the running monitor.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rewired-gh/quotejump/internal/logger"
	"github.com/rewired-gh/quotejump/internal/models"
	"github.com/rewired-gh/quotejump/internal/storage"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// Detector is the live session the server reports on.
type Detector interface {
	Summary() models.Summary
	Tracked() int
}

// Journal is the persisted signal history. Optional.
type Journal interface {
	GetSignal(id string) (*models.Signal, error)
	RecentSignals(k int) ([]models.Signal, error)
	Summary() (models.Summary, error)
}

// Cooldown reports when feed calls resume.
type Cooldown interface {
	Until() time.Time
}

// Server exposes /healthz, /signals and /signals/{id}.
type Server struct {
	detector Detector
	journal  Journal
	cooldown Cooldown
	origins  []string
	started  time.Time
	now      func() time.Time
}

type HealthResponse struct {
	Status        string     `json:"status"`
	Uptime        string     `json:"uptime"`
	Tracked       int        `json:"tracked"`
	CoolingDown   bool       `json:"cooling_down"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

type SignalsResponse struct {
	Session models.Summary  `json:"session"`
	Journal *models.Summary `json:"journal,omitempty"`
	Recent  []models.Signal `json:"recent"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// NewServer creates a status server. journal may be nil when storage is disabled.
func NewServer(detector Detector, journal Journal, cooldown Cooldown, allowedOrigins []string) *Server {
	return &Server{
		detector: detector,
		journal:  journal,
		cooldown: cooldown,
		origins:  allowedOrigins,
		started:  time.Now(),
		now:      time.Now,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.health)
	r.Get("/signals", s.signals)
	r.Get("/signals/{signalID}", s.signal)
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Status server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	resp := HealthResponse{
		Status:  "ok",
		Uptime:  now.Sub(s.started).Truncate(time.Second).String(),
		Tracked: s.detector.Tracked(),
	}
	if s.cooldown != nil {
		if until := s.cooldown.Until(); now.Before(until) {
			resp.CoolingDown = true
			resp.CooldownUntil = &until
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) signals(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", defaultLimit)
	if limit < 1 || limit > maxLimit {
		respondError(w, http.StatusBadRequest, "limit must be between 1 and 200", nil)
		return
	}

	resp := SignalsResponse{
		Session: s.detector.Summary(),
		Recent:  []models.Signal{},
	}
	if s.journal != nil {
		sum, err := s.journal.Summary()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to read journal", err)
			return
		}
		recent, err := s.journal.RecentSignals(limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to read journal", err)
			return
		}
		resp.Journal = &sum
		resp.Recent = recent
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) signal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		respondError(w, http.StatusServiceUnavailable, "signal journal is disabled", nil)
		return
	}
	id := chi.URLParam(r, "signalID")
	sig, err := s.journal.GetSignal(id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "signal not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read journal", err)
		return
	}
	respondJSON(w, http.StatusOK, sig)
}

func parseIntParam(r *http.Request, param string, defaultValue int) int {
	valueStr := r.URL.Query().Get(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return -1
	}
	return value
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("Failed to encode status response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		logger.Error("Status: %s: %v", message, err)
	}
	respondJSON(w, status, errorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
