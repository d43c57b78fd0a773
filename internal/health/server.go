// Package health exposes a lightweight HTTP health endpoint for container
// probes and basic moderation diagnostics.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"tg_antispam_bot/internal/logging"
	"tg_antispam_bot/internal/state"
)

const (
	readHeaderTimeout  = 2 * time.Second
	healthListenPrefix = ":"
)

// StoreChecker reports whether the state database is usable.
type StoreChecker interface {
	Healthy() error
}

// StatsProvider supplies tracked-state counts for the diagnostics payload.
type StatsProvider interface {
	Stats() state.Stats
}

// Server hosts the health endpoint and owns the underlying HTTP server.
type Server struct {
	server       *http.Server
	logger       *logrus.Entry
	storeChecker StoreChecker
	stats        StatsProvider
}

type response struct {
	Status          string `json:"status"`
	Store           string `json:"store,omitempty"`
	TrackedChats    int    `json:"tracked_chats"`
	TrackedMembers  int    `json:"tracked_members"`
	ProhibitedWords int    `json:"prohibited_words"`
	OwnerClaimed    bool   `json:"owner_claimed"`
}

// NewServer constructs a health server that exposes GET /healthz on the
// provided port.
func NewServer(port int, storeChecker StoreChecker, stats StatsProvider, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		logger:       logger,
		storeChecker: storeChecker,
		stats:        stats,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", healthListenPrefix, port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// ListenAndServe starts the health server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "health_listen",
		"addr":  s.server.Addr,
	}).Info("starting health server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "health_stopped").Info("health server stopped")
			return nil
		}

		return fmt.Errorf("health server listen: %w", err)
	}

	s.logger.WithField("event", "health_stopped").Info("health server stopped")
	return nil
}

// Shutdown gracefully stops the health server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := response{Status: "ok"}

	if s.stats != nil {
		stats := s.stats.Stats()
		resp.TrackedChats = stats.TrackedChats
		resp.TrackedMembers = stats.TrackedMembers
		resp.ProhibitedWords = stats.Words
		resp.OwnerClaimed = stats.OwnerClaimed
	}

	if s.storeChecker == nil {
		resp.Status = "degraded"
		resp.Store = "error"
		s.logger.WithField("event", "health_store_missing").Warn("store checker is not configured for health endpoint")
	} else if err := s.storeChecker.Healthy(); err != nil {
		resp.Status = "degraded"
		resp.Store = "error"
		s.logger.WithField("event", "health_store_error").WithError(err).Warn("state database unhealthy during health check")
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithField("event", "health_write_error").WithError(err).Error("failed to encode health response")
	}
}
