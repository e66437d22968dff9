package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/models"
)

// registerRoutes sets up all routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.Handle("/metrics", promhttp.HandlerFor(s.app.Registry, promhttp.HandlerOpts{}))

	// Payout runs
	mux.HandleFunc("/api/payouts/runs", s.handlePayoutRuns)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.app.StartupTime).Round(time.Second).String(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

// handlePayoutRuns lists recent runs on GET and starts a run on POST.
// POST is refused in production, where the scheduler owns runs.
func (s *Server) handlePayoutRuns(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	ctx := r.Context()

	if r.Method == http.MethodGet {
		runs, err := s.app.Storage.RunStore().Recent(ctx, queryInt(r, "limit", 20, 200))
		if err != nil {
			s.logger.Warn().Str("correlation_id", correlationID(ctx)).Err(err).Msg("Failed to list payout runs")
			WriteError(w, http.StatusInternalServerError, "Failed to list payout runs")
			return
		}
		if runs == nil {
			runs = []*models.BatchResult{}
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Manual payout runs disabled in production")
		return
	}

	result, err := s.app.RunPayouts(ctx)
	if err != nil {
		if errors.Is(err, models.ErrRunInProgress) {
			WriteErrorWithCode(w, http.StatusConflict, err.Error(), "run_in_progress")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Payout run failed")
		return
	}
	s.logger.Info().
		Str("correlation_id", correlationID(ctx)).
		Str("run_id", result.RunID).
		Msg("Manual payout run finished")
	WriteJSON(w, http.StatusOK, result)
}
