package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/Ropaxyz/CostcoUKTracker/services/tracker/db"

	"github.com/go-chi/chi/v5"
)

func (s Service) handleRunScheduler(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.RunNow(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "run scheduler: %v", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": "Scheduler run triggered",
	})
}

func (s Service) handleKillSwitch(w http.ResponseWriter, r *http.Request) {
	on := strings.EqualFold(chi.URLParam(r, "state"), "on")
	if err := s.settings.SetKillSwitch(r.Context(), on); err != nil {
		respondError(w, http.StatusInternalServerError, "set kill switch: %v", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"kill_switch": on,
	})
}

type runView struct {
	Id              int64   `json:"id"`
	StartedAt       string  `json:"run_started_at"`
	CompletedAt     *string `json:"run_completed_at"`
	ProductsChecked int64   `json:"products_checked"`
	ProductsUpdated int64   `json:"products_updated"`
	ErrorsCount     int64   `json:"errors_count"`
	Status          string  `json:"status"`
}

func viewRun(run db.SchedulerRun) runView {
	return runView{
		Id:              run.ID,
		StartedAt:       isoTime(run.RunStartedAt),
		CompletedAt:     nullIsoTime(run.RunCompletedAt),
		ProductsChecked: run.ProductsChecked,
		ProductsUpdated: run.ProductsUpdated,
		ErrorsCount:     run.ErrorsCount,
		Status:          run.Status,
	}
}

type errorProductView struct {
	Id                int64   `json:"id"`
	ItemNumber        string  `json:"item_number"`
	Name              *string `json:"name"`
	ConsecutiveErrors int64   `json:"consecutive_errors"`
	LastError         *string `json:"last_error"`
	LastErrorAt       *string `json:"last_error_at"`
}

func (s Service) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	config, err := s.settings.Snapshot(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read settings: %v", err)
		return
	}

	var latest *runView
	run, err := s.tracker.LatestRun(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusInternalServerError, "read latest run: %v", err)
		return
	}
	if err == nil {
		view := viewRun(run)
		latest = &view
	}

	errored, err := s.tracker.ListProductsWithErrors(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list error products: %v", err)
		return
	}
	errorViews := make([]errorProductView, len(errored))
	for i, p := range errored {
		errorViews[i] = errorProductView{
			Id:                p.ID,
			ItemNumber:        p.ItemNumber,
			Name:              nullString(p.Name),
			ConsecutiveErrors: p.ConsecutiveErrors,
			LastError:         nullString(p.LastError),
			LastErrorAt:       nullIsoTime(p.LastErrorAt),
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"running":              s.scheduler.Running(),
		"kill_switch":          config.KillSwitch,
		"safe_mode":            config.SafeMode,
		"latest_run":           latest,
		"products_with_errors": errorViews,
	})
}

func (s Service) handleSchedulerRuns(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	runs, err := s.tracker.ListRuns(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list runs: %v", err)
		return
	}

	out := make([]runView, len(runs))
	for i, run := range runs {
		out[i] = viewRun(run)
	}
	respondJSON(w, http.StatusOK, out)
}
