package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/report"
)

// ReportService is what the report endpoints need from the run service.
type ReportService interface {
	RunOnce(ctx context.Context) (domain.Report, error)
	Latest(ctx context.Context) (domain.Report, error)
	Runs(ctx context.Context, limit int) ([]domain.RunSummary, error)
	Strategies() []domain.Strategy
}

// ReportHandler serves reports, run history and pass triggers.
type ReportHandler struct {
	svc    ReportService
	busy   func(error) bool
	logger *slog.Logger
}

// NewReportHandler creates a ReportHandler. busy reports whether a RunOnce
// error means a pass is already running.
func NewReportHandler(svc ReportService, busy func(error) bool, logger *slog.Logger) *ReportHandler {
	if busy == nil {
		busy = func(error) bool { return false }
	}
	return &ReportHandler{svc: svc, busy: busy, logger: logger.With(slog.String("handler", "report"))}
}

// GetReport returns the latest full report.
// GET /api/report
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.latest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GetSummary returns the ranked summary of the latest report, optionally
// filtered by ?source=.
// GET /api/report/summary
func (h *ReportHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	var only domain.PriceSource
	if v := r.URL.Query().Get("source"); v != "" {
		src, err := domain.ParsePriceSource(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		only = src
	}

	rep, ok := h.latest(w, r)
	if !ok {
		return
	}
	rows := report.Summary(rep)
	if only != "" {
		filtered := rows[:0]
		for _, row := range rows {
			if row.Source == only {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":      rep.RunID,
		"finished_at": rep.FinishedAt,
		"rows":        rows,
	})
}

// TriggerRun starts a pass. By default the pass runs in the background and
// the call returns 202; with ?wait=true it blocks and returns the summary.
// POST /api/report/run
func (h *ReportHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") == "true" {
		rep, err := h.svc.RunOnce(r.Context())
		if err != nil {
			if h.busy(err) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			if rep.RunID == "" {
				h.logger.ErrorContext(r.Context(), "triggered pass failed", slog.String("error", err.Error()))
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			// The pass produced a report but a sink failed.
			h.logger.WarnContext(r.Context(), "triggered pass partially failed", slog.String("error", err.Error()))
		}
		total, incomplete := rep.Counts()
		writeJSON(w, http.StatusOK, map[string]any{
			"run_id":     rep.RunID,
			"pairs":      total,
			"incomplete": incomplete,
			"rows":       report.Summary(rep),
		})
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		if _, err := h.svc.RunOnce(ctx); err != nil {
			h.logger.WarnContext(ctx, "background pass", slog.String("error", err.Error()))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListRuns returns stored run summaries.
// GET /api/runs
func (h *ReportHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.svc.Runs(r.Context(), queryLimit(r, 20, 200))
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			writeError(w, http.StatusNotImplemented, "run history is not persisted")
			return
		}
		h.logger.ErrorContext(r.Context(), "list runs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []domain.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// ListStrategies returns the active strategy set.
// GET /api/strategies
func (h *ReportHandler) ListStrategies(w http.ResponseWriter, _ *http.Request) {
	strategies := h.svc.Strategies()
	if strategies == nil {
		strategies = []domain.Strategy{}
	}
	writeJSON(w, http.StatusOK, strategies)
}

func (h *ReportHandler) latest(w http.ResponseWriter, r *http.Request) (domain.Report, bool) {
	rep, err := h.svc.Latest(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no report yet")
			return domain.Report{}, false
		}
		h.logger.ErrorContext(r.Context(), "load latest report", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return domain.Report{}, false
	}
	return rep, true
}
