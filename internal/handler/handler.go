package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/interview"
	"github.com/pavelanni/interviewer/internal/model"
)

// ReportReader reads archived reports.
type ReportReader interface {
	ListReports() ([]model.ReportSummary, error)
	GetReport(sessionID string) (*model.Report, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	engine   *interview.Engine
	reports  ReportReader
	config   model.InterviewConfig
	upgrader websocket.Upgrader
}

// New creates a new Handler. reports may be nil when the archive is disabled.
func New(e *interview.Engine, reports ReportReader, cfg model.InterviewConfig) *Handler {
	return &Handler{
		engine:   e,
		reports:  reports,
		config:   cfg,
		upgrader: newUpgrader(cfg.AllowedOrigins),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.With(i18n.Middleware).Get("/ws", h.handleWS)
	if h.reports != nil {
		r.Get("/reports", h.handleListReports)
		r.Get("/reports/{sessionID}", h.handleGetReport)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": h.engine.ActiveSessions(),
	})
}

func (h *Handler) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reports.ListReports()
	if err != nil {
		slog.Error("failed to list reports", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if reports == nil {
		reports = []model.ReportSummary{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	report, err := h.reports.GetReport(id)
	if err != nil {
		slog.Error("failed to get report", "session_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if report == nil {
		http.Error(w, "report not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
