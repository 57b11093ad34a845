// Package handlers contains the HTTP handlers for the rewardbridge admin API
// and the board webhook. Each handler depends on small locally defined
// service interfaces so it can be tested without the board or the gift-card
// provider.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rewardbridge/internal/core"
	"rewardbridge/internal/scanner"
	"rewardbridge/internal/types"
)

// defaultUpcomingDays is the window of GET /milestones/upcoming without ?days.
const defaultUpcomingDays = 30

// MilestoneService is the read side of the milestone scanner.
type MilestoneService interface {
	Employees(ctx context.Context, department string) ([]scanner.EmployeeView, error)
	Employee(ctx context.Context, itemID string) (scanner.EmployeeView, error)
	TodaysMilestones(ctx context.Context) ([]types.Milestone, error)
	Upcoming(ctx context.Context, days int) ([]types.Milestone, error)
}

// ScanTrigger runs the milestone scan through the job runner so a manual
// scan shares the run-lock with the scheduled one.
type ScanTrigger interface {
	RunScanNow(ctx context.Context) (*scanner.Report, error)
}

// MilestoneHandler serves /milestones.
type MilestoneHandler struct {
	svc     MilestoneService
	trigger ScanTrigger
	logger  *slog.Logger
}

func NewMilestoneHandler(svc MilestoneService, trigger ScanTrigger, logger *slog.Logger) *MilestoneHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MilestoneHandler{svc: svc, trigger: trigger, logger: logger}
}

func (h *MilestoneHandler) RegisterRoutes(r chi.Router) {
	r.Route("/milestones", func(r chi.Router) {
		r.Post("/scan", h.Scan)
		r.Get("/employees", h.ListEmployees)
		r.Get("/employees/{itemID}", h.GetEmployee)
		r.Get("/today", h.Today)
		r.Get("/upcoming", h.Upcoming)
	})
}

// Scan runs the daily scan now and returns its report.
func (h *MilestoneHandler) Scan(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())
	h.logger.InfoContext(r.Context(), "manual milestone scan requested", "actor", actor.ID)

	rep, err := h.trigger.RunScanNow(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, http.StatusOK, rep)
}

func (h *MilestoneHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.Employees(r.Context(), r.URL.Query().Get("department"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, http.StatusOK, views)
}

func (h *MilestoneHandler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Employee(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, http.StatusOK, view)
}

func (h *MilestoneHandler) Today(w http.ResponseWriter, r *http.Request) {
	ms, err := h.svc.TodaysMilestones(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, http.StatusOK, ms)
}

func (h *MilestoneHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", defaultUpcomingDays)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	ms, err := h.svc.Upcoming(r.Context(), days)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, http.StatusOK, ms)
}

// intQuery parses a non-negative integer query parameter.
func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPayload,
			name+" must be a non-negative integer", err, map[string]any{"field": name})
	}
	return n, nil
}
