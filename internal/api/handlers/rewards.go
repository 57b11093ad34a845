package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rewardbridge/internal/approval"
	"rewardbridge/internal/core"
	"rewardbridge/internal/rewards"
	"rewardbridge/internal/types"
)

const defaultStatisticsDays = 30

// RewardService is the performance reward workflow.
type RewardService interface {
	CreatePerformanceReward(ctx context.Context, in approval.CreateRewardInput) (*approval.Created, error)
	ListRewards(ctx context.Context, f approval.Filter) ([]types.RewardItem, error)
	ProcessApproval(ctx context.Context, itemID, managerID string, decision types.Decision, comments string) (*approval.Result, error)
	AutoAssignManager(ctx context.Context, itemID, department string) (string, error)
	GetPendingApprovals(ctx context.Context, managerID string) ([]approval.Pending, error)
	GetAllPendingApprovals(ctx context.Context) ([]approval.Pending, error)
	SendOverdueReminders(ctx context.Context) (*approval.ReminderReport, error)
	Statistics(ctx context.Context, since time.Time) (*approval.Statistics, error)
	Tiers() *rewards.TierEngine
}

// ApprovalRequest is the body of POST /rewards/{itemID}/approval.
type ApprovalRequest struct {
	ManagerID string `json:"manager_id" validate:"required"`
	Decision  string `json:"decision" validate:"required"`
	Comments  string `json:"comments" validate:"max=2000"`
}

// AssignRequest is the body of POST /rewards/{itemID}/assign. An empty
// department uses the reward's own.
type AssignRequest struct {
	Department string `json:"department" validate:"max=100"`
}

type assignResponse struct {
	ItemID          string `json:"item_id"`
	AssignedManager string `json:"assigned_manager"`
}

// RewardHandler serves /rewards.
type RewardHandler struct {
	svc       RewardService
	validator *core.Validator
	logger    *slog.Logger
}

func NewRewardHandler(svc RewardService, v *core.Validator, logger *slog.Logger) *RewardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if v == nil {
		v = core.NewValidator(logger)
	}
	return &RewardHandler{svc: svc, validator: v, logger: logger}
}

func (h *RewardHandler) RegisterRoutes(r chi.Router) {
	r.Route("/rewards", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/pending", h.Pending)
		r.Post("/reminders", h.SendReminders)
		r.Get("/statistics", h.Statistics)
		r.Get("/tiers", h.Tiers)
		r.Post("/{itemID}/approval", h.ProcessApproval)
		r.Post("/{itemID}/assign", h.Assign)
	})
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in approval.CreateRewardInput
	if err := core.DecodeJSON(w, r, &in); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(in); err != nil {
		core.Error(w, r, err)
		return
	}
	created, err := h.svc.CreatePerformanceReward(r.Context(), in)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, http.StatusCreated, created)
}

// List filters by ?status, ?department, ?tier and ?manager.
func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.svc.ListRewards(r.Context(), approval.Filter{
		Status:     types.ApprovalStatus(q.Get("status")),
		Department: q.Get("department"),
		Tier:       types.RewardTier(q.Get("tier")),
		Manager:    q.Get("manager"),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, http.StatusOK, items)
}

func (h *RewardHandler) ProcessApproval(w http.ResponseWriter, r *http.Request) {
	var req ApprovalRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	decision, err := types.ParseDecision(req.Decision)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	res, err := h.svc.ProcessApproval(r.Context(), chi.URLParam(r, "itemID"), req.ManagerID, decision, req.Comments)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, http.StatusOK, res)
}

func (h *RewardHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
	}
	itemID := chi.URLParam(r, "itemID")
	manager, err := h.svc.AutoAssignManager(r.Context(), itemID, req.Department)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if manager == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidPayload,
			"no manager is configured for the reward's department", nil))
		return
	}
	core.OK(w, r, http.StatusOK, assignResponse{ItemID: itemID, AssignedManager: manager})
}

// Pending lists pending approvals, for one manager when ?manager is set.
func (h *RewardHandler) Pending(w http.ResponseWriter, r *http.Request) {
	var (
		pending []approval.Pending
		err     error
	)
	if manager := r.URL.Query().Get("manager"); manager != "" {
		pending, err = h.svc.GetPendingApprovals(r.Context(), manager)
	} else {
		pending, err = h.svc.GetAllPendingApprovals(r.Context())
	}
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, http.StatusOK, pending)
}

func (h *RewardHandler) SendReminders(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.SendOverdueReminders(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, http.StatusOK, rep)
}

// Statistics covers the last ?days days (default 30).
func (h *RewardHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", defaultStatisticsDays)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	since := time.Now().AddDate(0, 0, -days)
	st, err := h.svc.Statistics(r.Context(), since)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, http.StatusOK, st)
}

func (h *RewardHandler) Tiers(w http.ResponseWriter, r *http.Request) {
	core.OK(w, r, http.StatusOK, h.svc.Tiers().Bands())
}
