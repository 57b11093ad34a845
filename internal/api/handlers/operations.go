package handlers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"rewardbridge/internal/core"
	"rewardbridge/internal/external"
	"rewardbridge/internal/redemption"
	"rewardbridge/internal/reports"
	"rewardbridge/internal/scheduler"
	"rewardbridge/internal/types"
)

// RedemptionService is the redemption monitor.
type RedemptionService interface {
	CheckRedemptions(ctx context.Context) (*redemption.CheckReport, error)
	ExpiringRewards(ctx context.Context, withinDays int) ([]redemption.Expiring, error)
}

// ProductSearcher looks up gift-card products. *external.ProductFinder
// satisfies it.
type ProductSearcher interface {
	Search(ctx context.Context, merchant string) ([]external.Product, error)
}

// OrderReader reads a gift-card order from the provider.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (*external.Order, error)
}

// JobControl exposes the scheduler to the API. *scheduler.Scheduler
// satisfies it.
type JobControl interface {
	Status() map[string]scheduler.JobStatus
	RunJob(ctx context.Context, name scheduler.JobName) (*scheduler.JobResult, error)
	ScheduleOneShot(delay time.Duration) time.Time
}

// ReportService builds monthly reports.
type ReportService interface {
	LastMonth(ctx context.Context) (*reports.Monthly, error)
	ForMonth(ctx context.Context, month string) (*reports.Monthly, error)
}

// OperationsHandler serves the redemption, gift-card, scheduler and report
// endpoints.
type OperationsHandler struct {
	redemptions     RedemptionService
	products        ProductSearcher
	orders          OrderReader
	jobs            JobControl
	reports         ReportService
	defaultMerchant string
	testScanDelay   time.Duration
	logger          *slog.Logger
}

// OperationsConfig holds the OperationsHandler's collaborators.
type OperationsConfig struct {
	Redemptions     RedemptionService
	Products        ProductSearcher
	Orders          OrderReader
	Jobs            JobControl
	Reports         ReportService
	DefaultMerchant string
	TestScanDelay   time.Duration
	Logger          *slog.Logger
}

func NewOperationsHandler(cfg OperationsConfig) *OperationsHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OperationsHandler{
		redemptions:     cfg.Redemptions,
		products:        cfg.Products,
		orders:          cfg.Orders,
		jobs:            cfg.Jobs,
		reports:         cfg.Reports,
		defaultMerchant: cfg.DefaultMerchant,
		testScanDelay:   cfg.TestScanDelay,
		logger:          cfg.Logger,
	}
}

func (h *OperationsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/redemptions", func(r chi.Router) {
		r.Post("/check", h.CheckRedemptions)
		r.Get("/expiring", h.Expiring)
	})
	r.Route("/giftcards", func(r chi.Router) {
		r.Get("/products", h.Products)
		r.Get("/orders/{orderID}", h.Order)
	})
	r.Route("/scheduler", func(r chi.Router) {
		r.Get("/status", h.SchedulerStatus)
		r.Post("/jobs/{job}/run", h.RunJob)
		r.Post("/test-scan", h.TestScan)
	})
	r.Get("/reports/rewards.xlsx", h.RewardsWorkbook)
}

func (h *OperationsHandler) CheckRedemptions(w http.ResponseWriter, r *http.Request) {
	rep, err := h.redemptions.CheckRedemptions(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, http.StatusOK, rep)
}

// Expiring lists open cards expiring within ?days (default: the configured
// lookahead).
func (h *OperationsHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", 0)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	items, err := h.redemptions.ExpiringRewards(r.Context(), days)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, http.StatusOK, items)
}

// Products searches ?merchant (default merchant when absent), optionally
// narrowed to face value ?amount.
func (h *OperationsHandler) Products(w http.ResponseWriter, r *http.Request) {
	merchant := strings.TrimSpace(r.URL.Query().Get("merchant"))
	if merchant == "" {
		merchant = h.defaultMerchant
	}
	products, err := h.products.Search(r.Context(), merchant)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("amount"); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidAmount, "amount must be a number", err))
			return
		}
		matched := make([]external.Product, 0, len(products))
		for _, p := range products {
			if p.Matches(amount) {
				matched = append(matched, p)
			}
		}
		products = matched
	}
	if products == nil {
		products = []external.Product{}
	}
	core.OK(w, r, http.StatusOK, products)
}

func (h *OperationsHandler) Order(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, http.StatusOK, order)
}

func (h *OperationsHandler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	core.OK(w, r, http.StatusOK, h.jobs.Status())
}

// RunJob runs a job synchronously. A run skipped because another worker
// holds the lock is a 409.
func (h *OperationsHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name, err := scheduler.ParseJob(chi.URLParam(r, "job"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	actor, _ := types.GetActor(r.Context())
	h.logger.InfoContext(r.Context(), "manual job run requested", "job", name, "actor", actor.ID)

	res, err := h.jobs.RunJob(r.Context(), name)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if res.Status == scheduler.StatusSkipped {
		core.Error(w, r, types.NewAppError(types.ErrCodeConflictJobRunning,
			fmt.Sprintf("%s is already running in another worker", name), nil))
		return
	}
	core.OK(w, r, http.StatusOK, res)
}

type testScanResponse struct {
	Job         scheduler.JobName `json:"job"`
	ScheduledAt time.Time         `json:"scheduled_at"`
}

// TestScan schedules a one-off milestone scan after the configured delay.
func (h *OperationsHandler) TestScan(w http.ResponseWriter, r *http.Request) {
	at := h.jobs.ScheduleOneShot(h.testScanDelay)
	core.OK(w, r, http.StatusAccepted, testScanResponse{Job: scheduler.JobMilestoneScan, ScheduledAt: at})
}

// RewardsWorkbook downloads the report for ?month=YYYY-MM, defaulting to
// last month.
func (h *OperationsHandler) RewardsWorkbook(w http.ResponseWriter, r *http.Request) {
	var (
		m   *reports.Monthly
		err error
	)
	if month := r.URL.Query().Get("month"); month != "" {
		m, err = h.reports.ForMonth(r.Context(), month)
	} else {
		m, err = h.reports.LastMonth(r.Context())
	}
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := reports.WriteXLSX(&buf, m); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to render report", err))
		return
	}
	filename := "rewards-" + m.Stats.From.Format("2006-01") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
