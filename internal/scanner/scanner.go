// Package scanner runs the daily milestone scan: it finds employees whose
// birthday or work anniversary is today, orders and activates a gift card
// for each, and writes the outcome back to the employee board.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"rewardbridge/internal/board"
	"rewardbridge/internal/external"
	"rewardbridge/internal/metrics"
	"rewardbridge/internal/milestone"
	"rewardbridge/internal/notifications"
	"rewardbridge/internal/types"
)

// VoucherFallback is written when activation returns no voucher code.
const VoucherFallback = "Voucher details will be emailed"

// EmployeeStore is the employee-board surface the scan needs.
type EmployeeStore interface {
	ListEmployees(ctx context.Context) ([]types.EmployeeRecord, error)
	GetEmployee(ctx context.Context, itemID string) (types.EmployeeRecord, error)
	UpdateEmployee(ctx context.Context, itemID string, u board.EmployeeUpdate) error
}

// OrderPlacer creates and activates gift-card orders.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, req external.OrderRequest) (*external.Order, error)
	ActivateOrder(ctx context.Context, orderID string, data external.ActivationData) (*external.Activation, error)
}

// Notifier is satisfied by *notifications.Dispatcher.
type Notifier interface {
	Send(ctx context.Context, n notifications.Notification)
}

// Product identifies the gift card ordered for every milestone.
type Product struct {
	Code     string
	Merchant string
	Currency string
}

// Result is the outcome of one milestone.
type Result struct {
	ItemID        string              `json:"item_id"`
	Employee      string              `json:"employee"`
	MilestoneType types.MilestoneType `json:"milestone_type"`
	Amount        decimal.Decimal     `json:"amount"`
	Success       bool                `json:"success"`
	OrderID       string              `json:"order_id,omitempty"`
	VoucherCode   string              `json:"voucher_code,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// Report summarizes one scan.
type Report struct {
	Date            types.Date `json:"date"`
	TotalEmployees  int        `json:"total_employees"`
	MilestonesToday int        `json:"milestones_today"`
	Succeeded       int        `json:"succeeded"`
	Failed          int        `json:"failed"`
	Results         []Result   `json:"results"`
}

// Summary is a one-line description for logs and chat.
func (r *Report) Summary() string {
	return fmt.Sprintf("Milestone scan %s: %d employees, %d milestones, %d delivered, %d failed",
		r.Date, r.TotalEmployees, r.MilestonesToday, r.Succeeded, r.Failed)
}

// Stats converts the report for the metrics recorder.
func (r *Report) Stats() metrics.ScanStats {
	return metrics.ScanStats{
		Employees:  r.TotalEmployees,
		Milestones: r.MilestonesToday,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
	}
}

// Scanner orchestrates the daily scan.
type Scanner struct {
	store    EmployeeStore
	orders   OrderPlacer
	detector milestone.Detector
	notifier Notifier
	metrics  metrics.Recorder
	product  Product
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Scanner) { s.metrics = r }
}

// New creates a Scanner. loc is the business timezone in which "today" is
// evaluated.
func New(store EmployeeStore, orders OrderPlacer, detector milestone.Detector, notifier Notifier, product Product, loc *time.Location, logger *slog.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	s := &Scanner{
		store:    store,
		orders:   orders,
		detector: detector,
		notifier: notifier,
		metrics:  metrics.Noop{},
		product:  product,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current business date.
func (s *Scanner) Today() types.Date {
	return types.Today(s.now(), s.loc)
}

// ScanAndProcessMilestones runs one scan. Failing to read the board aborts
// the scan; every other failure is confined to its employee's result.
// Milestones are processed one at a time in board order.
func (s *Scanner) ScanAndProcessMilestones(ctx context.Context) (*Report, error) {
	today := s.Today()
	s.logger.InfoContext(ctx, "milestone scan started", "date", today.String())

	employees, err := s.store.ListEmployees(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "milestone scan aborted: employee board unavailable", "error", err)
		return nil, err
	}

	found := s.detector.TodaysMilestones(employees, today)
	report := &Report{
		Date:            today,
		TotalEmployees:  len(employees),
		MilestonesToday: len(found),
		Results:         make([]Result, 0, len(found)),
	}

	for _, m := range found {
		if err := ctx.Err(); err != nil {
			s.logger.WarnContext(ctx, "milestone scan interrupted",
				"processed", len(report.Results),
				"remaining", len(found)-len(report.Results),
			)
			return report, err
		}
		res := s.ProcessMilestone(ctx, m, today)
		if res.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, res)
	}

	s.metrics.RecordScan(ctx, report.Stats())
	s.logger.InfoContext(ctx, "milestone scan completed",
		"date", today.String(),
		"employees", report.TotalEmployees,
		"milestones", report.MilestonesToday,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
	)
	return report, nil
}

// ProcessMilestone delivers one milestone reward: mark Sent, order, activate,
// then record Delivered with the voucher and the employee's next milestone.
// An order or activation failure marks the employee Error and is reported;
// a failed final write-back is only logged.
func (s *Scanner) ProcessMilestone(ctx context.Context, m types.Milestone, today types.Date) Result {
	emp := m.Employee
	res := Result{
		ItemID:        emp.ItemID,
		Employee:      emp.Name,
		MilestoneType: m.Type,
		Amount:        m.Amount,
	}
	log := s.logger.With("item_id", emp.ItemID, "employee", emp.Name, "milestone_type", string(m.Type))

	sent := types.ProcessingSent
	if err := s.store.UpdateEmployee(ctx, emp.ItemID, board.EmployeeUpdate{
		Status:        &sent,
		LastProcessed: &today,
	}); err != nil {
		log.WarnContext(ctx, "failed to mark employee as sent", "error", err)
	}

	order, err := s.orders.CreateOrder(ctx, external.OrderRequest{
		ProductCode:    s.product.Code,
		Merchant:       s.product.Merchant,
		Currency:       s.product.Currency,
		ValuePurchased: m.Amount,
		EmployeeName:   emp.Name,
		MilestoneType:  string(m.Type),
		OrderReference: OrderReference(emp.ItemID, string(m.Type), today),
	})
	if err != nil {
		return s.fail(ctx, log, res, today, fmt.Errorf("creating gift card order: %w", err))
	}
	res.OrderID = order.ID
	log.InfoContext(ctx, "gift card order created", "order_id", order.ID, "amount", m.Amount.String())

	act, err := s.orders.ActivateOrder(ctx, order.ID, external.ActivationData{EmployeeName: emp.Name})
	if err != nil {
		return s.fail(ctx, log, res, today, fmt.Errorf("activating order %s: %w", order.ID, err))
	}

	voucher := act.Order.VoucherCode
	if voucher == "" {
		voucher = order.VoucherCode
	}
	if voucher == "" {
		voucher = VoucherFallback
	}
	res.VoucherCode = voucher
	res.Success = true

	delivered := types.ProcessingDelivered
	update := board.EmployeeUpdate{
		Status:        &delivered,
		LastProcessed: &today,
		GiftCardCode:  &voucher,
	}
	if next, ok := s.detector.Next(emp, today.AddDays(1)); ok {
		update.NextMilestone = &next.Date
		update.MilestoneType = &next.Type
		update.GiftCardAmount = &next.Amount
	}
	if err := s.store.UpdateEmployee(ctx, emp.ItemID, update); err != nil {
		log.ErrorContext(ctx, "gift card delivered but board write-back failed", "order_id", order.ID, "error", err)
	}

	s.metrics.RecordGiftCard(ctx, "milestone", metrics.ResultSuccess)
	s.notifier.Send(ctx, notifications.MilestoneDelivered(m, voucher))
	log.InfoContext(ctx, "milestone delivered", "order_id", order.ID)
	return res
}

func (s *Scanner) fail(ctx context.Context, log *slog.Logger, res Result, today types.Date, err error) Result {
	log.ErrorContext(ctx, "failed to process milestone", "error", err)
	res.Success = false
	res.Error = err.Error()

	status := types.ProcessingError
	code := "Error: " + err.Error()
	if werr := s.store.UpdateEmployee(ctx, res.ItemID, board.EmployeeUpdate{
		Status:        &status,
		LastProcessed: &today,
		GiftCardCode:  &code,
	}); werr != nil {
		log.WarnContext(ctx, "failed to record milestone error on board", "error", werr)
	}
	s.metrics.RecordGiftCard(ctx, "milestone", metrics.ResultFailed)
	return res
}

// OrderReference is the idempotency reference sent with each order:
// "{itemID}-{type}-{YYYY-MM-DD}".
func OrderReference(itemID, kind string, date types.Date) string {
	return fmt.Sprintf("%s-%s-%s", itemID, kind, date)
}
