// Package redemption tracks issued performance gift cards: it polls the
// provider for usage, records partial and full redemption on the rewards
// board, warns employees before cards expire, and marks lapsed cards Expired.
package redemption

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"rewardbridge/internal/board"
	"rewardbridge/internal/external"
	"rewardbridge/internal/notifications"
	"rewardbridge/internal/types"
)

// Defaults applied when MonitorConfig leaves a window unset.
const (
	DefaultWarningDays   = 7
	DefaultLookaheadDays = 30
)

// RewardStore is the rewards-board surface the monitor uses.
type RewardStore interface {
	ListRewards(ctx context.Context) ([]types.RewardItem, error)
	UpdateReward(ctx context.Context, itemID string, u board.RewardUpdate) error
}

// OrderReader reads order status from the gift-card provider.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (*external.Order, error)
}

// Notifier is satisfied by *notifications.Dispatcher.
type Notifier interface {
	Send(ctx context.Context, n notifications.Notification)
}

type MonitorConfig struct {
	Store         RewardStore
	Orders        OrderReader
	Notifier      Notifier
	WarningDays   int
	LookaheadDays int
	Location      *time.Location
	Now           func() time.Time
	Logger        *slog.Logger
}

// Monitor is the redemption service.
type Monitor struct {
	store         RewardStore
	orders        OrderReader
	notifier      Notifier
	warningDays   int
	lookaheadDays int
	loc           *time.Location
	now           func() time.Time
	logger        *slog.Logger
}

func NewMonitor(cfg MonitorConfig) *Monitor {
	m := &Monitor{
		store:         cfg.Store,
		orders:        cfg.Orders,
		notifier:      cfg.Notifier,
		warningDays:   cfg.WarningDays,
		lookaheadDays: cfg.LookaheadDays,
		loc:           cfg.Location,
		now:           cfg.Now,
		logger:        cfg.Logger,
	}
	if m.warningDays <= 0 {
		m.warningDays = DefaultWarningDays
	}
	if m.lookaheadDays <= 0 {
		m.lookaheadDays = DefaultLookaheadDays
	}
	if m.loc == nil {
		m.loc = time.UTC
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

func (m *Monitor) today() types.Date { return types.Today(m.now(), m.loc) }

// Outcome is the result of checking one gift card.
type Outcome struct {
	ItemID   string                 `json:"item_id"`
	OrderID  string                 `json:"order_id"`
	Previous types.RedemptionStatus `json:"previous_status"`
	Status   types.RedemptionStatus `json:"status"`
	Used     decimal.Decimal        `json:"used"`
	Changed  bool                   `json:"changed"`
	Error    string                 `json:"error,omitempty"`
}

// CheckReport summarizes one redemption pass.
type CheckReport struct {
	Checked       int       `json:"checked"`
	Updated       int       `json:"updated"`
	FullyRedeemed int       `json:"fully_redeemed"`
	Failed        int       `json:"failed"`
	Results       []Outcome `json:"results"`
}

// Summary is a one-line description for logs and chat.
func (r *CheckReport) Summary() string {
	return fmt.Sprintf("Redemption check: %d checked, %d updated, %d fully redeemed, %d failed",
		r.Checked, r.Updated, r.FullyRedeemed, r.Failed)
}

// StatusFor classifies usage against the card amount.
func StatusFor(used, amount decimal.Decimal) types.RedemptionStatus {
	switch {
	case amount.IsPositive() && used.GreaterThanOrEqual(amount):
		return types.RedemptionFullyRedeemed
	case used.IsPositive():
		return types.RedemptionPartiallyUsed
	default:
		return types.RedemptionIssued
	}
}

// ROI is the target value delivered per unit of reward spent, to two
// decimal places. Zero when nothing has been redeemed.
func ROI(target, used decimal.Decimal) decimal.Decimal {
	if !used.IsPositive() {
		return decimal.Zero
	}
	return target.Div(used).Round(2)
}

// CheckRedemptions polls every open gift card that has an order id. One
// card's failure is recorded on its outcome and does not stop the pass.
func (m *Monitor) CheckRedemptions(ctx context.Context) (*CheckReport, error) {
	items, err := m.store.ListRewards(ctx)
	if err != nil {
		return nil, err
	}
	report := &CheckReport{}
	for _, it := range items {
		if !it.RedemptionStatus.Open() || it.OrderID == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		out := m.check(ctx, it)
		report.Checked++
		switch {
		case out.Error != "":
			report.Failed++
		case out.Changed:
			report.Updated++
			if out.Status == types.RedemptionFullyRedeemed {
				report.FullyRedeemed++
			}
		}
		report.Results = append(report.Results, out)
	}
	m.logger.InfoContext(ctx, "redemption check completed",
		"checked", report.Checked,
		"updated", report.Updated,
		"fully_redeemed", report.FullyRedeemed,
		"failed", report.Failed,
	)
	return report, nil
}

func (m *Monitor) check(ctx context.Context, it types.RewardItem) Outcome {
	out := Outcome{ItemID: it.ItemID, OrderID: it.OrderID, Previous: it.RedemptionStatus, Status: it.RedemptionStatus}

	order, err := m.orders.GetOrder(ctx, it.OrderID)
	if err != nil {
		m.logger.WarnContext(ctx, "order lookup failed", "item_id", it.ItemID, "order_id", it.OrderID, "error", err)
		out.Error = err.Error()
		return out
	}
	out.Used = order.AmountUsed
	amount := it.GiftCardAmount
	if !amount.IsPositive() {
		amount = order.ValuePurchased
	}
	status := StatusFor(order.AmountUsed, amount)
	if status == it.RedemptionStatus && order.AmountUsed.Equal(it.RedemptionValue) {
		return out
	}

	roi := ROI(it.TargetValue, order.AmountUsed)
	if err := m.store.UpdateReward(ctx, it.ItemID, board.RewardUpdate{
		RedemptionStatus: &status,
		RedemptionValue:  &out.Used,
		ROIImpact:        &roi,
	}); err != nil {
		m.logger.WarnContext(ctx, "failed to record redemption", "item_id", it.ItemID, "error", err)
		out.Error = err.Error()
		return out
	}
	out.Status = status
	out.Changed = true

	if status == types.RedemptionFullyRedeemed && it.RedemptionStatus != types.RedemptionFullyRedeemed {
		m.notifier.Send(ctx, notifications.FullyRedeemed(it))
	}
	return out
}

// Expiring is an open gift card approaching its expiry date.
type Expiring struct {
	types.RewardItem
	DaysLeft  int             `json:"days_left"`
	Remaining decimal.Decimal `json:"remaining"`
}

// ExpiringRewards lists open cards expiring within withinDays days, soonest
// first. withinDays <= 0 uses the configured lookahead.
func (m *Monitor) ExpiringRewards(ctx context.Context, withinDays int) ([]Expiring, error) {
	if withinDays <= 0 {
		withinDays = m.lookaheadDays
	}
	items, err := m.store.ListRewards(ctx)
	if err != nil {
		return nil, err
	}
	today := m.today()
	var out []Expiring
	for _, it := range items {
		if !it.RedemptionStatus.Open() || it.ExpiryDate.IsZero() {
			continue
		}
		left := today.DaysUntil(it.ExpiryDate)
		if left < 0 || left > withinDays {
			continue
		}
		out = append(out, Expiring{RewardItem: it, DaysLeft: left, Remaining: remaining(it)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DaysLeft < out[j].DaysLeft })
	return out, nil
}

func remaining(it types.RewardItem) decimal.Decimal {
	r := it.GiftCardAmount.Sub(it.RedemptionValue)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// ExpiryReport summarizes one expiry pass.
type ExpiryReport struct {
	Warned  int `json:"warned"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// Summary is a one-line description for logs and chat.
func (r *ExpiryReport) Summary() string {
	return fmt.Sprintf("Expiry check: %d warned, %d expired, %d failed", r.Warned, r.Expired, r.Failed)
}

// SendExpiryWarnings warns the holder of every open card within the warning
// window and marks cards past their expiry date Expired.
func (m *Monitor) SendExpiryWarnings(ctx context.Context) (*ExpiryReport, error) {
	items, err := m.store.ListRewards(ctx)
	if err != nil {
		return nil, err
	}
	today := m.today()
	report := &ExpiryReport{}
	for _, it := range items {
		if !it.RedemptionStatus.Open() || it.ExpiryDate.IsZero() {
			continue
		}
		left := today.DaysUntil(it.ExpiryDate)
		switch {
		case left < 0:
			expired := types.RedemptionExpired
			if err := m.store.UpdateReward(ctx, it.ItemID, board.RewardUpdate{RedemptionStatus: &expired}); err != nil {
				m.logger.WarnContext(ctx, "failed to mark gift card expired", "item_id", it.ItemID, "error", err)
				report.Failed++
				continue
			}
			report.Expired++
		case left <= m.warningDays:
			m.notifier.Send(ctx, notifications.ExpiryWarning(it, remaining(it), left))
			report.Warned++
		}
	}
	m.logger.InfoContext(ctx, "expiry warnings processed",
		"warned", report.Warned,
		"expired", report.Expired,
		"failed", report.Failed,
	)
	return report, nil
}
