// Package approval implements the performance reward lifecycle on the
// rewards board: tiering new rewards, routing them to a department manager,
// recording the manager's decision, and issuing the gift card once approved.
package approval

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"rewardbridge/internal/board"
	"rewardbridge/internal/external"
	"rewardbridge/internal/metrics"
	"rewardbridge/internal/notifications"
	"rewardbridge/internal/rewards"
	"rewardbridge/internal/types"
)

// Defaults applied when WorkflowConfig leaves a policy value unset.
const (
	DefaultApprovalSLADays      = 7
	DefaultGiftCardValidityDays = 365
)

// RewardStore is the rewards-board surface the workflow uses.
type RewardStore interface {
	ListRewards(ctx context.Context) ([]types.RewardItem, error)
	GetReward(ctx context.Context, itemID string) (types.RewardItem, error)
	UpdateReward(ctx context.Context, itemID string, u board.RewardUpdate) error
	CreateReward(ctx context.Context, nr board.NewReward) (string, error)
}

// OrderPlacer creates and activates gift-card orders.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, req external.OrderRequest) (*external.Order, error)
	ActivateOrder(ctx context.Context, orderID string, data external.ActivationData) (*external.Activation, error)
}

// ProductFinder picks a gift-card product for a merchant and amount.
type ProductFinder interface {
	Find(ctx context.Context, merchant string, amount decimal.Decimal) (external.Product, error)
}

// Notifier is satisfied by *notifications.Dispatcher.
type Notifier interface {
	Send(ctx context.Context, n notifications.Notification)
}

// Directory maps departments to their approving manager.
type Directory map[string]notifications.Recipient

// ForDepartment looks a manager up by department name, ignoring case.
func (d Directory) ForDepartment(department string) (notifications.Recipient, bool) {
	if department == "" {
		return notifications.Recipient{}, false
	}
	if m, ok := d[department]; ok {
		return m, true
	}
	for dept, m := range d {
		if strings.EqualFold(dept, department) {
			return m, true
		}
	}
	return notifications.Recipient{}, false
}

// ByID looks a manager up by id.
func (d Directory) ByID(managerID string) (notifications.Recipient, bool) {
	for _, m := range d {
		if m.ManagerID == managerID {
			return m, true
		}
	}
	return notifications.Recipient{}, false
}

// WorkflowConfig holds the dependencies and policy for a Workflow.
type WorkflowConfig struct {
	Store    RewardStore
	Orders   OrderPlacer
	Products ProductFinder
	Tiers    *rewards.TierEngine
	Notifier Notifier
	Managers Directory
	Metrics  metrics.Recorder

	// Merchant is the default gift-card merchant for performance rewards.
	Merchant             string
	ApprovalSLADays      int
	GiftCardValidityDays int

	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

// Workflow is the performance reward service.
type Workflow struct {
	store    RewardStore
	orders   OrderPlacer
	products ProductFinder
	tiers    *rewards.TierEngine
	notifier Notifier
	managers Directory
	metrics  metrics.Recorder

	merchant     string
	slaDays      int
	validityDays int

	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger

	// inflight holds the item ids with an issuance running.
	inflight sync.Map
}

// NewWorkflow creates a Workflow.
func NewWorkflow(cfg WorkflowConfig) *Workflow {
	w := &Workflow{
		store:        cfg.Store,
		orders:       cfg.Orders,
		products:     cfg.Products,
		tiers:        cfg.Tiers,
		notifier:     cfg.Notifier,
		managers:     cfg.Managers,
		metrics:      cfg.Metrics,
		merchant:     cfg.Merchant,
		slaDays:      cfg.ApprovalSLADays,
		validityDays: cfg.GiftCardValidityDays,
		loc:          cfg.Location,
		now:          cfg.Now,
		logger:       cfg.Logger,
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.metrics == nil {
		w.metrics = metrics.Noop{}
	}
	if w.managers == nil {
		w.managers = Directory{}
	}
	if w.slaDays <= 0 {
		w.slaDays = DefaultApprovalSLADays
	}
	if w.validityDays <= 0 {
		w.validityDays = DefaultGiftCardValidityDays
	}
	if w.loc == nil {
		w.loc = time.UTC
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

// Tiers exposes the tier engine for read-only callers.
func (w *Workflow) Tiers() *rewards.TierEngine { return w.tiers }

func (w *Workflow) today() types.Date {
	return types.Today(w.now(), w.loc)
}

// DaysPending is the whole number of days, rounded up, between created and
// now.
func DaysPending(created, now time.Time) int {
	if created.IsZero() {
		return 0
	}
	d := now.Sub(created)
	if d < 0 {
		d = -d
	}
	return int(math.Ceil(d.Hours() / 24))
}
