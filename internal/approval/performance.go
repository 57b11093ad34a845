package approval

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"rewardbridge/internal/board"
	"rewardbridge/internal/rewards"
	"rewardbridge/internal/types"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateRewardInput is a new performance reward submission.
type CreateRewardInput struct {
	EmployeeName      string          `json:"employee_name" validate:"required,max=200"`
	EmployeeEmail     string          `json:"employee_email" validate:"required,email"`
	PerformanceFrom   types.Date      `json:"performance_from"`
	PerformanceTo     types.Date      `json:"performance_to"`
	TargetDescription string          `json:"target_description" validate:"max=2000"`
	TargetValue       decimal.Decimal `json:"target_value"`
	Department        string          `json:"department" validate:"max=100"`
}

func (in CreateRewardInput) check() error {
	if err := validate.Struct(in); err != nil {
		return types.NewAppError(types.ErrCodeValidationMissingField, "invalid reward submission", err)
	}
	if in.TargetValue.IsNegative() {
		return types.NewAppError(types.ErrCodeValidationInvalidAmount, "target value must not be negative", nil)
	}
	if in.PerformanceFrom.IsZero() != in.PerformanceTo.IsZero() {
		return types.NewAppError(types.ErrCodeValidationInvalidDate, "performance period needs both a start and an end", nil)
	}
	if !in.PerformanceFrom.IsZero() && in.PerformanceTo.Before(in.PerformanceFrom) {
		return types.NewAppError(types.ErrCodeValidationInvalidDate, "performance period ends before it starts", nil)
	}
	return nil
}

// Created is the outcome of CreatePerformanceReward.
type Created struct {
	ItemID          string           `json:"item_id"`
	Tier            types.RewardTier `json:"tier"`
	Amount          decimal.Decimal  `json:"amount"`
	AdjustedValue   decimal.Decimal  `json:"adjusted_value"`
	AssignedManager string           `json:"assigned_manager,omitempty"`
}

// CreatePerformanceReward tiers a submission, creates the Pending board item
// and routes it to the department manager. Failing to assign a manager does
// not fail the creation.
func (w *Workflow) CreatePerformanceReward(ctx context.Context, in CreateRewardInput) (*Created, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	a := w.tiers.Assess(in.TargetValue, in.Department)

	id, err := w.store.CreateReward(ctx, board.NewReward{
		EmployeeName:      strings.TrimSpace(in.EmployeeName),
		EmployeeEmail:     in.EmployeeEmail,
		PerformanceFrom:   in.PerformanceFrom,
		PerformanceTo:     in.PerformanceTo,
		TargetDescription: in.TargetDescription,
		TargetValue:       in.TargetValue,
		Department:        in.Department,
		Tier:              a.Tier,
		Amount:            a.Amount,
	})
	if err != nil {
		return nil, err
	}
	w.logger.InfoContext(ctx, "performance reward created",
		"item_id", id,
		"tier", a.Tier,
		"amount", a.Amount.String(),
	)

	out := &Created{ItemID: id, Tier: a.Tier, Amount: a.Amount, AdjustedValue: a.AdjustedValue}
	manager, err := w.AutoAssignManager(ctx, id, in.Department)
	if err != nil {
		w.logger.WarnContext(ctx, "manager assignment failed", "item_id", id, "error", err)
	}
	out.AssignedManager = manager
	return out, nil
}

// RecalculateTier re-tiers a reward from its current target and department.
// Only pending rewards are rewritten; decided rewards keep their amount.
func (w *Workflow) RecalculateTier(ctx context.Context, itemID string) (*rewards.Assessment, error) {
	item, err := w.store.GetReward(ctx, itemID)
	if err != nil {
		return nil, err
	}
	a := w.tiers.Assess(item.TargetValue, item.Department)
	if item.ApprovalStatus != types.ApprovalPending {
		return &a, nil
	}
	if a.Tier == item.RewardTier && a.Amount.Equal(item.GiftCardAmount) {
		return &a, nil
	}
	if err := w.store.UpdateReward(ctx, itemID, board.RewardUpdate{
		RewardTier:     &a.Tier,
		GiftCardAmount: &a.Amount,
	}); err != nil {
		return nil, err
	}
	w.logger.InfoContext(ctx, "reward tier recalculated",
		"item_id", itemID,
		"from", item.RewardTier,
		"to", a.Tier,
		"amount", a.Amount.String(),
	)
	return &a, nil
}

// HandleStatusChange reacts to an approval status set directly on the board.
// The item is re-read and only a board-side approval with no decision date
// and no order issues a card, so the echo of ProcessApproval's own write is
// ignored. Rejected stamps the decision date.
func (w *Workflow) HandleStatusChange(ctx context.Context, itemID string, status types.ApprovalStatus) error {
	switch status {
	case types.ApprovalApproved:
		item, err := w.store.GetReward(ctx, itemID)
		if err != nil {
			return err
		}
		if item.ApprovalStatus != types.ApprovalApproved || !item.DecisionDate.IsZero() || issuanceStarted(item) {
			w.logger.DebugContext(ctx, "status change needs no issuance",
				"item_id", itemID,
				"status", item.ApprovalStatus,
				"order_id", item.OrderID,
			)
			return nil
		}
		today := w.today()
		if err := w.store.UpdateReward(ctx, itemID, board.RewardUpdate{DecisionDate: &today}); err != nil {
			return err
		}
		issued, err := w.issue(ctx, item, w.amountFor(item))
		if err != nil {
			return err
		}
		w.deliver(ctx, item, issued)
		return nil
	case types.ApprovalRejected:
		today := w.today()
		return w.store.UpdateReward(ctx, itemID, board.RewardUpdate{DecisionDate: &today})
	default:
		return nil
	}
}

// Filter narrows ListRewards. Empty fields match everything; string matches
// ignore case.
type Filter struct {
	Status     types.ApprovalStatus
	Department string
	Tier       types.RewardTier
	Manager    string
}

func (f Filter) matches(it types.RewardItem) bool {
	if f.Status != "" && !strings.EqualFold(string(f.Status), string(it.ApprovalStatus)) {
		return false
	}
	if f.Department != "" && !strings.EqualFold(f.Department, it.Department) {
		return false
	}
	if f.Tier != "" && !strings.EqualFold(string(f.Tier), string(it.RewardTier)) {
		return false
	}
	if f.Manager != "" && f.Manager != it.AssignedManager {
		return false
	}
	return true
}

// ListRewards returns the rewards matching f in board order.
func (w *Workflow) ListRewards(ctx context.Context, f Filter) ([]types.RewardItem, error) {
	items, err := w.store.ListRewards(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.RewardItem, 0, len(items))
	for _, it := range items {
		if f.matches(it) {
			out = append(out, it)
		}
	}
	return out, nil
}

// Statistics summarizes rewards created in a window.
type Statistics struct {
	From                  time.Time                `json:"from"`
	To                    time.Time                `json:"to"`
	Total                 int                      `json:"total"`
	Approved              int                      `json:"approved"`
	Rejected              int                      `json:"rejected"`
	Pending               int                      `json:"pending"`
	Overdue               int                      `json:"overdue"`
	TotalApprovedValue    decimal.Decimal          `json:"total_approved_value"`
	AverageProcessingDays float64                  `json:"average_processing_days"`
	ByTier                map[types.RewardTier]int `json:"by_tier"`
	Items                 []types.RewardItem       `json:"-"`
}

// Statistics counts rewards created at or after since.
func (w *Workflow) Statistics(ctx context.Context, since time.Time) (*Statistics, error) {
	return w.StatisticsBetween(ctx, since, w.now())
}

// StatisticsBetween counts rewards created in [from, to).
func (w *Workflow) StatisticsBetween(ctx context.Context, from, to time.Time) (*Statistics, error) {
	items, err := w.store.ListRewards(ctx)
	if err != nil {
		return nil, err
	}
	now := w.now()
	st := &Statistics{
		From:               from,
		To:                 to,
		TotalApprovedValue: decimal.Zero,
		ByTier:             map[types.RewardTier]int{},
	}
	var decided, processingDays int
	for _, it := range items {
		if it.CreatedAt.Before(from) || !it.CreatedAt.Before(to) {
			continue
		}
		st.Total++
		st.Items = append(st.Items, it)
		if it.RewardTier != "" {
			st.ByTier[it.RewardTier]++
		}
		switch it.ApprovalStatus {
		case types.ApprovalApproved:
			st.Approved++
			st.TotalApprovedValue = st.TotalApprovedValue.Add(it.GiftCardAmount)
		case types.ApprovalRejected:
			st.Rejected++
		case types.ApprovalPending:
			st.Pending++
			if DaysPending(it.CreatedAt, now) > w.slaDays {
				st.Overdue++
			}
		}
		if it.ApprovalStatus != types.ApprovalPending && !it.DecisionDate.IsZero() {
			decided++
			processingDays += types.DateOf(it.CreatedAt.In(w.loc)).DaysUntil(it.DecisionDate)
		}
	}
	if decided > 0 {
		st.AverageProcessingDays = float64(processingDays) / float64(decided)
	}
	return st, nil
}
