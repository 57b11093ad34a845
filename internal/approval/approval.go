package approval

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"rewardbridge/internal/board"
	"rewardbridge/internal/notifications"
	"rewardbridge/internal/types"
)

// Result is the outcome of a manager decision.
type Result struct {
	ItemID        string               `json:"item_id"`
	Status        types.ApprovalStatus `json:"status"`
	ProcessedBy   string               `json:"processed_by"`
	Amount        decimal.Decimal      `json:"amount"`
	GiftCardCode  string               `json:"gift_card_code,omitempty"`
	IssuanceError string               `json:"issuance_error,omitempty"`
}

// ProcessApproval records a manager's decision on a pending reward. An
// approval issues the gift card and then tells the employee; a failed
// issuance is reported on the result and in the employee's message, but the
// approval stands. A rejection notifies the employee with the
// manager's comments and places no order.
func (w *Workflow) ProcessApproval(ctx context.Context, itemID, managerID string, decision types.Decision, comments string) (*Result, error) {
	if decision != types.DecisionApprove && decision != types.DecisionReject {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidStatus, fmt.Sprintf("unknown decision %q", decision), nil)
	}

	item, err := w.store.GetReward(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.ApprovalStatus != "" && item.ApprovalStatus != types.ApprovalPending {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConflictAlreadyDecided,
			"reward has already been decided", nil,
			map[string]any{"item_id": itemID, "status": item.ApprovalStatus})
	}

	status := decision.Status()
	today := w.today()
	if err := w.store.UpdateReward(ctx, itemID, board.RewardUpdate{
		ApprovalStatus: &status,
		Comments:       &comments,
		DecisionDate:   &today,
	}); err != nil {
		return nil, err
	}
	w.logger.InfoContext(ctx, "approval decision recorded",
		"item_id", itemID,
		"manager_id", managerID,
		"status", status,
	)

	res := &Result{ItemID: itemID, Status: status, ProcessedBy: managerID, Amount: decimal.Zero}
	if decision == types.DecisionReject {
		w.notifier.Send(ctx, notifications.ApprovalDecision(item, decision, decimal.Zero, comments))
		return res, nil
	}

	amount := w.amountFor(item)
	res.Amount = amount

	issued, err := w.issue(ctx, item, amount)
	n := notifications.ApprovalDecision(item, decision, amount, comments)
	if err != nil {
		w.logger.ErrorContext(ctx, "gift card issuance failed after approval", "item_id", itemID, "error", err)
		res.IssuanceError = err.Error()
		n.Data["IssuanceDelayed"] = true
		w.notifier.Send(ctx, n)
		return res, nil
	}
	w.notifier.Send(ctx, n)
	w.deliver(ctx, item, issued)
	res.GiftCardCode = issued.Code
	return res, nil
}

// amountFor is the recorded amount, or the tier amount when the item has none.
func (w *Workflow) amountFor(item types.RewardItem) decimal.Decimal {
	if item.GiftCardAmount.IsPositive() {
		return item.GiftCardAmount
	}
	if w.tiers == nil {
		return decimal.Zero
	}
	if item.RewardTier != "" {
		return w.tiers.AmountForTier(item.RewardTier)
	}
	return w.tiers.Assess(item.TargetValue, item.Department).Amount
}

// Pending is a reward awaiting a decision.
type Pending struct {
	types.RewardItem
	DaysPending int  `json:"days_pending"`
	Overdue     bool `json:"overdue"`
}

// GetPendingApprovals lists pending rewards assigned to managerID, oldest
// first.
func (w *Workflow) GetPendingApprovals(ctx context.Context, managerID string) ([]Pending, error) {
	all, err := w.GetAllPendingApprovals(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Pending, 0, len(all))
	for _, p := range all {
		if p.AssignedManager == managerID {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetAllPendingApprovals lists every pending reward, oldest first.
func (w *Workflow) GetAllPendingApprovals(ctx context.Context) ([]Pending, error) {
	items, err := w.store.ListRewards(ctx)
	if err != nil {
		return nil, err
	}
	now := w.now()
	var out []Pending
	for _, it := range items {
		if it.ApprovalStatus != types.ApprovalPending {
			continue
		}
		days := DaysPending(it.CreatedAt, now)
		out = append(out, Pending{RewardItem: it, DaysPending: days, Overdue: days > w.slaDays})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ReminderReport counts one reminder pass.
type ReminderReport struct {
	Overdue       int `json:"overdue"`
	RemindersSent int `json:"reminders_sent"`
}

// SendOverdueReminders sends one reminder per overdue pending reward that has
// an assigned manager. Overdue rewards with no manager are counted but get no
// reminder.
func (w *Workflow) SendOverdueReminders(ctx context.Context) (*ReminderReport, error) {
	pending, err := w.GetAllPendingApprovals(ctx)
	if err != nil {
		return nil, err
	}
	report := &ReminderReport{}
	for _, p := range pending {
		if !p.Overdue {
			continue
		}
		report.Overdue++
		if p.AssignedManager == "" {
			continue
		}
		w.notifier.Send(ctx, notifications.OverdueReminder(w.manager(p.AssignedManager), p.RewardItem, p.DaysPending))
		report.RemindersSent++
	}
	w.logger.InfoContext(ctx, "overdue reminders sent",
		"overdue", report.Overdue,
		"reminders_sent", report.RemindersSent,
	)
	return report, nil
}

// manager resolves a manager id to its directory contact details.
func (w *Workflow) manager(managerID string) notifications.Recipient {
	if m, ok := w.managers.ByID(managerID); ok {
		return m
	}
	return notifications.Recipient{ManagerID: managerID}
}

// AutoAssignManager assigns the department's manager to the reward and
// notifies them. An empty department falls back to the item's own. It
// returns "" without error when no manager is mapped.
func (w *Workflow) AutoAssignManager(ctx context.Context, itemID, department string) (string, error) {
	item, err := w.store.GetReward(ctx, itemID)
	if err != nil {
		return "", err
	}
	if department == "" {
		department = item.Department
	}
	manager, ok := w.managers.ForDepartment(department)
	if !ok {
		w.logger.InfoContext(ctx, "no manager mapped for department", "item_id", itemID, "department", department)
		return "", nil
	}

	if err := w.store.UpdateReward(ctx, itemID, board.RewardUpdate{AssignedManager: &manager.ManagerID}); err != nil {
		return "", err
	}
	item.AssignedManager = manager.ManagerID
	w.notifier.Send(ctx, notifications.ApprovalRequired(manager, item))
	w.logger.InfoContext(ctx, "manager assigned", "item_id", itemID, "manager_id", manager.ManagerID)
	return manager.ManagerID, nil
}
