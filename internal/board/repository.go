package board

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"rewardbridge/internal/types"
)

// Repository reads and writes typed records on the employee and reward
// boards through a Gateway. Nothing is cached between calls; the board is the
// system of record.
type Repository struct {
	gateway        Gateway
	employeesBoard string
	rewardsBoard   string
	columns        ColumnMap
	logger         *slog.Logger
}

// NewRepository creates a Repository. columns must already be validated.
func NewRepository(gw Gateway, employeesBoard, rewardsBoard string, columns ColumnMap, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		gateway:        gw,
		employeesBoard: employeesBoard,
		rewardsBoard:   rewardsBoard,
		columns:        columns,
		logger:         logger,
	}
}

// Columns returns the column map in use.
func (r *Repository) Columns() ColumnMap { return r.columns }

// EmployeesBoardID returns the employee board id.
func (r *Repository) EmployeesBoardID() string { return r.employeesBoard }

// RewardsBoardID returns the performance rewards board id.
func (r *Repository) RewardsBoardID() string { return r.rewardsBoard }

// ListEmployees returns every employee in board order. Unparseable columns
// are logged and left empty rather than dropping the employee.
func (r *Repository) ListEmployees(ctx context.Context) ([]types.EmployeeRecord, error) {
	items, err := r.gateway.ListItems(ctx, r.employeesBoard)
	if err != nil {
		return nil, fmt.Errorf("listing employees: %w", err)
	}
	out := make([]types.EmployeeRecord, 0, len(items))
	for _, it := range items {
		rec, perr := ParseEmployee(it, r.columns.Employees)
		if perr != nil {
			r.logger.WarnContext(ctx, "employee item has unparseable columns", "item_id", it.ID, "error", perr)
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetEmployee returns one employee.
func (r *Repository) GetEmployee(ctx context.Context, itemID string) (types.EmployeeRecord, error) {
	emps, err := r.ListEmployees(ctx)
	if err != nil {
		return types.EmployeeRecord{}, err
	}
	for _, e := range emps {
		if e.ItemID == itemID {
			return e, nil
		}
	}
	return types.EmployeeRecord{}, types.NewAppError(types.ErrCodeNotFoundEmployee, "employee item "+itemID+" not found", nil)
}

// EmployeeUpdate lists the employee fields the scan may write. Nil fields
// are left untouched.
type EmployeeUpdate struct {
	Status         *types.ProcessingStatus
	LastProcessed  *types.Date
	GiftCardCode   *string
	NextMilestone  *types.Date
	MilestoneType  *types.MilestoneType
	GiftCardAmount *decimal.Decimal
}

// Values encodes the update for the board.
func (u EmployeeUpdate) Values(cols EmployeeColumns) ColumnValues {
	v := ColumnValues{}
	if u.Status != nil {
		v[cols.ProcessingStatus] = StatusValue(string(*u.Status))
	}
	if u.LastProcessed != nil {
		v[cols.LastProcessed] = DateValue(*u.LastProcessed)
	}
	if u.GiftCardCode != nil {
		v[cols.GiftCardCode] = TextValue(*u.GiftCardCode)
	}
	if u.NextMilestone != nil {
		v[cols.NextMilestoneDate] = DateValue(*u.NextMilestone)
	}
	if u.MilestoneType != nil {
		v[cols.MilestoneType] = StatusValue(string(*u.MilestoneType))
	}
	if u.GiftCardAmount != nil {
		v[cols.GiftCardAmount] = NumberValue(*u.GiftCardAmount)
	}
	return v
}

// UpdateEmployee writes u to the employee item.
func (r *Repository) UpdateEmployee(ctx context.Context, itemID string, u EmployeeUpdate) error {
	values := u.Values(r.columns.Employees)
	if len(values) == 0 {
		return nil
	}
	if err := r.gateway.UpdateItem(ctx, r.employeesBoard, itemID, values); err != nil {
		return fmt.Errorf("updating employee %s: %w", itemID, err)
	}
	return nil
}

// ListRewards returns every performance reward item in board order.
func (r *Repository) ListRewards(ctx context.Context) ([]types.RewardItem, error) {
	items, err := r.gateway.ListItems(ctx, r.rewardsBoard)
	if err != nil {
		return nil, fmt.Errorf("listing rewards: %w", err)
	}
	out := make([]types.RewardItem, 0, len(items))
	for _, it := range items {
		rec, perr := ParseReward(it, r.columns.Rewards)
		if perr != nil {
			r.logger.WarnContext(ctx, "reward item has unparseable columns", "item_id", it.ID, "error", perr)
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetReward returns one reward item.
func (r *Repository) GetReward(ctx context.Context, itemID string) (types.RewardItem, error) {
	rewards, err := r.ListRewards(ctx)
	if err != nil {
		return types.RewardItem{}, err
	}
	for _, rw := range rewards {
		if rw.ItemID == itemID {
			return rw, nil
		}
	}
	return types.RewardItem{}, types.NewAppError(types.ErrCodeNotFoundRewardItem, "reward item "+itemID+" not found", nil)
}

// RewardUpdate lists the reward fields the workflows may write. Nil fields
// are left untouched.
type RewardUpdate struct {
	RewardTier       *types.RewardTier
	GiftCardAmount   *decimal.Decimal
	ApprovalStatus   *types.ApprovalStatus
	AssignedManager  *string
	Comments         *string
	DecisionDate     *types.Date
	GiftCardCode     *string
	IssueDate        *types.Date
	RedemptionStatus *types.RedemptionStatus
	RedemptionValue  *decimal.Decimal
	ExpiryDate       *types.Date
	ROIImpact        *decimal.Decimal
	OrderID          *string
}

// Values encodes the update for the board.
func (u RewardUpdate) Values(cols RewardColumns) ColumnValues {
	v := ColumnValues{}
	if u.RewardTier != nil {
		v[cols.RewardTier] = StatusValue(string(*u.RewardTier))
	}
	if u.GiftCardAmount != nil {
		v[cols.GiftCardAmount] = NumberValue(*u.GiftCardAmount)
	}
	if u.ApprovalStatus != nil {
		v[cols.ApprovalStatus] = StatusValue(string(*u.ApprovalStatus))
	}
	if u.AssignedManager != nil {
		v[cols.AssignedManager] = TextValue(*u.AssignedManager)
	}
	if u.Comments != nil {
		v[cols.Comments] = LongTextValue(*u.Comments)
	}
	if u.DecisionDate != nil {
		v[cols.DecisionDate] = DateValue(*u.DecisionDate)
	}
	if u.GiftCardCode != nil {
		v[cols.GiftCardCode] = TextValue(*u.GiftCardCode)
	}
	if u.IssueDate != nil {
		v[cols.IssueDate] = DateValue(*u.IssueDate)
	}
	if u.RedemptionStatus != nil {
		v[cols.RedemptionStatus] = StatusValue(string(*u.RedemptionStatus))
	}
	if u.RedemptionValue != nil {
		v[cols.RedemptionValue] = NumberValue(*u.RedemptionValue)
	}
	if u.ExpiryDate != nil {
		v[cols.ExpiryDate] = DateValue(*u.ExpiryDate)
	}
	if u.ROIImpact != nil {
		v[cols.ROIImpact] = NumberValue(*u.ROIImpact)
	}
	if u.OrderID != nil {
		v[cols.OrderID] = TextValue(*u.OrderID)
	}
	return v
}

// UpdateReward writes u to the reward item.
func (r *Repository) UpdateReward(ctx context.Context, itemID string, u RewardUpdate) error {
	values := u.Values(r.columns.Rewards)
	if len(values) == 0 {
		return nil
	}
	if err := r.gateway.UpdateItem(ctx, r.rewardsBoard, itemID, values); err != nil {
		return fmt.Errorf("updating reward %s: %w", itemID, err)
	}
	return nil
}

// NewReward is the initial content of a performance reward item.
type NewReward struct {
	EmployeeName      string
	EmployeeEmail     string
	PerformanceFrom   types.Date
	PerformanceTo     types.Date
	TargetDescription string
	TargetValue       decimal.Decimal
	Department        string
	Tier              types.RewardTier
	Amount            decimal.Decimal
}

// CreateReward creates a Pending reward item and returns its id.
func (r *Repository) CreateReward(ctx context.Context, nr NewReward) (string, error) {
	cols := r.columns.Rewards
	values := ColumnValues{
		cols.EmployeeEmail:     EmailValue(nr.EmployeeEmail),
		cols.TargetDescription: LongTextValue(nr.TargetDescription),
		cols.TargetValue:       NumberValue(nr.TargetValue),
		cols.RewardTier:        StatusValue(string(nr.Tier)),
		cols.GiftCardAmount:    NumberValue(nr.Amount),
		cols.ApprovalStatus:    StatusValue(string(types.ApprovalPending)),
	}
	if nr.Department != "" {
		values[cols.Department] = DropdownValue(nr.Department)
	}
	if !nr.PerformanceFrom.IsZero() && !nr.PerformanceTo.IsZero() {
		values[cols.PerformancePeriod] = TimelineValue(nr.PerformanceFrom, nr.PerformanceTo)
	}

	id, err := r.gateway.CreateItem(ctx, r.rewardsBoard, RewardItemName(nr.EmployeeName), values)
	if err != nil {
		return "", fmt.Errorf("creating reward for %s: %w", nr.EmployeeName, err)
	}
	return id, nil
}
