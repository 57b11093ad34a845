package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// EmployeeRecord is a snapshot of one row on the employee milestones board.
// The scan writes back only ProcessingStatus, LastProcessed, GiftCardCode,
// NextMilestoneDate, MilestoneType and GiftCardAmount.
type EmployeeRecord struct {
	ItemID            string           `json:"item_id"`
	Name              string           `json:"name"`
	Email             string           `json:"email"`
	HireDate          Date             `json:"hire_date"`
	Birthday          Date             `json:"birthday"`
	Department        string           `json:"department"`
	NextMilestoneDate Date             `json:"next_milestone_date"`
	MilestoneType     MilestoneType    `json:"milestone_type,omitempty"`
	GiftCardAmount    *decimal.Decimal `json:"gift_card_amount,omitempty"`
	ProcessingStatus  ProcessingStatus `json:"processing_status,omitempty"`
	LastProcessed     Date             `json:"last_processed"`
	GiftCardCode      string           `json:"gift_card_code,omitempty"`
}

// HasDates reports whether at least one of the milestone source dates is set.
func (e EmployeeRecord) HasDates() bool {
	return !e.HireDate.IsZero() || !e.Birthday.IsZero()
}

// Milestone is a derived, per-scan reward event. It is never persisted; the
// employee record is updated instead.
type Milestone struct {
	Employee       EmployeeRecord  `json:"employee"`
	Date           Date            `json:"date"`
	Type           MilestoneType   `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	YearsOfService int             `json:"years_of_service,omitempty"`
}

// RewardItem is a snapshot of one row on the performance rewards board.
type RewardItem struct {
	ItemID            string           `json:"item_id"`
	EmployeeName      string           `json:"employee_name"`
	EmployeeEmail     string           `json:"employee_email"`
	PerformancePeriod string           `json:"performance_period,omitempty"`
	TargetDescription string           `json:"target_description,omitempty"`
	TargetValue       decimal.Decimal  `json:"target_value"`
	Department        string           `json:"department,omitempty"`
	RewardTier        RewardTier       `json:"reward_tier,omitempty"`
	GiftCardAmount    decimal.Decimal  `json:"gift_card_amount"`
	ApprovalStatus    ApprovalStatus   `json:"approval_status"`
	AssignedManager   string           `json:"assigned_manager,omitempty"`
	Comments          string           `json:"comments,omitempty"`
	DecisionDate      Date             `json:"decision_date"`
	GiftCardCode      string           `json:"gift_card_code,omitempty"`
	IssueDate         Date             `json:"issue_date"`
	RedemptionStatus  RedemptionStatus `json:"redemption_status,omitempty"`
	RedemptionValue   decimal.Decimal  `json:"redemption_value"`
	ExpiryDate        Date             `json:"expiry_date"`
	ROIImpact         decimal.Decimal  `json:"roi_impact"`
	OrderID           string           `json:"order_id,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}
