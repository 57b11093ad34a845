// Package notifications renders and delivers messages to employees, managers
// and the operations channel. Delivery is fire-and-forget: callers hand a
// Notification to the Dispatcher and never see a delivery error.
package notifications

import (
	"time"

	"github.com/shopspring/decimal"

	"rewardbridge/internal/types"
)

// Kind identifies the message template.
type Kind string

const (
	KindMilestoneDelivered Kind = "milestone_delivered"
	KindApprovalRequired   Kind = "approval_required"
	KindApprovalDecision   Kind = "approval_decision"
	KindGiftCardIssued     Kind = "gift_card_delivered"
	KindOverdueReminder    Kind = "overdue_reminder"
	KindFullyRedeemed      Kind = "fully_redeemed"
	KindExpiryWarning      Kind = "expiry_warning"
	KindJobSummary         Kind = "job_summary"
)

// Audience decides which sinks a notification is eligible for.
type Audience string

const (
	AudienceEmployee Audience = "employee"
	AudienceManager  Audience = "manager"
	AudienceOps      Audience = "ops"
)

// Recipient addresses a person. Ops notifications have no recipient.
type Recipient struct {
	Name        string
	Email       string
	ManagerID   string
	SlackUserID string
}

// Notification is one message. Subject and Body are filled by the
// Dispatcher from the Kind's template and Data.
type Notification struct {
	ID        string
	Kind      Kind
	Audience  Audience
	To        Recipient
	Data      map[string]any
	Subject   string
	Body      string
	Failure   bool
	CreatedAt time.Time
}

// MilestoneDelivered tells an employee their milestone gift card is ready.
func MilestoneDelivered(m types.Milestone, voucher string) Notification {
	return Notification{
		Kind:     KindMilestoneDelivered,
		Audience: AudienceEmployee,
		To:       Recipient{Name: m.Employee.Name, Email: m.Employee.Email},
		Data: map[string]any{
			"Name":      m.Employee.Name,
			"Type":      string(m.Type),
			"Birthday":  m.Type == types.MilestoneBirthday,
			"Years":     m.YearsOfService,
			"Amount":    m.Amount,
			"Voucher":   voucher,
			"ItemID":    m.Employee.ItemID,
			"Milestone": m.Date.String(),
		},
	}
}

// ApprovalRequired asks a manager to decide on a reward.
func ApprovalRequired(manager Recipient, item types.RewardItem) Notification {
	return Notification{
		Kind:     KindApprovalRequired,
		Audience: AudienceManager,
		To:       manager,
		Data: map[string]any{
			"Manager":  manager.Name,
			"Employee": item.EmployeeName,
			"Target":   item.TargetDescription,
			"Tier":     string(item.RewardTier),
			"Amount":   item.GiftCardAmount,
			"ItemID":   item.ItemID,
		},
	}
}

// ApprovalDecision tells the employee the outcome. amount is zero on
// rejection.
func ApprovalDecision(item types.RewardItem, decision types.Decision, amount decimal.Decimal, comments string) Notification {
	return Notification{
		Kind:     KindApprovalDecision,
		Audience: AudienceEmployee,
		To:       Recipient{Name: item.EmployeeName, Email: item.EmployeeEmail},
		Data: map[string]any{
			"Name":     item.EmployeeName,
			"Approved": decision == types.DecisionApprove,
			"Amount":   amount,
			"Comments": comments,
			"ItemID":   item.ItemID,
		},
	}
}

// GiftCardIssued delivers the card details for a performance reward.
func GiftCardIssued(item types.RewardItem, code, merchant string, amount decimal.Decimal, expiry types.Date) Notification {
	return Notification{
		Kind:     KindGiftCardIssued,
		Audience: AudienceEmployee,
		To:       Recipient{Name: item.EmployeeName, Email: item.EmployeeEmail},
		Data: map[string]any{
			"Name":     item.EmployeeName,
			"Code":     code,
			"Merchant": merchant,
			"Amount":   amount,
			"Expiry":   expiry.String(),
			"ItemID":   item.ItemID,
		},
	}
}

// OverdueReminder nudges a manager about a reward pending past the SLA.
func OverdueReminder(manager Recipient, item types.RewardItem, daysPending int) Notification {
	return Notification{
		Kind:     KindOverdueReminder,
		Audience: AudienceManager,
		To:       manager,
		Data: map[string]any{
			"Manager":     manager.Name,
			"Employee":    item.EmployeeName,
			"DaysPending": daysPending,
			"ItemID":      item.ItemID,
		},
	}
}

// FullyRedeemed confirms a card has been spent.
func FullyRedeemed(item types.RewardItem) Notification {
	return Notification{
		Kind:     KindFullyRedeemed,
		Audience: AudienceEmployee,
		To:       Recipient{Name: item.EmployeeName, Email: item.EmployeeEmail},
		Data: map[string]any{
			"Name":   item.EmployeeName,
			"Code":   item.GiftCardCode,
			"Amount": item.GiftCardAmount,
			"ItemID": item.ItemID,
		},
	}
}

// ExpiryWarning reminds the employee to spend the remaining balance.
func ExpiryWarning(item types.RewardItem, remaining decimal.Decimal, daysLeft int) Notification {
	return Notification{
		Kind:     KindExpiryWarning,
		Audience: AudienceEmployee,
		To:       Recipient{Name: item.EmployeeName, Email: item.EmployeeEmail},
		Data: map[string]any{
			"Name":      item.EmployeeName,
			"Code":      item.GiftCardCode,
			"Remaining": remaining,
			"DaysLeft":  daysLeft,
			"ItemID":    item.ItemID,
		},
	}
}

// JobSummary reports a scheduled job outcome to the operations channel.
func JobSummary(job string, summary string, failed bool) Notification {
	return Notification{
		Kind:     KindJobSummary,
		Audience: AudienceOps,
		Failure:  failed,
		Data: map[string]any{
			"Job":     job,
			"Summary": summary,
			"Failed":  failed,
		},
	}
}
