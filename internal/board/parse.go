package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"rewardbridge/internal/types"
)

// FieldError reports a column whose text could not be parsed. The record is
// still returned with that field left at its zero value.
type FieldError struct {
	ItemID string
	Field  string
	Column string
	Text   string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("item %s: %s (%s=%q): %v", e.ItemID, e.Field, e.Column, e.Text, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

type fieldParser struct {
	item Item
	errs []error
}

func (p *fieldParser) text(col string) string {
	return strings.TrimSpace(p.item.Text(col))
}

func (p *fieldParser) date(field, col string) types.Date {
	raw := p.text(col)
	d, err := types.ParseDate(raw)
	if err != nil {
		p.errs = append(p.errs, &FieldError{ItemID: p.item.ID, Field: field, Column: col, Text: raw, Err: err})
		return types.Date{}
	}
	return d
}

func (p *fieldParser) number(field, col string) (decimal.Decimal, bool) {
	raw := strings.ReplaceAll(p.text(col), ",", "")
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		p.errs = append(p.errs, &FieldError{ItemID: p.item.ID, Field: field, Column: col, Text: raw, Err: err})
		return decimal.Zero, false
	}
	return d, true
}

// email prefers the structured value, which carries the address even when
// the display text is a name.
func (p *fieldParser) email(col string) string {
	c, ok := p.item.Column(col)
	if !ok {
		return ""
	}
	if len(c.Value) > 0 && string(c.Value) != "null" {
		var v struct {
			Email string `json:"email"`
		}
		if json.Unmarshal(unquoteJSON(c.Value), &v) == nil && v.Email != "" {
			return v.Email
		}
	}
	return strings.TrimSpace(c.Text)
}

func (p *fieldParser) err() error {
	return errors.Join(p.errs...)
}

// unquoteJSON handles the API returning a column value as a JSON string that
// itself contains JSON.
func unquoteJSON(raw json.RawMessage) []byte {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return []byte(s)
	}
	return raw
}

// ParseEmployee converts an employee board item. The returned error joins
// every FieldError; the record is usable regardless.
func ParseEmployee(it Item, cols EmployeeColumns) (types.EmployeeRecord, error) {
	p := &fieldParser{item: it}
	rec := types.EmployeeRecord{
		ItemID:            it.ID,
		Name:              strings.TrimSpace(it.Name),
		Email:             p.email(cols.Email),
		HireDate:          p.date("hire_date", cols.HireDate),
		Birthday:          p.date("birthday", cols.Birthday),
		Department:        p.text(cols.Department),
		NextMilestoneDate: p.date("next_milestone_date", cols.NextMilestoneDate),
		MilestoneType:     types.MilestoneType(p.text(cols.MilestoneType)),
		ProcessingStatus:  types.ProcessingStatus(p.text(cols.ProcessingStatus)),
		LastProcessed:     p.date("last_processed", cols.LastProcessed),
		GiftCardCode:      p.text(cols.GiftCardCode),
	}
	if amt, ok := p.number("gift_card_amount", cols.GiftCardAmount); ok {
		rec.GiftCardAmount = &amt
	}
	return rec, p.err()
}

// ParseReward converts a performance reward board item.
func ParseReward(it Item, cols RewardColumns) (types.RewardItem, error) {
	p := &fieldParser{item: it}
	rec := types.RewardItem{
		ItemID:            it.ID,
		EmployeeName:      employeeNameFromItem(it.Name),
		EmployeeEmail:     p.email(cols.EmployeeEmail),
		PerformancePeriod: p.text(cols.PerformancePeriod),
		TargetDescription: p.text(cols.TargetDescription),
		Department:        p.text(cols.Department),
		RewardTier:        types.RewardTier(p.text(cols.RewardTier)),
		ApprovalStatus:    types.ApprovalStatus(p.text(cols.ApprovalStatus)),
		AssignedManager:   p.text(cols.AssignedManager),
		Comments:          p.text(cols.Comments),
		DecisionDate:      p.date("decision_date", cols.DecisionDate),
		GiftCardCode:      p.text(cols.GiftCardCode),
		IssueDate:         p.date("issue_date", cols.IssueDate),
		RedemptionStatus:  types.RedemptionStatus(p.text(cols.RedemptionStatus)),
		ExpiryDate:        p.date("expiry_date", cols.ExpiryDate),
		OrderID:           p.text(cols.OrderID),
		CreatedAt:         it.CreatedAt,
	}
	rec.TargetValue, _ = p.number("target_value", cols.TargetValue)
	rec.GiftCardAmount, _ = p.number("gift_card_amount", cols.GiftCardAmount)
	rec.RedemptionValue, _ = p.number("redemption_value", cols.RedemptionValue)
	rec.ROIImpact, _ = p.number("roi_impact", cols.ROIImpact)
	if rec.ApprovalStatus == "" {
		rec.ApprovalStatus = types.ApprovalPending
	}
	return rec, p.err()
}

// RewardItemPrefix is prepended to the employee name when a reward item is
// created.
const RewardItemPrefix = "Performance Reward - "

// RewardItemName returns the board item name for an employee's reward.
func RewardItemName(employeeName string) string {
	return RewardItemPrefix + employeeName
}

func employeeNameFromItem(name string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), RewardItemPrefix))
}
