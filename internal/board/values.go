package board

import (
	"github.com/shopspring/decimal"

	"rewardbridge/internal/types"
)

// StatusValue selects a status (color) column label.
func StatusValue(label string) map[string]string {
	return map[string]string{"label": label}
}

// DateValue sets a date column. A zero date clears it.
func DateValue(d types.Date) any {
	if d.IsZero() {
		return map[string]any{}
	}
	return map[string]string{"date": d.String()}
}

// TextValue sets a text column.
func TextValue(s string) string {
	return s
}

// LongTextValue sets a long text column.
func LongTextValue(s string) map[string]string {
	return map[string]string{"text": s}
}

// NumberValue sets a numbers column.
func NumberValue(d decimal.Decimal) string {
	return d.String()
}

// EmailValue sets an email column; the display text defaults to the address.
func EmailValue(email string) map[string]string {
	return map[string]string{"email": email, "text": email}
}

// DropdownValue selects dropdown labels.
func DropdownValue(labels ...string) map[string][]string {
	return map[string][]string{"labels": labels}
}

// TimelineValue sets a timeline (date range) column.
func TimelineValue(from, to types.Date) map[string]string {
	return map[string]string{"from": from.String(), "to": to.String()}
}
