// Package milestone computes birthday and work-anniversary reward events.
//
// Every function is pure: "today" is always an explicit argument so the
// scanner, the API and the tests agree on the same civil date in the business
// timezone.
package milestone

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"rewardbridge/internal/types"
)

// Ladder is the fixed set of service years that earn an anniversary reward.
var Ladder = []int{1, 2, 3, 4, 5, 10, 15, 20, 25, 30}

// OnLadder reports whether years is a rewarded anniversary.
func OnLadder(years int) bool {
	for _, y := range Ladder {
		if y == years {
			return true
		}
	}
	return false
}

// OccurrenceInYear returns d's month/day in year. A Feb 29 date is observed
// on Feb 28 when year is not a leap year.
func OccurrenceInYear(d types.Date, year int) types.Date {
	if d.Month == time.February && d.Day == 29 && !isLeap(year) {
		return types.Date{Year: year, Month: time.February, Day: 28}
	}
	return types.Date{Year: year, Month: d.Month, Day: d.Day}
}

// NextAnniversaryOccurrence returns the next occurrence of original's
// month/day on or after today.
func NextAnniversaryOccurrence(original, today types.Date) types.Date {
	next := OccurrenceInYear(original, today.Year)
	if next.Before(today) {
		next = OccurrenceInYear(original, today.Year+1)
	}
	return next
}

// YearsOfService returns the number of completed years between hire and today.
func YearsOfService(hire, today types.Date) int {
	years := today.Year - hire.Year
	if today.Before(OccurrenceInYear(hire, today.Year)) {
		years--
	}
	return years
}

// Anniversary is one upcoming work anniversary.
type Anniversary struct {
	Date  types.Date
	Years int
}

// WorkAnniversaries returns the next ladder anniversary strictly beyond the
// years already served, provided it falls within one year of today. Only the
// first ladder entry above yearsOfService is considered, so the result has at
// most one element.
func WorkAnniversaries(hire, today types.Date) []Anniversary {
	if hire.IsZero() {
		return nil
	}
	served := YearsOfService(hire, today)
	horizon := OccurrenceInYear(today, today.Year+1)

	for _, years := range Ladder {
		if years <= served {
			continue
		}
		date := OccurrenceInYear(hire, hire.Year+years)
		if date.After(horizon) {
			return nil
		}
		return []Anniversary{{Date: date, Years: years}}
	}
	return nil
}

// Candidate is a computed upcoming milestone without an employee attached.
type Candidate struct {
	Date           types.Date
	Type           types.MilestoneType
	YearsOfService int
}

// NextMilestone returns the earlier of the next birthday and the next ladder
// anniversary. ok is false when both dates are absent or the hire date has no
// anniversary within the next year and there is no birthday.
func NextMilestone(hire, birthday, today types.Date) (c Candidate, ok bool) {
	var candidates []Candidate
	if !birthday.IsZero() {
		candidates = append(candidates, Candidate{
			Date: NextAnniversaryOccurrence(birthday, today),
			Type: types.MilestoneBirthday,
		})
	}
	for _, a := range WorkAnniversaries(hire, today) {
		candidates = append(candidates, Candidate{
			Date:           a.Date,
			Type:           types.AnniversaryType(a.Years),
			YearsOfService: a.Years,
		})
	}
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	// Stable so a birthday wins a same-day tie.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Date.Before(candidates[j].Date)
	})
	return candidates[0], true
}

// IsMilestoneToday reports whether milestoneDate's month/day is today's and
// the employee has not already been processed today. It is the scan's only
// duplicate guard.
func IsMilestoneToday(milestoneDate, lastProcessed, today types.Date) bool {
	if milestoneDate.IsZero() {
		return false
	}
	if !OccurrenceInYear(milestoneDate, today.Year).Equal(today) {
		return false
	}
	return lastProcessed.IsZero() || !lastProcessed.Equal(today)
}

// AmountTable maps milestone types to gift-card amounts.
type AmountTable struct {
	Amounts map[types.MilestoneType]decimal.Decimal
	Default decimal.Decimal
}

// AmountForType returns the configured amount, or Default for unknown types.
func (t AmountTable) AmountForType(mt types.MilestoneType) decimal.Decimal {
	if amt, ok := t.Amounts[mt]; ok {
		return amt
	}
	return t.Default
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
