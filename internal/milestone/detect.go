package milestone

import (
	"sort"

	"rewardbridge/internal/types"
)

// Detector turns employee records into milestones using an amount table.
type Detector struct {
	Amounts AmountTable
}

// TodaysMilestone returns the milestone an employee earns today, if any.
// Employees with no dates, or already processed today, earn nothing. A
// birthday takes precedence over a same-day anniversary; an anniversary only
// counts when its year count is on the ladder.
func (d Detector) TodaysMilestone(emp types.EmployeeRecord, today types.Date) (types.Milestone, bool) {
	if !emp.HasDates() {
		return types.Milestone{}, false
	}
	if !emp.LastProcessed.IsZero() && emp.LastProcessed.Equal(today) {
		return types.Milestone{}, false
	}

	if IsMilestoneToday(emp.Birthday, emp.LastProcessed, today) {
		return d.milestone(emp, today, types.MilestoneBirthday, 0), true
	}

	if IsMilestoneToday(emp.HireDate, emp.LastProcessed, today) {
		years := today.Year - emp.HireDate.Year
		if OnLadder(years) {
			return d.milestone(emp, today, types.AnniversaryType(years), years), true
		}
	}
	return types.Milestone{}, false
}

// TodaysMilestones applies TodaysMilestone to every employee, preserving
// input order.
func (d Detector) TodaysMilestones(emps []types.EmployeeRecord, today types.Date) []types.Milestone {
	var out []types.Milestone
	for _, emp := range emps {
		if m, ok := d.TodaysMilestone(emp, today); ok {
			out = append(out, m)
		}
	}
	return out
}

// Next returns the forward-looking milestone for an employee as of today.
func (d Detector) Next(emp types.EmployeeRecord, today types.Date) (types.Milestone, bool) {
	c, ok := NextMilestone(emp.HireDate, emp.Birthday, today)
	if !ok {
		return types.Milestone{}, false
	}
	return d.milestone(emp, c.Date, c.Type, c.YearsOfService), true
}

// MilestonesInRange lists birthdays and ladder anniversaries falling within
// [from, to], inclusive, ordered by date.
func (d Detector) MilestonesInRange(emps []types.EmployeeRecord, from, to types.Date) []types.Milestone {
	var out []types.Milestone
	for _, emp := range emps {
		if !emp.Birthday.IsZero() {
			next := NextAnniversaryOccurrence(emp.Birthday, from)
			if !next.After(to) {
				out = append(out, d.milestone(emp, next, types.MilestoneBirthday, 0))
			}
		}
		for _, a := range WorkAnniversaries(emp.HireDate, from) {
			if !a.Date.Before(from) && !a.Date.After(to) {
				out = append(out, d.milestone(emp, a.Date, types.AnniversaryType(a.Years), a.Years))
			}
		}
	}
	sortByDate(out)
	return out
}

func (d Detector) milestone(emp types.EmployeeRecord, date types.Date, mt types.MilestoneType, years int) types.Milestone {
	return types.Milestone{
		Employee:       emp,
		Date:           date,
		Type:           mt,
		Amount:         d.Amounts.AmountForType(mt),
		YearsOfService: years,
	}
}

func sortByDate(ms []types.Milestone) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Date.Before(ms[j].Date) })
}
