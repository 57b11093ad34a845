package scanner

import (
	"context"
	"strings"

	"rewardbridge/internal/milestone"
	"rewardbridge/internal/types"
)

// EmployeeView is an employee record annotated with its computed next
// milestone.
type EmployeeView struct {
	types.EmployeeRecord
	Next           *types.Milestone `json:"next,omitempty"`
	YearsOfService int              `json:"years_of_service"`
}

func (s *Scanner) view(emp types.EmployeeRecord, today types.Date) EmployeeView {
	v := EmployeeView{EmployeeRecord: emp}
	if !emp.HireDate.IsZero() && !emp.HireDate.After(today) {
		v.YearsOfService = milestone.YearsOfService(emp.HireDate, today)
	}
	if next, ok := s.detector.Next(emp, today); ok {
		next.Employee = types.EmployeeRecord{}
		v.Next = &next
	}
	return v
}

// Employees lists every employee, optionally filtered by department
// (case-insensitive).
func (s *Scanner) Employees(ctx context.Context, department string) ([]EmployeeView, error) {
	emps, err := s.store.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	out := make([]EmployeeView, 0, len(emps))
	for _, emp := range emps {
		if department != "" && !strings.EqualFold(emp.Department, department) {
			continue
		}
		out = append(out, s.view(emp, today))
	}
	return out, nil
}

// Employee returns one employee by item id.
func (s *Scanner) Employee(ctx context.Context, itemID string) (EmployeeView, error) {
	emp, err := s.store.GetEmployee(ctx, itemID)
	if err != nil {
		return EmployeeView{}, err
	}
	return s.view(emp, s.Today()), nil
}

// TodaysMilestones previews what a scan run now would process, without side
// effects.
func (s *Scanner) TodaysMilestones(ctx context.Context) ([]types.Milestone, error) {
	emps, err := s.store.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	return s.detector.TodaysMilestones(emps, s.Today()), nil
}

// Upcoming lists milestones in the next days days, today included.
func (s *Scanner) Upcoming(ctx context.Context, days int) ([]types.Milestone, error) {
	if days < 0 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPayload, "days must not be negative", nil)
	}
	emps, err := s.store.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	return s.detector.MilestonesInRange(emps, today, today.AddDays(days)), nil
}
