package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardbridge/internal/scanner"
	"rewardbridge/internal/types"
)

type mockMilestones struct {
	employeesFn func(ctx context.Context, department string) ([]scanner.EmployeeView, error)
	employeeFn  func(ctx context.Context, itemID string) (scanner.EmployeeView, error)
	todayFn     func(ctx context.Context) ([]types.Milestone, error)
	upcomingFn  func(ctx context.Context, days int) ([]types.Milestone, error)
}

func (m *mockMilestones) Employees(ctx context.Context, department string) ([]scanner.EmployeeView, error) {
	return m.employeesFn(ctx, department)
}

func (m *mockMilestones) Employee(ctx context.Context, itemID string) (scanner.EmployeeView, error) {
	return m.employeeFn(ctx, itemID)
}

func (m *mockMilestones) TodaysMilestones(ctx context.Context) ([]types.Milestone, error) {
	return m.todayFn(ctx)
}

func (m *mockMilestones) Upcoming(ctx context.Context, days int) ([]types.Milestone, error) {
	return m.upcomingFn(ctx, days)
}

type mockTrigger struct {
	runFn func(ctx context.Context) (*scanner.Report, error)
}

func (m *mockTrigger) RunScanNow(ctx context.Context) (*scanner.Report, error) { return m.runFn(ctx) }

func TestMilestoneHandler_Scan(t *testing.T) {
	trigger := &mockTrigger{runFn: func(context.Context) (*scanner.Report, error) {
		return &scanner.Report{Date: types.MustParseDate("2026-10-17"), TotalEmployees: 40, MilestonesToday: 2, Succeeded: 2}, nil
	}}
	h := NewMilestoneHandler(&mockMilestones{}, trigger, discardLogger())

	rec := serve(t, h, http.MethodPost, "/milestones/scan", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rep scanner.Report
	decodeData(t, rec, &rep)
	assert.Equal(t, 40, rep.TotalEmployees)
	assert.Equal(t, 2, rep.Succeeded)
}

func TestMilestoneHandler_ScanConflict(t *testing.T) {
	trigger := &mockTrigger{runFn: func(context.Context) (*scanner.Report, error) {
		return nil, types.NewAppError(types.ErrCodeConflictJobRunning, "already running", nil)
	}}
	h := NewMilestoneHandler(&mockMilestones{}, trigger, discardLogger())

	rec := serve(t, h, http.MethodPost, "/milestones/scan", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict_job_running", decode(t, rec).Error.Code)
}

func TestMilestoneHandler_Employees(t *testing.T) {
	var gotDept string
	svc := &mockMilestones{
		employeesFn: func(_ context.Context, department string) ([]scanner.EmployeeView, error) {
			gotDept = department
			return []scanner.EmployeeView{{EmployeeRecord: types.EmployeeRecord{ItemID: "11", Name: "Ada"}, YearsOfService: 3}}, nil
		},
		employeeFn: func(_ context.Context, itemID string) (scanner.EmployeeView, error) {
			if itemID != "11" {
				return scanner.EmployeeView{}, types.NewAppError(types.ErrCodeNotFoundEmployee, "employee not found", nil)
			}
			return scanner.EmployeeView{EmployeeRecord: types.EmployeeRecord{ItemID: "11", Name: "Ada"}}, nil
		},
	}
	h := NewMilestoneHandler(svc, nil, discardLogger())

	rec := serve(t, h, http.MethodGet, "/milestones/employees?department=Sales", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []scanner.EmployeeView
	decodeData(t, rec, &views)
	assert.Equal(t, "Sales", gotDept)
	require.Len(t, views, 1)
	assert.Equal(t, 3, views[0].YearsOfService)

	rec = serve(t, h, http.MethodGet, "/milestones/employees/11", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h, http.MethodGet, "/milestones/employees/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMilestoneHandler_TodayAndUpcoming(t *testing.T) {
	ms := []types.Milestone{{
		Employee: types.EmployeeRecord{ItemID: "11", Name: "Ada"},
		Date:     types.MustParseDate("2026-10-17"),
		Type:     types.MilestoneBirthday,
		Amount:   decimal.NewFromInt(25),
	}}
	var gotDays int
	svc := &mockMilestones{
		todayFn: func(context.Context) ([]types.Milestone, error) { return ms, nil },
		upcomingFn: func(_ context.Context, days int) ([]types.Milestone, error) {
			gotDays = days
			return ms, nil
		},
	}
	h := NewMilestoneHandler(svc, nil, discardLogger())

	rec := serve(t, h, http.MethodGet, "/milestones/today", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []types.Milestone
	decodeData(t, rec, &got)
	require.Len(t, got, 1)
	assert.Equal(t, types.MilestoneBirthday, got[0].Type)
	assert.True(t, got[0].Amount.Equal(decimal.NewFromInt(25)))

	rec = serve(t, h, http.MethodGet, "/milestones/upcoming", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultUpcomingDays, gotDays)

	rec = serve(t, h, http.MethodGet, "/milestones/upcoming?days=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, gotDays)

	rec = serve(t, h, http.MethodGet, "/milestones/upcoming?days=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(t, h, http.MethodGet, "/milestones/upcoming?days=soon", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
