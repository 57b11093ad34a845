package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardbridge/internal/approval"
	"rewardbridge/internal/rewards"
	"rewardbridge/internal/types"
)

type mockRewards struct {
	createFn     func(ctx context.Context, in approval.CreateRewardInput) (*approval.Created, error)
	listFn       func(ctx context.Context, f approval.Filter) ([]types.RewardItem, error)
	approveFn    func(ctx context.Context, itemID, managerID string, d types.Decision, comments string) (*approval.Result, error)
	assignFn     func(ctx context.Context, itemID, department string) (string, error)
	pendingFn    func(ctx context.Context, managerID string) ([]approval.Pending, error)
	allPendingFn func(ctx context.Context) ([]approval.Pending, error)
	remindFn     func(ctx context.Context) (*approval.ReminderReport, error)
	statsFn      func(ctx context.Context, since time.Time) (*approval.Statistics, error)
	tiers        *rewards.TierEngine
}

func (m *mockRewards) CreatePerformanceReward(ctx context.Context, in approval.CreateRewardInput) (*approval.Created, error) {
	return m.createFn(ctx, in)
}

func (m *mockRewards) ListRewards(ctx context.Context, f approval.Filter) ([]types.RewardItem, error) {
	return m.listFn(ctx, f)
}

func (m *mockRewards) ProcessApproval(ctx context.Context, itemID, managerID string, d types.Decision, comments string) (*approval.Result, error) {
	return m.approveFn(ctx, itemID, managerID, d, comments)
}

func (m *mockRewards) AutoAssignManager(ctx context.Context, itemID, department string) (string, error) {
	return m.assignFn(ctx, itemID, department)
}

func (m *mockRewards) GetPendingApprovals(ctx context.Context, managerID string) ([]approval.Pending, error) {
	return m.pendingFn(ctx, managerID)
}

func (m *mockRewards) GetAllPendingApprovals(ctx context.Context) ([]approval.Pending, error) {
	return m.allPendingFn(ctx)
}

func (m *mockRewards) SendOverdueReminders(ctx context.Context) (*approval.ReminderReport, error) {
	return m.remindFn(ctx)
}

func (m *mockRewards) Statistics(ctx context.Context, since time.Time) (*approval.Statistics, error) {
	return m.statsFn(ctx, since)
}

func (m *mockRewards) Tiers() *rewards.TierEngine { return m.tiers }

func newRewardHandler(svc *mockRewards) *RewardHandler {
	return NewRewardHandler(svc, nil, discardLogger())
}

func TestRewardHandler_Create(t *testing.T) {
	var got approval.CreateRewardInput
	svc := &mockRewards{createFn: func(_ context.Context, in approval.CreateRewardInput) (*approval.Created, error) {
		got = in
		return &approval.Created{ItemID: "501", Tier: types.TierGold, Amount: decimal.NewFromInt(50), AssignedManager: "m-7"}, nil
	}}
	h := newRewardHandler(svc)

	rec := serve(t, h, http.MethodPost, "/rewards", `{
		"employee_name": "Ada Lovelace",
		"employee_email": "ada@example.com",
		"performance_from": "2026-07-01",
		"performance_to": "2026-09-30",
		"target_description": "Q3 sales",
		"target_value": 12500,
		"department": "Sales"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created approval.Created
	decodeData(t, rec, &created)
	assert.Equal(t, "501", created.ItemID)
	assert.Equal(t, types.TierGold, created.Tier)
	assert.True(t, got.TargetValue.Equal(decimal.NewFromInt(12500)))
	assert.Equal(t, types.MustParseDate("2026-07-01"), got.PerformanceFrom)
}

func TestRewardHandler_CreateValidation(t *testing.T) {
	svc := &mockRewards{createFn: func(context.Context, approval.CreateRewardInput) (*approval.Created, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	h := newRewardHandler(svc)

	rec := serve(t, h, http.MethodPost, "/rewards", `{"employee_email":"ada@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_missing_required_field", decode(t, rec).Error.Code)

	rec = serve(t, h, http.MethodPost, "/rewards", `{"employee_name":"Ada","employee_email":"ada@example.com","bonus":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_invalid_payload", decode(t, rec).Error.Code)
}

func TestRewardHandler_List(t *testing.T) {
	var got approval.Filter
	svc := &mockRewards{listFn: func(_ context.Context, f approval.Filter) ([]types.RewardItem, error) {
		got = f
		return []types.RewardItem{{ItemID: "1"}}, nil
	}}
	rec := serve(t, newRewardHandler(svc), http.MethodGet, "/rewards?status=Pending&department=Sales&tier=Gold&manager=m-7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, approval.Filter{Status: types.ApprovalPending, Department: "Sales", Tier: types.TierGold, Manager: "m-7"}, got)
}

func TestRewardHandler_ProcessApproval(t *testing.T) {
	svc := &mockRewards{approveFn: func(_ context.Context, itemID, managerID string, d types.Decision, comments string) (*approval.Result, error) {
		assert.Equal(t, "501", itemID)
		assert.Equal(t, "m-7", managerID)
		assert.Equal(t, "Great quarter", comments)
		if d == types.DecisionReject {
			return nil, types.NewAppError(types.ErrCodeConflictAlreadyDecided, "already decided", nil)
		}
		return &approval.Result{ItemID: itemID, Status: types.ApprovalApproved, ProcessedBy: managerID, GiftCardCode: "GC-1"}, nil
	}}
	h := newRewardHandler(svc)

	rec := serve(t, h, http.MethodPost, "/rewards/501/approval",
		ApprovalRequest{ManagerID: "m-7", Decision: "Approved", Comments: "Great quarter"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res approval.Result
	decodeData(t, rec, &res)
	assert.Equal(t, "GC-1", res.GiftCardCode)

	rec = serve(t, h, http.MethodPost, "/rewards/501/approval",
		ApprovalRequest{ManagerID: "m-7", Decision: "rejected", Comments: "Great quarter"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(t, h, http.MethodPost, "/rewards/501/approval", ApprovalRequest{ManagerID: "m-7", Decision: "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_invalid_status", decode(t, rec).Error.Code)

	rec = serve(t, h, http.MethodPost, "/rewards/501/approval", ApprovalRequest{Decision: "approved"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRewardHandler_Assign(t *testing.T) {
	svc := &mockRewards{assignFn: func(_ context.Context, itemID, department string) (string, error) {
		if department == "Unknown" {
			return "", nil
		}
		return "m-" + itemID, nil
	}}
	h := newRewardHandler(svc)

	rec := serve(t, h, http.MethodPost, "/rewards/501/assign", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res assignResponse
	decodeData(t, rec, &res)
	assert.Equal(t, "m-501", res.AssignedManager)

	rec = serve(t, h, http.MethodPost, "/rewards/501/assign", AssignRequest{Department: "Unknown"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRewardHandler_Pending(t *testing.T) {
	svc := &mockRewards{
		pendingFn: func(_ context.Context, managerID string) ([]approval.Pending, error) {
			return []approval.Pending{{RewardItem: types.RewardItem{ItemID: "1", AssignedManager: managerID}, DaysPending: 9, Overdue: true}}, nil
		},
		allPendingFn: func(context.Context) ([]approval.Pending, error) {
			return []approval.Pending{{RewardItem: types.RewardItem{ItemID: "1"}}, {RewardItem: types.RewardItem{ItemID: "2"}}}, nil
		},
	}
	h := newRewardHandler(svc)

	rec := serve(t, h, http.MethodGet, "/rewards/pending?manager=m-7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var one []approval.Pending
	decodeData(t, rec, &one)
	require.Len(t, one, 1)
	assert.True(t, one[0].Overdue)
	assert.Equal(t, "m-7", one[0].AssignedManager)

	rec = serve(t, h, http.MethodGet, "/rewards/pending", nil)
	var all []approval.Pending
	decodeData(t, rec, &all)
	assert.Len(t, all, 2)
}

func TestRewardHandler_RemindersStatisticsTiers(t *testing.T) {
	engine, err := rewards.NewTierEngine([]rewards.Band{
		{Tier: types.TierBronze, Min: decimal.Zero, Amount: decimal.NewFromInt(25)},
		{Tier: types.TierSilver, Min: decimal.NewFromInt(5000), Amount: decimal.NewFromInt(50)},
	}, nil)
	require.NoError(t, err)

	var since time.Time
	svc := &mockRewards{
		remindFn: func(context.Context) (*approval.ReminderReport, error) {
			return &approval.ReminderReport{Overdue: 3, RemindersSent: 2}, nil
		},
		statsFn: func(_ context.Context, s time.Time) (*approval.Statistics, error) {
			since = s
			return &approval.Statistics{Total: 4, Approved: 2}, nil
		},
		tiers: engine,
	}
	h := newRewardHandler(svc)

	rec := serve(t, h, http.MethodPost, "/rewards/reminders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep approval.ReminderReport
	decodeData(t, rec, &rep)
	assert.Equal(t, 2, rep.RemindersSent)

	rec = serve(t, h, http.MethodGet, "/rewards/statistics?days=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -7), since, time.Minute)

	rec = serve(t, h, http.MethodGet, "/rewards/tiers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bands []rewards.Band
	decodeData(t, rec, &bands)
	require.Len(t, bands, 2)
	assert.Equal(t, types.TierBronze, bands[0].Tier)
	require.NotNil(t, bands[0].Max)
	assert.True(t, bands[0].Max.Equal(decimal.NewFromInt(5000)))
	assert.Nil(t, bands[1].Max)
}
