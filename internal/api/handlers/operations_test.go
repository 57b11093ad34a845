package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"rewardbridge/internal/approval"
	"rewardbridge/internal/external"
	"rewardbridge/internal/redemption"
	"rewardbridge/internal/reports"
	"rewardbridge/internal/scheduler"
	"rewardbridge/internal/types"
)

type mockRedemptions struct {
	checkFn    func(ctx context.Context) (*redemption.CheckReport, error)
	expiringFn func(ctx context.Context, days int) ([]redemption.Expiring, error)
}

func (m *mockRedemptions) CheckRedemptions(ctx context.Context) (*redemption.CheckReport, error) {
	return m.checkFn(ctx)
}

func (m *mockRedemptions) ExpiringRewards(ctx context.Context, days int) ([]redemption.Expiring, error) {
	return m.expiringFn(ctx, days)
}

type mockProducts struct {
	searchFn func(ctx context.Context, merchant string) ([]external.Product, error)
}

func (m *mockProducts) Search(ctx context.Context, merchant string) ([]external.Product, error) {
	return m.searchFn(ctx, merchant)
}

type mockOrders struct {
	getFn func(ctx context.Context, orderID string) (*external.Order, error)
}

func (m *mockOrders) GetOrder(ctx context.Context, orderID string) (*external.Order, error) {
	return m.getFn(ctx, orderID)
}

type mockJobs struct {
	statusFn  func() map[string]scheduler.JobStatus
	runFn     func(ctx context.Context, name scheduler.JobName) (*scheduler.JobResult, error)
	oneShotFn func(delay time.Duration) time.Time
}

func (m *mockJobs) Status() map[string]scheduler.JobStatus { return m.statusFn() }

func (m *mockJobs) RunJob(ctx context.Context, name scheduler.JobName) (*scheduler.JobResult, error) {
	return m.runFn(ctx, name)
}

func (m *mockJobs) ScheduleOneShot(delay time.Duration) time.Time { return m.oneShotFn(delay) }

type mockReports struct {
	lastFn  func(ctx context.Context) (*reports.Monthly, error)
	monthFn func(ctx context.Context, month string) (*reports.Monthly, error)
}

func (m *mockReports) LastMonth(ctx context.Context) (*reports.Monthly, error) { return m.lastFn(ctx) }

func (m *mockReports) ForMonth(ctx context.Context, month string) (*reports.Monthly, error) {
	return m.monthFn(ctx, month)
}

func TestOperationsHandler_Redemptions(t *testing.T) {
	var gotDays int
	h := NewOperationsHandler(OperationsConfig{
		Redemptions: &mockRedemptions{
			checkFn: func(context.Context) (*redemption.CheckReport, error) {
				return &redemption.CheckReport{Checked: 5, Updated: 2, FullyRedeemed: 1}, nil
			},
			expiringFn: func(_ context.Context, days int) ([]redemption.Expiring, error) {
				gotDays = days
				return []redemption.Expiring{{RewardItem: types.RewardItem{ItemID: "9"}, DaysLeft: 4, Remaining: decimal.NewFromInt(10)}}, nil
			},
		},
		Logger: discardLogger(),
	})

	rec := serve(t, h, http.MethodPost, "/redemptions/check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep redemption.CheckReport
	decodeData(t, rec, &rep)
	assert.Equal(t, 5, rep.Checked)
	assert.Equal(t, 1, rep.FullyRedeemed)

	rec = serve(t, h, http.MethodGet, "/redemptions/expiring?days=14", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 14, gotDays)

	rec = serve(t, h, http.MethodGet, "/redemptions/expiring", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, gotDays, "absent days defers to the monitor's lookahead")

	rec = serve(t, h, http.MethodGet, "/redemptions/expiring?days=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOperationsHandler_Products(t *testing.T) {
	catalog := []external.Product{
		{Code: "AMZ-25", Merchant: "amazon", Value: decimal.NewFromInt(25), DisplayValue: decimal.NewFromInt(25)},
		{Code: "AMZ-50", Merchant: "amazon", Value: decimal.NewFromInt(50), DisplayValue: decimal.NewFromInt(50)},
	}
	var gotMerchant string
	h := NewOperationsHandler(OperationsConfig{
		Products: &mockProducts{searchFn: func(_ context.Context, merchant string) ([]external.Product, error) {
			gotMerchant = merchant
			return catalog, nil
		}},
		DefaultMerchant: "amazon",
		Logger:          discardLogger(),
	})

	tests := []struct {
		name      string
		query     string
		wantCodes []string
		wantMerch string
		wantCode  int
	}{
		{name: "default merchant", query: "", wantCodes: []string{"AMZ-25", "AMZ-50"}, wantMerch: "amazon", wantCode: http.StatusOK},
		{name: "explicit merchant", query: "?merchant=tesco", wantCodes: []string{"AMZ-25", "AMZ-50"}, wantMerch: "tesco", wantCode: http.StatusOK},
		{name: "amount filter", query: "?amount=50", wantCodes: []string{"AMZ-50"}, wantMerch: "amazon", wantCode: http.StatusOK},
		{name: "no match is empty", query: "?amount=75", wantCodes: []string{}, wantMerch: "amazon", wantCode: http.StatusOK},
		{name: "bad amount", query: "?amount=lots", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, h, http.MethodGet, "/giftcards/products"+tt.query, nil)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				assert.Equal(t, "validation_invalid_amount", decode(t, rec).Error.Code)
				return
			}
			var got []external.Product
			decodeData(t, rec, &got)
			codes := make([]string, 0, len(got))
			for _, p := range got {
				codes = append(codes, p.Code)
			}
			assert.Equal(t, tt.wantCodes, codes)
			assert.Equal(t, tt.wantMerch, gotMerchant)
		})
	}
}

func TestOperationsHandler_Order(t *testing.T) {
	h := NewOperationsHandler(OperationsConfig{
		Orders: &mockOrders{getFn: func(_ context.Context, id string) (*external.Order, error) {
			if id != "ord-1" {
				return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "order not found", nil)
			}
			return &external.Order{ID: id, Status: "completed", GiftCardCode: "GC-1"}, nil
		}},
		Logger: discardLogger(),
	})

	rec := serve(t, h, http.MethodGet, "/giftcards/orders/ord-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var order external.Order
	decodeData(t, rec, &order)
	assert.Equal(t, "GC-1", order.GiftCardCode)

	rec = serve(t, h, http.MethodGet, "/giftcards/orders/ord-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOperationsHandler_Scheduler(t *testing.T) {
	scheduledAt := time.Date(2026, 10, 17, 9, 1, 0, 0, time.UTC)
	var gotDelay time.Duration
	jobs := &mockJobs{
		statusFn: func() map[string]scheduler.JobStatus {
			return map[string]scheduler.JobStatus{
				string(scheduler.JobMilestoneScan): {Job: scheduler.JobMilestoneScan, Schedule: "0 9 * * *", Runs: 3},
			}
		},
		runFn: func(_ context.Context, name scheduler.JobName) (*scheduler.JobResult, error) {
			if name == scheduler.JobRedemptionCheck {
				return &scheduler.JobResult{Job: name, Status: scheduler.StatusSkipped}, nil
			}
			return &scheduler.JobResult{Job: name, Status: scheduler.StatusSuccess, Items: 2}, nil
		},
		oneShotFn: func(d time.Duration) time.Time {
			gotDelay = d
			return scheduledAt
		},
	}
	h := NewOperationsHandler(OperationsConfig{Jobs: jobs, TestScanDelay: time.Minute, Logger: discardLogger()})

	t.Run("status", func(t *testing.T) {
		rec := serve(t, h, http.MethodGet, "/scheduler/status", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var st map[string]scheduler.JobStatus
		decodeData(t, rec, &st)
		assert.Equal(t, 3, st["milestone_scan"].Runs)
	})

	t.Run("run job", func(t *testing.T) {
		rec := serve(t, h, http.MethodPost, "/scheduler/jobs/overdue_reminders/run", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var res scheduler.JobResult
		decodeData(t, rec, &res)
		assert.Equal(t, scheduler.JobOverdueReminders, res.Job)
		assert.Equal(t, 2, res.Items)
	})

	t.Run("skipped run is a conflict", func(t *testing.T) {
		rec := serve(t, h, http.MethodPost, "/scheduler/jobs/redemption_check/run", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "conflict_job_running", decode(t, rec).Error.Code)
	})

	t.Run("unknown job", func(t *testing.T) {
		rec := serve(t, h, http.MethodPost, "/scheduler/jobs/reindex/run", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("test scan", func(t *testing.T) {
		rec := serve(t, h, http.MethodPost, "/scheduler/test-scan", nil)
		require.Equal(t, http.StatusAccepted, rec.Code)
		var res testScanResponse
		decodeData(t, rec, &res)
		assert.Equal(t, scheduler.JobMilestoneScan, res.Job)
		assert.True(t, scheduledAt.Equal(res.ScheduledAt))
		assert.Equal(t, time.Minute, gotDelay)
	})
}

func TestOperationsHandler_RewardsWorkbook(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	month := func(y int, m time.Month) *reports.Monthly {
		from := time.Date(y, m, 1, 0, 0, 0, 0, london)
		return &reports.Monthly{
			Period: from.Format("January 2006"),
			Stats: &approval.Statistics{
				From:     from,
				To:       from.AddDate(0, 1, 0),
				Total:    1,
				Approved: 1,
				ByTier:   map[types.RewardTier]int{types.TierGold: 1},
				Items: []types.RewardItem{{
					ItemID:         "501",
					EmployeeName:   "Ada Lovelace",
					RewardTier:     types.TierGold,
					GiftCardAmount: decimal.NewFromInt(50),
					ApprovalStatus: types.ApprovalApproved,
				}},
			},
		}
	}
	var gotMonth string
	h := NewOperationsHandler(OperationsConfig{
		Reports: &mockReports{
			lastFn: func(context.Context) (*reports.Monthly, error) { return month(2026, time.September), nil },
			monthFn: func(_ context.Context, m string) (*reports.Monthly, error) {
				gotMonth = m
				if m == "March" {
					return nil, types.NewAppError(types.ErrCodeValidationInvalidDate, "month must be YYYY-MM", nil)
				}
				return month(2026, time.March), nil
			},
		},
		Logger: discardLogger(),
	})

	rec := serve(t, h, http.MethodGet, "/reports/rewards.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="rewards-2026-09.xlsx"`)

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{reports.SummarySheet, reports.RewardsSheet}, f.GetSheetList())

	rec = serve(t, h, http.MethodGet, "/reports/rewards.xlsx?month=2026-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-03", gotMonth)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "rewards-2026-03.xlsx")

	rec = serve(t, h, http.MethodGet, "/reports/rewards.xlsx?month=March", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
