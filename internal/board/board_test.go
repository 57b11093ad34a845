package board

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewardbridge/internal/types"
)

func testColumns() ColumnMap {
	return ColumnMap{
		Employees: EmployeeColumns{
			Email: "email", HireDate: "hire", Birthday: "bday", Department: "dept",
			NextMilestoneDate: "next", MilestoneType: "mtype", GiftCardAmount: "amount",
			ProcessingStatus: "status", LastProcessed: "last", GiftCardCode: "code",
		},
		Rewards: RewardColumns{
			EmployeeEmail: "r_email", PerformancePeriod: "r_period", TargetDescription: "r_desc",
			TargetValue: "r_target", Department: "r_dept", RewardTier: "r_tier",
			GiftCardAmount: "r_amount", ApprovalStatus: "r_approval", AssignedManager: "r_manager",
			Comments: "r_comments", DecisionDate: "r_decided", GiftCardCode: "r_code",
			IssueDate: "r_issued", RedemptionStatus: "r_redemption", RedemptionValue: "r_redeemed",
			ExpiryDate: "r_expiry", ROIImpact: "r_roi", OrderID: "r_order",
		},
	}
}

func TestColumnMapValidate(t *testing.T) {
	require.NoError(t, testColumns().Validate())

	m := testColumns()
	m.Employees.Birthday = ""
	m.Rewards.OrderID = "r_code"
	err := m.Validate()

	var cmErr *ColumnMapError
	require.True(t, errors.As(err, &cmErr))
	require.Len(t, cmErr.Problems, 2)
	assert.Contains(t, cmErr.Problems[0], "Birthday")
	assert.Contains(t, cmErr.Problems[1], `"r_code"`)
}

func TestParseEmployee(t *testing.T) {
	it := NewItem("42", " Ada Lovelace ").
		Set("email", EmailValue("ada@example.com")).
		Set("hire", DateValue(types.MustParseDate("2020-06-01"))).
		Set("bday", "1990-12-10").
		Set("dept", DropdownValue("Engineering")).
		Set("amount", "2").
		Set("status", StatusValue("Delivered")).
		Set("last", DateValue(types.MustParseDate("2025-06-01"))).
		Build()

	rec, err := ParseEmployee(it, testColumns().Employees)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", rec.Name)
	assert.Equal(t, "ada@example.com", rec.Email)
	assert.Equal(t, types.MustParseDate("2020-06-01"), rec.HireDate)
	assert.Equal(t, types.MustParseDate("1990-12-10"), rec.Birthday)
	assert.Equal(t, "Engineering", rec.Department)
	require.NotNil(t, rec.GiftCardAmount)
	assert.True(t, rec.GiftCardAmount.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, types.ProcessingDelivered, rec.ProcessingStatus)
	assert.True(t, rec.NextMilestoneDate.IsZero())
}

func TestParseEmployeeKeepsRecordOnBadColumn(t *testing.T) {
	it := NewItem("7", "Bob").Set("hire", "not-a-date").Set("bday", "1991-01-02").Build()

	rec, err := ParseEmployee(it, testColumns().Employees)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "hire_date", fe.Field)
	assert.True(t, rec.HireDate.IsZero())
	assert.Equal(t, types.MustParseDate("1991-01-02"), rec.Birthday)
}

func TestParseEmployeeEmailFromQuotedValue(t *testing.T) {
	quoted, _ := json.Marshal(`{"email":"c@example.com","text":"Carol"}`)
	it := Item{ID: "1", Columns: []Column{{ID: "email", Text: "Carol", Value: quoted}}}
	rec, _ := ParseEmployee(it, testColumns().Employees)
	assert.Equal(t, "c@example.com", rec.Email)
}

func TestParseReward(t *testing.T) {
	created := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	it := NewItem("9", RewardItemName("Grace Hopper")).Created(created).
		Set("r_email", EmailValue("grace@example.com")).
		Set("r_target", "1,250.50").
		Set("r_tier", StatusValue("Silver")).
		Set("r_amount", "25").
		Set("r_manager", "manager-sales-id").
		Build()

	rec, err := ParseReward(it, testColumns().Rewards)
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", rec.EmployeeName)
	assert.True(t, rec.TargetValue.Equal(decimal.RequireFromString("1250.50")))
	assert.Equal(t, types.TierSilver, rec.RewardTier)
	assert.Equal(t, types.ApprovalPending, rec.ApprovalStatus, "missing status defaults to Pending")
	assert.Equal(t, created, rec.CreatedAt)
}

func TestRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	gw := NewMemoryGateway()
	gw.Seed("emp", NewItem("1", "Ada").Set("bday", "1990-06-01").Build())
	repo := NewRepository(gw, "emp", "rew", testColumns(), nil)

	status := types.ProcessingDelivered
	today := types.MustParseDate("2025-06-01")
	code := "VOUCHER-1"
	amount := decimal.NewFromInt(2)
	mt := types.MilestoneBirthday
	require.NoError(t, repo.UpdateEmployee(ctx, "1", EmployeeUpdate{
		Status: &status, LastProcessed: &today, GiftCardCode: &code, GiftCardAmount: &amount, MilestoneType: &mt,
	}))

	emp, err := repo.GetEmployee(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, types.ProcessingDelivered, emp.ProcessingStatus)
	assert.Equal(t, today, emp.LastProcessed)
	assert.Equal(t, "VOUCHER-1", emp.GiftCardCode)
	assert.Equal(t, types.MilestoneBirthday, emp.MilestoneType)

	_, err = repo.GetEmployee(ctx, "missing")
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundEmployee, appErr.Code)
}

func TestRepositoryCreateReward(t *testing.T) {
	ctx := context.Background()
	gw := NewMemoryGateway()
	repo := NewRepository(gw, "emp", "rew", testColumns(), nil)

	id, err := repo.CreateReward(ctx, NewReward{
		EmployeeName:      "Linus",
		EmployeeEmail:     "linus@example.com",
		PerformanceFrom:   types.MustParseDate("2025-01-01"),
		PerformanceTo:     types.MustParseDate("2025-03-31"),
		TargetDescription: "Closed Q1 deals",
		TargetValue:       decimal.NewFromInt(1200),
		Department:        "Sales",
		Tier:              types.TierSilver,
		Amount:            decimal.NewFromInt(25),
	})
	require.NoError(t, err)

	rw, err := repo.GetReward(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Linus", rw.EmployeeName)
	assert.Equal(t, "linus@example.com", rw.EmployeeEmail)
	assert.Equal(t, "2025-01-01 - 2025-03-31", rw.PerformancePeriod)
	assert.Equal(t, "Sales", rw.Department)
	assert.Equal(t, types.ApprovalPending, rw.ApprovalStatus)
	assert.True(t, rw.GiftCardAmount.Equal(decimal.NewFromInt(25)))
}

func TestRepositoryPropagatesListFailure(t *testing.T) {
	gw := NewMemoryGateway()
	gw.FailList["emp"] = errors.New("board down")
	repo := NewRepository(gw, "emp", "rew", testColumns(), nil)

	_, err := repo.ListEmployees(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "board down")
}

func TestEmptyUpdateIsNoop(t *testing.T) {
	gw := NewMemoryGateway()
	repo := NewRepository(gw, "emp", "rew", testColumns(), nil)
	require.NoError(t, repo.UpdateReward(context.Background(), "nope", RewardUpdate{}))
	assert.Empty(t, gw.Updates)
}
