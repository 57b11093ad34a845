package milestone

import (
	"testing"

	"github.com/shopspring/decimal"

	"rewardbridge/internal/types"
)

func testDetector() Detector {
	return Detector{Amounts: AmountTable{
		Amounts: map[types.MilestoneType]decimal.Decimal{
			types.MilestoneBirthday: decimal.NewFromInt(2),
			"5-Year":                decimal.NewFromInt(2),
		},
		Default: decimal.NewFromInt(50),
	}}
}

func TestTodaysMilestoneBirthday(t *testing.T) {
	today := d("2025-06-01")
	emp := types.EmployeeRecord{ItemID: "1", Name: "Ada", Birthday: d("1990-06-01")}

	m, ok := testDetector().TodaysMilestone(emp, today)
	if !ok {
		t.Fatal("expected a birthday milestone")
	}
	if m.Type != types.MilestoneBirthday || !m.Amount.Equal(decimal.NewFromInt(2)) || m.Date != today {
		t.Errorf("unexpected milestone %+v", m)
	}
}

func TestTodaysMilestoneFiveYear(t *testing.T) {
	today := d("2025-06-01")
	emp := types.EmployeeRecord{ItemID: "2", Name: "Grace", HireDate: d("2020-06-01")}

	m, ok := testDetector().TodaysMilestone(emp, today)
	if !ok {
		t.Fatal("expected an anniversary milestone")
	}
	if m.Type != "5-Year" || m.YearsOfService != 5 {
		t.Errorf("unexpected milestone %+v", m)
	}
}

func TestTodaysMilestoneSkips(t *testing.T) {
	today := d("2025-06-01")
	det := testDetector()

	cases := map[string]types.EmployeeRecord{
		"no dates":             {ItemID: "1"},
		"processed today":      {ItemID: "2", Birthday: d("1990-06-01"), LastProcessed: today},
		"off ladder":           {ItemID: "3", HireDate: d("2019-06-01")},
		"hired today":          {ItemID: "4", HireDate: today},
		"not today":            {ItemID: "5", Birthday: d("1990-06-02"), HireDate: d("2020-05-31")},
		"processed today hire": {ItemID: "6", HireDate: d("2020-06-01"), LastProcessed: today},
	}
	for name, emp := range cases {
		if m, ok := det.TodaysMilestone(emp, today); ok {
			t.Errorf("%s: unexpected milestone %+v", name, m)
		}
	}
}

func TestTodaysMilestoneBirthdayBeatsAnniversary(t *testing.T) {
	today := d("2025-06-01")
	emp := types.EmployeeRecord{Birthday: d("1990-06-01"), HireDate: d("2020-06-01")}
	m, ok := testDetector().TodaysMilestone(emp, today)
	if !ok || m.Type != types.MilestoneBirthday {
		t.Errorf("expected birthday, got %+v", m)
	}
}

func TestTodaysMilestonesIdempotentAfterWriteBack(t *testing.T) {
	today := d("2025-06-01")
	det := testDetector()
	emps := []types.EmployeeRecord{
		{ItemID: "1", Birthday: d("1990-06-01")},
		{ItemID: "2", HireDate: d("2020-06-01")},
		{ItemID: "3", Birthday: d("1990-01-01")},
	}

	first := det.TodaysMilestones(emps, today)
	if len(first) != 2 {
		t.Fatalf("expected 2 milestones, got %d", len(first))
	}
	for _, m := range first {
		for i := range emps {
			if emps[i].ItemID == m.Employee.ItemID {
				emps[i].LastProcessed = today
			}
		}
	}
	if second := det.TodaysMilestones(emps, today); len(second) != 0 {
		t.Errorf("second scan found %d milestones", len(second))
	}
}

func TestMilestonesInRange(t *testing.T) {
	det := testDetector()
	emps := []types.EmployeeRecord{
		{ItemID: "1", Name: "late", Birthday: d("1990-06-20")},
		{ItemID: "2", Name: "early", HireDate: d("2020-06-05")},
		{ItemID: "3", Name: "outside", Birthday: d("1990-08-01")},
	}

	got := det.MilestonesInRange(emps, d("2025-06-01"), d("2025-06-30"))
	if len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}
	if got[0].Employee.Name != "early" || got[0].Type != "5-Year" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Employee.Name != "late" || got[1].Date != d("2025-06-20") {
		t.Errorf("second = %+v", got[1])
	}
}

func TestDetectorNext(t *testing.T) {
	emp := types.EmployeeRecord{Birthday: d("1990-06-01"), HireDate: d("2021-01-15")}
	m, ok := testDetector().Next(emp, d("2025-06-02"))
	if !ok {
		t.Fatal("expected a next milestone")
	}
	if m.Type != "5-Year" || m.Date != d("2026-01-15") || !m.Amount.Equal(decimal.NewFromInt(2)) {
		t.Errorf("unexpected next milestone %+v", m)
	}
}
