package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want Date
	}{
		{"2024-02-29", Date{2024, time.February, 29}},
		{"2020-06-15T09:30:00Z", Date{2020, time.June, 15}},
		{"2021-01-05 10:00:00", Date{2021, time.January, 5}},
		{"", Date{}},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if err != nil {
			t.Fatalf("ParseDate(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseDate("15/06/2020"); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestDateArithmetic(t *testing.T) {
	d := MustParseDate("2025-12-30")
	if got := d.AddDays(3).String(); got != "2026-01-02" {
		t.Errorf("AddDays(3) = %s", got)
	}
	if got := d.DaysUntil(MustParseDate("2026-01-09")); got != 10 {
		t.Errorf("DaysUntil = %d, want 10", got)
	}
	if !d.Before(d.AddDays(1)) || d.After(d) || !d.Equal(NewDate(2025, 12, 30)) {
		t.Error("comparison helpers disagree")
	}
	if !d.SameMonthDay(MustParseDate("1990-12-30")) {
		t.Error("SameMonthDay should ignore the year")
	}
}

func TestTodayUsesLocation(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 23:30 UTC on 30 June is already 1 July in London (BST).
	now := time.Date(2026, 6, 30, 23, 30, 0, 0, time.UTC)
	if got := Today(now, london).String(); got != "2026-07-01" {
		t.Errorf("Today = %s, want 2026-07-01", got)
	}
}

func TestDateJSON(t *testing.T) {
	var payload struct {
		A Date `json:"a"`
		B Date `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"2026-03-01","b":null}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.A.String() != "2026-03-01" || !payload.B.IsZero() {
		t.Errorf("decoded %+v", payload)
	}

	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"a":"2026-03-01","b":null}` {
		t.Errorf("marshal = %s", out)
	}
}

func TestMilestoneTypeYears(t *testing.T) {
	if n, ok := AnniversaryType(15).Years(); !ok || n != 15 {
		t.Errorf("Years() = %d, %v", n, ok)
	}
	if _, ok := MilestoneBirthday.Years(); ok {
		t.Error("Birthday should not parse as an anniversary")
	}
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("Approved")
	if err != nil || d != DecisionApprove || d.Status() != ApprovalApproved {
		t.Errorf("ParseDecision(Approved) = %v, %v", d, err)
	}
	if _, err := ParseDecision("maybe"); err == nil {
		t.Error("expected validation error")
	}
}
