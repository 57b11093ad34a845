// Package reports builds the monthly performance reward report and its XLSX
// export.
package reports

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"rewardbridge/internal/approval"
	"rewardbridge/internal/types"
)

const (
	SummarySheet = "Summary"
	RewardsSheet = "Rewards"
)

// StatsSource computes reward statistics for a window.
type StatsSource interface {
	StatisticsBetween(ctx context.Context, from, to time.Time) (*approval.Statistics, error)
}

// Monthly is the report for one calendar month.
type Monthly struct {
	Period string               `json:"period"`
	Stats  *approval.Statistics `json:"statistics"`
}

// Summary is the chat-friendly digest of the report.
func (m *Monthly) Summary() string {
	s := m.Stats
	return fmt.Sprintf("Rewards report %s: %d submitted, %d approved (£%s), %d rejected, %d pending (%d overdue), avg %.1f days to decide",
		m.Period, s.Total, s.Approved, s.TotalApprovedValue.StringFixed(2), s.Rejected, s.Pending, s.Overdue, s.AverageProcessingDays)
}

// Generator produces reports.
type Generator struct {
	source StatsSource
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

func NewGenerator(source StatsSource, loc *time.Location, logger *slog.Logger) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{source: source, loc: loc, now: time.Now, logger: logger}
}

// PreviousMonth returns the bounds of the calendar month before now in loc.
func PreviousMonth(now time.Time, loc *time.Location) (from, to time.Time) {
	local := now.In(loc)
	to = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	from = to.AddDate(0, -1, 0)
	return from, to
}

// LastMonth builds the report for the previous calendar month.
func (g *Generator) LastMonth(ctx context.Context) (*Monthly, error) {
	from, to := PreviousMonth(g.now(), g.loc)
	return g.Between(ctx, from, to)
}

// ForMonth builds the report for a "YYYY-MM" month in the business timezone.
func (g *Generator) ForMonth(ctx context.Context, month string) (*Monthly, error) {
	t, err := time.ParseInLocation("2006-01", month, g.loc)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidDate, fmt.Sprintf("month must be YYYY-MM, got %q", month), err)
	}
	return g.Between(ctx, t, t.AddDate(0, 1, 0))
}

// Between builds a report for [from, to).
func (g *Generator) Between(ctx context.Context, from, to time.Time) (*Monthly, error) {
	st, err := g.source.StatisticsBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	m := &Monthly{Period: from.Format("January 2006"), Stats: st}
	g.logger.InfoContext(ctx, "rewards report generated", "period", m.Period, "total", st.Total)
	return m, nil
}

var rewardColumns = []string{
	"Item ID", "Employee", "Email", "Department", "Tier", "Target Value",
	"Gift Card Amount", "Approval Status", "Manager", "Created", "Decision Date",
	"Redemption Status", "Redeemed", "Expiry Date",
}

// Workbook renders the report as an XLSX workbook with a Summary sheet and
// one row per reward on the Rewards sheet.
func Workbook(m *Monthly) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(RewardsSheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSummary(f, m); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing summary sheet: %w", err)
	}
	if err := writeRewards(f, m.Stats.Items); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing rewards sheet: %w", err)
	}
	return f, nil
}

// WriteXLSX renders the workbook to w.
func WriteXLSX(w io.Writer, m *Monthly) error {
	f, err := Workbook(m)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func writeSummary(f *excelize.File, m *Monthly) error {
	s := m.Stats
	rows := [][]any{
		{"Period", m.Period},
		{"Total rewards", s.Total},
		{"Approved", s.Approved},
		{"Rejected", s.Rejected},
		{"Pending", s.Pending},
		{"Overdue", s.Overdue},
		{"Total approved value (GBP)", s.TotalApprovedValue.InexactFloat64()},
		{"Average processing days", s.AverageProcessingDays},
		{},
		{"Tier", "Rewards"},
	}
	tiers := make([]string, 0, len(s.ByTier))
	for tier := range s.ByTier {
		tiers = append(tiers, string(tier))
	}
	sort.Strings(tiers)
	for _, tier := range tiers {
		rows = append(rows, []any{tier, s.ByTier[types.RewardTier(tier)]})
	}

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(SummarySheet, "A", "A", 30)
}

func writeRewards(f *excelize.File, items []types.RewardItem) error {
	header := make([]any, len(rewardColumns))
	for i, c := range rewardColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(RewardsSheet, "A1", &header); err != nil {
		return err
	}
	for i, it := range items {
		row := []any{
			it.ItemID,
			it.EmployeeName,
			it.EmployeeEmail,
			it.Department,
			string(it.RewardTier),
			it.TargetValue.InexactFloat64(),
			it.GiftCardAmount.InexactFloat64(),
			string(it.ApprovalStatus),
			it.AssignedManager,
			it.CreatedAt.Format(time.DateOnly),
			dateCell(it.DecisionDate),
			string(it.RedemptionStatus),
			it.RedemptionValue.InexactFloat64(),
			dateCell(it.ExpiryDate),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(RewardsSheet, cell, &row); err != nil {
			return err
		}
	}
	return f.AutoFilter(RewardsSheet, fmt.Sprintf("A1:N%d", len(items)+1), nil)
}

func dateCell(d types.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}
