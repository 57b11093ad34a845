package scheduler

import (
	"context"
	"fmt"

	"rewardbridge/internal/approval"
	"rewardbridge/internal/redemption"
	"rewardbridge/internal/reports"
	"rewardbridge/internal/scanner"
)

// MilestoneScanner runs the daily scan.
type MilestoneScanner interface {
	ScanAndProcessMilestones(ctx context.Context) (*scanner.Report, error)
}

// ReminderSender sends overdue approval reminders.
type ReminderSender interface {
	SendOverdueReminders(ctx context.Context) (*approval.ReminderReport, error)
}

// RedemptionMonitor polls redemption and expiry.
type RedemptionMonitor interface {
	CheckRedemptions(ctx context.Context) (*redemption.CheckReport, error)
	SendExpiryWarnings(ctx context.Context) (*redemption.ExpiryReport, error)
}

// ReportBuilder builds the monthly report.
type ReportBuilder interface {
	LastMonth(ctx context.Context) (*reports.Monthly, error)
}

// Services are the domain services behind the standard jobs. A nil service
// leaves its jobs unregistered.
type Services struct {
	Scanner     MilestoneScanner
	Approvals   ReminderSender
	Redemptions RedemptionMonitor
	Reports     ReportBuilder
}

// RegisterJobs registers every job whose service is present.
func RegisterJobs(r *Runner, svc Services) {
	if svc.Scanner != nil {
		r.Register(JobMilestoneScan, MilestoneScanJob(svc.Scanner))
	}
	if svc.Approvals != nil {
		r.Register(JobOverdueReminders, OverdueRemindersJob(svc.Approvals))
	}
	if svc.Redemptions != nil {
		r.Register(JobRedemptionCheck, RedemptionCheckJob(svc.Redemptions))
		r.Register(JobExpiryWarnings, ExpiryWarningsJob(svc.Redemptions))
	}
	if svc.Reports != nil {
		r.Register(JobMonthlyReport, MonthlyReportJob(svc.Reports))
	}
}

// MilestoneScanJob always announces its summary; per-employee failures make
// the announcement go to the error channel.
func MilestoneScanJob(s MilestoneScanner) JobFunc {
	return func(ctx context.Context) (Outcome, error) {
		rep, err := s.ScanAndProcessMilestones(ctx)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Items:    rep.MilestonesToday,
			Summary:  rep.Summary(),
			Report:   rep,
			Announce: true,
			Degraded: rep.Failed > 0,
		}, nil
	}
}

func OverdueRemindersJob(s ReminderSender) JobFunc {
	return func(ctx context.Context) (Outcome, error) {
		rep, err := s.SendOverdueReminders(ctx)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Items:   rep.RemindersSent,
			Summary: fmt.Sprintf("Overdue approvals: %d overdue, %d reminders sent", rep.Overdue, rep.RemindersSent),
			Report:  rep,
		}, nil
	}
}

func RedemptionCheckJob(s RedemptionMonitor) JobFunc {
	return func(ctx context.Context) (Outcome, error) {
		rep, err := s.CheckRedemptions(ctx)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Items:    rep.Checked,
			Summary:  rep.Summary(),
			Report:   rep,
			Degraded: rep.Failed > 0,
		}, nil
	}
}

func ExpiryWarningsJob(s RedemptionMonitor) JobFunc {
	return func(ctx context.Context) (Outcome, error) {
		rep, err := s.SendExpiryWarnings(ctx)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Items:    rep.Warned + rep.Expired,
			Summary:  rep.Summary(),
			Report:   rep,
			Degraded: rep.Failed > 0,
		}, nil
	}
}

func MonthlyReportJob(s ReportBuilder) JobFunc {
	return func(ctx context.Context) (Outcome, error) {
		m, err := s.LastMonth(ctx)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Items:    m.Stats.Total,
			Summary:  m.Summary(),
			Report:   m,
			Announce: true,
		}, nil
	}
}
