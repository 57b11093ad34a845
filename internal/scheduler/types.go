// Package scheduler runs the recurring reward jobs.
//
// Every job, whether fired by cron, an HTTP trigger or the job-runner
// Lambda, goes through the same Runner: concurrent triggers in one process
// share a single execution, a job lock keeps processes from overlapping, and
// each run is recorded in job history and metrics.
package scheduler

import (
	"fmt"
	"sort"
	"time"

	"rewardbridge/internal/types"
)

// JobName identifies a scheduled job.
type JobName string

const (
	JobMilestoneScan    JobName = "milestone_scan"
	JobOverdueReminders JobName = "overdue_reminders"
	JobRedemptionCheck  JobName = "redemption_check"
	JobExpiryWarnings   JobName = "expiry_warnings"
	JobMonthlyReport    JobName = "monthly_report"
)

// JobDescriptions lists every job the service knows.
var JobDescriptions = map[JobName]string{
	JobMilestoneScan:    "Deliver birthday and work anniversary gift cards due today",
	JobOverdueReminders: "Remind managers of performance rewards pending past the approval SLA",
	JobRedemptionCheck:  "Poll issued gift cards for redemption and update the rewards board",
	JobExpiryWarnings:   "Warn employees of expiring gift cards and mark lapsed cards expired",
	JobMonthlyReport:    "Summarize last month's performance rewards to the rewards channel",
}

// AllJobs returns the known jobs in name order.
func AllJobs() []JobName {
	out := make([]JobName, 0, len(JobDescriptions))
	for j := range JobDescriptions {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i] < out[k] })
	return out
}

// ParseJob validates a job name.
func ParseJob(s string) (JobName, error) {
	j := JobName(s)
	if _, ok := JobDescriptions[j]; !ok {
		return "", types.NewAppErrorWithDetails(types.ErrCodeValidationUnknownJob,
			fmt.Sprintf("unknown job %q", s), nil,
			map[string]any{"known_jobs": AllJobs()})
	}
	return j, nil
}

// JobPayload is the event the job-runner Lambda receives from EventBridge:
//
//	{
//	  "job": "milestone_scan",
//	  "reference_time": "2026-10-17T08:00:00Z"  // optional
//	}
type JobPayload struct {
	Job JobName `json:"job"`
	// ReferenceTime is logged and recorded with the run for manual
	// invocations; job logic always evaluates "today" from the clock.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// Run statuses, as recorded in job history and metrics.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// JobResult is the outcome of one run.
type JobResult struct {
	Job       JobName       `json:"job"`
	Status    string        `json:"status"`
	Items     int           `json:"items"`
	Summary   string        `json:"summary,omitempty"`
	Report    any           `json:"report,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	// Shared is true when this caller joined a run already in flight.
	Shared bool `json:"shared"`
}

// JobStatus is the observable state of one job.
type JobStatus struct {
	Job         JobName    `json:"job"`
	Schedule    string     `json:"schedule,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	Running     bool       `json:"running"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	LastStatus  string     `json:"last_status,omitempty"`
	LastSummary string     `json:"last_summary,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Runs        int        `json:"runs"`
}
