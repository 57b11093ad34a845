package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"rewardbridge/internal/metrics"
	"rewardbridge/internal/notifications"
	"rewardbridge/internal/types"
)

// DefaultLockTTL bounds how long a crashed run can block the next one.
const DefaultLockTTL = 30 * time.Minute

// Outcome is what a job function reports back to the runner.
type Outcome struct {
	Items   int
	Summary string
	Report  any
	// Announce posts Summary to the operations channel.
	Announce bool
	// Degraded marks a run that completed with per-item failures; its
	// announcement goes to the error channel.
	Degraded bool
}

// JobFunc executes one job. A returned error fails the whole run.
type JobFunc func(ctx context.Context) (Outcome, error)

// Notifier is satisfied by *notifications.Dispatcher.
type Notifier interface {
	Send(ctx context.Context, n notifications.Notification)
}

// RunnerConfig holds the Runner's collaborators. Nil Locker, History,
// Metrics and Notifier fall back to in-memory or no-op implementations.
type RunnerConfig struct {
	Locker   Locker
	History  Historian
	Metrics  metrics.Recorder
	Notifier Notifier
	WorkerID string
	LockTTL  time.Duration
	Logger   *slog.Logger
}

// Runner executes registered jobs under the run-lock.
type Runner struct {
	mu   sync.RWMutex
	jobs map[JobName]JobFunc

	group    singleflight.Group
	locker   Locker
	history  Historian
	metrics  metrics.Recorder
	notifier Notifier
	workerID string
	lockTTL  time.Duration
	now      func() time.Time
	logger   *slog.Logger

	state *State
}

func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		jobs:     make(map[JobName]JobFunc),
		locker:   cfg.Locker,
		history:  cfg.History,
		metrics:  cfg.Metrics,
		notifier: cfg.Notifier,
		workerID: cfg.WorkerID,
		lockTTL:  cfg.LockTTL,
		now:      time.Now,
		logger:   cfg.Logger,
		state:    NewState(),
	}
	if r.locker == nil {
		r.locker = NewMemoryLocker()
	}
	if r.history == nil {
		r.history = noopHistorian{}
	}
	if r.metrics == nil {
		r.metrics = metrics.Noop{}
	}
	if r.workerID == "" {
		r.workerID = "worker-" + uuid.NewString()
	}
	if r.lockTTL <= 0 {
		r.lockTTL = DefaultLockTTL
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Register adds or replaces a job.
func (r *Runner) Register(name JobName, fn JobFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[name] = fn
}

// Jobs lists registered jobs in name order.
func (r *Runner) Jobs() []JobName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]JobName, 0, len(r.jobs))
	for j := range r.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i] < out[k] })
	return out
}

// State exposes the runner's job state.
func (r *Runner) State() *State { return r.state }

// Run executes name once. Concurrent calls for the same job share the first
// caller's execution and result. The error is non-nil only when the job
// itself failed or name is unknown; a run skipped because another process
// holds the lock is a successful call with Status "skipped".
func (r *Runner) Run(ctx context.Context, name JobName) (*JobResult, error) {
	r.mu.RLock()
	fn, ok := r.jobs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, types.NewAppError(types.ErrCodeValidationUnknownJob, fmt.Sprintf("job %q is not registered", name), nil)
	}

	v, err, shared := r.group.Do(string(name), func() (any, error) {
		return r.execute(context.WithoutCancel(ctx), name, fn)
	})
	res := *v.(*JobResult)
	res.Shared = shared
	return &res, err
}

func (r *Runner) execute(ctx context.Context, name JobName, fn JobFunc) (*JobResult, error) {
	log := r.logger.With("job", string(name), "worker_id", r.workerID)
	res := &JobResult{Job: name, StartedAt: r.now()}
	lockID := "job:" + string(name)

	acquired, err := r.locker.Acquire(ctx, lockID, r.workerID, r.lockTTL)
	if err != nil {
		log.ErrorContext(ctx, "job lock unavailable", "error", err)
		res.Status = StatusFailed
		res.Error = err.Error()
		r.finish(ctx, res)
		return res, err
	}
	if !acquired {
		log.InfoContext(ctx, "job skipped: lock held by another worker", "lock_id", lockID)
		res.Status = StatusSkipped
		res.Summary = "lock held by another worker"
		r.finish(ctx, res)
		return res, nil
	}
	defer func() {
		if err := r.locker.Release(ctx, lockID, r.workerID); err != nil {
			log.WarnContext(ctx, "failed to release job lock", "lock_id", lockID, "error", err)
		}
	}()

	r.state.begin(name, res.StartedAt)
	historyID, herr := r.history.Start(ctx, string(name), r.workerID)
	if herr != nil {
		log.WarnContext(ctx, "failed to record job start (continuing anyway)", "error", herr)
	}
	log.InfoContext(ctx, "job started")

	out, runErr := r.safeRun(ctx, fn)
	res.Duration = r.now().Sub(res.StartedAt)
	res.Items = out.Items
	res.Summary = out.Summary
	res.Report = out.Report
	res.Status = StatusSuccess
	if runErr != nil {
		res.Status = StatusFailed
		res.Error = runErr.Error()
	}

	if herr == nil {
		if err := r.history.Finish(ctx, historyID, res.Status, res.Items, res.Summary, runErr); err != nil {
			log.ErrorContext(ctx, "failed to record job completion", "history_id", historyID, "error", err)
		}
	}
	r.finish(ctx, res)

	switch {
	case runErr != nil:
		log.ErrorContext(ctx, "job failed", "duration_ms", res.Duration.Milliseconds(), "error", runErr)
		r.announce(ctx, name, fmt.Sprintf("%s failed: %v", name, runErr), true)
	default:
		log.InfoContext(ctx, "job completed",
			"items", res.Items,
			"duration_ms", res.Duration.Milliseconds(),
			"summary", res.Summary,
		)
		if out.Announce || out.Degraded {
			r.announce(ctx, name, out.Summary, out.Degraded)
		}
	}
	return res, runErr
}

// safeRun converts a panicking job into a failed run.
func (r *Runner) safeRun(ctx context.Context, fn JobFunc) (out Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return fn(ctx)
}

func (r *Runner) finish(ctx context.Context, res *JobResult) {
	r.state.end(res)
	r.metrics.RecordJob(ctx, string(res.Job), res.Status, res.Duration)
}

func (r *Runner) announce(ctx context.Context, name JobName, summary string, failed bool) {
	if r.notifier == nil || summary == "" {
		return
	}
	r.notifier.Send(ctx, notifications.JobSummary(string(name), summary, failed))
}

// State is the mutex-guarded record of each job's last run.
type State struct {
	mu   sync.Mutex
	jobs map[JobName]*JobStatus
}

func NewState() *State {
	return &State{jobs: make(map[JobName]*JobStatus)}
}

func (s *State) entry(name JobName) *JobStatus {
	st, ok := s.jobs[name]
	if !ok {
		st = &JobStatus{Job: name}
		s.jobs[name] = st
	}
	return st
}

func (s *State) begin(name JobName, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.entry(name)
	st.Running = true
	st.LastRun = &at
}

func (s *State) end(res *JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.entry(res.Job)
	st.Running = false
	started := res.StartedAt
	st.LastRun = &started
	st.LastStatus = res.Status
	st.LastSummary = res.Summary
	st.LastError = res.Error
	st.Runs++
}

// Snapshot returns a copy of every job's status.
func (s *State) Snapshot() map[JobName]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[JobName]JobStatus, len(s.jobs))
	for name, st := range s.jobs {
		out[name] = *st
	}
	return out
}
