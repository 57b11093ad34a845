package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"rewardbridge/internal/scanner"
	"rewardbridge/internal/types"
)

// DefaultOneShotDelay is used when ScheduleOneShot gets a non-positive delay.
const DefaultOneShotDelay = time.Minute

// Scheduler fires registered jobs on their cron schedules in the business
// timezone, and supports one-off delayed scans for testing.
type Scheduler struct {
	runner *Runner
	cron   *cron.Cron
	loc    *time.Location
	logger *slog.Logger

	mu       sync.Mutex
	specs    map[JobName]string
	entries  map[JobName]cron.EntryID
	timers   map[*time.Timer]struct{}
	inflight sync.WaitGroup
	stopped  bool
}

// New validates specs and registers a cron entry for every job that has both
// a schedule and a registered JobFunc.
func New(runner *Runner, specs map[JobName]string, loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		runner:  runner,
		loc:     loc,
		logger:  logger,
		specs:   make(map[JobName]string),
		entries: make(map[JobName]cron.EntryID),
		timers:  make(map[*time.Timer]struct{}),
	}
	cl := cronLogger{logger: logger}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)

	registered := make(map[JobName]bool)
	for _, j := range runner.Jobs() {
		registered[j] = true
	}
	for name, spec := range specs {
		if spec == "" || !registered[name] {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
		}
		job := name
		id, err := s.cron.AddFunc(spec, func() { s.fire(job) })
		if err != nil {
			return nil, fmt.Errorf("scheduling %s: %w", name, err)
		}
		s.specs[name] = spec
		s.entries[name] = id
	}
	return s, nil
}

// Start begins firing scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.entries), "timezone", s.loc.String())
}

// Stop prevents new runs and waits for in-flight runs to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for scheduled jobs: %w", ctx.Err())
	}
}

func (s *Scheduler) fire(name JobName) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	// Failures are logged and recorded by the runner; cron only needs to
	// move on to the next tick.
	_, _ = s.runner.Run(context.Background(), name)
}

// RunJob runs a registered job now through the runner.
func (s *Scheduler) RunJob(ctx context.Context, name JobName) (*JobResult, error) {
	return s.runner.Run(ctx, name)
}

// RunScanNow runs the milestone scan immediately and returns its report. A
// run skipped because another process holds the lock returns a conflict
// error.
func (s *Scheduler) RunScanNow(ctx context.Context) (*scanner.Report, error) {
	res, err := s.runner.Run(ctx, JobMilestoneScan)
	if err != nil {
		return nil, err
	}
	if res.Status == StatusSkipped {
		return nil, types.NewAppError(types.ErrCodeConflictJobRunning, "a milestone scan is already running in another process", nil)
	}
	rep, ok := res.Report.(*scanner.Report)
	if !ok {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "milestone scan returned no report", nil)
	}
	return rep, nil
}

// ScheduleOneShot runs a single milestone scan after delay and returns when
// it will fire.
func (s *Scheduler) ScheduleOneShot(delay time.Duration) time.Time {
	if delay <= 0 {
		delay = DefaultOneShotDelay
	}
	at := time.Now().Add(delay)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return at
	}
	// The callback takes mu before reading t, so t is assigned by then.
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()
		s.fire(JobMilestoneScan)
	})
	s.timers[t] = struct{}{}
	s.logger.Info("one-shot milestone scan scheduled", "at", at.In(s.loc).Format(time.RFC3339))
	return at
}

// Status reports every known job with its schedule and last run.
func (s *Scheduler) Status() map[string]JobStatus {
	snap := s.runner.State().Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]JobStatus)
	for _, name := range s.runner.Jobs() {
		st, ok := snap[name]
		if !ok {
			st = JobStatus{Job: name}
		}
		st.Schedule = s.specs[name]
		if id, ok := s.entries[name]; ok {
			if next := s.cron.Entry(id).Next; !next.IsZero() {
				n := next.In(s.loc)
				st.NextRun = &n
			}
		}
		out[string(name)] = st
	}
	return out
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
