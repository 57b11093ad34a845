// Package main runs one scheduled job and exits.
//
// Inside AWS Lambda (EventBridge schedules) it receives a
// scheduler.JobPayload per invocation. From a shell it is the operator tool
// for manual runs and backfills:
//
//	go run ./cmd/job-runner --list
//	go run ./cmd/job-runner --job=milestone_scan
//	go run ./cmd/job-runner --job=redemption_check --reference-time=2026-10-17T08:00:00Z
//	go run ./cmd/job-runner --dry-run --job=monthly_report
//	go run ./cmd/job-runner --history=5 --job=milestone_scan
//
// Both modes go through the same runner as the server, so a job started here
// honors the run-lock held by any other worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"rewardbridge/internal/app"
	"rewardbridge/internal/config"
	"rewardbridge/internal/db"
	"rewardbridge/internal/scheduler"
)

func main() {
	jobFlag := flag.String("job", "", "Job to run (see --list)")
	refTimeFlag := flag.String("reference-time", "", "Reference time recorded with the run (RFC3339)")
	listFlag := flag.Bool("list", false, "List the available jobs and exit")
	dryRunFlag := flag.Bool("dry-run", false, "Print the Lambda payload without running the job")
	historyFlag := flag.Int("history", 0, "Print the last N recorded runs of --job instead of running it (needs DATABASE_URL)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Run one rewardbridge job under the shared run-lock.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if isLambdaEnvironment() {
		if err := runLambda(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *listFlag {
		printJobs(os.Stdout)
		return
	}

	payload, err := buildPayload(*jobFlag, *refTimeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		flag.Usage()
		os.Exit(2)
	}

	if *dryRunFlag {
		if err := printPayload(os.Stdout, payload); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *historyFlag > 0 {
		if err := showHistory(payload.Job, *historyFlag); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runOnce(payload); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// isLambdaEnvironment reports whether the process runs inside the Lambda
// runtime.
func isLambdaEnvironment() bool {
	_, ok := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	return ok
}

func buildPayload(job, refTime string) (scheduler.JobPayload, error) {
	if job == "" {
		return scheduler.JobPayload{}, errors.New("--job is required")
	}
	name, err := scheduler.ParseJob(job)
	if err != nil {
		return scheduler.JobPayload{}, err
	}
	p := scheduler.JobPayload{Job: name}
	if refTime != "" {
		t, err := time.Parse(time.RFC3339, refTime)
		if err != nil {
			return scheduler.JobPayload{}, fmt.Errorf("invalid --reference-time %q, expected RFC3339: %w", refTime, err)
		}
		p.ReferenceTime = &t
	}
	return p, nil
}

func setup(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig(config.ProviderFromEnv())
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	cat, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("loading rewards catalog: %w", err)
	}
	logger := app.NewLogger(cfg.Environment, cfg.LogLevel).With("service", cfg.Service+"-jobs")
	return app.Build(ctx, cfg, cat, logger)
}

func runOnce(payload scheduler.JobPayload) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	h := &handler{runner: a.Runner, logger: a.Logger}
	_, err = h.Handle(ctx, payload)
	return err
}

func showHistory(job scheduler.JobName, n int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.Pool == nil {
		return errors.New("job history needs DATABASE_URL")
	}

	recs, err := db.NewJobHistoryRepository(a.Pool).Recent(ctx, string(job), n)
	if err != nil {
		return err
	}
	printHistory(os.Stdout, recs)
	return nil
}

func runLambda() error {
	// Cold start: the app is built once and reused across invocations.
	a, err := setup(context.Background())
	if err != nil {
		return err
	}
	a.Logger.Info("job-runner Lambda initialized", "jobs", len(a.Runner.Jobs()))
	h := &handler{runner: a.Runner, logger: a.Logger}
	lambda.Start(h.Handle)
	return nil
}

// jobRunner is satisfied by *scheduler.Runner.
type jobRunner interface {
	Run(ctx context.Context, name scheduler.JobName) (*scheduler.JobResult, error)
}

type handler struct {
	runner jobRunner
	logger *slog.Logger
}

// Handle runs one job. A run skipped because another worker holds the lock
// is not an error; a job failure is returned so the invocation is marked
// failed.
func (h *handler) Handle(ctx context.Context, p scheduler.JobPayload) (*scheduler.JobResult, error) {
	name, err := scheduler.ParseJob(string(p.Job))
	if err != nil {
		return nil, err
	}
	log := h.logger.With("job", string(name))
	if p.ReferenceTime != nil {
		log = log.With("reference_time", p.ReferenceTime.Format(time.RFC3339))
	}
	log.InfoContext(ctx, "job invocation received")

	res, err := h.runner.Run(ctx, name)
	if res != nil {
		log.InfoContext(ctx, "job invocation finished",
			"status", res.Status,
			"items", res.Items,
			"summary", res.Summary,
			"duration_ms", res.Duration.Milliseconds(),
		)
	}
	return res, err
}

func printJobs(w io.Writer) {
	fmt.Fprintln(w, "Available jobs:")
	for _, j := range scheduler.AllJobs() {
		fmt.Fprintf(w, "  %-20s %s\n", j, scheduler.JobDescriptions[j])
	}
}

func printHistory(w io.Writer, recs []db.JobRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No recorded runs.")
		return
	}
	for _, r := range recs {
		line := fmt.Sprintf("%s  %-8s items=%-4d worker=%s", r.StartedAt.Format(time.RFC3339), r.Status, r.Items, r.WorkerID)
		if r.Summary != nil {
			line += "  " + *r.Summary
		}
		if r.Error != nil {
			line += "  error: " + *r.Error
		}
		fmt.Fprintln(w, line)
	}
}

func printPayload(w io.Writer, p scheduler.JobPayload) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
