// Package app wires configuration, clients and domain services into the
// object graph shared by the HTTP server and the job runner.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"rewardbridge/internal/approval"
	"rewardbridge/internal/board"
	"rewardbridge/internal/config"
	"rewardbridge/internal/db"
	"rewardbridge/internal/external"
	"rewardbridge/internal/metrics"
	"rewardbridge/internal/milestone"
	"rewardbridge/internal/notifications"
	"rewardbridge/internal/redemption"
	"rewardbridge/internal/reports"
	"rewardbridge/internal/scanner"
	"rewardbridge/internal/scheduler"
)

// App is the assembled service graph.
type App struct {
	Config  *config.Config
	Catalog *config.Catalog
	Logger  *slog.Logger

	Clients     *external.ClientRegistry
	Board       *board.Repository
	Products    *external.ProductFinder
	Notifier    *notifications.Dispatcher
	Metrics     metrics.Recorder
	Scanner     *scanner.Scanner
	Approvals   *approval.Workflow
	Redemptions *redemption.Monitor
	Reports     *reports.Generator
	Runner      *scheduler.Runner

	// Pool is nil when no DATABASE_URL is configured.
	Pool *pgxpool.Pool
}

// NewLogger returns a JSON logger, or a text logger for local development.
func NewLogger(environment, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if environment == "local" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// Build assembles the application. Callers must Close the result.
func Build(ctx context.Context, cfg *config.Config, cat *config.Catalog, logger *slog.Logger) (*App, error) {
	if cfg == nil || cat == nil {
		return nil, fmt.Errorf("app: config and catalog are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Catalog: cat, Logger: logger}
	loc := cfg.Location()

	clients, err := external.NewClientRegistry(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building external clients: %w", err)
	}
	a.Clients = clients

	a.Metrics, err = newRecorder(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a.Board = board.NewRepository(clients.Board, cfg.Board.EmployeesBoardID, cfg.Board.RewardsBoardID,
		cat.Columns, logger.With("component", "board"))
	a.Products = external.NewProductFinder(clients.GiftCards, cat.MerchantAlternatives, logger.With("component", "products"))
	a.Notifier = newDispatcher(cfg, clients, a.Metrics, logger)

	tiers, err := cat.TierEngine()
	if err != nil {
		return nil, fmt.Errorf("building tier engine: %w", err)
	}

	a.Scanner = scanner.New(
		a.Board,
		clients.GiftCards,
		milestone.Detector{Amounts: cat.AmountTable()},
		a.Notifier,
		scanner.Product{
			Code:     cat.DefaultProduct.ProductCode,
			Merchant: cat.DefaultProduct.Merchant,
			Currency: cat.DefaultProduct.Currency,
		},
		loc,
		logger.With("component", "scanner"),
		scanner.WithMetrics(a.Metrics),
	)

	a.Approvals = approval.NewWorkflow(approval.WorkflowConfig{
		Store:                a.Board,
		Orders:               clients.GiftCards,
		Products:             a.Products,
		Tiers:                tiers,
		Notifier:             a.Notifier,
		Managers:             directory(cat.Managers),
		Metrics:              a.Metrics,
		Merchant:             cat.DefaultProduct.Merchant,
		ApprovalSLADays:      cat.Policy.ApprovalSLADays,
		GiftCardValidityDays: cat.Policy.GiftCardValidityDays,
		Location:             loc,
		Logger:               logger.With("component", "approval"),
	})

	a.Redemptions = redemption.NewMonitor(redemption.MonitorConfig{
		Store:         a.Board,
		Orders:        clients.GiftCards,
		Notifier:      a.Notifier,
		WarningDays:   cat.Policy.ExpiryWarningDays,
		LookaheadDays: cat.Policy.ExpiryLookaheadDays,
		Location:      loc,
		Logger:        logger.With("component", "redemption"),
	})

	a.Reports = reports.NewGenerator(a.Approvals, loc, logger.With("component", "reports"))

	runnerCfg := scheduler.RunnerConfig{
		Metrics:  a.Metrics,
		Notifier: a.Notifier,
		LockTTL:  cfg.Scheduler.LockTTL,
		Logger:   logger.With("component", "scheduler"),
	}
	if cfg.Database.URL.IsSet() {
		pool, err := db.Connect(ctx, cfg.Database.URL.Unmask(), cfg.Database.MaxConns, cfg.Database.MaxConnLifetime)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		a.Pool = pool
		runnerCfg.Locker = db.NewJobLockRepository(pool)
		runnerCfg.History = db.NewJobHistoryRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set, job lock is process-local and job history is not kept")
	}

	a.Runner = scheduler.NewRunner(runnerCfg)
	scheduler.RegisterJobs(a.Runner, scheduler.Services{
		Scanner:     a.Scanner,
		Approvals:   a.Approvals,
		Redemptions: a.Redemptions,
		Reports:     a.Reports,
	})

	logger.Info("application assembled",
		"stub_clients", clients.Stub,
		"jobs", len(a.Runner.Jobs()),
		"database", a.Pool != nil,
		"timezone", loc.String(),
	)
	return a, nil
}

// Schedules maps each job to its configured cron expression.
func (a *App) Schedules() map[scheduler.JobName]string {
	s := a.Config.Scheduler
	return map[scheduler.JobName]string{
		scheduler.JobMilestoneScan:    s.ScanCron,
		scheduler.JobOverdueReminders: s.ReminderCron,
		scheduler.JobRedemptionCheck:  s.RedemptionCron,
		scheduler.JobExpiryWarnings:   s.ExpiryCron,
		scheduler.JobMonthlyReport:    s.MonthlyReportCron,
	}
}

func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func newRecorder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (metrics.Recorder, error) {
	if !cfg.Observability.MetricsEnabled {
		return metrics.Noop{}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for CloudWatch: %w", err)
	}
	client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	return metrics.NewCloudWatchRecorder(client, cfg.Observability.MetricNamespace, logger.With("component", "metrics")), nil
}

// newDispatcher always logs; email and Slack deliveries run concurrently
// behind it.
func newDispatcher(cfg *config.Config, clients *external.ClientRegistry, rec metrics.Recorder, logger *slog.Logger) *notifications.Dispatcher {
	delivery := []notifications.Sink{notifications.NewEmailSink(clients.Email)}
	if cfg.Slack.BotToken.IsSet() {
		delivery = append(delivery, notifications.NewSlackSinkFromToken(cfg.Slack.BotToken.Unmask(), cfg.Slack.Channel, cfg.Slack.ErrorChannel))
	} else {
		logger.Info("SLACK_BOT_TOKEN not set, Slack alerts disabled")
	}
	return notifications.NewDispatcher(logger.With("component", "notifications"), rec,
		notifications.NewLogSink(logger.With("component", "notifications")),
		notifications.NewMultiSink(delivery...),
	)
}

func directory(managers map[string]config.Manager) approval.Directory {
	d := make(approval.Directory, len(managers))
	for dept, m := range managers {
		d[dept] = notifications.Recipient{
			Name:        m.Name,
			Email:       m.Email,
			ManagerID:   m.ID,
			SlackUserID: m.SlackUserID,
		}
	}
	return d
}
