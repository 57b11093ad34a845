// Package config defines the process configuration for rewardbridge.
// Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Business data that changes with HR policy rather than deployment (milestone
// amounts, tier bands, department managers, board column ids) lives in the
// rewards catalog, see catalog.go.
package config

import (
	"time"

	"rewardbridge/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"rewardbridge"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	// Timezone is the business timezone in which "today" is evaluated and
	// cron expressions fire.
	Timezone string `envconfig:"BUSINESS_TIMEZONE" default:"Europe/London" validate:"required,timezone"`

	// CatalogPath overrides the embedded rewards catalog when set.
	CatalogPath string `envconfig:"REWARDS_CATALOG_PATH"`

	Server        ServerConfig
	Board         BoardConfig
	GiftCard      GiftCardConfig
	Email         EmailConfig
	Slack         SlackConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Scheduler     SchedulerConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// BoardConfig holds the work-management board API settings.
type BoardConfig struct {
	APIURL           string        `envconfig:"MONDAY_API_URL" default:"https://api.monday.com/v2" validate:"required,url"`
	APIToken         SecretString  `envconfig:"MONDAY_API_TOKEN"`
	APIVersion       string        `envconfig:"MONDAY_API_VERSION" default:"2024-01"`
	EmployeesBoardID string        `envconfig:"MONDAY_BOARD_ID" validate:"required,numeric"`
	RewardsBoardID   string        `envconfig:"PERFORMANCE_REWARDS_BOARD_ID" validate:"required,numeric"`
	SigningSecret    SecretString  `envconfig:"MONDAY_SIGNING_SECRET"`
	PageSize         int           `envconfig:"MONDAY_PAGE_SIZE" default:"500" validate:"min=1,max=500"`
	Timeout          time.Duration `envconfig:"MONDAY_TIMEOUT" default:"30s"`
}

// GiftCardConfig holds the gift-card provider settings.
type GiftCardConfig struct {
	BaseURL string        `envconfig:"UGIFTME_BASE_URL" default:"https://api-stage.ugift.me/api/v1" validate:"required,url"`
	APIKey  SecretString  `envconfig:"UGIFTME_API_KEY"`
	Timeout time.Duration `envconfig:"UGIFTME_TIMEOUT" default:"30s"`
}

// EmailConfig holds SendGrid settings. Email delivery is disabled when no
// API key is configured; notifications still reach the log and Slack sinks.
type EmailConfig struct {
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY"`
	BaseURL        string       `envconfig:"SENDGRID_BASE_URL" default:"https://api.sendgrid.com" validate:"url"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"rewards@example.com" validate:"email"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"Employee Rewards"`
}

// SlackConfig holds Slack bot settings for manager alerts and job summaries.
type SlackConfig struct {
	BotToken     SecretString `envconfig:"SLACK_BOT_TOKEN"`
	Channel      string       `envconfig:"SLACK_CHANNEL" default:"#rewards"`
	ErrorChannel string       `envconfig:"SLACK_ERROR_CHANNEL" default:"#rewards-alerts"`
}

// DatabaseConfig holds the optional PostgreSQL connection used for the
// cross-process job lock and job history. Without it the scheduler falls back
// to an in-memory lock.
type DatabaseConfig struct {
	URL             SecretString  `envconfig:"DATABASE_URL" validate:"omitempty,url"`
	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"4"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// AWSConfig holds AWS regional configuration for SSM and CloudWatch.
type AWSConfig struct {
	Region      string `envconfig:"AWS_REGION" default:"eu-west-2"`
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// SchedulerConfig holds cron expressions (evaluated in Config.Timezone) and
// run-lock settings.
type SchedulerConfig struct {
	Enabled           bool          `envconfig:"SCHEDULER_ENABLED" default:"true"`
	ScanCron          string        `envconfig:"CRON_MILESTONE_SCAN" default:"0 9 * * *" validate:"required"`
	ReminderCron      string        `envconfig:"CRON_OVERDUE_REMINDERS" default:"30 9 * * *" validate:"required"`
	RedemptionCron    string        `envconfig:"CRON_REDEMPTION_CHECK" default:"0 10 * * *" validate:"required"`
	ExpiryCron        string        `envconfig:"CRON_EXPIRY_WARNINGS" default:"0 8 * * *" validate:"required"`
	MonthlyReportCron string        `envconfig:"CRON_MONTHLY_REPORT" default:"0 9 1 * *" validate:"required"`
	LockTTL           time.Duration `envconfig:"JOB_LOCK_TTL" default:"30m"`
	TestScanDelay     time.Duration `envconfig:"TEST_SCAN_DELAY" default:"1m"`
}

// SecurityConfig holds the admin API credential and CORS settings.
// AdminAPIKeyHash is a bcrypt hash; AdminAPIKey is accepted for local
// development and hashed at startup.
type SecurityConfig struct {
	AdminAPIKeyHash    SecretString `envconfig:"ADMIN_API_KEY_HASH"`
	AdminAPIKey        SecretString `envconfig:"ADMIN_API_KEY"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds CloudWatch metric settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"RewardBridge"`
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
}

// Location returns the business timezone. The value is validated at load
// time, so the UTC fallback only covers hand-built configs in tests.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// UsesStubs reports whether outbound clients should be replaced with
// in-process stubs.
func (c *Config) UsesStubs() bool {
	return c.IsTestMode || (c.Environment == localEnv && !c.Board.APIToken.IsSet())
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
	ErrCatalog       ConfigErrorType = "CATALOG_INVALID"
)
