// Package metrics publishes operational counters for scans, scheduled jobs
// and notification delivery.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	DefaultNamespace = "RewardBridge"

	MetricJobRun           = "JobRun"
	MetricJobDuration      = "JobDuration"
	MetricMilestonesFound  = "MilestonesFound"
	MetricMilestonesFailed = "MilestonesFailed"
	MetricEmployeesScanned = "EmployeesScanned"
	MetricDeliveryAttempt  = "NotificationDelivery"
	MetricGiftCardsIssued  = "GiftCardsIssued"

	DimJob     = "Job"
	DimResult  = "Result"
	DimChannel = "Channel"
)

// Result values for the Result dimension.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// ScanStats is the subset of a scan report that is published.
type ScanStats struct {
	Employees  int
	Milestones int
	Succeeded  int
	Failed     int
}

// Recorder receives operational measurements. Implementations never return
// errors; publishing failures are logged.
type Recorder interface {
	RecordJob(ctx context.Context, job, result string, d time.Duration)
	RecordScan(ctx context.Context, stats ScanStats)
	RecordDelivery(ctx context.Context, channel, result string)
	RecordGiftCard(ctx context.Context, source, result string)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRecorder publishes to a CloudWatch namespace.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ Recorder = (*CloudWatchRecorder)(nil)

// NewCloudWatchRecorder creates a recorder. An empty namespace uses
// DefaultNamespace.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{client: client, namespace: namespace, logger: logger}
}

// RecordJob emits JobRun {Job, Result} and JobDuration {Job} in one call.
func (m *CloudWatchRecorder) RecordJob(ctx context.Context, job, result string, d time.Duration) {
	m.put(ctx, "job",
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricJobRun),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims(DimJob, job, DimResult, result),
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricJobDuration),
			Value:      aws.Float64(float64(d.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims(DimJob, job),
		},
	)
}

// RecordScan emits the per-scan counters without dimensions.
func (m *CloudWatchRecorder) RecordScan(ctx context.Context, s ScanStats) {
	count := func(name string, v int) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(float64(v)),
			Unit:       cwtypes.StandardUnitCount,
		}
	}
	m.put(ctx, "scan",
		count(MetricEmployeesScanned, s.Employees),
		count(MetricMilestonesFound, s.Milestones),
		count(MetricMilestonesFailed, s.Failed),
	)
}

// RecordDelivery emits NotificationDelivery {Channel, Result}.
func (m *CloudWatchRecorder) RecordDelivery(ctx context.Context, channel, result string) {
	m.put(ctx, "delivery", cwtypes.MetricDatum{
		MetricName: aws.String(MetricDeliveryAttempt),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims(DimChannel, channel, DimResult, result),
	})
}

// RecordGiftCard emits GiftCardsIssued {Job: source, Result}.
func (m *CloudWatchRecorder) RecordGiftCard(ctx context.Context, source, result string) {
	m.put(ctx, "gift_card", cwtypes.MetricDatum{
		MetricName: aws.String(MetricGiftCardsIssued),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims(DimJob, source, DimResult, result),
	})
}

func (m *CloudWatchRecorder) put(ctx context.Context, what string, data ...cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to record metric", "metric", what, "error", err)
	}
}

func dims(kv ...string) []cwtypes.Dimension {
	out := make([]cwtypes.Dimension, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, cwtypes.Dimension{Name: aws.String(kv[i]), Value: aws.String(kv[i+1])})
	}
	return out
}

// Noop discards everything. It is used when METRICS_ENABLED is false.
type Noop struct{}

var _ Recorder = Noop{}

func (Noop) RecordJob(context.Context, string, string, time.Duration) {}
func (Noop) RecordScan(context.Context, ScanStats) {}
func (Noop) RecordDelivery(context.Context, string, string) {}
func (Noop) RecordGiftCard(context.Context, string, string) {}
