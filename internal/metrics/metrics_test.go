package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// mockCloudWatchClient records PutMetricData calls for verification.
type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func assertDimension(t *testing.T, dims []cwtypes.Dimension, name, value string) {
	t.Helper()
	for _, d := range dims {
		if *d.Name == name {
			if *d.Value != value {
				t.Errorf("dimension %s = %q, want %q", name, *d.Value, value)
			}
			return
		}
	}
	t.Errorf("dimension %s not found", name)
}

func TestRecordJob(t *testing.T) {
	cw := &mockCloudWatchClient{}
	NewCloudWatchRecorder(cw, "", nil).RecordJob(context.Background(), "milestone_scan", ResultSuccess, 1500*time.Millisecond)

	if len(cw.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(cw.calls))
	}
	in := cw.calls[0]
	if *in.Namespace != DefaultNamespace {
		t.Errorf("namespace = %q", *in.Namespace)
	}
	if len(in.MetricData) != 2 {
		t.Fatalf("expected 2 datums, got %d", len(in.MetricData))
	}
	run, dur := in.MetricData[0], in.MetricData[1]
	if *run.MetricName != MetricJobRun || *run.Value != 1 {
		t.Errorf("run datum = %s %v", *run.MetricName, *run.Value)
	}
	assertDimension(t, run.Dimensions, DimJob, "milestone_scan")
	assertDimension(t, run.Dimensions, DimResult, ResultSuccess)
	if *dur.Value != 1500 || dur.Unit != cwtypes.StandardUnitMilliseconds {
		t.Errorf("duration datum = %v %s", *dur.Value, dur.Unit)
	}
}

func TestRecordScan(t *testing.T) {
	cw := &mockCloudWatchClient{}
	NewCloudWatchRecorder(cw, "Custom", nil).RecordScan(context.Background(), ScanStats{Employees: 40, Milestones: 3, Succeeded: 2, Failed: 1})

	in := cw.calls[0]
	if *in.Namespace != "Custom" {
		t.Errorf("namespace = %q", *in.Namespace)
	}
	got := map[string]float64{}
	for _, d := range in.MetricData {
		got[*d.MetricName] = *d.Value
	}
	if got[MetricEmployeesScanned] != 40 || got[MetricMilestonesFound] != 3 || got[MetricMilestonesFailed] != 1 {
		t.Errorf("scan metrics = %v", got)
	}
}

func TestRecordDelivery(t *testing.T) {
	cw := &mockCloudWatchClient{}
	NewCloudWatchRecorder(cw, "", nil).RecordDelivery(context.Background(), "slack", ResultFailed)

	datum := cw.calls[0].MetricData[0]
	assertDimension(t, datum.Dimensions, DimChannel, "slack")
	assertDimension(t, datum.Dimensions, DimResult, ResultFailed)
}

func TestPublishErrorIsSwallowed(t *testing.T) {
	cw := &mockCloudWatchClient{returnErr: errors.New("throttled")}
	r := NewCloudWatchRecorder(cw, "", nil)

	r.RecordGiftCard(context.Background(), "approval", ResultSuccess)
	if len(cw.calls) != 1 {
		t.Fatalf("expected the call to be attempted")
	}
}
