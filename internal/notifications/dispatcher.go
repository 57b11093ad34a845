package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rewardbridge/internal/metrics"
)

const sendTimeout = 15 * time.Second

// Dispatcher renders notifications and hands them to the sinks. Send never
// fails: rendering and delivery errors are logged and counted.
type Dispatcher struct {
	sinks   []Sink
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewDispatcher creates a Dispatcher. A nil recorder disables metrics.
func NewDispatcher(logger *slog.Logger, recorder metrics.Recorder, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Dispatcher{sinks: sinks, metrics: recorder, logger: logger, now: time.Now}
}

// Send renders n and delivers it to every sink in order. Delivery outlives
// the caller's cancellation so a finished HTTP request does not drop the
// message.
func (d *Dispatcher) Send(ctx context.Context, n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now()
	}
	if err := Render(&n); err != nil {
		d.logger.ErrorContext(ctx, "notification render failed", "kind", n.Kind, "error", err)
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	for _, s := range d.sinks {
		if err := s.Notify(sendCtx, n); err != nil {
			d.metrics.RecordDelivery(ctx, s.Name(), metrics.ResultFailed)
			d.logger.WarnContext(ctx, "notification delivery failed",
				"sink", s.Name(),
				"kind", n.Kind,
				"notification_id", n.ID,
				"error", err,
			)
			continue
		}
		d.metrics.RecordDelivery(ctx, s.Name(), metrics.ResultSuccess)
	}
}
