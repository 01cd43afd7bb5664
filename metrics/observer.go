package metrics

import (
	"context"
	"fmt"

	"github.com/marcelsud/webhook-gateway/notify"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

/* Observer turns engine notifications into OTel counters
 *   webhook.notifications     every notification, by kind and provider
 *   webhook.handler.failures  final handler failures, by provider and handler
 */
type Observer struct {
	notifications metric.Int64Counter
	failures      metric.Int64Counter
}

// NewObserver registers the counters on meter
func NewObserver(meter metric.Meter) (*Observer, error) {
	notifications, err := meter.Int64Counter(
		"webhook.notifications",
		metric.WithDescription("Engine notifications by kind"),
		metric.WithUnit("{notifications}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating notifications counter: %w", err)
	}

	failures, err := meter.Int64Counter(
		"webhook.handler.failures",
		metric.WithDescription("Handlers that failed with no attempts left"),
		metric.WithUnit("{handlers}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating handler failures counter: %w", err)
	}

	return &Observer{notifications: notifications, failures: failures}, nil
}

// Notify implements notify.Observer
func (o *Observer) Notify(ctx context.Context, n notify.Notification) {
	o.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("webhook.kind", string(n.Kind)),
		attribute.String("webhook.provider", n.Provider),
	))

	if n.Kind == notify.ActionFailed && n.Final {
		o.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("webhook.provider", n.Provider),
			attribute.String("webhook.handler", n.Handler),
		))
	}
}

var _ notify.Observer = (*Observer)(nil)
