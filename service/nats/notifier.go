package nats

import (
	"context"
	"log/slog"
	"time"

	"github.com/goldium-labs/goldium/service/ledger"
	"github.com/goldium-labs/goldium/service/metrics"
)

// LedgerNotifier publishes ledger changes. Publish failures are logged and
// never fail the ledger write that caused them.
type LedgerNotifier struct {
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

var _ ledger.Notifier = (*LedgerNotifier)(nil)

// NewLedgerNotifier creates a notifier. If metrics is nil, no metrics will
// be recorded.
func NewLedgerNotifier(publisher Publisher, m *metrics.Metrics, logger *slog.Logger) *LedgerNotifier {
	return &LedgerNotifier{publisher: publisher, metrics: m, logger: logger}
}

// LedgerChanged implements ledger.Notifier.
func (n *LedgerNotifier) LedgerChanged(ctx context.Context, c ledger.Change) {
	start := time.Now()
	err := n.publisher.PublishLedgerEvent(ctx, FromLedgerChange(c))
	n.record("ledger", err, start)
	if err != nil {
		n.logger.WarnContext(ctx, "failed to publish ledger event",
			"address", c.Address,
			"action", c.Action,
			"error", err,
		)
	}
}

// AlertTriggered publishes a fired price alert.
func (n *LedgerNotifier) AlertTriggered(ctx context.Context, event *AlertEvent) {
	start := time.Now()
	err := n.publisher.PublishAlert(ctx, event)
	n.record("alerts", err, start)
	if err != nil {
		n.logger.WarnContext(ctx, "failed to publish alert", "alert_id", event.AlertID, "error", err)
	}
}

func (n *LedgerNotifier) record(subject string, err error, start time.Time) {
	if n.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	n.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
}
