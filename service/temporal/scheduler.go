package temporal

import (
	"context"
	"time"
)

// Scheduler manages balance reconciliation schedules. Each wallet gets its
// own schedule that triggers ReconcileBalanceWorkflow.
type Scheduler interface {
	// UpsertReconcileSchedule creates the wallet's schedule or changes its interval.
	UpsertReconcileSchedule(ctx context.Context, address string, interval time.Duration) error

	// DeleteReconcileSchedule stops reconciling the wallet.
	DeleteReconcileSchedule(ctx context.Context, address string) error

	// ListReconcileSchedules returns the scheduled wallet addresses.
	ListReconcileSchedules(ctx context.Context) ([]string, error)
}

var (
	_ Scheduler = (*Client)(nil)
	_ Scheduler = (*MockScheduler)(nil)
)

// scheduleID returns the Temporal schedule ID for a wallet address.
func ReconcileScheduleID(address string) string {
	return reconcileSchedulePrefix + address
}
