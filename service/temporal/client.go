package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
)

const reconcileSchedulePrefix = "reconcile-wallet-"

// Client is the production Temporal client. It starts confirmation watches
// for the HTTP server and manages balance reconciliation schedules.
type Client struct {
	client             client.Client
	taskQueue          string
	confirmInterval    time.Duration
	confirmMaxAttempts int
	logger             *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")
	return newClient(c, taskQueue, logger), nil
}

func newClient(c client.Client, taskQueue string, logger *slog.Logger) *Client {
	return &Client{
		client:             c,
		taskQueue:          taskQueue,
		confirmInterval:    DefaultConfirmInterval,
		confirmMaxAttempts: DefaultConfirmMaxAttempts,
		logger:             logger,
	}
}

// WithConfirmation overrides the poll interval and attempt budget used for
// new confirmation watches. Non-positive values keep the defaults.
func (c *Client) WithConfirmation(interval time.Duration, maxAttempts int) *Client {
	if interval > 0 {
		c.confirmInterval = interval
	}
	if maxAttempts > 0 {
		c.confirmMaxAttempts = maxAttempts
	}
	return c
}

// ConfirmationWorkflowID is the workflow ID used to watch a signature. One
// signature has at most one running watch.
func ConfirmationWorkflowID(signature string) string {
	return "confirm:" + signature
}

// TrackConfirmation starts a ConfirmTransactionWorkflow for the signature.
// If a watch for the signature is already running this is a no-op.
func (c *Client) TrackConfirmation(ctx context.Context, address, signature string) error {
	id := ConfirmationWorkflowID(signature)
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                    id,
		TaskQueue:             c.taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
	}, ConfirmTransactionWorkflow, ConfirmTransactionInput{
		Address:     address,
		Signature:   signature,
		Interval:    c.confirmInterval,
		MaxAttempts: c.confirmMaxAttempts,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to start confirmation workflow",
			"workflow_id", id,
			"address", address,
			"error", err,
		)
		return fmt.Errorf("failed to start confirmation workflow %q: %w", id, err)
	}

	c.logger.InfoContext(ctx, "confirmation workflow started",
		"workflow_id", id,
		"run_id", run.GetRunID(),
		"address", address,
	)
	return nil
}

// GetConfirmation blocks until the watch for the signature completes and
// returns its result.
func (c *Client) GetConfirmation(ctx context.Context, signature string) (*ConfirmTransactionResult, error) {
	id := ConfirmationWorkflowID(signature)
	var result ConfirmTransactionResult
	if err := c.client.GetWorkflow(ctx, id, "").Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to get confirmation workflow %q: %w", id, err)
	}
	return &result, nil
}

// CreateReconcileSchedule creates a schedule that runs
// ReconcileBalanceWorkflow for the wallet on the given interval.
func (c *Client) CreateReconcileSchedule(ctx context.Context, address string, interval time.Duration) error {
	id := ReconcileScheduleID(address)

	c.logger.Debug("creating reconcile schedule",
		"address", address,
		"schedule_id", id,
		"interval", interval,
	)

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
		Action: &client.ScheduleWorkflowAction{
			ID:        "reconcile-" + address,
			Workflow:  ReconcileBalanceWorkflow,
			TaskQueue: c.taskQueue,
			Args:      []interface{}{ReconcileBalanceInput{Address: address}},
		},
		Memo: map[string]interface{}{
			"wallet_address": address,
			"created_by":     "goldium",
		},
	})
	if err != nil {
		c.logger.Error("failed to create schedule",
			"address", address,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.Info("reconcile schedule created",
		"address", address,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// UpsertReconcileSchedule creates the wallet's schedule, or updates its
// interval if it already exists.
func (c *Client) UpsertReconcileSchedule(ctx context.Context, address string, interval time.Duration) error {
	id := ReconcileScheduleID(address)
	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", id,
			"error", err,
		)
		return c.CreateReconcileSchedule(ctx, address, interval)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{{Every: interval}}
			return &client.ScheduleUpdate{Schedule: &input.Description.Schedule}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule",
			"address", address,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.Info("reconcile schedule updated",
		"address", address,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// DeleteReconcileSchedule deletes the wallet's reconcile schedule.
func (c *Client) DeleteReconcileSchedule(ctx context.Context, address string) error {
	id := ReconcileScheduleID(address)
	if err := c.client.ScheduleClient().GetHandle(ctx, id).Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"address", address,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("reconcile schedule deleted", "address", address, "schedule_id", id)
	return nil
}

// ListReconcileSchedules returns the wallet addresses that have a reconcile
// schedule.
func (c *Client) ListReconcileSchedules(ctx context.Context) ([]string, error) {
	iter, err := c.client.ScheduleClient().List(ctx, client.ScheduleListOptions{PageSize: 100})
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	var addresses []string
	for iter.HasNext() {
		entry, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to list schedules: %w", err)
		}
		if addr, ok := strings.CutPrefix(entry.ID, reconcileSchedulePrefix); ok {
			addresses = append(addresses, addr)
		}
	}
	return addresses, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
