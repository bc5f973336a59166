package temporal

import (
	"errors"
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/goldium-labs/goldium/service/ledger"
)

var a *Activities // for type-safe activity invocation

const (
	// DefaultConfirmInterval is the pause between status checks.
	DefaultConfirmInterval = 2 * time.Second

	// DefaultConfirmMaxAttempts bounds how many status checks a watch makes.
	DefaultConfirmMaxAttempts = 30
)

func activityContext(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})
}

// ConfirmTransactionWorkflow polls the cluster for a submitted signature
// until it is confirmed or failed, then writes the status to the ledger.
//
// Each status check is one attempt; a check whose activity fails after its
// retries still counts. When MaxAttempts checks pass without a terminal
// status the workflow returns TimedOut and the record stays pending.
func ConfirmTransactionWorkflow(ctx workflow.Context, input ConfirmTransactionInput) (*ConfirmTransactionResult, error) {
	logger := workflow.GetLogger(ctx)
	if input.Interval <= 0 {
		input.Interval = DefaultConfirmInterval
	}
	if input.MaxAttempts <= 0 {
		input.MaxAttempts = DefaultConfirmMaxAttempts
	}
	logger.Info("ConfirmTransactionWorkflow started",
		"address", input.Address,
		"signature", input.Signature,
		"max_attempts", input.MaxAttempts,
	)

	ctx = activityContext(ctx)
	result := &ConfirmTransactionResult{
		Address:   input.Address,
		Signature: input.Signature,
		Status:    ledger.StatusPending,
	}

	for attempt := 1; attempt <= input.MaxAttempts; attempt++ {
		result.Attempts = attempt

		var check *CheckSignatureStatusResult
		err := workflow.ExecuteActivity(ctx, a.CheckSignatureStatus, CheckSignatureStatusInput{
			Signature:   input.Signature,
			Attempt:     attempt,
			MaxAttempts: input.MaxAttempts,
		}).Get(ctx, &check)

		switch {
		case err != nil:
			var appErr *temporalsdk.ApplicationError
			if errors.As(err, &appErr) && appErr.NonRetryable() {
				return result, fmt.Errorf("failed to check signature status: %w", err)
			}
			logger.Warn("signature status check failed", "attempt", attempt, "error", err)

		case check.Status != ledger.StatusPending:
			var update *UpdateLedgerStatusResult
			err := workflow.ExecuteActivity(ctx, a.UpdateLedgerStatus, UpdateLedgerStatusInput{
				Address:   input.Address,
				Signature: input.Signature,
				Status:    check.Status,
				Attempts:  attempt,
			}).Get(ctx, &update)
			if err != nil {
				logger.Error("failed to update ledger status", "signature", input.Signature, "error", err)
				return result, fmt.Errorf("failed to update ledger status: %w", err)
			}

			result.Status = update.Status
			result.GoldBalance = update.GoldBalance
			result.StakedGoldBalance = update.StakedGoldBalance
			logger.Info("ConfirmTransactionWorkflow completed",
				"signature", input.Signature,
				"status", result.Status,
				"attempts", attempt,
			)
			return result, nil
		}

		if attempt < input.MaxAttempts {
			if err := workflow.Sleep(ctx, input.Interval); err != nil {
				return result, err
			}
		}
	}

	result.TimedOut = true
	logger.Warn("ConfirmTransactionWorkflow timed out",
		"signature", input.Signature,
		"attempts", result.Attempts,
	)
	return result, nil
}

// ReconcileBalanceWorkflow overwrites a wallet's ledger GOLD balance with the
// on-chain value. It is triggered by a Temporal schedule.
func ReconcileBalanceWorkflow(ctx workflow.Context, input ReconcileBalanceInput) (*ReconcileBalanceResult, error) {
	logger := workflow.GetLogger(ctx)
	ctx = activityContext(ctx)

	result := &ReconcileBalanceResult{
		Address: input.Address,
		RunTime: workflow.Now(ctx),
	}

	var balance *FetchGoldBalanceResult
	if err := workflow.ExecuteActivity(ctx, a.FetchGoldBalance, FetchGoldBalanceInput{Address: input.Address}).Get(ctx, &balance); err != nil {
		return result, fmt.Errorf("failed to fetch GOLD balance: %w", err)
	}
	result.AccountSeen = balance.Exists

	var reconciled *ReconcileLedgerResult
	if err := workflow.ExecuteActivity(ctx, a.ReconcileLedger, ReconcileLedgerInput{Address: input.Address, Gold: balance.Amount}).Get(ctx, &reconciled); err != nil {
		return result, fmt.Errorf("failed to reconcile ledger: %w", err)
	}
	result.GoldBalance = reconciled.GoldBalance

	logger.Info("ReconcileBalanceWorkflow completed",
		"address", input.Address,
		"gold_balance", result.GoldBalance,
		"account_seen", result.AccountSeen,
	)
	return result, nil
}
