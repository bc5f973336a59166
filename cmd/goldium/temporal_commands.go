package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"go.temporal.io/sdk/client"

	"github.com/goldium-labs/goldium/service/temporal"
)

// getTemporalClient connects with the global temporal flags.
func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	tc, err := temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		cliLogger(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}
	return tc, nil
}

// scheduleArg accepts a schedule ID or a wallet address.
func scheduleArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("requires exactly one argument: schedule ID or wallet address")
	}
	arg := c.Args().First()
	if strings.Contains(arg, "-") {
		return arg, nil
	}
	return temporal.ReconcileScheduleID(arg), nil
}

func listSchedulesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-schedules",
		Usage:   "List wallets with a reconcile schedule",
		Aliases: []string{"ls"},
		Flags:   []cli.Flag{jqFlag},
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			addresses, err := tc.ListReconcileSchedules(c.Context)
			if err != nil {
				return err
			}
			return emit(c, c.App.Writer, addresses, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "SCHEDULE ID\tWALLET")
				for _, a := range addresses {
					fmt.Fprintf(tw, "%s\t%s\n", temporal.ReconcileScheduleID(a), a)
				}
				tw.Flush()
				fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d schedules\n", len(addresses))
			})
		},
	}
}

func describeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe-schedule",
		Usage:     "Describe a Temporal schedule",
		Aliases:   []string{"desc"},
		ArgsUsage: "<schedule-id | wallet-address>",
		Action: func(c *cli.Context) error {
			id, err := scheduleArg(c)
			if err != nil {
				return err
			}
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			handle := tc.SDKClient().ScheduleClient().GetHandle(c.Context, id)
			desc, err := handle.Describe(c.Context)
			if err != nil {
				return fmt.Errorf("failed to describe schedule: %w", err)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Schedule ID:    %s\n", id)
			fmt.Fprintf(w, "State Note:     %s\n", desc.Schedule.State.Note)
			fmt.Fprintf(w, "Paused:         %v\n", desc.Schedule.State.Paused)

			if wa, ok := desc.Schedule.Action.(*client.ScheduleWorkflowAction); ok {
				fmt.Fprintf(w, "\nWorkflow:\n")
				fmt.Fprintf(w, "  Workflow:     %v\n", wa.Workflow)
				fmt.Fprintf(w, "  Task Queue:   %s\n", wa.TaskQueue)
			}
			for i, interval := range desc.Schedule.Spec.Intervals {
				fmt.Fprintf(w, "  Interval %d:   Every %v\n", i+1, interval.Every)
			}

			fmt.Fprintf(w, "\nRecent Actions: %d\n", len(desc.Info.RecentActions))
			if n := len(desc.Info.RecentActions); n > 0 {
				fmt.Fprintf(w, "Last Action:    %s\n", desc.Info.RecentActions[n-1].ActualTime.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func pauseScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "pause-schedule",
		Usage:     "Pause a reconcile schedule",
		ArgsUsage: "<schedule-id | wallet-address>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why schedule is paused",
				Value: "Paused via goldium CLI",
			},
		},
		Action: func(c *cli.Context) error {
			id, err := scheduleArg(c)
			if err != nil {
				return err
			}
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			handle := tc.SDKClient().ScheduleClient().GetHandle(c.Context, id)
			if err := handle.Pause(c.Context, client.SchedulePauseOptions{Note: c.String("note")}); err != nil {
				return fmt.Errorf("failed to pause schedule: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Schedule paused: %s\n", id)
			return nil
		},
	}
}

func resumeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "resume-schedule",
		Usage:     "Resume a paused reconcile schedule",
		ArgsUsage: "<schedule-id | wallet-address>",
		Action: func(c *cli.Context) error {
			id, err := scheduleArg(c)
			if err != nil {
				return err
			}
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			handle := tc.SDKClient().ScheduleClient().GetHandle(c.Context, id)
			if err := handle.Unpause(c.Context, client.ScheduleUnpauseOptions{Note: "Resumed via goldium CLI"}); err != nil {
				return fmt.Errorf("failed to resume schedule: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Schedule resumed: %s\n", id)
			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-schedule",
		Usage:     "Stop reconciling a wallet",
		ArgsUsage: "<wallet-address>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Skip confirmation prompt",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}
			address := c.Args().First()

			if !c.Bool("force") {
				fmt.Fprintf(c.App.Writer, "Are you sure you want to delete the schedule for %s? (yes/no): ", address)
				var response string
				fmt.Fscanln(c.App.Reader, &response)
				if response != "yes" {
					fmt.Fprintln(c.App.Writer, "Cancelled")
					return nil
				}
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.DeleteReconcileSchedule(c.Context, address); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Schedule deleted: %s\n", temporal.ReconcileScheduleID(address))
			return nil
		},
	}
}

func scheduleReconcileCommand() *cli.Command {
	return &cli.Command{
		Name:      "schedule-reconcile",
		Usage:     "Create or update a wallet's balance reconcile schedule",
		ArgsUsage: "<wallet-address>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "How often the on-chain GOLD balance is reconciled",
				Value:   5 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}
			address := c.Args().First()
			interval := c.Duration("interval")
			if interval < time.Minute {
				return fmt.Errorf("interval must be at least 1m")
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.UpsertReconcileSchedule(c.Context, address, interval); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Reconcile schedule set: %s\n", temporal.ReconcileScheduleID(address))
			fmt.Fprintf(c.App.Writer, "  Wallet:     %s\n", address)
			fmt.Fprintf(c.App.Writer, "  Interval:   %v\n", interval)
			fmt.Fprintf(c.App.Writer, "  Task Queue: %s\n", tc.TaskQueue())
			return nil
		},
	}
}

func confirmCommand() *cli.Command {
	return &cli.Command{
		Name:      "confirm",
		Usage:     "Start a confirmation workflow for a submitted transaction",
		ArgsUsage: "<wallet-address> <signature>",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "interval", Usage: "Delay between status checks", Value: temporal.DefaultConfirmInterval},
			&cli.IntFlag{Name: "max-attempts", Usage: "Status checks before giving up", Value: temporal.DefaultConfirmMaxAttempts},
			&cli.BoolFlag{Name: "wait", Usage: "Wait for the workflow result"},
			jqFlag,
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("requires exactly two arguments: wallet-address signature")
			}
			address, sig := c.Args().Get(0), c.Args().Get(1)

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()
			tc = tc.WithConfirmation(c.Duration("interval"), c.Int("max-attempts"))

			if err := tc.TrackConfirmation(c.Context, address, sig); err != nil {
				return err
			}
			fmt.Fprintf(c.App.ErrWriter, "✓ Workflow started: %s\n", temporal.ConfirmationWorkflowID(sig))
			if !c.Bool("wait") {
				return nil
			}
			return printConfirmation(c, tc, sig)
		},
	}
}

func confirmationResultCommand() *cli.Command {
	return &cli.Command{
		Name:      "result",
		Usage:     "Wait for a confirmation workflow and print its result",
		ArgsUsage: "<signature>",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "timeout", Usage: "How long to wait", Value: 5 * time.Minute},
			jqFlag,
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: signature")
			}
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			c.Context = ctx
			return printConfirmation(c, tc, c.Args().First())
		},
	}
}

func printConfirmation(c *cli.Context, tc *temporal.Client, sig string) error {
	res, err := tc.GetConfirmation(c.Context, sig)
	if err != nil {
		return err
	}
	return emit(c, c.App.Writer, res, func(w io.Writer) {
		fmt.Fprintf(w, "Signature: %s\n", res.Signature)
		fmt.Fprintf(w, "Wallet:    %s\n", res.Address)
		fmt.Fprintf(w, "Status:    %s\n", res.Status)
		fmt.Fprintf(w, "Attempts:  %d\n", res.Attempts)
		if res.TimedOut {
			fmt.Fprintln(w, "Timed out: the transaction is still pending")
		}
		if res.GoldBalance != "" {
			fmt.Fprintf(w, "GOLD:      %s (staked %s)\n", res.GoldBalance, res.StakedGoldBalance)
		}
	})
}
