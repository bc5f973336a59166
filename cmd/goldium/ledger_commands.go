package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/goldium-labs/goldium/client"
)

func ledgerCommands() *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Wallet ledger commands (HTTP API)",
		Subcommands: []*cli.Command{
			ledgerShowCommand(),
			ledgerClearCommand(),
			ledgerRecordCommand(),
			ledgerTrackCommand(),
			receiveCommand(),
		},
	}
}

func apiClient(c *cli.Context) (*client.Client, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
	}
	return client.NewClient(serverURL, nil, cliLogger()), nil
}

func requireAddress(c *cli.Context) (string, error) {
	if c.NArg() < 1 {
		return "", fmt.Errorf("wallet address is required")
	}
	return c.Args().Get(0), nil
}

func ledgerShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Aliases:   []string{"get"},
		Usage:     "Show a wallet's transactions and GOLD balances",
		ArgsUsage: "WALLET_ADDRESS",
		Flags:     []cli.Flag{jqFlag},
		Action: func(c *cli.Context) error {
			address, err := requireAddress(c)
			if err != nil {
				return err
			}
			cl, err := apiClient(c)
			if err != nil {
				return err
			}
			l, err := cl.GetLedger(c.Context, address)
			if err != nil {
				return fmt.Errorf("failed to get ledger: %w", err)
			}
			return emit(c, c.App.Writer, l, func(w io.Writer) { printLedger(w, l) })
		},
	}
}

func ledgerClearCommand() *cli.Command {
	return &cli.Command{
		Name:      "clear",
		Usage:     "Clear a wallet's transaction history, keeping its balances",
		ArgsUsage: "WALLET_ADDRESS",
		Flags:     []cli.Flag{jqFlag},
		Action: func(c *cli.Context) error {
			address, err := requireAddress(c)
			if err != nil {
				return err
			}
			cl, err := apiClient(c)
			if err != nil {
				return err
			}
			l, err := cl.ClearLedger(c.Context, address)
			if err != nil {
				return fmt.Errorf("failed to clear ledger: %w", err)
			}
			return emit(c, c.App.Writer, l, func(w io.Writer) {
				fmt.Fprintf(w, "✓ History cleared for %s\n", address)
				fmt.Fprintf(w, "  GOLD: %s  Staked: %s\n", l.GoldBalance, l.StakedGoldBalance)
			})
		},
	}
}

func ledgerRecordCommand() *cli.Command {
	return &cli.Command{
		Name:      "record",
		Usage:     "Record a transaction in a wallet's ledger",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Usage: "swap, send, stake or unstake", Required: true},
			&cli.StringFlag{Name: "signature", Usage: "Transaction signature", Required: true},
			&cli.StringFlag{Name: "from-token", Usage: "Token spent"},
			&cli.StringFlag{Name: "to-token", Usage: "Token received"},
			&cli.StringFlag{Name: "from-amount", Usage: "Amount spent", Value: "0"},
			&cli.StringFlag{Name: "to-amount", Usage: "Amount received", Value: "0"},
			&cli.StringFlag{Name: "recipient", Usage: "Recipient address for sends"},
			&cli.StringFlag{Name: "status", Usage: "pending, confirmed or failed", Value: "pending"},
			jqFlag,
		},
		Action: func(c *cli.Context) error {
			address, err := requireAddress(c)
			if err != nil {
				return err
			}
			fromAmount, err := decimal.NewFromString(c.String("from-amount"))
			if err != nil {
				return fmt.Errorf("invalid --from-amount: %w", err)
			}
			toAmount, err := decimal.NewFromString(c.String("to-amount"))
			if err != nil {
				return fmt.Errorf("invalid --to-amount: %w", err)
			}
			cl, err := apiClient(c)
			if err != nil {
				return err
			}
			l, err := cl.RecordTransaction(c.Context, address, client.Transaction{
				Type:             c.String("type"),
				Signature:        c.String("signature"),
				FromToken:        c.String("from-token"),
				ToToken:          c.String("to-token"),
				FromAmount:       fromAmount,
				ToAmount:         toAmount,
				RecipientAddress: c.String("recipient"),
				Status:           c.String("status"),
			})
			if err != nil {
				return fmt.Errorf("failed to record transaction: %w", err)
			}
			return emit(c, c.App.Writer, l, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Recorded %s %s\n", c.String("type"), c.String("signature"))
				fmt.Fprintf(w, "  GOLD: %s  Staked: %s\n", l.GoldBalance, l.StakedGoldBalance)
			})
		},
	}
}

func ledgerTrackCommand() *cli.Command {
	return &cli.Command{
		Name:      "track",
		Usage:     "Hand a pending transaction to the confirmation workflow",
		ArgsUsage: "WALLET_ADDRESS SIGNATURE",
		Flags:     []cli.Flag{jqFlag},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("wallet address and signature are required")
			}
			cl, err := apiClient(c)
			if err != nil {
				return err
			}
			tr, err := cl.TrackTransaction(c.Context, c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return fmt.Errorf("failed to track transaction: %w", err)
			}
			return emit(c, c.App.Writer, tr, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Tracking %s\n", c.Args().Get(1))
				fmt.Fprintf(w, "  Workflow: %s\n", tr.WorkflowID)
				fmt.Fprintf(w, "  Status:   %s\n", tr.Status)
			})
		},
	}
}

func receiveCommand() *cli.Command {
	return &cli.Command{
		Name:      "receive",
		Usage:     "Build a Solana Pay request for a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "token", Usage: "SOL or GOLD", Value: "SOL"},
			&cli.StringFlag{Name: "amount", Usage: "Requested amount"},
			&cli.StringFlag{Name: "memo", Usage: "Memo attached to the payment"},
			jqFlag,
		},
		Action: func(c *cli.Context) error {
			address, err := requireAddress(c)
			if err != nil {
				return err
			}
			cl, err := apiClient(c)
			if err != nil {
				return err
			}
			req, err := cl.Receive(c.Context, address, client.ReceiveOptions{
				Token:  c.String("token"),
				Amount: c.String("amount"),
				Memo:   c.String("memo"),
			})
			if err != nil {
				return fmt.Errorf("failed to build payment request: %w", err)
			}
			return emit(c, c.App.Writer, req, func(w io.Writer) {
				fmt.Fprintln(w, req.PaymentURL)
			})
		},
	}
}

func printLedger(w io.Writer, l *client.Ledger) {
	fmt.Fprintf(w, "Wallet:       %s\n", l.Address)
	fmt.Fprintf(w, "GOLD:         %s\n", l.GoldBalance)
	fmt.Fprintf(w, "Staked GOLD:  %s\n", l.StakedGoldBalance)
	if l.Staking != nil && l.Staking.StakedAt != nil {
		fmt.Fprintf(w, "Staked since: %s\n", l.Staking.StakedAt.Format(time.RFC3339))
	}
	if len(l.Transactions) == 0 {
		fmt.Fprintln(w, "\nNo transactions")
		return
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTYPE\tSTATUS\tFROM\tTO\tSIGNATURE")
	for _, tx := range l.Transactions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s %s\t%s\n",
			tx.Timestamp.Format(time.RFC3339),
			tx.Type,
			tx.Status,
			tx.FromAmount, tx.FromToken,
			tx.ToAmount, tx.ToToken,
			tx.Signature,
		)
	}
	tw.Flush()
}
