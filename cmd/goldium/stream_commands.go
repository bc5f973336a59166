package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/itchyny/gojq"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/goldium-labs/goldium/client"
	natspkg "github.com/goldium-labs/goldium/service/nats"
	"github.com/goldium-labs/goldium/service/prices"
)

func pricesCommands() *cli.Command {
	return &cli.Command{
		Name:  "prices",
		Usage: "Price relay commands (WebSocket)",
		Subcommands: []*cli.Command{
			pricesWatchCommand(),
		},
	}
}

func eventsCommands() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Ledger and alert event streams",
		Subcommands: []*cli.Command{
			eventsWatchCommand(),
			eventsStreamCommand(),
		},
	}
}

// signalContext is canceled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// parseAlert reads SYMBOL:CONDITION:TARGET, e.g. SOL:above:150.
func parseAlert(s string) (client.Alert, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return client.Alert{}, fmt.Errorf("alert %q must look like SYMBOL:above:TARGET", s)
	}
	cond, err := prices.ParseCondition(parts[1])
	if err != nil {
		return client.Alert{}, fmt.Errorf("alert %q: %w", s, err)
	}
	target, err := decimal.NewFromString(parts[2])
	if err != nil {
		return client.Alert{}, fmt.Errorf("alert %q: invalid target: %w", s, err)
	}
	return client.Alert{Symbol: strings.ToUpper(parts[0]), Condition: string(cond), Target: target}, nil
}

func pricesWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Print price updates from the /ws relay",
		ArgsUsage: "[SYMBOL...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Relay auth token, required for alerts",
				EnvVars: []string{"WS_AUTH_TOKEN"},
			},
			&cli.StringSliceFlag{
				Name:  "alert",
				Usage: "Price alert SYMBOL:CONDITION:TARGET (above, below)",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Exit after this many price updates (0 runs until interrupted)",
			},
		},
		Action: func(c *cli.Context) error {
			var alerts []client.Alert
			for _, raw := range c.StringSlice("alert") {
				a, err := parseAlert(raw)
				if err != nil {
					return err
				}
				alerts = append(alerts, a)
			}

			ctx, cancel := signalContext(c.Context)
			defer cancel()

			dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
			stream, err := client.DialPrices(dialCtx, c.String("server-url"))
			dialCancel()
			if err != nil {
				return err
			}
			defer stream.Close()
			fmt.Fprintf(c.App.ErrWriter, "connected as %s\n", stream.ClientID())

			if token := c.String("token"); token != "" {
				if err := stream.Authenticate(token); err != nil {
					return err
				}
			}
			if err := stream.Subscribe(c.Args().Slice()...); err != nil {
				return err
			}
			if len(alerts) > 0 {
				if err := stream.SubscribeNotifications(alerts...); err != nil {
					return err
				}
			}

			// Close the connection on interrupt so Next returns.
			go func() {
				<-ctx.Done()
				stream.Close()
			}()

			updates := 0
			for {
				msg, err := stream.Next(context.Background())
				if errors.Is(err, client.ErrStreamClosed) || ctx.Err() != nil {
					return nil
				}
				if err != nil {
					return err
				}
				if err := printPriceMessage(c, msg); err != nil {
					return err
				}
				if msg.Type == "price_update" {
					updates++
					if n := c.Int("count"); n > 0 && updates >= n {
						return nil
					}
				}
			}
		},
	}
}

func printPriceMessage(c *cli.Context, msg client.PriceMessage) error {
	w := c.App.Writer
	if c.Bool("json") {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	ts := time.UnixMilli(msg.Timestamp).Format(time.TimeOnly)
	switch msg.Type {
	case "price_update":
		p, err := msg.PriceUpdate()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s  %-6s %14.6f  %+.2f%%\n", ts, p.Symbol, p.Price, p.Change24h)
	case "notification":
		n, err := msg.Notification()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s  🔔 %s\n", ts, n.Message)
	case "authenticated":
		if msg.Success == nil || !*msg.Success {
			fmt.Fprintf(c.App.ErrWriter, "authentication failed: %s\n", msg.Message)
		}
	case "error":
		fmt.Fprintf(c.App.ErrWriter, "relay error: %s\n", msg.Message)
	}
	return nil
}

// eventFilter keeps events whose JSON payload makes every filter truthy.
type eventFilter []*gojq.Code

func newEventFilter(exprs []string) (eventFilter, error) {
	f := make(eventFilter, 0, len(exprs))
	for _, expr := range exprs {
		code, err := compileJQ(expr)
		if err != nil {
			return nil, err
		}
		f = append(f, code)
	}
	return f, nil
}

func (f eventFilter) Match(data []byte) bool {
	if len(f) == 0 {
		return true
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return false
	}
	for _, code := range f {
		results, err := runJQ(code, v)
		if err != nil || len(results) == 0 || !isTruthy(results[0]) {
			return false
		}
	}
	return true
}

func printEvent(w io.Writer, kind, subject string, data []byte, jsonOutput bool) {
	if jsonOutput {
		fmt.Fprintln(w, string(data))
		return
	}
	switch kind {
	case "ledger":
		var e natspkg.LedgerEvent
		if err := json.Unmarshal(data, &e); err == nil {
			fmt.Fprintf(w, "%s  %-8s %s", time.Now().Format(time.TimeOnly), e.Action, e.WalletAddress)
			if e.Signature != "" {
				fmt.Fprintf(w, "  %s %s %s", e.Type, e.Status, e.Signature)
			}
			fmt.Fprintln(w)
			return
		}
	case "alert":
		var e natspkg.AlertEvent
		if err := json.Unmarshal(data, &e); err == nil {
			fmt.Fprintf(w, "%s  alert %s %s %s %s (price %s)\n", e.Timestamp.Format(time.TimeOnly), e.AlertID, e.Symbol, e.Condition, e.Target, e.Price)
			return
		}
	}
	fmt.Fprintf(w, "%s  %s\n", subject, string(data))
}

var mustJQFlag = &cli.StringSliceFlag{
	Name:    "must-jq",
	Aliases: []string{"filter"},
	Usage:   "jq filter the event must satisfy (repeatable, all must match)",
}

func eventsWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Consume ledger or alert events from NATS JetStream",
		ArgsUsage: "[WALLET_ADDRESS]",
		Description: `Events are read from the subject ledger.{wallet_address}, or
ledger.* when no address is given. With --alerts the alerts.* subjects are
read instead.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "alerts", Usage: "Consume price alerts instead of ledger events"},
			mustJQFlag,
		},
		Action: func(c *cli.Context) error {
			filter, err := newEventFilter(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			subject := natspkg.LedgerSubjects
			switch {
			case c.Bool("alerts"):
				subject = natspkg.AlertSubjects
			case c.NArg() > 0:
				subject = natspkg.LedgerSubject(c.Args().First())
			}

			sub, err := natspkg.NewSubscriber(c.String("nats-url"), "goldium-cli", cliLogger())
			if err != nil {
				return err
			}
			defer sub.Close()

			ctx, cancel := signalContext(c.Context)
			defer cancel()

			fmt.Fprintf(c.App.ErrWriter, "consuming %s\n", subject)
			return sub.Consume(ctx, subject, func(subject string, data []byte) {
				if filter.Match(data) {
					printEvent(c.App.Writer, natspkg.EventKind(subject), subject, data, c.Bool("json"))
				}
			})
		},
	}
}

func eventsStreamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Follow ledger or alert events over SSE (HTTP)",
		ArgsUsage: "[WALLET_ADDRESS]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "alerts", Usage: "Follow price alerts instead of ledger events"},
			mustJQFlag,
		},
		Action: func(c *cli.Context) error {
			filter, err := newEventFilter(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}
			cl, err := apiClient(c)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(c.Context)
			defer cancel()

			handle := func(e client.Event) error {
				switch e.Type {
				case "connected":
					fmt.Fprintf(c.App.ErrWriter, "connected: %s\n", string(e.Data))
				case "error":
					return fmt.Errorf("stream error: %s", string(e.Data))
				default:
					if filter.Match(e.Data) {
						printEvent(c.App.Writer, e.Type, e.Type, e.Data, c.Bool("json"))
					}
				}
				return nil
			}

			if c.Bool("alerts") {
				err = cl.StreamAlerts(ctx, handle)
			} else {
				err = cl.StreamLedger(ctx, c.Args().First(), handle)
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}
