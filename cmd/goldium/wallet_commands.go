package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/goldium-labs/goldium/service/config"
	"github.com/goldium-labs/goldium/service/db"
	"github.com/goldium-labs/goldium/service/ledger"
	"github.com/goldium-labs/goldium/service/session"
	chain "github.com/goldium-labs/goldium/service/solana"
	"github.com/goldium-labs/goldium/service/submit"
	"github.com/goldium-labs/goldium/service/temporal"
	"github.com/goldium-labs/goldium/service/wallet"
	"github.com/goldium-labs/goldium/service/wallet/connector"
)

// Flags shared by every command that drives a local keypair wallet.
func walletFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "keypair",
			Aliases: []string{"k"},
			Usage:   "solana-keygen keypair file",
			EnvVars: []string{"GOLDIUM_KEYPAIR"},
			Value:   "~/.config/solana/id.json",
		},
		&cli.StringFlag{
			Name:    "wallet",
			Aliases: []string{"w"},
			Usage:   "Wallet vendor the keypair is presented as (phantom, solflare, backpack, trust)",
			Value:   string(wallet.Phantom),
		},
		&cli.StringSliceFlag{
			Name:    "rpc-url",
			Usage:   "Solana RPC endpoint, repeat for fallbacks (defaults to SOLANA_RPC_URLS)",
			EnvVars: []string{"SOLANA_RPC_URLS"},
		},
		jqFlag,
	}
}

func submitFlags(extra ...cli.Flag) []cli.Flag {
	flags := append(walletFlags(),
		&cli.StringFlag{Name: "amount", Aliases: []string{"a"}, Usage: "Amount in UI units", Required: true},
		&cli.BoolFlag{Name: "track", Usage: "Hand the transaction to Temporal if it is not confirmed locally"},
	)
	return append(flags, extra...)
}

func walletCommands() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Drive a keypair wallet through the wallet layer",
		Subcommands: []*cli.Command{
			{
				Name:   "providers",
				Usage:  "List the wallet vendors the keypair can be connected as",
				Flags:  walletFlags(),
				Action: providersAction,
			},
			{
				Name:    "balance",
				Aliases: []string{"connect"},
				Usage:   "Connect, read balances and show the ledger totals",
				Flags:   walletFlags(),
				Action:  balanceAction,
			},
			{
				Name:  "send",
				Usage: "Send SOL or GOLD",
				Flags: submitFlags(
					&cli.StringFlag{Name: "to", Usage: "Recipient address", Required: true},
					&cli.StringFlag{Name: "token", Usage: "SOL or GOLD", Value: ledger.TokenSOL},
				),
				Action: func(c *cli.Context) error {
					return submitAction(c, ledger.TypeSend, submit.Params{
						Token:     strings.ToUpper(c.String("token")),
						Recipient: c.String("to"),
					})
				},
			},
			{
				Name:  "stake",
				Usage: "Stake GOLD",
				Flags: submitFlags(),
				Action: func(c *cli.Context) error {
					return submitAction(c, ledger.TypeStake, submit.Params{})
				},
			},
			{
				Name:  "unstake",
				Usage: "Unstake GOLD",
				Flags: submitFlags(),
				Action: func(c *cli.Context) error {
					return submitAction(c, ledger.TypeUnstake, submit.Params{})
				},
			},
			{
				Name:  "swap",
				Usage: "Swap SOL for GOLD",
				Flags: submitFlags(
					&cli.StringFlag{Name: "from", Usage: "Token spent", Value: ledger.TokenSOL},
					&cli.StringFlag{Name: "to", Usage: "Token received", Value: ledger.TokenGOLD},
				),
				Action: func(c *cli.Context) error {
					return submitAction(c, ledger.TypeSwap, submit.Params{
						FromToken: strings.ToUpper(c.String("from")),
						ToToken:   strings.ToUpper(c.String("to")),
					})
				},
			},
		},
	}
}

type walletEnv struct {
	cfg     *config.Config
	kind    wallet.Kind
	session *session.Session
	cleanup []func()
}

func (e *walletEnv) Close(c *cli.Context) {
	e.session.Close(c.Context)
	for i := len(e.cleanup) - 1; i >= 0; i-- {
		e.cleanup[i]()
	}
}

// openWallet builds a session whose only injected provider is the keypair
// presented as the chosen vendor.
func openWallet(c *cli.Context) (*walletEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.DatabaseURL = c.String("database-url")
	cfg.LedgerDir = c.String("ledger-dir")
	if urls := c.StringSlice("rpc-url"); len(urls) > 0 {
		cfg.SolanaRPCURLs = urls
	}

	kind, err := wallet.ParseKind(c.String("wallet"))
	if err != nil {
		return nil, err
	}
	key, err := solanago.PrivateKeyFromSolanaKeygenFile(expandHome(c.String("keypair")))
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair: %w", err)
	}
	globals := connector.Globals{}
	if err := connector.InjectKeypair(globals, kind, connector.NewKeypair(key)); err != nil {
		return nil, err
	}

	logger := cliLogger()
	pool, err := chain.NewPoolFromURLs(cfg.SolanaRPCURLs, chain.PoolConfig{
		MaxAttempts:      cfg.RPCMaxAttempts,
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
	}, nil, logger)
	if err != nil {
		return nil, err
	}

	storage, closeStorage, err := db.OpenStorage(c.Context, cfg.DatabaseURL, cfg.LedgerDir)
	if err != nil {
		return nil, err
	}
	scfg, err := session.ConfigFrom(cfg)
	if err != nil {
		closeStorage()
		return nil, err
	}

	repo := ledger.NewRepository(storage, nil, nil, logger)
	s := session.New(chain.NewClient(pool, logger), repo, globals, scfg, nil, logger)
	return &walletEnv{cfg: cfg, kind: kind, session: s, cleanup: []func(){closeStorage}}, nil
}

func providersAction(c *cli.Context) error {
	env, err := openWallet(c)
	if err != nil {
		return err
	}
	defer env.Close(c)

	kinds := env.session.Connector.ListAvailable()
	return emit(c, c.App.Writer, kinds, func(w io.Writer) {
		for _, k := range kinds {
			fmt.Fprintln(w, k)
		}
	})
}

type balanceView struct {
	Wallet      wallet.State       `json:"wallet"`
	TokenGold   float64            `json:"tokenGoldBalance"`
	Ledger      ledger.Balances    `json:"ledger"`
	Staking     ledger.StakingInfo `json:"staking"`
	PendingTxns int                `json:"pendingTransactions"`
}

func balanceAction(c *cli.Context) error {
	env, err := openWallet(c)
	if err != nil {
		return err
	}
	defer env.Close(c)

	conn, err := env.session.Connect(c.Context, env.kind)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if err := env.session.Poller.Refresh(c.Context); err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	gold, err := env.session.Poller.FetchTokenBalance(c.Context, conn.Address, env.cfg.GoldMintAddress)
	if err != nil {
		return fmt.Errorf("failed to read GOLD balance: %w", err)
	}

	view := balanceView{
		Wallet:    env.session.State(),
		TokenGold: gold,
		Ledger:    env.session.Ledger.Balances(),
		Staking:   env.session.Ledger.Staking(),
	}
	for _, tx := range env.session.Ledger.Transactions() {
		if tx.Status == ledger.StatusPending {
			view.PendingTxns++
		}
	}

	return emit(c, c.App.Writer, view, func(w io.Writer) {
		fmt.Fprintf(w, "Wallet:       %s\n", view.Wallet)
		fmt.Fprintf(w, "SOL:          %.9f\n", view.Wallet.Balance)
		fmt.Fprintf(w, "GOLD (chain): %v\n", view.TokenGold)
		fmt.Fprintf(w, "GOLD (book):  %s\n", view.Ledger.Gold)
		fmt.Fprintf(w, "Staked GOLD:  %s\n", view.Ledger.StakedGold)
		if view.PendingTxns > 0 {
			fmt.Fprintf(w, "Pending:      %d\n", view.PendingTxns)
		}
	})
}

func submitAction(c *cli.Context, op ledger.TxType, p submit.Params) error {
	amount, err := decimal.NewFromString(c.String("amount"))
	if err != nil {
		return fmt.Errorf("invalid --amount: %w", err)
	}
	p.Amount = amount

	env, err := openWallet(c)
	if err != nil {
		return err
	}
	defer env.Close(c)

	if c.Bool("track") {
		tc, err := temporal.NewClient(c.String("temporal-host"), c.String("temporal-namespace"), c.String("temporal-task-queue"), cliLogger())
		if err != nil {
			return err
		}
		defer tc.Close()
		env.session.SetTracker(tc.WithConfirmation(env.cfg.ConfirmPollInterval, env.cfg.ConfirmMaxAttempts))
	}

	if _, err := env.session.Connect(c.Context, env.kind); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	res, err := env.session.Submit(c.Context, op, p)
	if err != nil {
		if res.Signature != "" {
			fmt.Fprintf(c.App.ErrWriter, "signature: %s\n", res.Signature)
		}
		if wallet.KindOf(err) != "" {
			return fmt.Errorf("%s failed: %s: %w", op, wallet.Message(err), err)
		}
		return fmt.Errorf("%s failed: %w", op, err)
	}

	return emit(c, c.App.Writer, res, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s %s\n", op, res.Status)
		fmt.Fprintf(w, "  Signature: %s\n", res.Signature)
		fmt.Fprintf(w, "  Attempts:  %d\n", res.Attempts)
		if res.Tracked {
			fmt.Fprintf(w, "  Tracking:  %s\n", temporal.ConfirmationWorkflowID(res.Signature))
		}
	})
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}
