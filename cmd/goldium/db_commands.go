package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/goldium-labs/goldium/service/db"
	"github.com/goldium-labs/goldium/service/ledger"
)

// getStore connects to Postgres from the global database-url flag.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := db.Connect(c.Context, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Migrate(c.Context, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db.NewStore(pool), pool.Close, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the ledger schema migrations",
		Action: func(c *cli.Context) error {
			dbURL := c.String("database-url")
			if dbURL == "" {
				return fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
			}
			pool, err := db.Connect(c.Context, dbURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()

			applied, err := db.Migrate(c.Context, pool)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintf(c.App.Writer, "✓ %s\n", name)
			}
			return nil
		},
	}
}

// keyLister is implemented by every storage the CLI can read wallet keys
// from.
type keyLister interface {
	ledger.Storage
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// copyLedgers copies every wallet book and staking document from src to
// dst and returns the wallet addresses copied.
func copyLedgers(ctx context.Context, src keyLister, dst ledger.Storage, overwrite bool) ([]string, error) {
	keys, err := src.Keys(ctx, ledger.WalletKey(""))
	if err != nil {
		return nil, err
	}

	var copied []string
	for _, key := range keys {
		address, ok := ledger.AddressFromWalletKey(key)
		if !ok {
			continue
		}
		if !overwrite {
			if _, err := dst.Get(ctx, key); err == nil {
				continue
			}
		}
		for _, k := range []string{key, ledger.StakingKey(address)} {
			value, err := src.Get(ctx, k)
			if errors.Is(err, ledger.ErrNotFound) {
				continue
			}
			if err != nil {
				return copied, err
			}
			if err := dst.Put(ctx, k, value); err != nil {
				return copied, fmt.Errorf("failed to write %s: %w", k, err)
			}
		}
		copied = append(copied, address)
	}
	return copied, nil
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Copy ledgers from the ledger directory into Postgres",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "overwrite", Usage: "Replace ledgers that already exist in Postgres"},
		},
		Action: func(c *cli.Context) error {
			src, err := ledger.NewFileStorage(c.String("ledger-dir"))
			if err != nil {
				return err
			}
			store, closeStore, err := getStore(c)
			if err != nil {
				return err
			}
			defer closeStore()

			copied, err := copyLedgers(c.Context, src, store, c.Bool("overwrite"))
			for _, address := range copied {
				fmt.Fprintf(c.App.Writer, "✓ %s\n", address)
			}
			fmt.Fprintf(c.App.ErrWriter, "\nImported: %d wallets\n", len(copied))
			return err
		},
	}
}

func listWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-wallets",
		Aliases: []string{"ls"},
		Usage:   "List the wallets that have a stored ledger",
		Flags:   []cli.Flag{jqFlag},
		Action: func(c *cli.Context) error {
			var storage keyLister
			if c.String("database-url") != "" {
				store, closeStore, err := getStore(c)
				if err != nil {
					return err
				}
				defer closeStore()
				storage = store
			} else {
				fs, err := ledger.NewFileStorage(c.String("ledger-dir"))
				if err != nil {
					return err
				}
				storage = fs
			}

			type row struct {
				Address      string `json:"address"`
				Transactions int    `json:"transactions"`
				GoldBalance  string `json:"goldBalance"`
				Staked       string `json:"stakedGoldBalance"`
			}
			repo := ledger.NewRepository(storage, nil, nil, cliLogger())
			keys, err := storage.Keys(c.Context, ledger.WalletKey(""))
			if err != nil {
				return err
			}
			rows := make([]row, 0, len(keys))
			for _, key := range keys {
				address, ok := ledger.AddressFromWalletKey(key)
				if !ok {
					continue
				}
				book, err := repo.Load(c.Context, address)
				if err != nil {
					return err
				}
				rows = append(rows, row{
					Address:      address,
					Transactions: len(book.Transactions),
					GoldBalance:  book.GoldBalance.String(),
					Staked:       book.StakedGoldBalance.String(),
				})
			}

			return emit(c, c.App.Writer, rows, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ADDRESS\tTXNS\tGOLD\tSTAKED")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.Address, r.Transactions, r.GoldBalance, r.Staked)
				}
				tw.Flush()
				fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d wallets\n", len(rows))
			})
		},
	}
}
