package db

import (
	"context"

	"github.com/goldium-labs/goldium/service/ledger"
)

// OpenStorage returns a migrated Postgres store when databaseURL is set and
// a file store under ledgerDir otherwise. The returned func releases it.
func OpenStorage(ctx context.Context, databaseURL, ledgerDir string) (ledger.Storage, func(), error) {
	if databaseURL == "" {
		fs, err := ledger.NewFileStorage(ledgerDir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}

	pool, err := Connect(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	if _, err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return NewStore(pool), pool.Close, nil
}
