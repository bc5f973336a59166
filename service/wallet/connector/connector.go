package connector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/goldium-labs/goldium/service/metrics"
	"github.com/goldium-labs/goldium/service/wallet"
)

// DefaultSwitchDelay is the pause between disconnecting one wallet and
// connecting another.
const DefaultSwitchDelay = 200 * time.Millisecond

// Connection describes the wallet a Connect call ended on.
type Connection struct {
	Kind      wallet.Kind      `json:"kind"`
	PublicKey solana.PublicKey `json:"publicKey"`
	Address   string           `json:"address"`
}

// Config configures a Connector.
type Config struct {
	Registry    *Registry // defaults to DefaultRegistry()
	SwitchDelay time.Duration
}

// Connector negotiates connect and disconnect with injected providers and
// reflects the outcome in the wallet store. Connect and Disconnect are
// serialized.
type Connector struct {
	mu          sync.Mutex
	store       *wallet.Store
	globals     Globals
	registry    *Registry
	switchDelay time.Duration
	active      Provider
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New creates a connector over globals. If metrics is nil, no metrics will
// be recorded.
func New(store *wallet.Store, globals Globals, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Connector {
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry()
	}
	if cfg.SwitchDelay < 0 {
		cfg.SwitchDelay = 0
	}
	if globals == nil {
		globals = Globals{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		store:       store,
		globals:     globals,
		registry:    cfg.Registry,
		switchDelay: cfg.SwitchDelay,
		metrics:     m,
		logger:      logger.With("component", "wallet_connector"),
	}
}

// ListAvailable returns the installed wallet kinds in detection order.
func (c *Connector) ListAvailable() []wallet.Kind {
	return c.registry.Available(c.globals)
}

// Connect connects to kind. If another wallet is connected it is
// disconnected first and the switch delay is observed. Calling Connect for
// the wallet that is already connected returns the existing connection.
func (c *Connector) Connect(ctx context.Context, kind wallet.Kind) (conn Connection, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	defer func() {
		result := "success"
		if err != nil {
			result = "error"
			if k := wallet.KindOf(err); k != "" {
				result = string(k)
			}
		}
		if c.metrics != nil {
			c.metrics.RecordWalletConnection(string(kind), result)
		}
	}()

	if c.active != nil && c.active.Kind() == kind {
		if s := c.store.State(); s.Connected && s.SelectedWallet == kind {
			c.logger.DebugContext(ctx, "wallet already connected", "wallet", kind, "address", s.Address)
			return Connection{Kind: kind, PublicKey: s.PublicKey, Address: s.Address}, nil
		}
	}

	provider, err := c.registry.Build(kind, c.globals)
	if err != nil {
		c.logger.WarnContext(ctx, "wallet provider unavailable", "wallet", kind, "error", err)
		return Connection{}, err
	}

	if c.active != nil {
		previous := c.active.Kind()
		c.disconnectLocked(ctx)
		c.logger.InfoContext(ctx, "switching wallet", "from", previous, "to", kind)
		if err := sleepCtx(ctx, c.switchDelay); err != nil {
			return Connection{}, err
		}
	}

	if _, err := c.store.Dispatch(wallet.ConnectStarted{Kind: kind}); err != nil {
		return Connection{}, err
	}

	pk, err := safeConnect(ctx, provider)
	if err != nil {
		_, _ = c.store.Dispatch(wallet.ConnectFailed{})
		c.logger.WarnContext(ctx, "wallet connect failed", "wallet", kind, "error", err)
		return Connection{}, err
	}

	state, err := c.store.Dispatch(wallet.ConnectSucceeded{Kind: kind, PublicKey: pk})
	if err != nil {
		_, _ = c.store.Dispatch(wallet.ConnectFailed{})
		return Connection{}, err
	}
	c.active = provider

	c.logger.InfoContext(ctx, "wallet connected", "wallet", kind, "address", state.Address)
	return Connection{Kind: kind, PublicKey: pk, Address: state.Address}, nil
}

// Disconnect disconnects the active provider. Provider errors are logged;
// the store is reset regardless.
func (c *Connector) Disconnect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked(ctx)
}

func (c *Connector) disconnectLocked(ctx context.Context) {
	if c.active != nil {
		if err := safeDisconnect(ctx, c.active); err != nil {
			c.logger.WarnContext(ctx, "wallet disconnect failed", "wallet", c.active.Kind(), "error", err)
		}
		c.active = nil
	}
	_, _ = c.store.Dispatch(wallet.Disconnected{})
}

// SignTransaction delegates to the active provider.
func (c *Connector) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	c.mu.Lock()
	provider := c.active
	c.mu.Unlock()

	if provider == nil {
		return nil, wallet.Errorf(wallet.KindNotConnected, "sign transaction", "no wallet connected")
	}
	return safeSign(ctx, provider, tx)
}

// Active returns the kind of the connected provider, or "".
func (c *Connector) Active() wallet.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.Kind()
}

func safeConnect(ctx context.Context, p Provider) (pk solana.PublicKey, err error) {
	defer recoverInto(&err, p.Kind(), "connect")
	pk, err = p.Connect(ctx)
	if err == nil && pk.IsZero() {
		err = fmt.Errorf("%s connect: provider returned an empty public key", p.Kind())
	}
	return pk, err
}

func safeDisconnect(ctx context.Context, p Provider) (err error) {
	defer recoverInto(&err, p.Kind(), "disconnect")
	return p.Disconnect(ctx)
}

func safeSign(ctx context.Context, p Provider, tx *solana.Transaction) (out *solana.Transaction, err error) {
	defer recoverInto(&err, p.Kind(), "sign")
	return p.SignTransaction(ctx, tx)
}

func recoverInto(err *error, kind wallet.Kind, op string) {
	if rec := recover(); rec != nil {
		*err = fmt.Errorf("%s %s panicked: %v", kind, op, rec)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
