package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher publishes ledger and alert events.
type Publisher interface {
	// PublishLedgerEvent publishes to "ledger.{wallet_address}".
	PublishLedgerEvent(ctx context.Context, event *LedgerEvent) error

	// PublishAlert publishes to "alerts.{symbol}".
	PublishAlert(ctx context.Context, event *AlertEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes events to NATS JetStream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for wallet events.
	StreamName = "GOLDIUM"

	// LedgerSubjects matches every wallet's ledger events.
	LedgerSubjects = "ledger.*"

	// AlertSubjects matches every symbol's alert events.
	AlertSubjects = "alerts.*"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// LedgerSubject is the subject a wallet's ledger events go to.
func LedgerSubject(address string) string { return "ledger." + address }

// AlertSubject is the subject a symbol's alerts go to.
func AlertSubject(symbol string) string { return "alerts." + symbol }

// Connect dials NATS with the reconnect policy every goldium process uses.
func Connect(natsURL, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := Connect(natsURL, "goldium-publisher")
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:     nc,
		js:     js,
		logger: logger.With("component", "nats_publisher"),
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Wallet ledger changes and price alerts",
		Subjects:    []string{LedgerSubjects, AlertSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishLedgerEvent publishes a ledger change.
func (p *JetStreamPublisher) PublishLedgerEvent(ctx context.Context, event *LedgerEvent) error {
	subject := LedgerSubject(event.WalletAddress)
	if err := p.publish(ctx, subject, event); err != nil {
		return fmt.Errorf("failed to publish ledger event: %w", err)
	}
	p.logger.DebugContext(ctx, "published ledger event",
		"subject", subject,
		"action", event.Action,
		"signature", event.Signature,
	)
	return nil
}

// PublishAlert publishes a triggered price alert.
func (p *JetStreamPublisher) PublishAlert(ctx context.Context, event *AlertEvent) error {
	subject := AlertSubject(event.Symbol)
	if err := p.publish(ctx, subject, event); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	p.logger.DebugContext(ctx, "published alert", "subject", subject, "alert_id", event.AlertID)
	return nil
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
