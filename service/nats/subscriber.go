package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Handler receives one message. The message is acked after it returns.
type Handler func(subject string, data []byte)

// Subscriber reads ledger and alert events from the stream.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSubscriber connects to NATS under the given client name.
func NewSubscriber(natsURL, name string, logger *slog.Logger) (*Subscriber, error) {
	nc, err := Connect(natsURL, name)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{nc: nc, js: js, logger: logger.With("component", "nats_subscriber")}, nil
}

// Consume delivers messages published to subject after the call, until ctx
// is done. Wildcard subjects such as LedgerSubjects are allowed.
func (s *Subscriber) Consume(ctx context.Context, subject string, fn Handler) error {
	cons, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	msgs := make(chan jetstream.Msg, 16)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		select {
		case msgs <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	s.logger.DebugContext(ctx, "consuming events", "subject", subject)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			fn(msg.Subject(), msg.Data())
			if err := msg.Ack(); err != nil {
				s.logger.WarnContext(ctx, "failed to ack event", "subject", msg.Subject(), "error", err)
			}
		}
	}
}

// Close closes the NATS connection.
func (s *Subscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

// EventKind returns "ledger" or "alert" for a stream subject.
func EventKind(subject string) string {
	switch {
	case strings.HasPrefix(subject, "ledger."):
		return "ledger"
	case strings.HasPrefix(subject, "alerts."):
		return "alert"
	default:
		return "event"
	}
}
