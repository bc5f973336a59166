package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu           sync.RWMutex
	ledgerEvents []*LedgerEvent
	alerts       []*AlertEvent
	publishError error
	closed       bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		ledgerEvents: make([]*LedgerEvent, 0),
		alerts:       make([]*AlertEvent, 0),
	}
}

// PublishLedgerEvent records the event and returns any configured error.
func (m *MockPublisher) PublishLedgerEvent(ctx context.Context, event *LedgerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.ledgerEvents = append(m.ledgerEvents, event)
	return nil
}

// PublishAlert records the alert and returns any configured error.
func (m *MockPublisher) PublishAlert(ctx context.Context, event *AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.alerts = append(m.alerts, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published ledger events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*LedgerEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*LedgerEvent, len(m.ledgerEvents))
	copy(events, m.ledgerEvents)
	return events
}

// GetPublishedEventsForWallet returns ledger events published for a specific wallet.
func (m *MockPublisher) GetPublishedEventsForWallet(address string) []*LedgerEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*LedgerEvent, 0)
	for _, event := range m.ledgerEvents {
		if event.WalletAddress == address {
			events = append(events, event)
		}
	}
	return events
}

// GetPublishedAlerts returns all published alerts.
func (m *MockPublisher) GetPublishedAlerts() []*AlertEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alerts := make([]*AlertEvent, len(m.alerts))
	copy(alerts, m.alerts)
	return alerts
}

// SetPublishError configures the mock to fail every publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgerEvents = make([]*LedgerEvent, 0)
	m.alerts = make([]*AlertEvent, 0)
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
