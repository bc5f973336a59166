package temporal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockScheduler is an in-memory Scheduler for tests.
type MockScheduler struct {
	mu        sync.Mutex
	schedules map[string]time.Duration // map[scheduleID]interval
	createErr error
	deleteErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{
		schedules: make(map[string]time.Duration),
	}
}

// UpsertReconcileSchedule creates or updates a schedule.
func (m *MockScheduler) UpsertReconcileSchedule(ctx context.Context, address string, interval time.Duration) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[ReconcileScheduleID(address)] = interval
	return nil
}

// DeleteReconcileSchedule records that a schedule was deleted.
func (m *MockScheduler) DeleteReconcileSchedule(ctx context.Context, address string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := ReconcileScheduleID(address)
	if _, exists := m.schedules[id]; !exists {
		return fmt.Errorf("schedule %q not found", id)
	}
	delete(m.schedules, id)
	return nil
}

// ListReconcileSchedules returns the scheduled addresses in sorted order.
func (m *MockScheduler) ListReconcileSchedules(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	addresses := make([]string, 0, len(m.schedules))
	for id := range m.schedules {
		addresses = append(addresses, strings.TrimPrefix(id, reconcileSchedulePrefix))
	}
	sort.Strings(addresses)
	return addresses, nil
}

// SetCreateError makes UpsertReconcileSchedule return an error.
func (m *MockScheduler) SetCreateError(err error) {
	m.createErr = err
}

// SetDeleteError makes DeleteReconcileSchedule return an error.
func (m *MockScheduler) SetDeleteError(err error) {
	m.deleteErr = err
}

// GetScheduleInterval returns the interval for a wallet's schedule.
func (m *MockScheduler) GetScheduleInterval(address string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	interval, exists := m.schedules[ReconcileScheduleID(address)]
	return interval, exists
}
