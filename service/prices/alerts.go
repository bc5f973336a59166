package prices

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Condition is the direction an alert watches.
type Condition string

const (
	Above Condition = "above"
	Below Condition = "below"
)

// ParseCondition validates a condition name.
func ParseCondition(s string) (Condition, error) {
	switch c := Condition(strings.ToLower(strings.TrimSpace(s))); c {
	case Above, Below:
		return c, nil
	default:
		return "", fmt.Errorf("invalid alert condition %q: must be above or below", s)
	}
}

// Alert fires once when a symbol's price crosses Target.
type Alert struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Condition Condition       `json:"condition"`
	Target    decimal.Decimal `json:"target"`
	Triggered bool            `json:"triggered"`
}

func (a Alert) matches(price decimal.Decimal) bool {
	switch a.Condition {
	case Above:
		return price.GreaterThanOrEqual(a.Target)
	case Below:
		return price.LessThanOrEqual(a.Target)
	}
	return false
}

// Alerts is one connection's set of alerts.
type Alerts struct {
	mu     sync.Mutex
	alerts []*Alert
}

// Add validates and registers an alert, assigning an ID when missing.
func (s *Alerts) Add(a Alert) (Alert, error) {
	a.Symbol = strings.ToUpper(strings.TrimSpace(a.Symbol))
	if a.Symbol == "" {
		return Alert{}, fmt.Errorf("alert symbol is required")
	}
	cond, err := ParseCondition(string(a.Condition))
	if err != nil {
		return Alert{}, err
	}
	a.Condition = cond
	if !a.Target.IsPositive() {
		return Alert{}, fmt.Errorf("alert target must be positive")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Triggered = false

	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, &a)
	return a, nil
}

// Evaluate marks and returns the alerts that tick triggers. An alert never
// fires twice.
func (s *Alerts) Evaluate(tick Tick) []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fired []Alert
	for _, a := range s.alerts {
		if a.Triggered || a.Symbol != tick.Symbol || !a.matches(tick.Price) {
			continue
		}
		a.Triggered = true
		fired = append(fired, *a)
	}
	return fired
}

// List returns a copy of every alert.
func (s *Alerts) List() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Alert, len(s.alerts))
	for i, a := range s.alerts {
		out[i] = *a
	}
	return out
}
