package prices

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// HistoryWindow is how far back change24h looks.
const HistoryWindow = 24 * time.Hour

// Tick is the latest price of one symbol.
type Tick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Change24h decimal.Decimal `json:"change24h"` // percent
	Timestamp time.Time       `json:"timestamp"`
}

type sample struct {
	at    time.Time
	price decimal.Decimal
}

// Cache holds the latest tick per symbol and enough history to compute the
// 24 hour change.
type Cache struct {
	mu      sync.RWMutex
	ticks   map[string]Tick
	history map[string][]sample
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		ticks:   make(map[string]Tick),
		history: make(map[string][]sample),
	}
}

// Update records price for symbol at now and returns the resulting tick.
func (c *Cache) Update(symbol string, price decimal.Decimal, now time.Time) Tick {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.history[symbol]
	cutoff := now.Add(-HistoryWindow)
	drop := 0
	for drop < len(h) && h[drop].at.Before(cutoff) {
		drop++
	}
	h = append(h[drop:], sample{at: now, price: price})
	c.history[symbol] = h

	tick := Tick{
		Symbol:    symbol,
		Price:     price,
		Change24h: change(h[0].price, price),
		Timestamp: now,
	}
	c.ticks[symbol] = tick
	return tick
}

func change(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(decimal.NewFromInt(100)).Round(4)
}

// Get returns the latest tick of symbol.
func (c *Cache) Get(symbol string) (Tick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.ticks[symbol]
	return t, ok
}

// All returns every tick ordered by symbol.
func (c *Cache) All() []Tick {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Tick, 0, len(c.ticks))
	for _, t := range c.ticks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
