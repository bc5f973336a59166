package prices

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/goldium-labs/goldium/service/metrics"
)

// Listener receives the ticks of every successful poll.
type Listener func(ctx context.Context, ticks []Tick)

// Relay polls a Feed on a fixed interval, refreshes the cache and fans the
// new ticks out to listeners.
type Relay struct {
	feed     Feed
	cache    *Cache
	symbols  []string
	interval time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// NewRelay creates a relay. If metrics is nil, no metrics will be recorded.
func NewRelay(feed Feed, cache *Cache, symbols []string, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Relay {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		feed:      feed,
		cache:     cache,
		symbols:   symbols,
		interval:  interval,
		now:       time.Now,
		metrics:   m,
		logger:    logger.With("component", "price_relay"),
		listeners: make(map[int]Listener),
	}
}

// Cache returns the tick cache.
func (r *Relay) Cache() *Cache { return r.cache }

// Symbols returns the symbols the relay polls.
func (r *Relay) Symbols() []string { return append([]string(nil), r.symbols...) }

// Subscribe registers l and returns a function that removes it.
func (r *Relay) Subscribe(l Listener) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Poll runs one fetch cycle. On a feed error the cache keeps its previous
// ticks and listeners are not called.
func (r *Relay) Poll(ctx context.Context) ([]Tick, error) {
	prices, err := r.feed.Fetch(ctx, r.symbols)
	if err != nil {
		r.recordFetch("error")
		return nil, err
	}
	r.recordFetch("success")

	now := r.now().UTC()
	ticks := make([]Tick, 0, len(prices))
	for sym, price := range prices {
		ticks = append(ticks, r.cache.Update(sym, price, now))
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].Symbol < ticks[j].Symbol })

	r.mu.Lock()
	listeners := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.mu.Unlock()
	for _, l := range listeners {
		l(ctx, ticks)
	}
	return ticks, nil
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	r.logger.Info("price relay started", "interval", r.interval, "symbols", r.symbols)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Poll(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "price poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.Info("price relay stopped")
			return
		case <-ticker.C:
		}
	}
}

func (r *Relay) recordFetch(status string) {
	if r.metrics != nil {
		r.metrics.RecordPriceFetch(status)
	}
}
