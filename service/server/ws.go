package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/goldium-labs/goldium/service/metrics"
	natspkg "github.com/goldium-labs/goldium/service/nats"
	"github.com/goldium-labs/goldium/service/prices"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 8 << 10
	wsSendBuffer     = 64
	wsMaxAlerts      = 50
)

// Message types exchanged on /ws.
const (
	msgAuthenticate           = "authenticate"
	msgSubscribePrices        = "subscribe_prices"
	msgUnsubscribePrices      = "unsubscribe_prices"
	msgSubscribeNotifications = "subscribe_notifications"
	msgPing                   = "ping"

	msgConnected     = "connected"
	msgAuthenticated = "authenticated"
	msgPriceUpdate   = "price_update"
	msgNotification  = "notification"
	msgPong          = "pong"
	msgError         = "error"
)

// AlertSink is told about every triggered alert.
type AlertSink interface {
	AlertTriggered(ctx context.Context, event *natspkg.AlertEvent)
}

type clientMessage struct {
	Type    string         `json:"type"`
	Token   string         `json:"token,omitempty"`
	Symbols []string       `json:"symbols,omitempty"`
	Alerts  []alertRequest `json:"alerts,omitempty"`
}

type alertRequest struct {
	ID        string          `json:"id,omitempty"`
	Symbol    string          `json:"symbol"`
	Condition string          `json:"condition"`
	Target    decimal.Decimal `json:"target"`
}

type serverMessage struct {
	Type      string `json:"type"`
	ClientID  string `json:"clientId,omitempty"`
	Success   *bool  `json:"success,omitempty"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type priceData struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
	Timestamp int64   `json:"timestamp"`
}

type notificationData struct {
	AlertID   string  `json:"alertId"`
	Symbol    string  `json:"symbol"`
	Condition string  `json:"condition"`
	Target    float64 `json:"target"`
	Price     float64 `json:"price"`
	Message   string  `json:"message"`
}

func tickData(t prices.Tick) priceData {
	return priceData{
		Symbol:    t.Symbol,
		Price:     t.Price.InexactFloat64(),
		Change24h: t.Change24h.InexactFloat64(),
		Timestamp: t.Timestamp.UnixMilli(),
	}
}

// Hub owns the /ws connections and fans relay ticks out to them.
type Hub struct {
	relay     *prices.Relay
	authToken string
	sink      AlertSink
	metrics   *metrics.Metrics
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	now       func() time.Time

	mu          sync.RWMutex
	clients     map[*wsClient]struct{}
	unsubscribe func()
}

// NewHub creates a hub that listens to relay. An empty authToken accepts
// any authenticate message. sink and metrics may be nil.
func NewHub(relay *prices.Relay, authToken string, sink AlertSink, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		relay:     relay,
		authToken: authToken,
		sink:      sink,
		metrics:   m,
		logger:    logger.With("component", "ws_hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		now:     time.Now,
		clients: make(map[*wsClient]struct{}),
	}
	h.unsubscribe = relay.Subscribe(h.broadcast)
	return h
}

// ServeHTTP upgrades the request and serves the connection until it closes.
// GET /ws
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	c := &wsClient{
		id:      uuid.NewString(),
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, wsSendBuffer),
		symbols: make(map[string]bool),
		authed:  h.authToken == "",
	}
	h.register(c)
	go c.writePump()

	c.enqueue(serverMessage{Type: msgConnected, ClientID: c.id})
	c.readPump(r.Context())
	h.unregister(c)
}

// Clients returns the number of open connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops listening to the relay and closes every connection.
func (h *Hub) Close() {
	h.unsubscribe()
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.shutdown()
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.RecordWSConnectionChange(1)
	}
	h.logger.Debug("websocket client connected", "client_id", c.id)
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.shutdown()
	if h.metrics != nil {
		h.metrics.RecordWSConnectionChange(-1)
	}
	h.logger.Debug("websocket client disconnected", "client_id", c.id)
}

// broadcast is the relay listener.
func (h *Hub) broadcast(ctx context.Context, ticks []prices.Tick) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		for _, tick := range ticks {
			if c.subscribed(tick.Symbol) {
				c.enqueue(serverMessage{Type: msgPriceUpdate, Data: tickData(tick)})
			}
			for _, a := range c.alerts.Evaluate(tick) {
				h.fire(ctx, c, a, tick)
			}
		}
	}
}

func (h *Hub) fire(ctx context.Context, c *wsClient, a prices.Alert, tick prices.Tick) {
	msg := "price of " + a.Symbol + " is now " + string(a.Condition) + " " + a.Target.String()
	c.enqueue(serverMessage{Type: msgNotification, Data: notificationData{
		AlertID:   a.ID,
		Symbol:    a.Symbol,
		Condition: string(a.Condition),
		Target:    a.Target.InexactFloat64(),
		Price:     tick.Price.InexactFloat64(),
		Message:   msg,
	}})

	if h.metrics != nil {
		h.metrics.RecordAlertTriggered(a.Symbol, string(a.Condition))
	}
	h.logger.InfoContext(ctx, "price alert triggered",
		"client_id", c.id,
		"alert_id", a.ID,
		"symbol", a.Symbol,
		"condition", a.Condition,
		"target", a.Target.String(),
		"price", tick.Price.String(),
	)
	if h.sink != nil {
		h.sink.AlertTriggered(ctx, &natspkg.AlertEvent{
			AlertID:   a.ID,
			ClientID:  c.id,
			Symbol:    a.Symbol,
			Condition: string(a.Condition),
			Target:    a.Target.String(),
			Price:     tick.Price.String(),
			Timestamp: tick.Timestamp,
		})
	}
}

// wsClient is one /ws connection.
type wsClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.Mutex
	closed  bool
	authed  bool
	symbols map[string]bool

	alerts prices.Alerts
}

func (c *wsClient) subscribed(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.symbols[symbol]
}

// enqueue queues msg for the write pump. A client whose buffer is full is
// dropped.
func (c *wsClient) enqueue(msg serverMessage) bool {
	if msg.Timestamp == 0 {
		msg.Timestamp = c.hub.now().UnixMilli()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("failed to marshal websocket message", "type", msg.Type, "error", err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("dropping slow websocket client", "client_id", c.id)
		c.closed = true
		close(c.send)
		return false
	}
	if c.hub.metrics != nil {
		c.hub.metrics.RecordWSMessageSent(msg.Type)
	}
	return true
}

func (c *wsClient) sendError(message string) {
	c.enqueue(serverMessage{Type: msgError, Message: message})
}

func (c *wsClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *wsClient) readPump(ctx context.Context) {
	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed", "client_id", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		c.handle(ctx, data)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handle(ctx context.Context, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("invalid message format")
		return
	}

	switch msg.Type {
	case msgAuthenticate:
		c.authenticate(msg.Token)
	case msgSubscribePrices:
		c.subscribePrices(msg.Symbols)
	case msgUnsubscribePrices:
		c.unsubscribePrices(msg.Symbols)
	case msgSubscribeNotifications:
		c.subscribeNotifications(ctx, msg.Alerts)
	case msgPing:
		c.enqueue(serverMessage{Type: msgPong})
	case "":
		c.sendError("message type is required")
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

func (c *wsClient) authenticate(token string) {
	want := c.hub.authToken
	if want != "" && subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
		c.hub.logger.Debug("websocket authentication failed", "client_id", c.id)
		c.sendError("authentication failed")
		return
	}
	c.mu.Lock()
	c.authed = true
	c.mu.Unlock()

	ok := true
	c.enqueue(serverMessage{Type: msgAuthenticated, Success: &ok})
}

func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// subscribePrices subscribes to symbols, or to every relayed symbol when
// none are given, and replays the cached tick of each.
func (c *wsClient) subscribePrices(symbols []string) {
	symbols = normalizeSymbols(symbols)
	if len(symbols) == 0 {
		symbols = c.hub.relay.Symbols()
	}

	c.mu.Lock()
	for _, s := range symbols {
		c.symbols[s] = true
	}
	c.mu.Unlock()

	for _, s := range symbols {
		if tick, ok := c.hub.relay.Cache().Get(s); ok {
			c.enqueue(serverMessage{Type: msgPriceUpdate, Data: tickData(tick)})
		}
	}
}

// unsubscribePrices drops symbols, or every subscription when none are
// given.
func (c *wsClient) unsubscribePrices(symbols []string) {
	symbols = normalizeSymbols(symbols)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(symbols) == 0 {
		c.symbols = make(map[string]bool)
		return
	}
	for _, s := range symbols {
		delete(c.symbols, s)
	}
}

func (c *wsClient) subscribeNotifications(ctx context.Context, alerts []alertRequest) {
	c.mu.Lock()
	authed := c.authed
	c.mu.Unlock()
	if !authed {
		c.sendError("authentication required")
		return
	}
	if len(c.alerts.List())+len(alerts) > wsMaxAlerts {
		c.sendError("too many alerts")
		return
	}

	for _, req := range alerts {
		a, err := c.alerts.Add(prices.Alert{
			ID:        req.ID,
			Symbol:    req.Symbol,
			Condition: prices.Condition(req.Condition),
			Target:    req.Target,
		})
		if err != nil {
			c.sendError(err.Error())
			continue
		}
		c.hub.logger.DebugContext(ctx, "price alert registered",
			"client_id", c.id,
			"alert_id", a.ID,
			"symbol", a.Symbol,
			"condition", a.Condition,
			"target", a.Target.String(),
		)
	}
}
