package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// PriceMessage is a message from the /ws price relay.
type PriceMessage struct {
	Type      string          `json:"type"`
	ClientID  string          `json:"clientId,omitempty"`
	Success   *bool           `json:"success,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// PriceUpdate is the payload of a price_update message.
type PriceUpdate struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change24h"`
	Timestamp int64   `json:"timestamp"`
}

// Notification is the payload of a notification message.
type Notification struct {
	AlertID   string  `json:"alertId"`
	Symbol    string  `json:"symbol"`
	Condition string  `json:"condition"`
	Target    float64 `json:"target"`
	Price     float64 `json:"price"`
	Message   string  `json:"message"`
}

// Alert is a price alert registered with subscribe_notifications.
type Alert struct {
	ID        string          `json:"id,omitempty"`
	Symbol    string          `json:"symbol"`
	Condition string          `json:"condition"`
	Target    decimal.Decimal `json:"target"`
}

// PriceUpdate decodes Data of a price_update message.
func (m PriceMessage) PriceUpdate() (PriceUpdate, error) {
	var p PriceUpdate
	err := json.Unmarshal(m.Data, &p)
	return p, err
}

// Notification decodes Data of a notification message.
func (m PriceMessage) Notification() (Notification, error) {
	var n Notification
	err := json.Unmarshal(m.Data, &n)
	return n, err
}

// PriceStream is a connection to the /ws price relay.
type PriceStream struct {
	conn     *websocket.Conn
	clientID string
	writeMu  sync.Mutex
}

// DialPrices connects to the relay at baseURL (http or ws scheme) and
// waits for the connected greeting.
func DialPrices(ctx context.Context, baseURL string) (*PriceStream, error) {
	u := baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	u = strings.TrimSuffix(u, "/") + "/ws"

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s (status %d): %w", u, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", u, err)
	}

	s := &PriceStream{conn: conn}
	hello, err := s.Next(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if hello.Type != "connected" {
		conn.Close()
		return nil, fmt.Errorf("unexpected greeting %q", hello.Type)
	}
	s.clientID = hello.ClientID
	return s, nil
}

// ClientID is the identifier the relay assigned to this connection.
func (s *PriceStream) ClientID() string { return s.clientID }

func (s *PriceStream) send(msg any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return s.conn.WriteJSON(msg)
}

// Authenticate sends the relay token. The reply arrives through Next.
func (s *PriceStream) Authenticate(token string) error {
	return s.send(map[string]string{"type": "authenticate", "token": token})
}

// Subscribe asks for price updates for symbols, or for every relayed
// symbol when none are given.
func (s *PriceStream) Subscribe(symbols ...string) error {
	return s.send(map[string]any{"type": "subscribe_prices", "symbols": symbols})
}

// Unsubscribe stops updates for symbols, or for all when none are given.
func (s *PriceStream) Unsubscribe(symbols ...string) error {
	return s.send(map[string]any{"type": "unsubscribe_prices", "symbols": symbols})
}

// SubscribeNotifications registers price alerts.
func (s *PriceStream) SubscribeNotifications(alerts ...Alert) error {
	return s.send(map[string]any{"type": "subscribe_notifications", "alerts": alerts})
}

// Ping asks the relay for a pong.
func (s *PriceStream) Ping() error {
	return s.send(map[string]string{"type": "ping"})
}

// Next reads the next message. An error message from the relay is
// returned as a message, not as err.
func (s *PriceStream) Next(ctx context.Context) (PriceMessage, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.conn.SetReadDeadline(deadline); err != nil {
			return PriceMessage{}, err
		}
	} else if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return PriceMessage{}, err
	}

	var msg PriceMessage
	if err := s.conn.ReadJSON(&msg); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return PriceMessage{}, ErrStreamClosed
		}
		return PriceMessage{}, fmt.Errorf("failed to read message: %w", err)
	}
	return msg, nil
}

// Close closes the connection.
func (s *PriceStream) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	if cerr := s.conn.Close(); err == nil || errors.Is(err, websocket.ErrCloseSent) {
		return cerr
	}
	return err
}
