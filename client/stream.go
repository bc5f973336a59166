package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Event is one server-sent event. Data is the raw JSON payload.
type Event struct {
	Type string
	Data json.RawMessage
}

// ErrStreamClosed is returned by a handler to stop a stream without error.
var ErrStreamClosed = errors.New("stream closed")

// StreamLedger follows ledger changes for address, or for every wallet
// when address is empty. It blocks until ctx is done, the server closes
// the stream, or fn returns an error.
func (c *Client) StreamLedger(ctx context.Context, address string, fn func(Event) error) error {
	u := c.baseURL + "/api/v1/stream/ledger"
	if address != "" {
		u += "/" + url.PathEscape(address)
	}
	return c.stream(ctx, u, fn)
}

// StreamAlerts follows price alert notifications.
func (c *Client) StreamAlerts(ctx context.Context, fn func(Event) error) error {
	return c.stream(ctx, c.baseURL+"/api/v1/stream/alerts", fn)
}

func (c *Client) stream(ctx context.Context, u string, fn func(Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The default client has a timeout that would cut the stream short.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	var current Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if current.Type != "" && len(current.Data) > 0 {
				if err := fn(current); err != nil {
					if errors.Is(err, ErrStreamClosed) {
						return nil
					}
					return err
				}
			}
			current = Event{}
		case strings.HasPrefix(line, "event:"):
			current.Type = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			current.Data = json.RawMessage(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}
