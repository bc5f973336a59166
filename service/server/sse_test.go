package server

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldium-labs/goldium/service/ledger"
	natspkg "github.com/goldium-labs/goldium/service/nats"
)

// fakeSource replays a fixed set of messages, then blocks until ctx is done.
type fakeSource struct {
	subjects chan string
	messages []streamEvent
	err      error
}

func (f *fakeSource) Consume(ctx context.Context, subject string, fn natspkg.Handler) error {
	f.subjects <- subject
	if f.err != nil {
		return f.err
	}
	for _, m := range f.messages {
		fn(m.subject, m.data)
	}
	<-ctx.Done()
	return nil
}

func newStreamServer(t *testing.T, src EventSource) *httptest.Server {
	t.Helper()
	repo := ledger.NewRepository(ledger.NewMemoryStorage(), nil, nil, testLogger())
	s := New(":0", testConfig(), repo, NewRPCProxy(nil, 0, nil, nil, testLogger()), nil, nil, testLogger()).WithEvents(src)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func readEvents(t *testing.T, resp *http.Response, n int) []string {
	t.Helper()
	var events []string
	scanner := bufio.NewScanner(resp.Body)
	var current string
	for scanner.Scan() && len(events) < n {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			events = append(events, current+" "+strings.TrimPrefix(line, "data: "))
		}
	}
	return events
}

func TestStreamLedgerEvents(t *testing.T) {
	addr := newAddress()
	src := &fakeSource{
		subjects: make(chan string, 1),
		messages: []streamEvent{{subject: natspkg.LedgerSubject(addr), data: []byte(`{"action":"recorded"}`)}},
	}
	srv := newStreamServer(t, src)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/stream/ledger/"+addr, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, natspkg.LedgerSubject(addr), <-src.subjects)

	events := readEvents(t, resp, 2)
	require.Len(t, events, 2)
	assert.Equal(t, `connected {"subject":"ledger.`+addr+`"}`, events[0])
	assert.Equal(t, `ledger {"action":"recorded"}`, events[1])
}

func TestStreamAllAndAlerts(t *testing.T) {
	for path, want := range map[string]string{
		"/api/v1/stream/ledger": natspkg.LedgerSubjects,
		"/api/v1/stream/alerts": natspkg.AlertSubjects,
	} {
		src := &fakeSource{subjects: make(chan string, 1), err: errors.New("stream missing")}
		srv := newStreamServer(t, src)

		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		assert.Equal(t, want, <-src.subjects)

		events := readEvents(t, resp, 2)
		resp.Body.Close()
		require.Len(t, events, 2)
		assert.True(t, strings.HasPrefix(events[1], "error "), events[1])
	}
}

func TestStreamRejectsBadAddress(t *testing.T) {
	srv := newStreamServer(t, &fakeSource{subjects: make(chan string, 1)})
	resp, err := http.Get(srv.URL + "/api/v1/stream/ledger/not-base58!")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
