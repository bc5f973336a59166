package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	natspkg "github.com/goldium-labs/goldium/service/nats"
)

// EventSource delivers stream events published after a consumer starts.
// *natspkg.Subscriber implements it.
type EventSource interface {
	Consume(ctx context.Context, subject string, fn natspkg.Handler) error
}

type streamEvent struct {
	subject string
	data    []byte
}

// handleStreamEvents streams ledger or alert events as Server-Sent Events.
// GET /api/v1/stream/ledger/{address}
// GET /api/v1/stream/ledger
// GET /api/v1/stream/alerts
func handleStreamEvents(source EventSource, subjectFor func(r *http.Request) (string, error), logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := subjectFor(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Streams outlive the server's write timeout.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flush(w)

		logger.DebugContext(r.Context(), "SSE client connected", "subject", subject, "remote_addr", r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		events := make(chan streamEvent, 16)
		done := make(chan error, 1)
		go func() {
			done <- source.Consume(ctx, subject, func(subject string, data []byte) {
				select {
				case events <- streamEvent{subject: subject, data: data}:
				case <-ctx.Done():
				}
			})
		}()

		fmt.Fprintf(w, "event: connected\ndata: {\"subject\":%q}\n\n", subject)
		flush(w)

		keepalive := time.NewTicker(10 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush(w)

			case ev := <-events:
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", natspkg.EventKind(ev.subject), ev.data)
				flush(w)

			case err := <-done:
				if err != nil {
					logger.ErrorContext(r.Context(), "event stream failed", "subject", subject, "error", err)
					fmt.Fprintf(w, "event: error\ndata: {\"error\":\"failed to subscribe\"}\n\n")
					flush(w)
				}
				return

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected", "subject", subject, "remote_addr", r.RemoteAddr)
				return
			}
		}
	})
}

func ledgerStreamSubject(r *http.Request) (string, error) {
	address := r.PathValue("address")
	if address == "" {
		return natspkg.LedgerSubjects, nil
	}
	if err := validateAddress(address); err != nil {
		return "", err
	}
	return natspkg.LedgerSubject(address), nil
}

func alertStreamSubject(*http.Request) (string, error) {
	return natspkg.AlertSubjects, nil
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
