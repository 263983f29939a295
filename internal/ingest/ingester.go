// Package ingest receives streamed call audio, transcribes it in fixed
// windows and records each transcript chunk against its call.
package ingest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sjawhar/callscribe/internal/session"
)

// Ingester records transcript chunks and schedules their calls for
// processing.
type Ingester struct {
	sessions *session.Sessions
	queue    *session.Queue
	logger   *slog.Logger
}

func NewIngester(sessions *session.Sessions, queue *session.Queue, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{sessions: sessions, queue: queue, logger: logger}
}

// Push appends text to the call's chunk log, associates the customer (the
// first association wins) and marks the call pending. Blank text is
// ignored. It reports whether the call was newly queued.
func (i *Ingester) Push(ctx context.Context, callID, customerID, text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}
	if customerID == "" {
		customerID = callID
	}

	n, err := i.sessions.AppendChunk(ctx, callID, text)
	if err != nil {
		return false, err
	}
	if _, err := i.sessions.SetCustomer(ctx, callID, customerID); err != nil {
		return false, err
	}
	queued, err := i.queue.Enqueue(ctx, callID)
	if err != nil {
		return false, err
	}

	i.logger.Debug("chunk recorded", "call_id", callID, "chunks", n, "queued", queued)
	return queued, nil
}
