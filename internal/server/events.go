package server

import (
	"time"

	"github.com/sjawhar/callscribe/internal/session"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type TranscriptChunkEvent struct {
	Event
	CallID string `json:"call_id"`
	Text   string `json:"text"`
}

type SummaryUpdatedEvent struct {
	Event
	CallID          string              `json:"call_id"`
	RollingSummary  session.CallSummary `json:"rolling_summary"`
	Promotions      session.Promotions  `json:"promotions"`
	ChunksProcessed int64               `json:"chunks_processed"`
}

type CallArchivedEvent struct {
	Event
	CallID        string `json:"call_id"`
	CustomerID    int64  `json:"customer_id"`
	InteractionID int64  `json:"interaction_id"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
