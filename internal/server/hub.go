package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/callscribe/internal/session"
)

// Hub fans events out to dashboard subscribers. Slow subscribers miss
// events rather than block the publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[chan []byte]struct{}), logger: logger}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) TranscriptChunk(callID, text string) {
	h.broadcastEvent(TranscriptChunkEvent{
		Event:  newEvent("transcript_chunk", time.Now().UTC()),
		CallID: callID,
		Text:   text,
	})
}

func (h *Hub) SummaryUpdated(snap session.Snapshot) {
	h.broadcastEvent(SummaryUpdatedEvent{
		Event:           newEvent("summary_updated", time.Now().UTC()),
		CallID:          snap.CallID,
		RollingSummary:  snap.Summary,
		Promotions:      snap.Promotions,
		ChunksProcessed: snap.ProcessedIndex,
	})
}

func (h *Hub) CallArchived(callID string, customerID, interactionID int64) {
	h.broadcastEvent(CallArchivedEvent{
		Event:         newEvent("call_archived", time.Now().UTC()),
		CallID:        callID,
		CustomerID:    customerID,
		InteractionID: interactionID,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal failed", "error", err)
		return
	}
	h.Broadcast(payload)
}
