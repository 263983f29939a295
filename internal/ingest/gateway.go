package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sjawhar/callscribe/internal/asr"
)

// Conn is the part of a websocket connection the gateway uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
}

// Broadcaster fans transcript chunks out to event subscribers.
type Broadcaster interface {
	TranscriptChunk(callID, text string)
}

type Config struct {
	WindowSamples int
	Language      string
	// IdleFlush transcribes a partial window after this much silence.
	IdleFlush time.Duration
}

// Message is one client frame. Audio is hex-encoded little-endian PCM16
// mono; "audio" is accepted as an alias of "audio_hex".
type Message struct {
	CallID     string     `json:"call_id"`
	CustomerID CustomerID `json:"customer_id"`
	AudioHex   string     `json:"audio_hex"`
	Audio      string     `json:"audio"`
}

// CustomerID accepts a JSON string or number.
type CustomerID string

func (c *CustomerID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = CustomerID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("customer_id must be a string or number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*c = CustomerID(strconv.FormatInt(i, 10))
		return nil
	}
	*c = CustomerID(n.String())
	return nil
}

// TranscriptMessage is sent back to the client for every recorded chunk.
type TranscriptMessage struct {
	CallID          string `json:"call_id"`
	TranscriptChunk string `json:"transcript_chunk"`
}

type Gateway struct {
	ingester    *Ingester
	transcriber asr.Transcriber
	cfg         Config
	broadcaster Broadcaster
	logger      *slog.Logger
}

type GatewayOption func(*Gateway)

func WithBroadcaster(b Broadcaster) GatewayOption {
	return func(g *Gateway) {
		g.broadcaster = b
	}
}

func NewGateway(ingester *Ingester, transcriber asr.Transcriber, cfg Config, logger *slog.Logger, opts ...GatewayOption) *Gateway {
	if cfg.WindowSamples <= 0 {
		cfg.WindowSamples = 48000
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		ingester:    ingester,
		transcriber: transcriber,
		cfg:         cfg,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type window struct {
	callID     string
	customerID string
	samples    []float32
}

// stream is the state of one ingest connection.
type stream struct {
	g      *Gateway
	conn   Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu         sync.Mutex
	callID     string
	customerID string
	buf        []float32
	closed     bool
	windows    chan window
}

// Serve runs the read loop for one connection until the client goes away.
// Full windows are transcribed off the read loop, one at a time and in
// arrival order. On return the partial window has been flushed and every
// window transcribed.
func (g *Gateway) Serve(ctx context.Context, conn Conn) error {
	s := &stream{
		g:       g,
		conn:    conn,
		logger:  g.logger,
		buf:     make([]float32, 0, g.cfg.WindowSamples),
		windows: make(chan window, 8),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.transcribeLoop(context.WithoutCancel(ctx))
	}()

	idle := newIdleTimer(g.cfg.IdleFlush, s.flush)
	err := s.readLoop(idle)

	idle.Stop()
	s.finish()
	<-done

	s.mu.Lock()
	callID := s.callID
	s.mu.Unlock()
	g.logger.Info("ingest connection closed", "call_id", callID)

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return nil
	}
	return err
}

func (s *stream) readLoop(idle *idleTimer) error {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil || msg.CallID == "" {
			s.reply(map[string]string{"error": "invalid message"})
			continue
		}
		audio := msg.AudioHex
		if audio == "" {
			audio = msg.Audio
		}
		samples, err := asr.DecodePCM16Hex(audio)
		if err != nil {
			s.reply(map[string]string{"call_id": msg.CallID, "error": "invalid audio"})
			continue
		}

		if !s.accept(msg, samples) {
			s.reply(map[string]string{"call_id": msg.CallID, "error": "connection is bound to another call"})
			continue
		}
		idle.Touch()
	}
}

// accept buffers samples and hands off every window that fills. A
// connection carries a single call: frames for another call are refused.
func (s *stream) accept(msg Message, samples []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.callID == "" {
		s.callID = msg.CallID
		s.customerID = string(msg.CustomerID)
		if s.customerID == "" {
			s.customerID = msg.CallID
		}
		s.logger.Info("ingest connection bound", "call_id", s.callID, "customer_id", s.customerID)
	} else if msg.CallID != s.callID {
		return false
	}

	size := s.g.cfg.WindowSamples
	for len(samples) > 0 {
		n := min(size-len(s.buf), len(samples))
		s.buf = append(s.buf, samples[:n]...)
		samples = samples[n:]
		if len(s.buf) == size {
			s.emitLocked()
		}
	}
	return true
}

// flush hands off the partial window, if any.
func (s *stream) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed && len(s.buf) > 0 {
		s.emitLocked()
	}
}

func (s *stream) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) > 0 {
		s.emitLocked()
	}
	s.closed = true
	close(s.windows)
}

func (s *stream) emitLocked() {
	w := window{callID: s.callID, customerID: s.customerID, samples: s.buf}
	s.buf = make([]float32, 0, s.g.cfg.WindowSamples)
	s.windows <- w
}

func (s *stream) transcribeLoop(ctx context.Context) {
	for w := range s.windows {
		text, err := s.g.transcriber.Transcribe(ctx, w.samples, s.g.cfg.Language)
		if err != nil {
			s.logger.Warn("transcription failed, window dropped", "call_id", w.callID, "samples", len(w.samples), "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if _, err := s.g.ingester.Push(ctx, w.callID, w.customerID, text); err != nil {
			s.logger.Error("record chunk failed", "call_id", w.callID, "error", err)
			continue
		}

		s.reply(TranscriptMessage{CallID: w.callID, TranscriptChunk: text})
		if s.g.broadcaster != nil {
			s.g.broadcaster.TranscriptChunk(w.callID, text)
		}
	}
}

func (s *stream) reply(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode reply failed", "error", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.logger.Debug("write reply failed", "error", err)
	}
}
