// Command callscribe-mic streams the default microphone to a callscribe
// ingest endpoint and prints the transcript chunks it sends back.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/sjawhar/callscribe/internal/audio"
	"github.com/sjawhar/callscribe/internal/ingest"
	"github.com/sjawhar/callscribe/internal/logging"
)

type frameSource interface {
	Read() ([]byte, error)
}

type frameSink interface {
	WriteJSON(v any) error
}

type audioFrame struct {
	CallID     string `json:"call_id"`
	CustomerID string `json:"customer_id"`
	AudioHex   string `json:"audio_hex"`
}

func newFrame(callID, customerID string, pcm []byte) audioFrame {
	return audioFrame{CallID: callID, CustomerID: customerID, AudioHex: hex.EncodeToString(pcm)}
}

func main() {
	url := flag.String("url", "ws://localhost:8000/ws/transcribe", "ingest websocket url")
	callID := flag.String("call-id", "demo-call-001", "call id to stream under")
	customerID := flag.String("customer-id", "1", "customer id attached to the call")
	rate := flag.Int("rate", 16000, "capture sample rate")
	chunk := flag.Duration("chunk", 500*time.Millisecond, "audio sent per frame")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	logger := logging.New(os.Stderr, os.Getenv("CALLSCRIBE_LOG_LEVEL"), "text")

	if err := run(logger, *url, *callID, *customerID, *rate, *chunk); err != nil {
		logger.Error("mic client failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, url, callID, customerID string, rate int, chunk time.Duration) error {
	frames := int(float64(rate) * chunk.Seconds())
	if frames <= 0 {
		return fmt.Errorf("chunk %s is too short at %d Hz", chunk, rate)
	}

	if err := audio.Init(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	defer func() { _ = audio.Terminate() }()

	mic, err := audio.NewMic(rate, frames)
	if err != nil {
		return fmt.Errorf("open microphone at %d Hz: %w", rate, err)
	}
	defer func() { _ = mic.Close() }()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go printTranscripts(ctx, cancel, conn, logger)

	if err := mic.Start(); err != nil {
		return fmt.Errorf("start microphone: %w", err)
	}
	defer func() { _ = mic.Stop() }()

	logger.Info("streaming microphone", "url", url, "call_id", callID, "rate", rate)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sig:
			cancel()
		case <-ctx.Done():
		}
	}()

	err = streamWithRetry(ctx, mic, conn, callID, customerID, time.Sleep, logger)

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return err
}

func printTranscripts(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, logger *slog.Logger) {
	defer cancel()
	for {
		var msg ingest.TranscriptMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("server connection lost", "error", err)
			}
			return
		}
		if msg.TranscriptChunk != "" {
			fmt.Printf("[%s] %s\n", msg.CallID, msg.TranscriptChunk)
		}
	}
}

// streamWithRetry forwards frames until ctx ends or a read or send fails.
// Input overflows are transient and only cost the overflowed buffer.
func streamWithRetry(
	ctx context.Context,
	src frameSource,
	sink frameSink,
	callID, customerID string,
	wait func(time.Duration),
	logger *slog.Logger,
) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		pcm, err := src.Read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if strings.Contains(strings.ToLower(err.Error()), "overflow") {
				logger.Warn("mic input overflow, continuing")
				wait(250 * time.Millisecond)
				continue
			}
			return fmt.Errorf("read microphone: %w", err)
		}

		if err := sink.WriteJSON(newFrame(callID, customerID, pcm)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("send frame: %w", err)
		}
	}
}
