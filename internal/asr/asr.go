// Package asr turns fixed windows of mono PCM audio into text.
package asr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sjawhar/callscribe/internal/config"
)

// Transcriber converts one window of samples in [-1, 1) to text. An empty
// string means nothing intelligible was said.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, language string) (string, error)
}

// New builds the backend named by cfg.ASR.Provider. A backend without its
// API key degrades to the stub so the service still starts.
func New(cfg config.Config, logger *slog.Logger) (Transcriber, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rate := cfg.Ingest.SampleRate

	switch cfg.ASR.Provider {
	case "deepgram":
		if cfg.DeepgramAPIKey == "" {
			break
		}
		var settings DeepgramSettings
		if err := config.DecodeSettings(cfg.ASR.Settings, &settings); err != nil {
			return nil, fmt.Errorf("decode deepgram settings: %w", err)
		}
		return NewDeepgram(cfg.DeepgramAPIKey, rate, settings), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			break
		}
		var settings WhisperSettings
		if err := config.DecodeSettings(cfg.ASR.Settings, &settings); err != nil {
			return nil, fmt.Errorf("decode whisper settings: %w", err)
		}
		return NewWhisper(cfg.OpenAIAPIKey, rate, settings), nil
	case config.ProviderStub:
		return Stub{}, nil
	default:
		return nil, fmt.Errorf("unknown asr provider %q", cfg.ASR.Provider)
	}

	logger.Warn("asr provider has no api key, using stub", "provider", cfg.ASR.Provider)
	return Stub{}, nil
}
