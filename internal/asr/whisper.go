package asr

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type WhisperSettings struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	Prompt  string `mapstructure:"prompt"`
}

// Whisper sends each window to an OpenAI-compatible transcription endpoint.
type Whisper struct {
	client     *openai.Client
	sampleRate int
	settings   WhisperSettings
}

func NewWhisper(apiKey string, sampleRate int, settings WhisperSettings) *Whisper {
	cfg := openai.DefaultConfig(apiKey)
	if settings.BaseURL != "" {
		cfg.BaseURL = settings.BaseURL
	}
	if settings.Model == "" {
		settings.Model = openai.Whisper1
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Whisper{
		client:     openai.NewClientWithConfig(cfg),
		sampleRate: sampleRate,
		settings:   settings,
	}
}

func (w *Whisper) Transcribe(ctx context.Context, samples []float32, language string) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	wav, err := EncodeWAV(samples, w.sampleRate)
	if err != nil {
		return "", err
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.settings.Model,
		FilePath: "window.wav",
		Reader:   bytes.NewReader(wav),
		Prompt:   w.settings.Prompt,
		Language: language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
