package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// DeepgramSettings are decoded from asr.settings.
type DeepgramSettings struct {
	Model       string `mapstructure:"model"`
	SmartFormat *bool  `mapstructure:"smart_format"`
	Punctuate   *bool  `mapstructure:"punctuate"`
	// Diarize labels each speaker turn in the returned text.
	Diarize bool `mapstructure:"diarize"`
}

type fromStreamFunc func(ctx context.Context, src io.Reader, options *interfaces.PreRecordedTranscriptionOptions) (any, error)

// Deepgram uploads each window as a WAV file to the prerecorded API.
type Deepgram struct {
	sampleRate int
	settings   DeepgramSettings
	fromStream fromStreamFunc
}

func NewDeepgram(apiKey string, sampleRate int, settings DeepgramSettings) *Deepgram {
	client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
	dg := api.New(client.NewREST(apiKey, &interfaces.ClientOptions{}))

	d := newDeepgram(sampleRate, settings)
	d.fromStream = func(ctx context.Context, src io.Reader, options *interfaces.PreRecordedTranscriptionOptions) (any, error) {
		return dg.FromStream(ctx, src, options)
	}
	return d
}

func newDeepgram(sampleRate int, settings DeepgramSettings) *Deepgram {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if settings.Model == "" {
		settings.Model = "nova-2"
	}
	return &Deepgram{sampleRate: sampleRate, settings: settings}
}

func (d *Deepgram) options(language string) *interfaces.PreRecordedTranscriptionOptions {
	opts := &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.settings.Model,
		Language:    language,
		Punctuate:   true,
		SmartFormat: true,
		Diarize:     d.settings.Diarize,
	}
	if d.settings.Punctuate != nil {
		opts.Punctuate = *d.settings.Punctuate
	}
	if d.settings.SmartFormat != nil {
		opts.SmartFormat = *d.settings.SmartFormat
	}
	return opts
}

func (d *Deepgram) Transcribe(ctx context.Context, samples []float32, language string) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	wav, err := EncodeWAV(samples, d.sampleRate)
	if err != nil {
		return "", err
	}

	res, err := d.fromStream(ctx, bytes.NewReader(wav), d.options(language))
	if err != nil {
		return "", fmt.Errorf("deepgram transcribe: %w", err)
	}
	return transcriptFromResponse(res, d.settings.Diarize)
}

type dgResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string   `json:"transcript"`
				Words      []dgWord `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

type dgWord struct {
	Word           string  `json:"word"`
	PunctuatedWord string  `json:"punctuated_word"`
	Speaker        *int    `json:"speaker"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
}

// transcriptFromResponse reads the first alternative of the first channel.
// The SDK response is re-read through its JSON form so only the fields used
// here need to be described.
func transcriptFromResponse(res any, diarize bool) (string, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encode deepgram response: %w", err)
	}
	var parsed dgResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode deepgram response: %w", err)
	}

	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	alt := parsed.Results.Channels[0].Alternatives[0]

	if diarize && len(alt.Words) > 0 {
		turns := groupWordsBySpeaker(alt.Words)
		if len(turns) > 1 {
			parts := make([]string, 0, len(turns))
			for _, t := range turns {
				parts = append(parts, t.String())
			}
			return strings.Join(parts, " "), nil
		}
	}
	return strings.TrimSpace(alt.Transcript), nil
}

type speakerTurn struct {
	Speaker int
	Text    string
	Start   float64
	End     float64
}

func (t speakerTurn) String() string {
	if t.Speaker < 0 {
		return strings.TrimSpace(t.Text)
	}
	return fmt.Sprintf("[Speaker %d] %s", t.Speaker, strings.TrimSpace(t.Text))
}

// groupWordsBySpeaker merges consecutive words from the same speaker.
func groupWordsBySpeaker(words []dgWord) []speakerTurn {
	var turns []speakerTurn
	for _, w := range words {
		speaker := -1
		if w.Speaker != nil {
			speaker = *w.Speaker
		}
		text := w.PunctuatedWord
		if text == "" {
			text = w.Word
		}

		if n := len(turns); n > 0 && turns[n-1].Speaker == speaker {
			turns[n-1].Text += " " + text
			turns[n-1].End = w.End
			continue
		}
		turns = append(turns, speakerTurn{Speaker: speaker, Text: text, Start: w.Start, End: w.End})
	}
	return turns
}
