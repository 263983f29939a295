package asr

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"

	"github.com/sjawhar/callscribe/internal/config"
)

func TestDecodePCM16Hex(t *testing.T) {
	// 0x8000 = -32768, 0x7fff = 32767, 0x0000 = 0
	samples, err := DecodePCM16Hex("0080ff7f0000")
	if err != nil {
		t.Fatalf("DecodePCM16Hex failed: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	if samples[0] != -1 {
		t.Fatalf("expected -1, got %v", samples[0])
	}
	if samples[1] >= 1 || samples[1] < 0.999 {
		t.Fatalf("expected just under 1, got %v", samples[1])
	}
	if samples[2] != 0 {
		t.Fatalf("expected 0, got %v", samples[2])
	}

	if _, err := DecodePCM16Hex("00ff00"); !errors.Is(err, ErrOddPCM) {
		t.Fatalf("expected ErrOddPCM, got %v", err)
	}
	if _, err := DecodePCM16Hex("zz"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
}

func TestEncodeWAV(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, -1, 1}
	wav, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if len(wav) != 44+2*len(samples) {
		t.Fatalf("unexpected length %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:16]) != "WAVEfmt " || string(wav[36:40]) != "data" {
		t.Fatalf("unexpected header % x", wav[:44])
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Fatalf("expected sample rate 16000, got %d", rate)
	}

	back, err := DecodePCM16Hex(hex.EncodeToString(wav[44:]))
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	want := []float32{0, 0.5, -0.5, -1, 32767.0 / 32768}
	for i := range want {
		if back[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v", i, back[i], want[i])
		}
	}
}

func TestWhisperTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("expected language en, got %q", got)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data[:4]) != "RIFF" {
				t.Errorf("expected wav upload")
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "  Hello bank  "})
	}))
	defer server.Close()

	w := NewWhisper("test-key", 16000, WhisperSettings{BaseURL: server.URL + "/v1"})
	got, err := w.Transcribe(context.Background(), []float32{0.1, 0.2}, "en")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got != "Hello bank" {
		t.Fatalf("unexpected transcript %q", got)
	}
}

func TestDeepgramTranscribe(t *testing.T) {
	d := newDeepgram(16000, DeepgramSettings{})
	var gotOpts *interfaces.PreRecordedTranscriptionOptions
	d.fromStream = func(_ context.Context, src io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) (any, error) {
		gotOpts = opts
		data, _ := io.ReadAll(src)
		if string(data[:4]) != "RIFF" {
			t.Errorf("expected wav upload")
		}
		return map[string]any{
			"results": map[string]any{
				"channels": []any{map[string]any{
					"alternatives": []any{map[string]any{"transcript": " I need money "}},
				}},
			},
		}, nil
	}

	got, err := d.Transcribe(context.Background(), []float32{0.3}, "en")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got != "I need money" {
		t.Fatalf("unexpected transcript %q", got)
	}
	if gotOpts.Model != "nova-2" || gotOpts.Language != "en" || !gotOpts.Punctuate {
		t.Fatalf("unexpected options %+v", gotOpts)
	}
}

func TestDeepgramTranscribe_Errors(t *testing.T) {
	d := newDeepgram(16000, DeepgramSettings{})
	d.fromStream = func(context.Context, io.Reader, *interfaces.PreRecordedTranscriptionOptions) (any, error) {
		return nil, errors.New("401 unauthorized")
	}
	if _, err := d.Transcribe(context.Background(), []float32{0.3}, "en"); err == nil {
		t.Fatal("expected error")
	}

	d.fromStream = func(context.Context, io.Reader, *interfaces.PreRecordedTranscriptionOptions) (any, error) {
		return map[string]any{"results": map[string]any{"channels": []any{}}}, nil
	}
	got, err := d.Transcribe(context.Background(), []float32{0.3}, "en")
	if err != nil || got != "" {
		t.Fatalf("expected empty transcript, got %q %v", got, err)
	}
}

func TestTranscriptFromResponse_Diarized(t *testing.T) {
	raw := `{"results":{"channels":[{"alternatives":[{
		"transcript": "hello how can I help I need a loan",
		"words": [
			{"word":"hello","punctuated_word":"Hello,","speaker":0,"start":0,"end":0.4},
			{"word":"how","punctuated_word":"how","speaker":0,"start":0.4,"end":0.6},
			{"word":"can","punctuated_word":"can","speaker":0,"start":0.6,"end":0.8},
			{"word":"i","punctuated_word":"I","speaker":0,"start":0.8,"end":0.9},
			{"word":"help","punctuated_word":"help?","speaker":0,"start":0.9,"end":1.2},
			{"word":"i","punctuated_word":"I","speaker":1,"start":1.5,"end":1.6},
			{"word":"need","punctuated_word":"need","speaker":1,"start":1.6,"end":1.8},
			{"word":"a","punctuated_word":"a","speaker":1,"start":1.8,"end":1.9},
			{"word":"loan","punctuated_word":"loan.","speaker":1,"start":1.9,"end":2.3}
		]}]}]}}`
	var res any
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, err := transcriptFromResponse(res, true)
	if err != nil {
		t.Fatalf("transcriptFromResponse failed: %v", err)
	}
	want := "[Speaker 0] Hello, how can I help? [Speaker 1] I need a loan."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	plain, _ := transcriptFromResponse(res, false)
	if plain != "hello how can I help I need a loan" {
		t.Fatalf("unexpected plain transcript %q", plain)
	}
}

func TestGroupWordsBySpeaker_SingleSpeakerWithoutLabels(t *testing.T) {
	turns := groupWordsBySpeaker([]dgWord{{Word: "hi"}, {Word: "there", End: 1}})
	if len(turns) != 1 || turns[0].String() != "hi there" || turns[0].End != 1 {
		t.Fatalf("unexpected turns %+v", turns)
	}
}

func TestStub(t *testing.T) {
	silence := make([]float32, 1600)
	if got, _ := (Stub{}).Transcribe(context.Background(), silence, "en"); got != "" {
		t.Fatalf("expected silence to produce nothing, got %q", got)
	}

	speech := make([]float32, 1600)
	for i := range speech {
		speech[i] = 0.2
	}
	if got, _ := (Stub{}).Transcribe(context.Background(), speech, "en"); got == "" {
		t.Fatal("expected speech marker")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		want    string
		wantErr bool
	}{
		{name: "stub", cfg: config.Config{ASR: config.ASR{Provider: "stub"}}, want: "stub"},
		{name: "deepgram without key", cfg: config.Config{ASR: config.ASR{Provider: "deepgram"}}, want: "stub"},
		{name: "openai", cfg: config.Config{ASR: config.ASR{Provider: "openai"}, OpenAIAPIKey: "k"}, want: "whisper"},
		{
			name: "openai settings",
			cfg: config.Config{
				ASR:          config.ASR{Provider: "openai", Settings: map[string]any{"Model": "whisper-large", "base-url": "http://localhost:9000/v1"}},
				OpenAIAPIKey: "k",
			},
			want: "whisper",
		},
		{name: "unknown", cfg: config.Config{ASR: config.ASR{Provider: "vosk"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			switch v := tr.(type) {
			case Stub:
				if tt.want != "stub" {
					t.Fatalf("got stub, want %s", tt.want)
				}
			case *Whisper:
				if tt.want != "whisper" {
					t.Fatalf("got whisper, want %s", tt.want)
				}
				if tt.name == "openai settings" && (v.settings.Model != "whisper-large" || v.settings.BaseURL == "") {
					t.Fatalf("settings not decoded: %+v", v.settings)
				}
			default:
				t.Fatalf("unexpected transcriber %T", tr)
			}
		})
	}
}
