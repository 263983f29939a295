package asr

import (
	"context"
	"fmt"
	"math"
)

// silenceRMS is the level below which a window counts as silence.
const silenceRMS = 0.01

// Stub reports speech activity without recognizing words. It lets the
// pipeline run end to end without a speech provider.
type Stub struct{}

func (Stub) Transcribe(_ context.Context, samples []float32, _ string) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms < silenceRMS {
		return "", nil
	}
	return fmt.Sprintf("[speech %d samples]", len(samples)), nil
}
