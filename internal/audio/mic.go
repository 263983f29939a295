// Package audio captures microphone input as PCM16 frames.
package audio

import (
	"encoding/binary"

	"github.com/gordonklaus/portaudio"
)

// Init and Terminate bracket all PortAudio use in a process.
func Init() error      { return portaudio.Initialize() }
func Terminate() error { return portaudio.Terminate() }

// Mic wraps a mono PortAudio capture stream.
type Mic struct {
	stream *portaudio.Stream
	buf    []int16
}

// NewMic opens the default input device at sampleRate, delivering
// framesPerBuffer samples per Read.
func NewMic(sampleRate, framesPerBuffer int) (*Mic, error) {
	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, err
	}
	return &Mic{stream: stream, buf: buf}, nil
}

func (m *Mic) Start() error { return m.stream.Start() }
func (m *Mic) Stop() error  { return m.stream.Stop() }
func (m *Mic) Close() error { return m.stream.Close() }

// Read blocks for the next buffer and returns it as little-endian PCM16.
func (m *Mic) Read() ([]byte, error) {
	if err := m.stream.Read(); err != nil {
		return nil, err
	}
	return EncodeFrame(m.buf), nil
}

func EncodeFrame(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}
