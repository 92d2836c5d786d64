// Package mic records fixed-length answers from the default input device.
package mic

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/ashureev/ielts-coach/internal/audio"
)

// FramesPerBuffer is the portaudio read size, 64 ms at 16 kHz.
const FramesPerBuffer = 1024

// Recorder captures 16 kHz mono audio. Initialize portaudio once per process
// with New and release it with Close.
type Recorder struct {
	sampleRate int
}

// New initializes portaudio.
func New() (*Recorder, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("init portaudio: %w", err)
	}
	return &Recorder{sampleRate: audio.TargetSampleRate}, nil
}

// Close terminates portaudio.
func (r *Recorder) Close() error {
	return portaudio.Terminate()
}

// Record blocks for d, or until ctx is done, and returns what was captured.
func (r *Recorder) Record(ctx context.Context, d time.Duration) (audio.PCM, error) {
	buf := make([]int16, FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(audio.TargetChannels, 0, float64(r.sampleRate), len(buf), buf)
	if err != nil {
		return audio.PCM{}, fmt.Errorf("open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return audio.PCM{}, fmt.Errorf("start input stream: %w", err)
	}
	defer stream.Stop()

	want := int(d.Seconds() * float64(r.sampleRate))
	samples := make([]int16, 0, want)
	for len(samples) < want {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := stream.Read(); err != nil {
			return audio.PCM{}, fmt.Errorf("read input stream: %w", err)
		}
		samples = append(samples, buf...)
	}
	if len(samples) > want {
		samples = samples[:want]
	}
	return toPCM(samples, r.sampleRate), nil
}

// toPCM packs samples as little-endian s16 mono.
func toPCM(samples []int16, rate int) audio.PCM {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(s))
	}
	return audio.PCM{Data: data, SampleRate: rate, Channels: audio.TargetChannels}
}
