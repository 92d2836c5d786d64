package audio

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

func isMP3(b []byte) bool {
	if len(b) >= 3 && string(b[0:3]) == "ID3" {
		return true
	}
	// MPEG audio frame sync: 11 set bits, layer III.
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0 && b[1]&0x06 == 0x02
}

// decodeMP3 decodes b with go-mp3, which always yields 16-bit stereo.
// Output beyond maxDur of audio fails with ErrTooLong.
func decodeMP3(b []byte, maxDur time.Duration) (PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(b))
	if err != nil {
		return PCM{}, fmt.Errorf("open mp3 stream: %w", err)
	}
	limit := int64(maxDur.Seconds()*float64(dec.SampleRate())) * 4
	data, err := io.ReadAll(io.LimitReader(dec, limit+1))
	if err != nil {
		return PCM{}, fmt.Errorf("decode mp3 stream: %w", err)
	}
	if int64(len(data)) > limit {
		return PCM{}, fmt.Errorf("mp3 longer than %s: %w", maxDur, ErrTooLong)
	}
	return PCM{
		Data:       data[:len(data)/4*4],
		SampleRate: dec.SampleRate(),
		Channels:   2,
	}, nil
}
