// Package audio normalizes uploaded or recorded speech into the single format
// the transcription collaborators accept: 16 kHz, mono, signed 16-bit
// little-endian PCM.
package audio

import (
	"encoding/binary"
	"time"
)

const (
	// TargetSampleRate is the output sample rate of Normalize.
	TargetSampleRate = 16000
	// TargetChannels is the output channel count of Normalize.
	TargetChannels = 1

	bitsPerSample = 16
)

// PCM is signed 16-bit little-endian interleaved audio.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Samples returns the number of sample frames in p.
func (p PCM) Samples() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Data) / (2 * p.Channels)
}

// Duration returns the playback length of p.
func (p PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(p.Samples()) * time.Second / time.Duration(p.SampleRate)
}

// Silent reports whether every sample is zero.
func (p PCM) Silent() bool {
	for _, b := range p.Data {
		if b != 0 {
			return false
		}
	}
	return true
}

// EncodeWAV wraps p in a canonical 44-byte-header RIFF/WAVE container.
func EncodeWAV(p PCM) []byte {
	byteRate := p.SampleRate * p.Channels * bitsPerSample / 8
	blockAlign := p.Channels * bitsPerSample / 8
	dataSize := len(p.Data)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(p.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(p.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], p.Data)

	return buf
}

// Downmix averages every frame of an n-channel buffer into one mono sample.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / (2 * channels)
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[idx : idx+2])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clamp16(sum/int32(channels))))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input is returned unchanged when the rates match.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(binary.LittleEndian.Uint16(pcm[srcIdx*2:]))
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(srcIdx+1)*2:]))
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func clamp16(v int32) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}
