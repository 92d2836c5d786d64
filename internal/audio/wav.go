package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	formatPCM        = 1
	formatIEEEFloat  = 3
	formatExtensible = 0xFFFE
)

type wavInfo struct {
	format     int
	channels   int
	sampleRate int
	bits       int
	data       []byte
}

func isWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

// parseWAV walks the RIFF chunks of b. The fmt chunk size varies between
// writers, so the data offset is never assumed to be 44.
func parseWAV(b []byte) (wavInfo, error) {
	if !isWAV(b) {
		return wavInfo{}, errors.New("missing RIFF/WAVE header")
	}

	var info wavInfo
	foundFmt := false
	offset := 12
	for offset+8 <= len(b) {
		id := string(b[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(b[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(b) {
				return wavInfo{}, errors.New("truncated fmt chunk")
			}
			f := b[body:]
			info.format = int(binary.LittleEndian.Uint16(f[0:2]))
			info.channels = int(binary.LittleEndian.Uint16(f[2:4]))
			info.sampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			info.bits = int(binary.LittleEndian.Uint16(f[14:16]))
			if info.format == formatExtensible && size >= 40 && body+26 <= len(b) {
				info.format = int(binary.LittleEndian.Uint16(f[24:26]))
			}
			foundFmt = true
		case "data":
			if !foundFmt {
				return wavInfo{}, errors.New("data chunk before fmt chunk")
			}
			end := body + size
			// Streaming writers leave the size at 0 or 0xFFFFFFFF.
			if size == 0 || end > len(b) || end < body {
				end = len(b)
			}
			info.data = b[body:end]
			return info, nil
		}

		offset = body + size
		if size%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("missing data chunk")
}

// decodeWAV converts any PCM or float WAV payload into s16le PCM.
func decodeWAV(b []byte) (PCM, error) {
	info, err := parseWAV(b)
	if err != nil {
		return PCM{}, err
	}
	if info.channels <= 0 || info.sampleRate <= 0 {
		return PCM{}, fmt.Errorf("invalid fmt: %d channels at %d Hz", info.channels, info.sampleRate)
	}

	var data []byte
	switch {
	case info.format == formatPCM && info.bits == 16:
		data = info.data[:len(info.data)/2*2]
	case info.format == formatPCM && info.bits == 8:
		data = make([]byte, len(info.data)*2)
		for i, s := range info.data {
			binary.LittleEndian.PutUint16(data[i*2:], uint16((int16(s)-128)<<8))
		}
	case info.format == formatPCM && info.bits == 24:
		n := len(info.data) / 3
		data = make([]byte, n*2)
		for i := range n {
			// Keep the two most significant bytes.
			data[i*2] = info.data[i*3+1]
			data[i*2+1] = info.data[i*3+2]
		}
	case info.format == formatPCM && info.bits == 32:
		n := len(info.data) / 4
		data = make([]byte, n*2)
		for i := range n {
			v := int32(binary.LittleEndian.Uint32(info.data[i*4:]))
			binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(v>>16)))
		}
	case info.format == formatIEEEFloat && info.bits == 32:
		n := len(info.data) / 4
		data = make([]byte, n*2)
		for i := range n {
			f := math.Float32frombits(binary.LittleEndian.Uint32(info.data[i*4:]))
			binary.LittleEndian.PutUint16(data[i*2:], uint16(clamp16(int32(f*32767))))
		}
	default:
		return PCM{}, fmt.Errorf("unsupported WAV encoding: format %d, %d bits", info.format, info.bits)
	}

	frame := 2 * info.channels
	return PCM{
		Data:       data[:len(data)/frame*frame],
		SampleRate: info.sampleRate,
		Channels:   info.channels,
	}, nil
}
