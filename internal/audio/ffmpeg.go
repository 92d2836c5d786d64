package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ffmpegDecode converts any container ffmpeg understands straight to the
// target format. The input goes through a temp file because some containers
// (mp4/m4a) need a seekable source.
func (n *Normalizer) ffmpegDecode(ctx context.Context, raw []byte) (PCM, error) {
	tmp, err := os.CreateTemp(n.tempDir, "upload-*.audio")
	if err != nil {
		return PCM{}, fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Warn("audio: failed to remove temp file", "path", path, "error", rmErr)
		}
	}()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return PCM{}, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return PCM{}, fmt.Errorf("close temp file: %w", err)
	}

	args := []string{
		"-y", "-loglevel", "error",
		"-i", path,
		"-ar", strconv.Itoa(TargetSampleRate),
		"-ac", strconv.Itoa(TargetChannels),
		"-t", strconv.Itoa(int(n.maxDuration/time.Second)+1),
		"-f", "s16le",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, n.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return PCM{}, fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return PCM{}, fmt.Errorf("ffmpeg: %w", err)
	}

	data := stdout.Bytes()
	if int64(len(data)) > int64(n.maxDuration.Seconds()*TargetSampleRate)*2 {
		return PCM{}, fmt.Errorf("ffmpeg output longer than %s: %w", n.maxDuration, ErrTooLong)
	}
	return PCM{
		Data:       data[:len(data)/2*2],
		SampleRate: TargetSampleRate,
		Channels:   TargetChannels,
	}, nil
}
