package audio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxDuration is the longest recording a Normalizer decodes by default.
const MaxDuration = 10 * time.Minute

// Normalizer decodes arbitrary speech recordings into 16 kHz mono s16le PCM.
// It is stateless and safe for concurrent use.
type Normalizer struct {
	ffmpegPath  string
	tempDir     string
	maxDuration time.Duration
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithFFmpeg sets the ffmpeg binary used for containers without a native
// decoder. An empty path disables the fallback.
func WithFFmpeg(path string) Option {
	return func(n *Normalizer) { n.ffmpegPath = path }
}

// WithTempDir sets the directory for ffmpeg input files. The default is
// os.TempDir.
func WithTempDir(dir string) Option {
	return func(n *Normalizer) { n.tempDir = dir }
}

// WithMaxDuration caps how much audio one recording may decode to.
func WithMaxDuration(d time.Duration) Option {
	return func(n *Normalizer) {
		if d > 0 {
			n.maxDuration = d
		}
	}
}

// NewNormalizer returns a Normalizer with the ffmpeg fallback enabled.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{ffmpegPath: "ffmpeg", maxDuration: MaxDuration}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Detect names the container of raw: "wav", "mp3" or "unknown".
func Detect(raw []byte) string {
	switch {
	case isWAV(raw):
		return "wav"
	case isMP3(raw):
		return "mp3"
	default:
		return "unknown"
	}
}

// Normalize decodes raw and converts it to TargetSampleRate mono. Any decode
// failure is reported as an *UnsupportedFormatError, except recordings past
// the duration cap, which fail with ErrTooLong.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte) (PCM, error) {
	if len(raw) == 0 {
		return PCM{}, unsupported("empty", errors.New("no audio data"))
	}
	if err := ctx.Err(); err != nil {
		return PCM{}, err
	}

	format := Detect(raw)
	var (
		pcm PCM
		err error
	)
	switch format {
	case "wav":
		pcm, err = decodeWAV(raw)
	case "mp3":
		pcm, err = decodeMP3(raw, n.maxDuration)
	default:
		if n.ffmpegPath == "" {
			return PCM{}, unsupported(format, errors.New("no decoder available"))
		}
		pcm, err = n.ffmpegDecode(ctx, raw)
		if err != nil && ctx.Err() != nil {
			return PCM{}, ctx.Err()
		}
	}
	if errors.Is(err, ErrTooLong) {
		return PCM{}, err
	}
	if err != nil {
		return PCM{}, unsupported(format, err)
	}
	if pcm.Duration() > n.maxDuration {
		return PCM{}, fmt.Errorf("%s recording of %s: %w", format, pcm.Duration(), ErrTooLong)
	}

	out := Convert(pcm)
	if len(out.Data) == 0 {
		return PCM{}, unsupported(format, errors.New("no audio samples"))
	}
	return out, nil
}

// Convert downmixes and resamples decoded PCM to the target format.
func Convert(p PCM) PCM {
	data := p.Data
	if p.Channels > 1 {
		data = Downmix(data, p.Channels)
	}
	data = ResampleMono16(data, p.SampleRate, TargetSampleRate)
	return PCM{Data: data, SampleRate: TargetSampleRate, Channels: TargetChannels}
}

// String implements fmt.Stringer.
func (p PCM) String() string {
	return fmt.Sprintf("%dHz/%dch %s", p.SampleRate, p.Channels, p.Duration())
}
