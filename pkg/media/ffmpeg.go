package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Stretcher is the subset of toolchain operations the time aligner depends
// on. It is an interface so tests can align against a fake instead of a real
// ffmpeg binary.
type Stretcher interface {
	// TimeStretch rewrites the audio at inPath to outPath with the given
	// tempo factor applied (>1 speeds up, <1 slows down).
	TimeStretch(ctx context.Context, inPath, outPath string, factor float64) error

	// ProbeDuration returns the duration in seconds of the media at path.
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Toolchain shells out to ffmpeg/ffprobe for the operations that need a real
// codec: tempo filtering, duration probing and container transcoding.
// It is safe for concurrent use; each call runs an independent subprocess.
type Toolchain struct {
	ffmpeg  string
	ffprobe string
}

// Compile-time assertion that Toolchain satisfies the Stretcher interface.
var _ Stretcher = (*Toolchain)(nil)

// ToolchainOption is a functional option for configuring a Toolchain.
type ToolchainOption func(*Toolchain)

// WithFFmpegPath overrides the ffmpeg binary path (default "ffmpeg").
func WithFFmpegPath(path string) ToolchainOption {
	return func(t *Toolchain) { t.ffmpeg = path }
}

// WithFFprobePath overrides the ffprobe binary path (default "ffprobe").
func WithFFprobePath(path string) ToolchainOption {
	return func(t *Toolchain) { t.ffprobe = path }
}

// NewToolchain constructs a Toolchain using the ffmpeg/ffprobe binaries on
// PATH unless overridden by options.
func NewToolchain(opts ...ToolchainOption) *Toolchain {
	t := &Toolchain{ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
	for _, o := range opts {
		o(t)
	}
	return t
}

// run executes the command and returns stderr in the error on failure.
func run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%s: %s", name, msg)
	}
	return stdout.Bytes(), nil
}

// ProbeDuration returns the duration in seconds of the media file at path.
// It asks ffprobe first and falls back to WAV header arithmetic so tests and
// codec-less hosts can still probe WAV artifacts.
func (t *Toolchain) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := run(ctx, t.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err == nil {
		if d, perr := strconv.ParseFloat(strings.TrimSpace(string(out)), 64); perr == nil {
			return d, nil
		}
	}
	if d, werr := WAVDuration(path); werr == nil {
		return d, nil
	}
	return 0, mediaErr("probe duration", err)
}

// TimeStretch applies a tempo factor to the audio at inPath and writes the
// result to outPath. The factor is expressed ffmpeg-style: the chained
// atempo filters multiply playback speed, so a factor of 2 halves duration.
// Factors below the slow-down floor are clamped; see [ClampSpeedFactor].
func (t *Toolchain) TimeStretch(ctx context.Context, inPath, outPath string, factor float64) error {
	factor = ClampSpeedFactor(factor)
	chain, err := AtempoChain(factor)
	if err != nil {
		return err
	}
	filters := make([]string, len(chain))
	for i, f := range chain {
		filters[i] = fmt.Sprintf("atempo=%.6f", f)
	}
	_, err = run(ctx, t.ffmpeg,
		"-y",
		"-i", inPath,
		"-filter:a", strings.Join(filters, ","),
		"-vn",
		outPath,
	)
	if err != nil {
		return mediaErr("time stretch", err)
	}
	return nil
}

// Transcode converts the audio at inPath into a mono WAV at outPath with the
// given sample rate. Used to normalise provider MP3 output and extracted
// video audio into the pipeline's canonical format.
func (t *Toolchain) Transcode(ctx context.Context, inPath, outPath string, sampleRate int) error {
	_, err := run(ctx, t.ffmpeg,
		"-y",
		"-i", inPath,
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-vn",
		outPath,
	)
	if err != nil {
		return mediaErr("transcode", err)
	}
	return nil
}
