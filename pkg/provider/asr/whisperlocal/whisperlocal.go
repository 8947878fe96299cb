// Package whisperlocal provides a local ASR provider backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.
//
// whisper.cpp has no diarization, so every recognised span carries the same
// speaker label. The transcriber uses this provider as a last-resort fallback
// when the cloud ASR is unavailable; a single-speaker result is still a
// usable dub for most short-form content.
package whisperlocal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/anuvox/anuvox/pkg/media"
	"github.com/anuvox/anuvox/pkg/provider/asr"
)

// whisper.cpp only accepts 16 kHz mono input.
const whisperSampleRate = 16000

// fallbackSpeaker is the label applied to all spans since whisper.cpp cannot
// tell speakers apart.
const fallbackSpeaker = "SPEAKER_00"

// Provider implements asr.Provider using the whisper.cpp Go bindings. The
// model is loaded once at construction and shared across all Transcribe
// calls; each call creates its own whisper context.
type Provider struct {
	model    whisperlib.Model
	language string
}

// Compile-time assertion that Provider satisfies asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default recognition language (e.g., "hi").
// Defaults to "auto".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// New creates a Provider that loads the whisper.cpp model from the given
// file path. The caller must call Close when the provider is no longer
// needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisperlocal: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisperlocal: load model %q: %w", modelPath, err)
	}
	p := &Provider{model: model, language: "auto"}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs whisper.cpp inference over the request audio. Input PCM is
// resampled to 16 kHz before inference. The whisper segment timestamps become
// the span boundaries; all spans share one speaker label.
func (p *Provider) Transcribe(ctx context.Context, req asr.Request) (*asr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisperlocal: context already cancelled: %w", err)
	}
	if len(req.Audio) == 0 {
		return nil, errors.New("whisperlocal: empty audio")
	}
	sr := req.SampleRate
	if sr <= 0 {
		sr = media.RateSynthesis
	}

	clip := media.Clip{Data: req.Audio, SampleRate: sr}
	if sr != whisperSampleRate {
		clip = media.Resample(clip, whisperSampleRate)
	}
	samples := pcmToFloat32(clip.Data)

	// Each whisper context is single-use and NOT thread-safe, but the model
	// can be shared across goroutines.
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisperlocal: create context: %w", err)
	}

	lang := whisperLanguage(req.Language, p.language)
	if err := wctx.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("whisperlocal: set language %q: %w", lang, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisperlocal: process audio: %w", err)
	}

	result := &asr.Result{LanguageCode: req.Language}
	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisperlocal: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		result.Segments = append(result.Segments, asr.Segment{
			Speaker: fallbackSpeaker,
			Start:   segment.Start.Seconds(),
			End:     segment.End.Seconds(),
			Text:    text,
		})
	}
	result.Transcript = strings.Join(parts, " ")
	return result, nil
}

// whisperLanguage maps a BCP-47 hint like "hi-IN" down to the two-letter code
// whisper.cpp expects, falling back to the provider default.
func whisperLanguage(hint, fallback string) string {
	if hint == "" {
		return fallback
	}
	if i := strings.IndexByte(hint, '-'); i > 0 {
		return strings.ToLower(hint[:i])
	}
	return strings.ToLower(hint)
}

// pcmToFloat32 converts 16-bit little-endian signed mono PCM to normalised
// float32 samples in [-1, 1].
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}
