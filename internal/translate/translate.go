// Package translate produces per-segment translations of a diarization with
// an LLM, keeping conversational context intact across speaker turns.
//
// Two calling modes exist. Per-segment mode builds a small context window
// for each segment and asks the model for just that segment's translation;
// segments run concurrently on a bounded pool because each window is taken
// from the frozen input diarization, never from other outputs. Whole-
// diarization mode sends batches of segments and validates the JSON the
// model returns, feeding validation failures back to the model for up to
// two retries.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/anuvox/anuvox/pkg/provider/llm"
	"github.com/anuvox/anuvox/pkg/types"
)

// ErrAllSegmentsFailed is returned when not a single segment translated.
// The returned diarization still mirrors the input with error markers.
var ErrAllSegmentsFailed = errors.New("translate: all segments failed")

// Options tunes the translator. Zero values fall back to the documented
// defaults.
type Options struct {
	// Temperature for all completion calls. Default 0.2.
	Temperature float64

	// ContextBefore is the number of preceding segments (any speaker) in a
	// window. Default 3.
	ContextBefore int

	// SameSpeakerContext is the number of prior same-speaker segments in a
	// window. Default 3.
	SameSpeakerContext int

	// ChunkThreshold is the segment count above which batch calls are
	// chunked. Default 30.
	ChunkThreshold int

	// ChunkSize caps segments per batch call. Default 10.
	ChunkSize int

	// MaxValidationRetries bounds feedback retries for malformed batch
	// output. Default 2.
	MaxValidationRetries int

	// Workers bounds the per-segment completion pool. Default 4.
	Workers int
}

func (o *Options) fill() {
	if o.Temperature == 0 {
		o.Temperature = 0.2
	}
	if o.ContextBefore == 0 {
		o.ContextBefore = 3
	}
	if o.SameSpeakerContext == 0 {
		o.SameSpeakerContext = 3
	}
	if o.ChunkThreshold == 0 {
		o.ChunkThreshold = 30
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = 10
	}
	if o.MaxValidationRetries == 0 {
		o.MaxValidationRetries = 2
	}
	if o.Workers == 0 {
		o.Workers = 4
	}
}

// Translator translates diarizations through an llm.Provider.
type Translator struct {
	provider llm.Provider
	opts     Options
}

// New creates a Translator.
func New(provider llm.Provider, opts Options) (*Translator, error) {
	if provider == nil {
		return nil, errors.New("translate: provider must not be nil")
	}
	opts.fill()
	return &Translator{provider: provider, opts: opts}, nil
}

// Translate returns a copy of d with translated_text filled per segment.
// Individual failures become error markers on the affected segment; the
// call only errors when every segment failed, and even then the returned
// diarization mirrors the input with markers so callers can persist it.
func (t *Translator) Translate(ctx context.Context, d *types.Diarization, sourceLang, targetLang types.Language) (*types.Diarization, error) {
	out := cloneDiarization(d)
	out.TargetLanguage = string(targetLang)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Workers)
	for i := range out.Segments {
		g.Go(func() error {
			text, err := t.translateSegment(gctx, d, i, sourceLang, targetLang)
			if err != nil {
				slog.Warn("segment translation failed",
					"segment", d.Segments[i].SegmentID, "error", err)
				out.Segments[i].TranslatedText = errorMarker(err)
				return nil
			}
			out.Segments[i].TranslatedText = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	succeeded := 0
	for _, seg := range out.Segments {
		if seg.HasTranslation() {
			succeeded++
		}
	}
	out.Transcript = out.TranslatedTranscript()

	if succeeded == 0 && len(out.Segments) > 0 {
		return out, ErrAllSegmentsFailed
	}
	slog.Info("translation complete",
		"segments", len(out.Segments),
		"succeeded", succeeded,
		"target", targetLang)
	return out, nil
}

// translateSegment builds the context window for segment i of the frozen
// input and asks the model for exactly its translation.
func (t *Translator) translateSegment(ctx context.Context, d *types.Diarization, i int, sourceLang, targetLang types.Language) (string, error) {
	seg := d.Segments[i]
	prompt := t.buildSegmentPrompt(d, i, targetLang)

	resp, err := t.provider.Complete(ctx, llm.Request{
		SystemPrompt: segmentSystemPrompt(sourceLang, targetLang),
		Messages: []llm.Message{
			{Role: "user", Content: prompt},
		},
		Temperature: t.opts.Temperature,
	})
	if err != nil {
		return "", err
	}

	text := cleanModelOutput(resp.Content)
	if text == "" {
		return "", fmt.Errorf("empty translation for segment %s", seg.SegmentID)
	}
	return text, nil
}

// buildSegmentPrompt renders the context window, the speaker id, and the
// current line.
func (t *Translator) buildSegmentPrompt(d *types.Diarization, i int, targetLang types.Language) string {
	seg := d.Segments[i]
	var b strings.Builder

	recent := recentContext(d.Segments, i, t.opts.ContextBefore)
	if len(recent) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, s := range recent {
			fmt.Fprintf(&b, "%s: %s\n", s.Speaker, s.Text)
		}
		b.WriteString("\n")
	}

	same := sameSpeakerContext(d.Segments, i, t.opts.SameSpeakerContext)
	if len(same) > 0 {
		fmt.Fprintf(&b, "Earlier lines by %s:\n", seg.Speaker)
		for _, s := range same {
			fmt.Fprintf(&b, "- %s\n", s.Text)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Translate this line spoken by %s into %s. Reply with the translation only, no commentary:\n%s",
		seg.Speaker, targetLang.DisplayName(), seg.Text)
	return b.String()
}

// recentContext returns up to n segments immediately before index i.
func recentContext(segments []types.Segment, i, n int) []types.Segment {
	start := i - n
	if start < 0 {
		start = 0
	}
	return segments[start:i]
}

// sameSpeakerContext returns up to n prior segments by the same speaker,
// excluding those already in the immediate window, oldest first.
func sameSpeakerContext(segments []types.Segment, i, n int) []types.Segment {
	speaker := segments[i].Speaker
	immediate := i - n
	if immediate < 0 {
		immediate = 0
	}
	var out []types.Segment
	for j := i - 1; j >= 0 && len(out) < n; j-- {
		if j >= immediate {
			continue
		}
		if segments[j].Speaker == speaker {
			out = append(out, segments[j])
		}
	}
	// Reverse into chronological order.
	for a, b := 0, len(out)-1; a < b; a, b = a+1, b-1 {
		out[a], out[b] = out[b], out[a]
	}
	return out
}

// segmentSystemPrompt is the strict instruction set for per-segment calls.
func segmentSystemPrompt(sourceLang, targetLang types.Language) string {
	src := "the source language"
	if sourceLang.IsValid() {
		src = sourceLang.DisplayName()
	}
	return fmt.Sprintf(
		"You are a professional dubbing translator. Translate dialogue from %s into %s. "+
			"Keep the register, tone, and approximate spoken length of the original line so the dub fits the timing. "+
			"Never add explanations. Output only the translated line.",
		src, targetLang.DisplayName())
}

// cleanModelOutput strips the quoting and fencing models like to add.
func cleanModelOutput(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.Trim(s, "\"'")
	return strings.TrimSpace(s)
}

// errorMarker renders a failed segment's translated_text. Downstream stages
// recognise the prefix and treat the value as empty for synthesis.
func errorMarker(err error) string {
	return fmt.Sprintf("%s: %v]", types.ErrorMarkerPrefix, err)
}

// cloneDiarization deep-copies d so translation never mutates the frozen
// input.
func cloneDiarization(d *types.Diarization) *types.Diarization {
	out := &types.Diarization{
		Transcript:     d.Transcript,
		LanguageCode:   d.LanguageCode,
		TargetLanguage: d.TargetLanguage,
		Segments:       make([]types.Segment, len(d.Segments)),
	}
	copy(out.Segments, d.Segments)
	return out
}
