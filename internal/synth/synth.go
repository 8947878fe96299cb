// Package synth turns translated segments into per-segment speech
// artifacts.
//
// Routing is language-driven: Hindi goes to the Sarvam Bulbul provider, any
// other target goes to Cartesia. Each session can override per-speaker
// voices through its speaker_voice_map; user-supplied voice names are
// fuzzy-resolved against the provider's catalogue so "anushka " or
// "Anushk" still lands on the right voice.
//
// Failures are contained per segment: a provider error yields a silence
// substitute of the segment's target duration and a failed status, never a
// stage abort.
package synth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/sync/errgroup"

	"github.com/anuvox/anuvox/internal/session"
	"github.com/anuvox/anuvox/pkg/media"
	"github.com/anuvox/anuvox/pkg/provider/tts"
	"github.com/anuvox/anuvox/pkg/types"
)

// Status values recorded per synthesised segment.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSilence = "silence"
)

// maxFuzzyDistance is the largest edit distance accepted when resolving a
// voice name against a catalogue.
const maxFuzzyDistance = 2

// SegmentResult records the outcome of one segment synthesis.
type SegmentResult struct {
	SegmentID string  `json:"segment_id"`
	Path      string  `json:"path"`
	Status    string  `json:"status"`
	Provider  string  `json:"provider,omitempty"`
	Voice     string  `json:"voice,omitempty"`
	Duration  float64 `json:"duration"`
	Error     string  `json:"error,omitempty"`
}

// Options tunes the synthesizer. Zero values fall back to defaults.
type Options struct {
	// MaxChunkChars caps text per provider call. Default 500.
	MaxChunkChars int

	// MinSilenceSeconds floors silence substitutes. Default 1.0.
	MinSilenceSeconds float64

	// Workers bounds concurrent provider calls. Default 4.
	Workers int
}

func (o *Options) fill() {
	if o.MaxChunkChars == 0 {
		o.MaxChunkChars = 500
	}
	if o.MinSilenceSeconds == 0 {
		o.MinSilenceSeconds = 1.0
	}
	if o.Workers == 0 {
		o.Workers = 4
	}
}

// Synthesizer routes segments to TTS providers and persists the audio.
type Synthesizer struct {
	store *session.Store
	hindi tts.Provider
	other tts.Provider
	opts  Options
}

// New creates a Synthesizer. hindi serves Hindi targets, other serves the
// rest; either may be nil when a deployment only dubs into one family, in
// which case routing to the missing provider fails per segment.
func New(store *session.Store, hindi, other tts.Provider, opts Options) (*Synthesizer, error) {
	if store == nil {
		return nil, errors.New("synth: store must not be nil")
	}
	if hindi == nil && other == nil {
		return nil, errors.New("synth: at least one provider is required")
	}
	opts.fill()
	return &Synthesizer{store: store, hindi: hindi, other: other, opts: opts}, nil
}

// route picks the provider for a target language.
func (s *Synthesizer) route(target types.Language) (tts.Provider, string, error) {
	if target == types.LangHindi {
		if s.hindi == nil {
			return nil, "", errors.New("synth: no Hindi provider configured")
		}
		return s.hindi, "sarvam", nil
	}
	if s.other == nil {
		return nil, "", errors.New("synth: no non-Hindi provider configured")
	}
	return s.other, "cartesia", nil
}

// SynthesizeAll synthesises every merged segment on a bounded pool and
// returns per-segment results in input order. The error return covers only
// infrastructure failures (context cancellation, unwritable session);
// provider failures surface as failed results with silence substitutes.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, sessionID string, segments []types.MergedSegment, target types.Language, voiceMap map[string]string) ([]SegmentResult, error) {
	results := make([]SegmentResult, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, seg := range segments {
		g.Go(func() error {
			res, err := s.synthesizeOne(gctx, sessionID, seg, target, voiceMap)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ok, failed := 0, 0
	for _, r := range results {
		switch r.Status {
		case StatusFailed:
			failed++
		case StatusSuccess:
			ok++
		}
	}
	slog.Info("synthesis complete",
		"session", sessionID, "segments", len(results),
		"succeeded", ok, "failed", failed)
	return results, nil
}

// synthesizeOne produces synthesis/segment_<id>.wav for one segment. Empty
// or error-marked text becomes silence with a silence status; provider
// errors become silence with a failed status.
func (s *Synthesizer) synthesizeOne(ctx context.Context, sessionID string, seg types.MergedSegment, target types.Language, voiceMap map[string]string) (SegmentResult, error) {
	outPath := s.store.Path(sessionID, "synthesis", "segment_"+seg.SegmentID+".wav")
	res := SegmentResult{SegmentID: seg.SegmentID, Path: outPath}

	text := seg.SynthesisText()
	if strings.TrimSpace(text) == "" {
		dur := s.silenceDuration(seg)
		if err := media.WriteWAVFile(outPath, media.Silence(dur, media.RateSynthesis)); err != nil {
			return res, fmt.Errorf("synth: write silence: %w", err)
		}
		res.Status = StatusSilence
		res.Duration = dur
		return res, nil
	}

	provider, providerName, err := s.route(target)
	if err != nil {
		return s.substituteSilence(res, seg, err)
	}
	voice := s.resolveVoice(ctx, provider, voiceMap[seg.Speaker])

	clip, err := s.speak(ctx, provider, text, voice, target, seg.Pace)
	if err != nil {
		slog.Warn("segment synthesis failed, substituting silence",
			"session", sessionID, "segment", seg.SegmentID,
			"provider", providerName, "error", err)
		return s.substituteSilence(res, seg, err)
	}

	if err := media.WriteWAVFile(outPath, clip); err != nil {
		return res, fmt.Errorf("synth: write %s: %w", outPath, err)
	}
	res.Status = StatusSuccess
	res.Provider = providerName
	res.Voice = voice
	res.Duration = clip.Duration()
	return res, nil
}

// substituteSilence writes the failure substitute and records the error.
func (s *Synthesizer) substituteSilence(res SegmentResult, seg types.MergedSegment, cause error) (SegmentResult, error) {
	dur := s.silenceDuration(seg)
	if err := media.WriteWAVFile(res.Path, media.Silence(dur, media.RateSynthesis)); err != nil {
		return res, fmt.Errorf("synth: write silence substitute: %w", err)
	}
	res.Status = StatusFailed
	res.Duration = dur
	res.Error = cause.Error()
	return res, nil
}

// silenceDuration floors the segment duration at the configured minimum.
func (s *Synthesizer) silenceDuration(seg types.MergedSegment) float64 {
	dur := seg.EndTime - seg.StartTime
	if dur < s.opts.MinSilenceSeconds {
		dur = s.opts.MinSilenceSeconds
	}
	return dur
}

// speak runs the chunked provider calls for one segment's text and
// concatenates the decoded audio.
func (s *Synthesizer) speak(ctx context.Context, provider tts.Provider, text, voice string, target types.Language, pace float64) (media.Clip, error) {
	var combined media.Clip
	for _, chunk := range chunkText(text, s.opts.MaxChunkChars) {
		result, err := provider.Synthesize(ctx, tts.Request{
			Text:       chunk,
			VoiceID:    voice,
			Language:   target.BCP47(),
			SampleRate: media.RateSynthesis,
			Pace:       pace,
		})
		if err != nil {
			return media.Clip{}, err
		}
		clip, err := decodeResult(result)
		if err != nil {
			return media.Clip{}, err
		}
		if combined.SampleRate == 0 {
			combined = clip
			continue
		}
		if clip.SampleRate != combined.SampleRate {
			clip = media.Resample(clip, combined.SampleRate)
		}
		combined = media.Concatenate(combined, clip)
	}
	if len(combined.Data) == 0 {
		return media.Clip{}, errors.New("synth: provider returned no audio")
	}
	return combined, nil
}

// decodeResult normalises a provider payload into a PCM clip.
func decodeResult(r *tts.Result) (media.Clip, error) {
	switch r.Encoding {
	case tts.EncodingPCM:
		return media.Clip{Data: r.Audio, SampleRate: r.SampleRate}, nil
	case tts.EncodingWAV:
		return media.DecodeWAV(bytes.NewReader(r.Audio))
	case tts.EncodingMP3:
		return media.DecodeMP3(bytes.NewReader(r.Audio))
	default:
		return media.Clip{}, fmt.Errorf("synth: unknown encoding %q", r.Encoding)
	}
}

// resolveVoice maps a possibly sloppy voice name onto a catalogue id. Exact
// id matches win; otherwise the closest catalogue entry by edit distance
// (over both ids and display names) is used when close enough. Unresolvable
// names fall through to the provider default.
func (s *Synthesizer) resolveVoice(ctx context.Context, provider tts.Provider, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	voices, err := provider.ListVoices(ctx)
	if err != nil || len(voices) == 0 {
		// Pass through unresolved; the provider will reject unknown ids.
		return name
	}

	lower := strings.ToLower(name)
	best, bestDist := "", maxFuzzyDistance+1
	for _, v := range voices {
		if v.ID == name {
			return name
		}
		for _, candidate := range []string{v.ID, v.Name} {
			if candidate == "" {
				continue
			}
			d := matchr.DamerauLevenshtein(lower, strings.ToLower(candidate))
			if d < bestDist {
				bestDist = d
				best = v.ID
			}
		}
	}
	if best != "" {
		if best != name {
			slog.Debug("fuzzy-resolved voice", "input", name, "voice", best)
		}
		return best
	}
	return ""
}

// chunkText splits text into pieces of at most max characters, preferring
// sentence boundaries and falling back to word boundaries for run-on text.
func chunkText(text string, max int) []string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	for _, sentence := range splitSentences(text) {
		if cur.Len() > 0 && cur.Len()+1+len(sentence) > max {
			chunks = append(chunks, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		if len(sentence) > max {
			// A single oversized sentence: split on words.
			for _, piece := range splitWords(sentence, max) {
				chunks = append(chunks, piece)
			}
			continue
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(sentence)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(cur.String()))
	}
	return chunks
}

// splitSentences cuts text at sentence-final punctuation, including the
// Devanagari danda used across Indic scripts.
func splitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '।' {
			if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
				s := strings.TrimSpace(cur.String())
				if s != "" {
					out = append(out, s)
				}
				cur.Reset()
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// splitWords splits an oversized sentence into ≤max pieces on spaces.
func splitWords(sentence string, max int) []string {
	var out []string
	var cur strings.Builder
	for _, word := range strings.Fields(sentence) {
		if cur.Len() > 0 && cur.Len()+1+len(word) > max {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
