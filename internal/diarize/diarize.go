// Package diarize produces the diarized transcription of session audio.
//
// The transcriber slices the recording into speech regions with a VAD,
// combines neighbouring regions under a duration ceiling, and sends each
// combined region to the ASR fallback chain. Region results are joined back
// in chronological order into a single Diarization whose segment timings are
// absolute offsets into the original recording.
package diarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/anuvox/anuvox/internal/resilience"
	"github.com/anuvox/anuvox/pkg/media"
	"github.com/anuvox/anuvox/pkg/provider/asr"
	"github.com/anuvox/anuvox/pkg/provider/vad"
	"github.com/anuvox/anuvox/pkg/types"
)

// ErrNoSpeech is returned when the recogniser finds no speech in non-empty
// audio. The orchestrator treats this as fatal for the session.
var ErrNoSpeech = errors.New("diarize: no speech detected")

// defaultLanguage is assumed when the ASR reports no language.
const defaultLanguage = "hi-IN"

// neutralGender is the per-speaker default until an editor overrides it.
const neutralGender = "neutral"

// Params bound the VAD region slicing.
type Params struct {
	// MinSegmentDuration is the shortest region sent to ASR, in seconds.
	MinSegmentDuration float64

	// CombineDuration is the ceiling for combined regions, in seconds.
	CombineDuration float64

	// CombineGap is the largest silence bridged when combining, in seconds.
	CombineGap float64

	// Workers bounds concurrent ASR calls. Values below 1 behave as 1.
	Workers int
}

// DefaultParams returns the production tuning.
func DefaultParams() Params {
	return Params{
		MinSegmentDuration: 1.0,
		CombineDuration:    8.0,
		CombineGap:         1.0,
		Workers:            4,
	}
}

// Transcriber turns audio files into diarizations.
type Transcriber struct {
	detector vad.Detector
	chain    *resilience.Chain[asr.Provider]
	params   Params
}

// New creates a Transcriber. The chain must contain at least one provider.
func New(detector vad.Detector, chain *resilience.Chain[asr.Provider], params Params) (*Transcriber, error) {
	if detector == nil {
		return nil, errors.New("diarize: detector must not be nil")
	}
	if chain == nil || chain.Len() == 0 {
		return nil, errors.New("diarize: ASR chain must not be empty")
	}
	if params.Workers < 1 {
		params.Workers = 1
	}
	return &Transcriber{detector: detector, chain: chain, params: params}, nil
}

// Transcribe runs the full VAD → ASR pipeline over the audio at path.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (*types.Diarization, error) {
	clip, err := media.ReadAudioFile(path)
	if err != nil {
		return nil, fmt.Errorf("diarize: read audio: %w", err)
	}
	if len(clip.Data) == 0 {
		return nil, ErrNoSpeech
	}

	regions, err := t.detector.DetectSpeech(ctx, clip)
	if err != nil {
		return nil, fmt.Errorf("diarize: vad: %w", err)
	}
	if len(regions) == 0 {
		// Quiet recordings can defeat an energy gate; give the ASR one shot
		// at the whole clip before declaring silence.
		regions = []vad.Region{{Start: 0, End: clip.Duration()}}
	}
	combined := combineRegions(regions, t.params)

	results := make([]*asr.Result, len(combined))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.params.Workers)
	for idx, region := range combined {
		g.Go(func() error {
			res, err := t.transcribeRegion(gctx, clip, region)
			if err != nil {
				return err
			}
			results[idx] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d := assemble(combined, results)
	if len(d.Segments) == 0 {
		return nil, ErrNoSpeech
	}
	slog.Info("transcription complete",
		"segments", len(d.Segments),
		"speakers", len(d.Speakers()),
		"language", d.LanguageCode)
	return d, nil
}

// transcribeRegion slices the region out of the clip and runs it through the
// ASR chain.
func (t *Transcriber) transcribeRegion(ctx context.Context, clip media.Clip, region vad.Region) (*asr.Result, error) {
	slice := cut(clip, region)
	req := asr.Request{
		Audio:      slice.Data,
		SampleRate: slice.SampleRate,
	}
	return resilience.TryResult(t.chain, func(name string, p asr.Provider) (*asr.Result, error) {
		res, err := p.Transcribe(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return res, nil
	})
}

// combineRegions merges neighbouring regions separated by at most
// CombineGap while the combined span stays under CombineDuration, then
// drops leftovers shorter than MinSegmentDuration.
func combineRegions(regions []vad.Region, p Params) []vad.Region {
	if len(regions) == 0 {
		return nil
	}
	var out []vad.Region
	cur := regions[0]
	for _, r := range regions[1:] {
		gap := r.Start - cur.End
		if gap <= p.CombineGap && (r.End-cur.Start) <= p.CombineDuration {
			cur.End = r.End
			continue
		}
		out = append(out, cur)
		cur = r
	}
	out = append(out, cur)

	kept := out[:0]
	for _, r := range out {
		if r.Duration() >= p.MinSegmentDuration {
			kept = append(kept, r)
		}
	}
	return kept
}

// cut extracts the region's samples from the clip.
func cut(clip media.Clip, region vad.Region) media.Clip {
	start := int(region.Start*float64(clip.SampleRate)) * 2
	end := int(region.End*float64(clip.SampleRate)) * 2
	if start < 0 {
		start = 0
	}
	if end > len(clip.Data) {
		end = len(clip.Data)
	}
	if start >= end {
		return media.Clip{SampleRate: clip.SampleRate}
	}
	// Sample-align the bounds.
	start -= start % 2
	end -= end % 2
	return media.Clip{Data: clip.Data[start:end], SampleRate: clip.SampleRate}
}

// assemble shifts per-region results to absolute time and joins them into a
// Diarization with fresh zero-padded segment ids.
func assemble(regions []vad.Region, results []*asr.Result) *types.Diarization {
	d := &types.Diarization{}

	for i, res := range results {
		if res == nil {
			continue
		}
		if d.LanguageCode == "" && res.LanguageCode != "" {
			d.LanguageCode = res.LanguageCode
		}
		for _, seg := range res.Segments {
			if strings.TrimSpace(seg.Text) == "" {
				continue
			}
			speaker := seg.Speaker
			if speaker == "" {
				speaker = "SPEAKER_00"
			}
			d.Segments = append(d.Segments, types.Segment{
				Speaker:    speaker,
				StartTime:  regions[i].Start + seg.Start,
				EndTime:    regions[i].Start + seg.End,
				Text:       strings.TrimSpace(seg.Text),
				Confidence: seg.Confidence,
				Gender:     neutralGender,
			})
		}
	}

	sort.SliceStable(d.Segments, func(a, b int) bool {
		return d.Segments[a].StartTime < d.Segments[b].StartTime
	})
	for i := range d.Segments {
		d.Segments[i].SegmentID = fmt.Sprintf("%03d", i)
	}
	if d.LanguageCode == "" {
		d.LanguageCode = defaultLanguage
	}
	d.Rebuild()
	return d
}
