// Package stitch assembles the final dubbed track: a silent canvas the
// length of the original recording, time-aligned speech overlaid at each
// segment's original position, and optionally the separated background stem
// mixed underneath. Gaps between segments stay silent (or carry background)
// instead of being collapsed, so the output lines up with the source video.
package stitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/anuvox/anuvox/internal/session"
	"github.com/anuvox/anuvox/pkg/media"
	"github.com/anuvox/anuvox/pkg/types"
)

// canvasBuffer pads the canvas when the original duration is unknown and the
// length has to be inferred from the last segment.
const canvasBuffer = 0.5

// vocalsArtifact is probed for the original duration; the separated vocal
// stem is sample-exact with the source audio.
const vocalsArtifact = "audio/vocals.wav"

// Options tunes the stitcher.
type Options struct {
	// BackgroundAttenuationDB is applied to the background stem when the
	// separation report carries no measured loudness. Default −12 dB.
	BackgroundAttenuationDB float64

	// PreserveBackground mixes the separated background stem under the
	// speech when the separation stage found significant background energy.
	PreserveBackground bool
}

func (o *Options) fill() {
	if o.BackgroundAttenuationDB == 0 {
		o.BackgroundAttenuationDB = -12
	}
}

// Result describes the stitched output.
type Result struct {
	Path              string  `json:"path"`
	DurationSeconds   float64 `json:"duration"`
	SegmentsPlaced    int     `json:"segments_placed"`
	SegmentsSkipped   int     `json:"segments_skipped"`
	BackgroundMixedIn bool    `json:"background_mixed_in"`
}

// Stitcher builds the final output for a session.
type Stitcher struct {
	store *session.Store
	opts  Options
}

// New creates a Stitcher.
func New(store *session.Store, opts Options) (*Stitcher, error) {
	if store == nil {
		return nil, errors.New("stitch: store must not be nil")
	}
	opts.fill()
	return &Stitcher{store: store, opts: opts}, nil
}

// Stitch overlays the aligned segments from alignment onto a canvas and
// writes synthesis/final_output_<timestamp>.wav. separation may be nil when
// the separation stage did not run; the background mix is skipped then.
func (s *Stitcher) Stitch(ctx context.Context, sessionID string, alignment *types.AlignmentMetadata, separation *types.SeparationMetadata) (*Result, error) {
	if alignment == nil || len(alignment.Segments) == 0 {
		return nil, errors.New("stitch: no aligned segments")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canvasDur := s.canvasDuration(sessionID, alignment)
	canvas := media.Silence(canvasDur, media.RateCanvas)

	placed := make([]types.SegmentAlignment, 0, len(alignment.Segments))
	for _, rec := range alignment.Segments {
		if rec.Status == types.AlignSuccess && rec.OutputFile != "" {
			placed = append(placed, rec)
		}
	}
	sort.SliceStable(placed, func(a, b int) bool {
		return placed[a].StartTime < placed[b].StartTime
	})

	res := &Result{
		DurationSeconds: canvasDur,
		SegmentsSkipped: len(alignment.Segments) - len(placed),
	}
	for _, rec := range placed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clip, err := media.ReadAudioFile(rec.OutputFile)
		if err != nil {
			slog.Warn("aligned segment unreadable, leaving gap",
				"session", sessionID, "segment", rec.SegmentID, "error", err)
			res.SegmentsSkipped++
			continue
		}
		if clip.SampleRate != media.RateCanvas {
			clip = media.Resample(clip, media.RateCanvas)
		}
		canvas = media.Overlay(canvas, clip, rec.StartTime*1000)
		res.SegmentsPlaced++
	}
	canvas = media.Truncate(canvas, canvasDur)

	if bg, ok := s.background(sessionID, separation, canvas); ok {
		canvas = media.Overlay(bg, canvas, 0)
		res.BackgroundMixedIn = true
	}

	name := fmt.Sprintf("synthesis/final_output_%s.wav", time.Now().UTC().Format("20060102_150405"))
	outPath := s.store.Path(sessionID, name)
	if err := media.WriteWAVFile(outPath, canvas); err != nil {
		return nil, fmt.Errorf("stitch: write output: %w", err)
	}
	res.Path = outPath

	if err := s.store.UpdateSection(sessionID, "stitching", map[string]any{
		"output_path":         res.Path,
		"duration":            res.DurationSeconds,
		"segments_placed":     res.SegmentsPlaced,
		"segments_skipped":    res.SegmentsSkipped,
		"background_mixed_in": res.BackgroundMixedIn,
	}); err != nil {
		return nil, err
	}

	slog.Info("final output stitched",
		"session", sessionID, "path", res.Path,
		"duration", res.DurationSeconds,
		"placed", res.SegmentsPlaced, "skipped", res.SegmentsSkipped,
		"background", res.BackgroundMixedIn)
	return res, nil
}

// canvasDuration prefers the original recording's duration, falling back to
// the last aligned segment's end plus a small buffer.
func (s *Stitcher) canvasDuration(sessionID string, alignment *types.AlignmentMetadata) float64 {
	if dur, err := media.WAVDuration(s.store.Path(sessionID, vocalsArtifact)); err == nil && dur > 0 {
		return dur
	}
	var last float64
	for _, rec := range alignment.Segments {
		if rec.EndTime > last {
			last = rec.EndTime
		}
	}
	return last + canvasBuffer
}

// background loads, attenuates, and fits the background stem to the canvas.
// It returns ok=false when preservation is off, the stem is insignificant,
// or the stem is unreadable.
//
// Attenuation uses the loudness measured during separation when the report
// carries one; a zero stat means the loudness was never measured and the
// fixed fallback applies.
func (s *Stitcher) background(sessionID string, separation *types.SeparationMetadata, canvas media.Clip) (media.Clip, bool) {
	if !s.opts.PreserveBackground || separation == nil || !separation.HasSignificantBackground {
		return media.Clip{}, false
	}
	bg, err := media.ReadAudioFile(separation.BackgroundPath)
	if err != nil {
		slog.Warn("background stem unreadable, stitching speech only",
			"session", sessionID, "error", err)
		return media.Clip{}, false
	}
	if bg.SampleRate != canvas.SampleRate {
		bg = media.Resample(bg, canvas.SampleRate)
	}
	atten := s.opts.BackgroundAttenuationDB
	if separation.Stats.BackgroundRMSDB < 0 {
		atten = separation.Stats.BackgroundRMSDB
	}
	bg = media.Gain(bg, atten)
	bg = media.LoopToLength(bg, canvas.Samples())
	return bg, true
}
