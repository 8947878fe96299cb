// Package align stretches each synthesised segment to its diarized
// duration so the dubbed voice lands in the same time window the original
// speaker occupied.
//
// Stretching uses chained ffmpeg atempo filters behind the media.Stretcher
// interface; tests align against a fake without a real ffmpeg binary.
package align

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/anuvox/anuvox/internal/session"
	"github.com/anuvox/anuvox/pkg/media"
	"github.com/anuvox/anuvox/pkg/types"
)

// MetadataArtifact is the session-relative path of the alignment report.
const MetadataArtifact = "synthesis/time_alignment.json"

// qualityDiffPenalty is subtracted from the quality score when the output
// misses the target by more than maxDurationDiff seconds.
const (
	maxDurationDiff    = 0.5
	qualityDiffPenalty = 10.0
)

// Aligner time-stretches synthesis artifacts against segment durations.
type Aligner struct {
	store     *session.Store
	stretcher media.Stretcher
}

// New creates an Aligner.
func New(store *session.Store, stretcher media.Stretcher) (*Aligner, error) {
	if store == nil {
		return nil, errors.New("align: store must not be nil")
	}
	if stretcher == nil {
		return nil, errors.New("align: stretcher must not be nil")
	}
	return &Aligner{store: store, stretcher: stretcher}, nil
}

// AlignSegment stretches the audio at inPath to targetDuration seconds,
// writing the result to outPath. The returned record carries the applied
// factor and quality classification even on failure.
func (a *Aligner) AlignSegment(ctx context.Context, inPath, outPath string, targetDuration float64) (types.SegmentAlignment, error) {
	rec := types.SegmentAlignment{
		InputFile:      inPath,
		OutputFile:     outPath,
		TargetDuration: targetDuration,
		Status:         types.AlignFailed,
	}

	orig, err := a.stretcher.ProbeDuration(ctx, inPath)
	if err != nil {
		rec.Error = err.Error()
		return rec, fmt.Errorf("align: probe input: %w", err)
	}
	rec.OriginalDuration = orig
	if orig <= 0 || targetDuration <= 0 {
		rec.Error = "non-positive duration"
		return rec, fmt.Errorf("align: non-positive duration (orig=%.3f target=%.3f)", orig, targetDuration)
	}

	factor := media.ClampSpeedFactor(orig / targetDuration)
	rec.SpeedFactor = factor

	if err := a.stretcher.TimeStretch(ctx, inPath, outPath, factor); err != nil {
		rec.Error = err.Error()
		return rec, fmt.Errorf("align: stretch: %w", err)
	}

	out, err := a.stretcher.ProbeDuration(ctx, outPath)
	if err != nil {
		rec.Error = err.Error()
		return rec, fmt.Errorf("align: probe output: %w", err)
	}
	rec.OutputDuration = out
	rec.DurationDifference = math.Abs(out - targetDuration)
	rec.QualityLevel, rec.QualityScore = classify(factor, rec.DurationDifference)
	rec.Status = types.AlignSuccess
	return rec, nil
}

// classify grades a speed factor into good/acceptable/poor with a numeric
// score, docking the score when the achieved duration misses the target.
func classify(factor, durationDiff float64) (types.QualityLevel, float64) {
	var level types.QualityLevel
	var score float64
	switch {
	case factor >= 0.8 && factor <= 1.25:
		level, score = types.QualityGood, 100
	case (factor >= 0.6 && factor < 0.8) || (factor > 1.25 && factor <= 1.75):
		level, score = types.QualityAcceptable, 70
	default:
		level, score = types.QualityPoor, 40
	}
	if durationDiff > maxDurationDiff {
		score -= qualityDiffPenalty
	}
	return level, score
}

// AlignAll aligns every segment that has a synthesis artifact, preferring
// the merged segment list when present. Artifacts are looked up under the
// session's synthesis directory by the patterns segment_<id>,
// segment_merged_<id>, and segment_<original-id>. Segments without an
// artifact are recorded as skipped.
//
// The aggregated report is written to synthesis/time_alignment.json and the
// summary lands in the time_alignment metadata section.
func (a *Aligner) AlignAll(ctx context.Context, sessionID string, segments []types.MergedSegment) (*types.AlignmentMetadata, error) {
	meta := &types.AlignmentMetadata{Total: len(segments)}

	for _, seg := range segments {
		inPath, found := a.findArtifact(sessionID, seg)
		if !found {
			slog.Warn("no synthesis artifact for segment, skipping",
				"session", sessionID, "segment", seg.SegmentID)
			meta.Segments = append(meta.Segments, types.SegmentAlignment{
				SegmentID: seg.SegmentID,
				Status:    types.AlignSkipped,
				StartTime: seg.StartTime,
				EndTime:   seg.EndTime,
			})
			continue
		}

		outPath := a.store.Path(sessionID, "synthesis", "segment_"+seg.SegmentID+"_time_aligned.wav")
		rec, err := a.AlignSegment(ctx, inPath, outPath, seg.EndTime-seg.StartTime)
		rec.SegmentID = seg.SegmentID
		rec.StartTime = seg.StartTime
		rec.EndTime = seg.EndTime
		if err != nil {
			slog.Warn("segment alignment failed",
				"session", sessionID, "segment", seg.SegmentID, "error", err)
		}
		meta.Segments = append(meta.Segments, rec)
	}

	aggregate(meta)
	if err := a.store.WriteJSON(sessionID, MetadataArtifact, meta); err != nil {
		return nil, err
	}
	if err := a.store.UpdateSection(sessionID, "time_alignment", map[string]any{
		"total":            meta.Total,
		"processed":        meta.Processed,
		"successful":       meta.Successful,
		"failed":           meta.Failed,
		"avg_speed_factor": meta.AvgSpeedFactor,
		"good_count":       meta.GoodCount,
		"acceptable_count": meta.AcceptableCount,
		"poor_count":       meta.PoorCount,
	}); err != nil {
		return nil, err
	}

	slog.Info("alignment complete",
		"session", sessionID,
		"successful", meta.Successful, "failed", meta.Failed,
		"avg_speed_factor", meta.AvgSpeedFactor)
	return meta, nil
}

// findArtifact probes the known synthesis artifact name patterns for a
// segment, including the ids of its pre-merge constituents.
func (a *Aligner) findArtifact(sessionID string, seg types.MergedSegment) (string, bool) {
	candidates := []string{
		"segment_" + seg.SegmentID + ".wav",
		"segment_merged_" + seg.SegmentID + ".wav",
	}
	for _, orig := range seg.OriginalSegments {
		candidates = append(candidates, "segment_"+orig.SegmentID+".wav")
	}
	for _, name := range candidates {
		path := a.store.Path(sessionID, "synthesis", name)
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return path, true
		}
	}
	return "", false
}

// aggregate fills the summary counters from the per-segment records.
func aggregate(meta *types.AlignmentMetadata) {
	var sum float64
	minF, maxF := math.Inf(1), math.Inf(-1)
	for _, rec := range meta.Segments {
		switch rec.Status {
		case types.AlignSkipped:
			continue
		case types.AlignFailed:
			meta.Processed++
			meta.Failed++
			continue
		}
		meta.Processed++
		meta.Successful++
		sum += rec.SpeedFactor
		minF = math.Min(minF, rec.SpeedFactor)
		maxF = math.Max(maxF, rec.SpeedFactor)
		switch rec.QualityLevel {
		case types.QualityGood:
			meta.GoodCount++
		case types.QualityAcceptable:
			meta.AcceptableCount++
		case types.QualityPoor:
			meta.PoorCount++
		}
	}
	if meta.Successful > 0 {
		meta.AvgSpeedFactor = sum / float64(meta.Successful)
		meta.MinSpeedFactor = minF
		meta.MaxSpeedFactor = maxF
	}
}
