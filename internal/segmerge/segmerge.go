// Package segmerge merges consecutive same-speaker segments separated by
// gaps short enough that splitting them across TTS calls would sound
// choppy. Merging before synthesis also gives the time aligner longer spans
// to stretch, which keeps speed factors closer to 1.
package segmerge

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/anuvox/anuvox/pkg/types"
)

// DefaultMaxSilence is the largest same-speaker gap that still merges.
const DefaultMaxSilence = 500 * time.Millisecond

// Merge combines consecutive segments of the same speaker whose gap is at
// most maxSilence. Text and translation are joined with a single space, the
// original records ride along for traceability, and merged ids are
// reassigned merged_000, merged_001, … in order.
//
// Touching segments have no silence between them, so they merge even at a
// zero budget; a negative maxSilence disables merging entirely.
//
// The union of merged time spans equals the union of the input spans, and
// the output count never exceeds the input count.
func Merge(segments []types.Segment, maxSilence time.Duration) []types.MergedSegment {
	if len(segments) == 0 {
		return nil
	}

	sorted := make([]types.Segment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].StartTime < sorted[b].StartTime
	})

	maxGap := maxSilence.Seconds()
	var out []types.MergedSegment
	cur := newMerged(sorted[0])

	for _, seg := range sorted[1:] {
		gap := seg.StartTime - cur.EndTime
		if seg.Speaker == cur.Speaker && gap <= maxGap {
			absorb(&cur, seg)
			continue
		}
		out = append(out, cur)
		cur = newMerged(seg)
	}
	out = append(out, cur)

	for i := range out {
		out[i].SegmentID = fmt.Sprintf("merged_%03d", i)
		out[i].DurationSeconds = out[i].EndTime - out[i].StartTime
	}
	return out
}

// newMerged starts a merged segment from a single source segment.
func newMerged(seg types.Segment) types.MergedSegment {
	return types.MergedSegment{
		Segment:          seg,
		DurationSeconds:  seg.EndTime - seg.StartTime,
		OriginalSegments: []types.Segment{seg},
	}
}

// absorb extends the merged segment with the next same-speaker segment.
func absorb(m *types.MergedSegment, seg types.Segment) {
	m.EndTime = seg.EndTime
	m.Text = joinText(m.Text, seg.Text)
	m.TranslatedText = joinText(m.TranslatedText, seg.TranslatedText)
	m.OriginalSegments = append(m.OriginalSegments, seg)
}

// joinText concatenates two fragments with a single separating space,
// tolerating empty sides.
func joinText(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

// MergeDiarization merges d's segments and wraps the result with the
// counters and transcripts persisted alongside them.
func MergeDiarization(d *types.Diarization, maxSilence time.Duration) *types.MergedDiarization {
	merged := Merge(d.Segments, maxSilence)

	out := &types.MergedDiarization{
		Transcript:           d.Transcript,
		TranslatedTranscript: d.TranslatedTranscript(),
		MergedSegments:       merged,
		OriginalSegmentCount: len(d.Segments),
		MergedSegmentCount:   len(merged),
		MaxSilenceMs:         float64(maxSilence.Milliseconds()),
	}
	slog.Info("segments merged",
		"original", out.OriginalSegmentCount,
		"merged", out.MergedSegmentCount,
		"max_silence_ms", out.MaxSilenceMs)
	return out
}
