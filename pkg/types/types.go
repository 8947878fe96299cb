// Package types defines the shared data model used across all Anuvox packages.
//
// These types form the lingua franca between the media adapter, the providers,
// and the pipeline stages. They mirror the on-disk JSON artifacts of a dubbing
// session — each pipeline stage reads one of these shapes from the session
// store, transforms it, and writes the next shape back.
package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Segment is a contiguous span of a single speaker's speech with transcribed
// text. It is the atomic unit the whole pipeline operates on: diarization
// emits segments, translation annotates them, TTS synthesises one clip per
// segment and the stitcher places each clip back at its original start time.
type Segment struct {
	// SegmentID is a stable identifier unique within one diarization.
	SegmentID string `json:"segment_id"`

	// Speaker is an opaque diarization label such as "SPEAKER_00".
	Speaker string `json:"speaker"`

	// StartTime and EndTime are offsets into the source audio in seconds.
	// EndTime must be strictly greater than StartTime.
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`

	// Text is the source-language transcription of the span.
	Text string `json:"text"`

	// TranslatedText holds the target-language translation once the
	// translator has run. Empty until then. A value starting with
	// ErrorMarkerPrefix records a per-segment translation failure.
	TranslatedText string `json:"translated_text,omitempty"`

	// Language is the BCP-47 tag of Text when the ASR reports one.
	Language string `json:"language,omitempty"`

	// Gender is a voice-selection hint ("male", "female", "neutral").
	Gender string `json:"gender,omitempty"`

	// Pace is an optional synthesis pace hint for providers that accept one.
	Pace float64 `json:"pace,omitempty"`

	// Confidence is the ASR confidence for this span, 0 when unreported.
	Confidence float64 `json:"confidence,omitempty"`
}

// ErrorMarkerPrefix marks a TranslatedText value that records a translation
// failure rather than an actual translation. Downstream stages treat such
// values as empty text.
const ErrorMarkerPrefix = "[Translation error"

// Duration returns the segment's span in seconds.
func (s Segment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// HasTranslation reports whether the segment carries a usable translation.
// Error markers do not count.
func (s Segment) HasTranslation() bool {
	return s.TranslatedText != "" && !strings.HasPrefix(s.TranslatedText, ErrorMarkerPrefix)
}

// SynthesisText returns the text TTS should speak for this segment: the
// translated text, or "" when the translation is absent or an error marker.
func (s Segment) SynthesisText() string {
	if !s.HasTranslation() {
		return ""
	}
	return s.TranslatedText
}

// segmentJSON is the wire shape accepted on unmarshal. Older artifacts use
// "start"/"end" instead of "start_time"/"end_time"; both are accepted, the
// suffixed form wins when both are present.
type segmentJSON struct {
	SegmentID      string   `json:"segment_id"`
	Speaker        string   `json:"speaker"`
	StartTime      *float64 `json:"start_time"`
	EndTime        *float64 `json:"end_time"`
	Start          *float64 `json:"start"`
	End            *float64 `json:"end"`
	Text           string   `json:"text"`
	TranslatedText string   `json:"translated_text"`
	Language       string   `json:"language"`
	Gender         string   `json:"gender"`
	Pace           float64  `json:"pace"`
	Confidence     float64  `json:"confidence"`
}

// UnmarshalJSON accepts both the canonical start_time/end_time keys and the
// legacy start/end keys found in older session artifacts.
func (s *Segment) UnmarshalJSON(data []byte) error {
	var raw segmentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.SegmentID = raw.SegmentID
	s.Speaker = raw.Speaker
	s.Text = raw.Text
	s.TranslatedText = raw.TranslatedText
	s.Language = raw.Language
	s.Gender = raw.Gender
	s.Pace = raw.Pace
	s.Confidence = raw.Confidence

	switch {
	case raw.StartTime != nil:
		s.StartTime = *raw.StartTime
	case raw.Start != nil:
		s.StartTime = *raw.Start
	}
	switch {
	case raw.EndTime != nil:
		s.EndTime = *raw.EndTime
	case raw.End != nil:
		s.EndTime = *raw.End
	}
	return nil
}

// Diarization is the ordered list of segments plus the joined transcript.
// It is persisted as diarization.json (and, once translated, as
// diarization_translated.json) in the session directory.
type Diarization struct {
	// Transcript is the whitespace-join of all segment texts. Rebuild keeps
	// it consistent after edits.
	Transcript string `json:"transcript"`

	// Segments are sorted by StartTime. No two segments of the same speaker
	// overlap in time.
	Segments []Segment `json:"segments"`

	// LanguageCode is the detected source language (default "hi-IN").
	LanguageCode string `json:"language_code"`

	// TargetLanguage is set once a translation target has been chosen.
	TargetLanguage string `json:"target_language,omitempty"`
}

// Rebuild regenerates Transcript from the segment texts. Must be called after
// any edit to a segment's Text.
func (d *Diarization) Rebuild() {
	texts := make([]string, 0, len(d.Segments))
	for _, s := range d.Segments {
		if s.Text != "" {
			texts = append(texts, s.Text)
		}
	}
	d.Transcript = strings.Join(texts, " ")
}

// TranslatedTranscript returns the concatenation of all non-empty, non-error
// translated texts in segment order.
func (d *Diarization) TranslatedTranscript() string {
	texts := make([]string, 0, len(d.Segments))
	for _, s := range d.Segments {
		if s.HasTranslation() {
			texts = append(texts, s.TranslatedText)
		}
	}
	return strings.Join(texts, " ")
}

// Speakers returns the distinct speaker labels in order of first appearance.
func (d *Diarization) Speakers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range d.Segments {
		if !seen[s.Speaker] {
			seen[s.Speaker] = true
			out = append(out, s.Speaker)
		}
	}
	return out
}

// Validate checks the diarization invariants: every segment has a positive
// duration and a unique id, segments are sorted by start time, and no two
// segments of the same speaker overlap.
func (d *Diarization) Validate() error {
	ids := make(map[string]bool, len(d.Segments))
	lastEnd := make(map[string]float64)
	var prevStart float64
	for i, s := range d.Segments {
		if s.StartTime < 0 {
			return fmt.Errorf("segment %q: negative start time %.3f", s.SegmentID, s.StartTime)
		}
		if s.EndTime <= s.StartTime {
			return fmt.Errorf("segment %q: end %.3f not after start %.3f", s.SegmentID, s.EndTime, s.StartTime)
		}
		if ids[s.SegmentID] {
			return fmt.Errorf("duplicate segment id %q", s.SegmentID)
		}
		ids[s.SegmentID] = true
		if i > 0 && s.StartTime < prevStart {
			return fmt.Errorf("segment %q: not sorted by start time", s.SegmentID)
		}
		prevStart = s.StartTime
		if end, ok := lastEnd[s.Speaker]; ok && s.StartTime < end {
			return fmt.Errorf("segment %q: overlaps previous segment of speaker %q", s.SegmentID, s.Speaker)
		}
		lastEnd[s.Speaker] = s.EndTime
	}
	return nil
}

// SortSegments orders the segments by start time (stable).
func (d *Diarization) SortSegments() {
	sort.SliceStable(d.Segments, func(i, j int) bool {
		return d.Segments[i].StartTime < d.Segments[j].StartTime
	})
}

// MergedSegment is a segment formed by joining adjacent same-speaker segments
// separated by less than a gap threshold. The pre-merge records are retained
// for traceability.
type MergedSegment struct {
	Segment

	// DurationSeconds is EndTime − StartTime, recomputed on merge.
	DurationSeconds float64 `json:"duration"`

	// OriginalSegments holds the pre-merge segment records in order.
	OriginalSegments []Segment `json:"original_segments"`
}

// MergedDiarization is the merged-segment artifact written as
// diarization_translated_merged.json.
type MergedDiarization struct {
	Transcript           string          `json:"transcript"`
	TranslatedTranscript string          `json:"translated_transcript"`
	MergedSegments       []MergedSegment `json:"merged_segments"`
	OriginalSegmentCount int             `json:"original_segment_count"`
	MergedSegmentCount   int             `json:"merged_segment_count"`
	MaxSilenceMs         float64         `json:"max_silence_ms"`
}

// SeparationStats holds loudness statistics computed from the two stems.
type SeparationStats struct {
	VocalsRMSDB          float64 `json:"vocals_rms_db"`
	BackgroundRMSDB      float64 `json:"background_rms_db"`
	VocalsPercentage     float64 `json:"vocals_percentage"`
	BackgroundPercentage float64 `json:"background_percentage"`
}

// SeparationMetadata is written to music/metadata.json after stem separation
// and consumed by the stitcher's background-mix gate.
type SeparationMetadata struct {
	VocalsPath               string          `json:"vocals_path"`
	BackgroundPath           string          `json:"background_path"`
	HasSignificantBackground bool            `json:"has_significant_background"`
	Stats                    SeparationStats `json:"stats"`
}

// AlignmentStatus enumerates the outcome of aligning one segment.
type AlignmentStatus string

const (
	AlignSuccess AlignmentStatus = "success"
	AlignFailed  AlignmentStatus = "failed"
	AlignSkipped AlignmentStatus = "skipped"
)

// QualityLevel classifies how natural a time-stretched clip is expected to
// sound, based on the speed factor that was applied.
type QualityLevel string

const (
	QualityGood       QualityLevel = "good"
	QualityAcceptable QualityLevel = "acceptable"
	QualityPoor       QualityLevel = "poor"
)

// SegmentAlignment records the time-alignment result for one segment.
type SegmentAlignment struct {
	SegmentID          string          `json:"segment_id"`
	Status             AlignmentStatus `json:"status"`
	InputFile          string          `json:"input_file,omitempty"`
	OutputFile         string          `json:"output_file,omitempty"`
	OriginalDuration   float64         `json:"original_duration"`
	TargetDuration     float64         `json:"target_duration"`
	OutputDuration     float64         `json:"output_duration"`
	DurationDifference float64         `json:"duration_difference"`
	SpeedFactor        float64         `json:"speed_factor"`
	QualityLevel       QualityLevel    `json:"quality_level,omitempty"`
	QualityScore       float64         `json:"quality_score"`
	StartTime          float64         `json:"start_time"`
	EndTime            float64         `json:"end_time"`
	Error              string          `json:"error,omitempty"`
}

// AlignmentMetadata aggregates the per-segment alignment results for a run.
type AlignmentMetadata struct {
	Segments        []SegmentAlignment `json:"segments"`
	Total           int                `json:"total"`
	Processed       int                `json:"processed"`
	Successful      int                `json:"successful"`
	Failed          int                `json:"failed"`
	AvgSpeedFactor  float64            `json:"avg_speed_factor"`
	MinSpeedFactor  float64            `json:"min_speed_factor"`
	MaxSpeedFactor  float64            `json:"max_speed_factor"`
	GoodCount       int                `json:"good_count"`
	AcceptableCount int                `json:"acceptable_count"`
	PoorCount       int                `json:"poor_count"`
}

// Stage enumerates the per-session pipeline state machine. A session moves
// strictly forward through these states; StageError is terminal and reachable
// from any stage.
type Stage string

const (
	StageCreated     Stage = "created"
	StageIngesting   Stage = "ingesting"
	StageSeparated   Stage = "separated"
	StageDiarized    Stage = "diarized"
	StageEditing     Stage = "editing"
	StageTranslated  Stage = "translated"
	StageMerged      Stage = "merged"
	StageSynthesized Stage = "synthesized"
	StageAligned     Stage = "aligned"
	StageStitched    Stage = "stitched"
	StageCompleted   Stage = "completed"
	StageError       Stage = "error"
)

// SpeakerVoice maps a diarization speaker label to a provider voice id,
// as supplied by the caller for a synthesis run.
type SpeakerVoice struct {
	SpeakerID string `json:"speaker_id"`
	VoiceID   string `json:"voice_id"`
}
