package types

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestSegmentUnmarshalLegacyKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		wantStart float64
		wantEnd   float64
	}{
		{
			name:      "canonical keys",
			input:     `{"segment_id":"000","start_time":1.5,"end_time":3.0}`,
			wantStart: 1.5,
			wantEnd:   3.0,
		},
		{
			name:      "legacy keys",
			input:     `{"segment_id":"000","start":1.5,"end":3.0}`,
			wantStart: 1.5,
			wantEnd:   3.0,
		},
		{
			name:      "canonical wins over legacy",
			input:     `{"segment_id":"000","start_time":2.0,"end_time":4.0,"start":1.0,"end":9.0}`,
			wantStart: 2.0,
			wantEnd:   4.0,
		},
		{
			name:      "legacy zero start accepted",
			input:     `{"segment_id":"000","start":0,"end":1.0}`,
			wantStart: 0,
			wantEnd:   1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var s Segment
			if err := json.Unmarshal([]byte(tt.input), &s); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if s.StartTime != tt.wantStart || s.EndTime != tt.wantEnd {
				t.Errorf("got [%.2f, %.2f], want [%.2f, %.2f]",
					s.StartTime, s.EndTime, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestSegmentTranslationHelpers(t *testing.T) {
	t.Parallel()

	marker := ErrorMarkerPrefix + ": model unavailable]"
	tests := []struct {
		name     string
		text     string
		hasTrans bool
		synth    string
	}{
		{"translated", "नमस्ते", true, "नमस्ते"},
		{"empty", "", false, ""},
		{"error marker", marker, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := Segment{TranslatedText: tt.text}
			if got := s.HasTranslation(); got != tt.hasTrans {
				t.Errorf("HasTranslation() = %v, want %v", got, tt.hasTrans)
			}
			if got := s.SynthesisText(); got != tt.synth {
				t.Errorf("SynthesisText() = %q, want %q", got, tt.synth)
			}
		})
	}
}

func TestDiarizationRebuildAndTranscripts(t *testing.T) {
	t.Parallel()

	d := &Diarization{Segments: []Segment{
		{SegmentID: "000", Speaker: "SPEAKER_00", StartTime: 0, EndTime: 1, Text: "hello", TranslatedText: "नमस्ते"},
		{SegmentID: "001", Speaker: "SPEAKER_01", StartTime: 1, EndTime: 2, Text: "world", TranslatedText: ErrorMarkerPrefix + ": boom]"},
		{SegmentID: "002", Speaker: "SPEAKER_00", StartTime: 2, EndTime: 3, Text: "", TranslatedText: "फिर"},
	}}
	d.Rebuild()
	if d.Transcript != "hello world" {
		t.Errorf("Transcript = %q, want %q", d.Transcript, "hello world")
	}
	if got := d.TranslatedTranscript(); got != "नमस्ते फिर" {
		t.Errorf("TranslatedTranscript() = %q, want %q", got, "नमस्ते फिर")
	}
	if got := d.Speakers(); len(got) != 2 || got[0] != "SPEAKER_00" || got[1] != "SPEAKER_01" {
		t.Errorf("Speakers() = %v", got)
	}
}

func TestDiarizationValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Diarization {
		return &Diarization{Segments: []Segment{
			{SegmentID: "000", Speaker: "A", StartTime: 0, EndTime: 1},
			{SegmentID: "001", Speaker: "B", StartTime: 0.5, EndTime: 2},
			{SegmentID: "002", Speaker: "A", StartTime: 1, EndTime: 3},
		}}
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid diarization rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Diarization)
	}{
		{"zero duration", func(d *Diarization) { d.Segments[1].EndTime = d.Segments[1].StartTime }},
		{"negative start", func(d *Diarization) { d.Segments[0].StartTime = -0.1 }},
		{"duplicate id", func(d *Diarization) { d.Segments[2].SegmentID = "000" }},
		{"unsorted", func(d *Diarization) { d.Segments[2].StartTime = 0.1; d.Segments[2].EndTime = 0.2 }},
		{"same speaker overlap", func(d *Diarization) { d.Segments[2].StartTime = 0.9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := valid()
			tt.mutate(d)
			if err := d.Validate(); err == nil {
				t.Error("Validate() accepted invalid diarization")
			}
		})
	}
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	d := &Diarization{Segments: []Segment{
		{SegmentID: "000", Speaker: "SPEAKER_00", StartTime: 0, EndTime: 1.25, Text: "hello, there", Confidence: 0.92},
	}}
	var buf bytes.Buffer
	if err := d.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0] != "segment_id,speaker_id,start_time,end_time,text,confidence,translated_text,gender" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], `"hello, there"`) {
		t.Errorf("row %q does not quote comma field", lines[1])
	}
}

func TestParseLanguage(t *testing.T) {
	t.Parallel()

	if got, err := ParseLanguage("Hindi"); err != nil || got != LangHindi {
		t.Errorf("ParseLanguage(Hindi) = %v, %v", got, err)
	}
	if _, err := ParseLanguage("klingon"); err == nil {
		t.Error("ParseLanguage(klingon) succeeded")
	}
}
