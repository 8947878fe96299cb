package types

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// csvHeader is the fixed column set of the diarization CSV sibling artifact.
var csvHeader = []string{
	"segment_id", "speaker_id", "start_time", "end_time",
	"text", "confidence", "translated_text", "gender",
}

// WriteCSV writes the diarization's segments as CSV with the canonical
// column layout. The output is deterministic for a given diarization.
func (d *Diarization) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, s := range d.Segments {
		rec := []string{
			s.SegmentID,
			s.Speaker,
			strconv.FormatFloat(s.StartTime, 'f', 3, 64),
			strconv.FormatFloat(s.EndTime, 'f', 3, 64),
			s.Text,
			strconv.FormatFloat(s.Confidence, 'f', 3, 64),
			s.TranslatedText,
			s.Gender,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("csv: write segment %q: %w", s.SegmentID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
