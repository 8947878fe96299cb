package diarize

import (
	"fmt"
	"log/slog"

	"github.com/anuvox/anuvox/internal/session"
	"github.com/anuvox/anuvox/pkg/types"
)

// DiarizationArtifact is the session-relative path of the current
// diarization.
const DiarizationArtifact = "diarization.json"

// Edit is one segment update. Nil fields are left untouched.
type Edit struct {
	Speaker *string `json:"speaker,omitempty"`
	Text    *string `json:"text,omitempty"`
}

// ApplyEdits applies per-segment speaker/text updates to the stored
// diarization, rebuilds the transcript, and writes the result back
// atomically. Unlisted segments and unlisted fields are preserved verbatim,
// including timing, gender, and any existing translations.
//
// Before writing, the session's global preferences are re-saved through the
// append-only metadata writer so a concurrent editor cannot leave later
// stages reading a half-updated document.
func ApplyEdits(store *session.Store, sessionID string, updates map[string]Edit) error {
	if len(updates) == 0 {
		return nil
	}

	d := &types.Diarization{}
	if err := store.ReadJSON(sessionID, DiarizationArtifact, d); err != nil {
		return err
	}

	byID := make(map[string]int, len(d.Segments))
	for i, seg := range d.Segments {
		byID[seg.SegmentID] = i
	}

	applied := 0
	for id, edit := range updates {
		i, ok := byID[id]
		if !ok {
			return fmt.Errorf("diarize: edit references unknown segment %q", id)
		}
		if edit.Speaker != nil {
			d.Segments[i].Speaker = *edit.Speaker
		}
		if edit.Text != nil {
			d.Segments[i].Text = *edit.Text
		}
		applied++
	}
	d.Rebuild()

	if err := preserveGlobalPreferences(store, sessionID); err != nil {
		return err
	}
	if err := store.WriteJSON(sessionID, DiarizationArtifact, d); err != nil {
		return err
	}
	slog.Info("diarization edits applied", "session", sessionID, "segments", applied)
	return nil
}

// preserveGlobalPreferences re-saves the session's durable preferences so
// that the metadata document carries them even if a concurrent writer raced
// an earlier update. The merge-on-write store makes this a no-op when
// nothing changed.
func preserveGlobalPreferences(store *session.Store, sessionID string) error {
	meta, err := store.Get(sessionID)
	if err != nil {
		return err
	}
	preserved := map[string]any{}
	for _, key := range []string{"preserve_background_music", "target_language", "speaker_voice_map"} {
		if v, ok := meta[key]; ok {
			preserved[key] = v
		}
	}
	if len(preserved) == 0 {
		return nil
	}
	return store.Update(sessionID, preserved)
}
