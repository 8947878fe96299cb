package diarize

import (
	"strings"
	"testing"

	"github.com/anuvox/anuvox/internal/session"
	"github.com/anuvox/anuvox/pkg/types"
)

func strptr(s string) *string { return &s }

func seedDiarization(t *testing.T) (*session.Store, string) {
	t.Helper()
	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sid, err := store.Create("")
	if err != nil {
		t.Fatal(err)
	}
	d := &types.Diarization{
		LanguageCode: "hi-IN",
		Segments: []types.Segment{
			{SegmentID: "000", Speaker: "SPEAKER_00", StartTime: 0, EndTime: 2, Text: "one", Gender: "female", TranslatedText: "एक"},
			{SegmentID: "001", Speaker: "SPEAKER_01", StartTime: 2, EndTime: 4, Text: "two", Confidence: 0.8},
		},
	}
	d.Rebuild()
	if err := store.WriteJSON(sid, DiarizationArtifact, d); err != nil {
		t.Fatal(err)
	}
	return store, sid
}

func TestApplyEdits(t *testing.T) {
	t.Parallel()
	store, sid := seedDiarization(t)

	err := ApplyEdits(store, sid, map[string]Edit{
		"000": {Text: strptr("corrected")},
		"001": {Speaker: strptr("SPEAKER_00")},
	})
	if err != nil {
		t.Fatalf("ApplyEdits: %v", err)
	}

	d := &types.Diarization{}
	if err := store.ReadJSON(sid, DiarizationArtifact, d); err != nil {
		t.Fatal(err)
	}
	if d.Segments[0].Text != "corrected" {
		t.Errorf("text = %q", d.Segments[0].Text)
	}
	if d.Segments[1].Speaker != "SPEAKER_00" {
		t.Errorf("speaker = %q", d.Segments[1].Speaker)
	}
	if !strings.Contains(d.Transcript, "corrected") {
		t.Error("transcript not rebuilt after edit")
	}

	// Untouched fields survive the rewrite.
	if d.Segments[0].Gender != "female" || d.Segments[0].TranslatedText != "एक" {
		t.Error("unlisted fields of an edited segment were dropped")
	}
	if d.Segments[1].Confidence != 0.8 || d.Segments[1].EndTime != 4 {
		t.Error("fields of the other segment were dropped")
	}
	if d.LanguageCode != "hi-IN" {
		t.Error("diarization-level fields were dropped")
	}
}

func TestApplyEditsUnknownSegment(t *testing.T) {
	t.Parallel()
	store, sid := seedDiarization(t)

	err := ApplyEdits(store, sid, map[string]Edit{"999": {Text: strptr("x")}})
	if err == nil {
		t.Fatal("edit of unknown segment succeeded")
	}

	// The stored artifact must be untouched after a rejected edit.
	d := &types.Diarization{}
	if err := store.ReadJSON(sid, DiarizationArtifact, d); err != nil {
		t.Fatal(err)
	}
	if d.Segments[0].Text != "one" {
		t.Error("rejected edit modified the artifact")
	}
}

func TestApplyEditsPreservesGlobalPreferences(t *testing.T) {
	t.Parallel()
	store, sid := seedDiarization(t)

	if err := store.Update(sid, map[string]any{"target_language": "tamil", "preserve_background_music": true}); err != nil {
		t.Fatal(err)
	}
	if err := ApplyEdits(store, sid, map[string]Edit{"000": {Text: strptr("x")}}); err != nil {
		t.Fatal(err)
	}

	meta, err := store.Get(sid)
	if err != nil {
		t.Fatal(err)
	}
	if meta["target_language"] != "tamil" || meta["preserve_background_music"] != true {
		t.Errorf("preferences lost across edit: %v", meta)
	}
}

func TestApplyEditsEmptyIsNoOp(t *testing.T) {
	t.Parallel()
	store, sid := seedDiarization(t)

	if err := ApplyEdits(store, sid, nil); err != nil {
		t.Fatalf("empty edit set: %v", err)
	}
}
