package synth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anuvox/anuvox/internal/session"
	"github.com/anuvox/anuvox/pkg/media"
	"github.com/anuvox/anuvox/pkg/provider/tts"
	ttsmock "github.com/anuvox/anuvox/pkg/provider/tts/mock"
	"github.com/anuvox/anuvox/pkg/types"
)

func newTestSession(t *testing.T) (*session.Store, string) {
	t.Helper()
	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sid, err := store.Create("")
	if err != nil {
		t.Fatal(err)
	}
	return store, sid
}

func mergedSeg(id string, start, end float64, translated string) types.MergedSegment {
	return types.MergedSegment{
		Segment: types.Segment{
			SegmentID:      id,
			Speaker:        "SPEAKER_00",
			StartTime:      start,
			EndTime:        end,
			Text:           "src",
			TranslatedText: translated,
		},
		DurationSeconds: end - start,
	}
}

func TestSynthesizeAllRoutesByLanguage(t *testing.T) {
	t.Parallel()

	store, sid := newTestSession(t)
	hindi := &ttsmock.Provider{}
	other := &ttsmock.Provider{}
	s, err := New(store, hindi, other, Options{Workers: 1})
	if err != nil {
		t.Fatal(err)
	}

	segs := []types.MergedSegment{mergedSeg("merged_000", 0, 2, "नमस्ते")}
	if _, err := s.SynthesizeAll(context.Background(), sid, segs, types.LangHindi, nil); err != nil {
		t.Fatal(err)
	}
	if len(hindi.Requests()) != 1 || len(other.Requests()) != 0 {
		t.Errorf("hindi=%d other=%d calls, want 1/0", len(hindi.Requests()), len(other.Requests()))
	}

	if _, err := s.SynthesizeAll(context.Background(), sid, segs, types.LangTamil, nil); err != nil {
		t.Fatal(err)
	}
	if len(other.Requests()) != 1 {
		t.Errorf("other provider calls = %d, want 1 for non-Hindi target", len(other.Requests()))
	}
}

func TestSynthesizeAllSuccess(t *testing.T) {
	t.Parallel()

	store, sid := newTestSession(t)
	s, _ := New(store, &ttsmock.Provider{}, nil, Options{})

	segs := []types.MergedSegment{
		mergedSeg("merged_000", 0, 2, "एक"),
		mergedSeg("merged_001", 3, 5, "दो"),
	}
	results, err := s.SynthesizeAll(context.Background(), sid, segs, types.LangHindi, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	for i, res := range results {
		if res.SegmentID != segs[i].SegmentID {
			t.Errorf("result %d out of order: %q", i, res.SegmentID)
		}
		if res.Status != StatusSuccess {
			t.Errorf("status = %q, want success", res.Status)
		}
		if res.Provider != "sarvam" {
			t.Errorf("provider = %q", res.Provider)
		}
		clip, err := media.ReadAudioFile(res.Path)
		if err != nil {
			t.Fatalf("artifact unreadable: %v", err)
		}
		if clip.Duration() < 0.9 {
			t.Errorf("artifact duration = %v", clip.Duration())
		}
	}
}

func TestSynthesizeEmptyTextBecomesSilence(t *testing.T) {
	t.Parallel()

	store, sid := newTestSession(t)
	provider := &ttsmock.Provider{}
	s, _ := New(store, provider, nil, Options{})

	segs := []types.MergedSegment{
		mergedSeg("merged_000", 0, 3, ""),
		mergedSeg("merged_001", 4, 4.2, types.ErrorMarkerPrefix + ": rate limited]"),
	}
	results, err := s.SynthesizeAll(context.Background(), sid, segs, types.LangHindi, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(provider.Requests()) != 0 {
		t.Error("provider called for untranslatable segments")
	}
	if results[0].Status != StatusSilence || results[0].Duration != 3 {
		t.Errorf("result 0 = %q/%v, want silence of segment duration", results[0].Status, results[0].Duration)
	}
	// Short segments are floored at the minimum substitute length.
	if results[1].Status != StatusSilence || results[1].Duration != 1.0 {
		t.Errorf("result 1 = %q/%v, want silence floored at 1s", results[1].Status, results[1].Duration)
	}
}

func TestSynthesizeProviderFailureSubstitutesSilence(t *testing.T) {
	t.Parallel()

	store, sid := newTestSession(t)
	provider := &ttsmock.Provider{
		SynthesizeFunc: func(context.Context, tts.Request) (*tts.Result, error) {
			return nil, errors.New("upstream 500")
		},
	}
	s, _ := New(store, provider, nil, Options{})

	results, err := s.SynthesizeAll(context.Background(), sid,
		[]types.MergedSegment{mergedSeg("merged_000", 0, 2.5, "पाठ")}, types.LangHindi, nil)
	if err != nil {
		t.Fatalf("provider failure must not abort the stage: %v", err)
	}
	res := results[0]
	if res.Status != StatusFailed {
		t.Errorf("status = %q, want failed", res.Status)
	}
	if res.Error == "" {
		t.Error("failure cause not recorded")
	}
	if res.Duration != 2.5 {
		t.Errorf("substitute duration = %v, want segment duration", res.Duration)
	}
	clip, err := media.ReadAudioFile(res.Path)
	if err != nil {
		t.Fatalf("silence substitute unreadable: %v", err)
	}
	if media.RMSDBFS(clip) > -80 {
		t.Error("substitute is not silent")
	}
}

func TestRouteMissingProvider(t *testing.T) {
	t.Parallel()

	store, sid := newTestSession(t)
	s, _ := New(store, &ttsmock.Provider{}, nil, Options{})

	// A non-Hindi target with no configured provider fails the segment, not
	// the call.
	results, err := s.SynthesizeAll(context.Background(), sid,
		[]types.MergedSegment{mergedSeg("merged_000", 0, 2, "text")}, types.LangTamil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Status != StatusFailed {
		t.Errorf("status = %q, want failed when no provider routes", results[0].Status)
	}
}

func TestResolveVoice(t *testing.T) {
	t.Parallel()

	store, _ := newTestSession(t)
	catalogue := []tts.Voice{
		{ID: "anushka", Name: "Anushka"},
		{ID: "abhilash", Name: "Abhilash"},
	}
	s, _ := New(store, &ttsmock.Provider{Voices: catalogue}, nil, Options{})
	provider := &ttsmock.Provider{Voices: catalogue}

	tests := []struct {
		name, in, want string
	}{
		{"empty passes through", "", ""},
		{"exact id wins", "anushka", "anushka"},
		{"case and typo resolved", "Anushk", "anushka"},
		{"trailing space resolved", "abhilash ", "abhilash"},
		{"no close match drops", "totally-unknown-voice", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := s.resolveVoice(context.Background(), provider, tt.in); got != tt.want {
				t.Errorf("resolveVoice(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolveVoicePassthroughOnCatalogueError(t *testing.T) {
	t.Parallel()

	store, _ := newTestSession(t)
	s, _ := New(store, &ttsmock.Provider{}, nil, Options{})
	broken := &ttsmock.Provider{Err: errors.New("catalogue down")}

	if got := s.resolveVoice(context.Background(), broken, "anushka"); got != "anushka" {
		t.Errorf("got %q, want the name passed through", got)
	}
}

func TestSynthesizeAppliesVoiceMap(t *testing.T) {
	t.Parallel()

	store, sid := newTestSession(t)
	provider := &ttsmock.Provider{Voices: []tts.Voice{{ID: "anushka", Name: "Anushka"}}}
	s, _ := New(store, provider, nil, Options{})

	_, err := s.SynthesizeAll(context.Background(), sid,
		[]types.MergedSegment{mergedSeg("merged_000", 0, 2, "पाठ")}, types.LangHindi,
		map[string]string{"SPEAKER_00": "Anushk"})
	if err != nil {
		t.Fatal(err)
	}
	reqs := provider.Requests()
	if len(reqs) != 1 {
		t.Fatalf("calls = %d", len(reqs))
	}
	if reqs[0].VoiceID != "anushka" {
		t.Errorf("voice = %q, want fuzzy-resolved catalogue id", reqs[0].VoiceID)
	}
}

func TestSpeakConcatenatesChunks(t *testing.T) {
	t.Parallel()

	store, _ := newTestSession(t)
	provider := &ttsmock.Provider{}
	s, _ := New(store, provider, nil, Options{MaxChunkChars: 20})

	text := "One sentence here. Another sentence here. And one more line."
	clip, err := s.speak(context.Background(), provider, text, "", types.LangHindi, 0)
	if err != nil {
		t.Fatal(err)
	}
	calls := len(provider.Requests())
	if calls < 2 {
		t.Fatalf("calls = %d, want chunked synthesis", calls)
	}
	// Each mock call yields 1s of audio; the clip is their concatenation.
	if got := clip.Duration(); got < float64(calls)-0.1 {
		t.Errorf("duration = %v for %d chunks", got, calls)
	}
}

func TestChunkText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		max  int
		want int
	}{
		{"short stays whole", "छोटा वाक्य।", 500, 1},
		{"sentences grouped", "One two. Three four. Five six.", 20, 2},
		{"danda is a boundary", "पहला वाक्य। दूसरा वाक्य। तीसरा वाक्य।", 35, 3},
		{"oversized sentence splits on words", strings.Repeat("word ", 30), 40, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := chunkText(tt.in, tt.max)
			if len(got) != tt.want {
				t.Errorf("chunkText(%q, %d) = %d chunks %q, want %d", tt.in, tt.max, len(got), got, tt.want)
			}
			for _, chunk := range got {
				if len(chunk) > tt.max {
					t.Errorf("chunk %q exceeds %d bytes", chunk, tt.max)
				}
			}
		})
	}
}
