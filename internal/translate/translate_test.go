package translate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anuvox/anuvox/pkg/provider/llm"
	llmmock "github.com/anuvox/anuvox/pkg/provider/llm/mock"
	"github.com/anuvox/anuvox/pkg/types"
)

func testDiarization(n int) *types.Diarization {
	d := &types.Diarization{LanguageCode: "hi-IN"}
	speakers := []string{"SPEAKER_00", "SPEAKER_01"}
	for i := 0; i < n; i++ {
		d.Segments = append(d.Segments, types.Segment{
			SegmentID: segID(i),
			Speaker:   speakers[i%2],
			StartTime: float64(i),
			EndTime:   float64(i) + 0.9,
			Text:      "line " + segID(i),
		})
	}
	d.Rebuild()
	return d
}

func segID(i int) string {
	return string([]byte{'0', '0' + byte(i/10), '0' + byte(i%10)})
}

func TestTranslateFillsEverySegment(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteFunc: func(_ context.Context, req llm.Request) (*llm.Response, error) {
			return &llm.Response{Content: "अनुवाद"}, nil
		},
	}
	tr, err := New(provider, Options{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}

	in := testDiarization(5)
	out, err := tr.Translate(context.Background(), in, types.LangHindi, types.LangEnglish)
	if err != nil {
		t.Fatal(err)
	}
	for _, seg := range out.Segments {
		if seg.TranslatedText != "अनुवाद" {
			t.Errorf("segment %s not translated: %q", seg.SegmentID, seg.TranslatedText)
		}
	}
	if out.TargetLanguage != "english" {
		t.Errorf("TargetLanguage = %q", out.TargetLanguage)
	}
	// The input must stay frozen.
	for _, seg := range in.Segments {
		if seg.TranslatedText != "" {
			t.Error("input diarization was mutated")
		}
	}
}

func TestTranslatePerSegmentFailureGetsMarker(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteFunc: func(_ context.Context, req llm.Request) (*llm.Response, error) {
			if strings.HasSuffix(req.Messages[0].Content, "line 001") {
				return nil, errors.New("rate limited")
			}
			return &llm.Response{Content: "ok"}, nil
		},
	}
	tr, _ := New(provider, Options{Workers: 1})

	out, err := tr.Translate(context.Background(), testDiarization(3), types.LangHindi, types.LangEnglish)
	if err != nil {
		t.Fatalf("partial failure must not error the call: %v", err)
	}
	if !strings.HasPrefix(out.Segments[1].TranslatedText, types.ErrorMarkerPrefix) {
		t.Errorf("failed segment text = %q, want error marker", out.Segments[1].TranslatedText)
	}
	if out.Segments[0].TranslatedText != "ok" || out.Segments[2].TranslatedText != "ok" {
		t.Error("healthy segments affected by the failure")
	}
	if strings.Contains(out.Transcript, types.ErrorMarkerPrefix) {
		t.Error("error marker leaked into the transcript")
	}
}

func TestTranslateAllFailed(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Err: errors.New("down")}
	tr, _ := New(provider, Options{Workers: 1})

	out, err := tr.Translate(context.Background(), testDiarization(2), types.LangHindi, types.LangEnglish)
	if !errors.Is(err, ErrAllSegmentsFailed) {
		t.Fatalf("err = %v, want ErrAllSegmentsFailed", err)
	}
	if out == nil || len(out.Segments) != 2 {
		t.Fatal("marked diarization must still be returned")
	}
	for _, seg := range out.Segments {
		if !strings.HasPrefix(seg.TranslatedText, types.ErrorMarkerPrefix) {
			t.Errorf("segment %s lacks marker: %q", seg.SegmentID, seg.TranslatedText)
		}
	}
}

func TestBuildSegmentPromptContextWindows(t *testing.T) {
	t.Parallel()

	tr, _ := New(&llmmock.Provider{}, Options{ContextBefore: 2, SameSpeakerContext: 2})
	d := testDiarization(8) // speakers alternate 00/01

	prompt := tr.buildSegmentPrompt(d, 6, types.LangEnglish)

	// Immediate window: segments 4 and 5.
	if !strings.Contains(prompt, "line 004") || !strings.Contains(prompt, "line 005") {
		t.Errorf("immediate context missing:\n%s", prompt)
	}
	// Same-speaker window: prior SPEAKER_00 lines outside the immediate
	// window, i.e. segments 2 and 0.
	if !strings.Contains(prompt, "line 002") || !strings.Contains(prompt, "line 000") {
		t.Errorf("same-speaker context missing:\n%s", prompt)
	}
	// Segment 3 belongs to the other speaker and is outside the window.
	if strings.Contains(prompt, "line 003") {
		t.Errorf("unexpected segment in context:\n%s", prompt)
	}
	if !strings.Contains(prompt, "line 006") {
		t.Errorf("current line missing:\n%s", prompt)
	}
}

func TestSameSpeakerContextChronological(t *testing.T) {
	t.Parallel()

	segs := testDiarization(10).Segments
	got := sameSpeakerContext(segs, 8, 3)
	if len(got) != 3 {
		t.Fatalf("got %d segments, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].StartTime < got[i-1].StartTime {
			t.Error("same-speaker context not in chronological order")
		}
	}
}

func TestCleanModelOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{`"quoted"`, "quoted"},
		{"```\nfenced\n```", "fenced"},
		{"  padded  ", "padded"},
	}
	for _, tt := range tests {
		if got := cleanModelOutput(tt.in); got != tt.want {
			t.Errorf("cleanModelOutput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTranslateUsesConfiguredTemperature(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Responses: []*llm.Response{{Content: "x"}}}
	tr, _ := New(provider, Options{})

	if _, err := tr.Translate(context.Background(), testDiarization(1), types.LangHindi, types.LangEnglish); err != nil {
		t.Fatal(err)
	}
	reqs := provider.Requests()
	if len(reqs) != 1 {
		t.Fatalf("calls = %d", len(reqs))
	}
	if reqs[0].Temperature != 0.2 {
		t.Errorf("temperature = %v, want default 0.2", reqs[0].Temperature)
	}
	if reqs[0].SystemPrompt == "" {
		t.Error("system prompt missing")
	}
}
