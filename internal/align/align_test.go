package align

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/anuvox/anuvox/internal/session"
	"github.com/anuvox/anuvox/pkg/types"
)

// fakeStretcher scripts stretch behaviour without an ffmpeg binary.
type fakeStretcher struct {
	// durations maps path to probed seconds; missing paths error.
	durations map[string]float64

	stretchErr error
	calls      []float64
}

func (f *fakeStretcher) TimeStretch(_ context.Context, inPath, outPath string, factor float64) error {
	f.calls = append(f.calls, factor)
	if f.stretchErr != nil {
		return f.stretchErr
	}
	// The output probes at input/factor unless scripted explicitly.
	if _, ok := f.durations[outPath]; !ok {
		f.durations[outPath] = f.durations[inPath] / factor
	}
	return os.WriteFile(outPath, []byte("stretched"), 0o644)
}

func (f *fakeStretcher) ProbeDuration(_ context.Context, path string) (float64, error) {
	d, ok := f.durations[path]
	if !ok {
		return 0, errors.New("no such stream")
	}
	return d, nil
}

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

// seedArtifact writes a non-empty synthesis artifact and registers its
// probed duration with the fake.
func seedArtifact(t *testing.T, store *session.Store, sid, name string, f *fakeStretcher, dur float64) string {
	t.Helper()
	path := store.Path(sid, "synthesis", name)
	if err := os.WriteFile(path, []byte("pcm"), 0o644); err != nil {
		t.Fatal(err)
	}
	f.durations[path] = dur
	return path
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		factor    float64
		diff      float64
		wantLevel types.QualityLevel
		wantScore float64
	}{
		{"unity", 1.0, 0, types.QualityGood, 100},
		{"good lower bound", 0.8, 0, types.QualityGood, 100},
		{"good upper bound", 1.25, 0, types.QualityGood, 100},
		{"acceptable slow", 0.7, 0, types.QualityAcceptable, 70},
		{"acceptable fast", 1.5, 0, types.QualityAcceptable, 70},
		{"acceptable upper bound", 1.75, 0, types.QualityAcceptable, 70},
		{"poor slow", 0.5, 0, types.QualityPoor, 40},
		{"poor fast", 2.0, 0, types.QualityPoor, 40},
		{"duration miss docks score", 1.0, 0.6, types.QualityGood, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			level, score := classify(tt.factor, tt.diff)
			if level != tt.wantLevel || score != tt.wantScore {
				t.Errorf("classify(%v, %v) = %v/%v, want %v/%v",
					tt.factor, tt.diff, level, score, tt.wantLevel, tt.wantScore)
			}
		})
	}
}

func TestAlignSegment(t *testing.T) {
	t.Parallel()

	store, sid := newTestSession(t)
	f := &fakeStretcher{durations: map[string]float64{}}
	in := seedArtifact(t, store, sid, "segment_merged_000.wav", f, 3.0)
	out := store.Path(sid, "synthesis", "segment_merged_000_time_aligned.wav")

	a, err := New(store, f)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := a.AlignSegment(context.Background(), in, out, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != types.AlignSuccess {
		t.Errorf("status = %v", rec.Status)
	}
	if rec.SpeedFactor != 1.5 {
		t.Errorf("factor = %v, want 3.0/2.0", rec.SpeedFactor)
	}
	if rec.OriginalDuration != 3.0 || rec.OutputDuration != 2.0 {
		t.Errorf("durations = %v -> %v", rec.OriginalDuration, rec.OutputDuration)
	}
	if rec.QualityLevel != types.QualityAcceptable {
		t.Errorf("quality = %v, want acceptable for 1.5x", rec.QualityLevel)
	}
	if len(f.calls) != 1 || f.calls[0] != 1.5 {
		t.Errorf("stretch calls = %v", f.calls)
	}
}

func TestAlignSegmentClampsSlowFactors(t *testing.T) {
	t.Parallel()

	store, sid := newTestSession(t)
	f := &fakeStretcher{durations: map[string]float64{}}
	// 1s of audio against a 2s slot is a raw 0.5x, below the floor.
	in := seedArtifact(t, store, sid, "segment_merged_000.wav", f, 1.0)
	out := store.Path(sid, "synthesis", "out.wav")

	a, _ := New(store, f)
	rec, err := a.AlignSegment(context.Background(), in, out, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	if rec.SpeedFactor != 0.9 {
		t.Errorf("factor = %v, want clamped to 0.9", rec.SpeedFactor)
	}
	// The clamped output misses the slot; the miss must be recorded.
	if rec.DurationDifference < 0.5 {
		t.Errorf("duration difference = %v, want the residual miss", rec.DurationDifference)
	}
}

func TestAlignSegmentErrors(t *testing.T) {
	t.Parallel()

	store, sid := newTestSession(t)
	a, _ := New(store, &fakeStretcher{durations: map[string]float64{}})
	out := store.Path(sid, "synthesis", "out.wav")

	rec, err := a.AlignSegment(context.Background(), "/nonexistent.wav", out, 2.0)
	if err == nil {
		t.Fatal("unprobeable input accepted")
	}
	if rec.Status != types.AlignFailed || rec.Error == "" {
		t.Errorf("failure record = %+v", rec)
	}

	f := &fakeStretcher{durations: map[string]float64{}}
	in := seedArtifact(t, store, sid, "segment_merged_001.wav", f, 2.0)
	a2, _ := New(store, f)
	if _, err := a2.AlignSegment(context.Background(), in, out, 0); err == nil {
		t.Error("zero target duration accepted")
	}

	f.stretchErr = errors.New("ffmpeg exploded")
	rec, err = a2.AlignSegment(context.Background(), in, out, 2.0)
	if err == nil || rec.Status != types.AlignFailed {
		t.Error("stretch failure not surfaced")
	}
}

func TestAlignAll(t *testing.T) {
	t.Parallel()

	store, sid := newTestSession(t)
	f := &fakeStretcher{durations: map[string]float64{}}
	seedArtifact(t, store, sid, "segment_merged_000.wav", f, 2.0)
	// The second segment's artifact sits under its pre-merge id.
	seedArtifact(t, store, sid, "segment_003.wav", f, 8.0)

	segments := []types.MergedSegment{
		{Segment: types.Segment{SegmentID: "merged_000", StartTime: 0, EndTime: 2}},
		{
			Segment:          types.Segment{SegmentID: "merged_001", StartTime: 3, EndTime: 5},
			OriginalSegments: []types.Segment{{SegmentID: "003"}},
		},
		// No artifact anywhere: skipped.
		{Segment: types.Segment{SegmentID: "merged_002", StartTime: 6, EndTime: 8}},
	}

	a, _ := New(store, f)
	meta, err := a.AlignAll(context.Background(), sid, segments)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Total != 3 || meta.Processed != 2 || meta.Successful != 2 || meta.Failed != 0 {
		t.Errorf("counters = total %d processed %d ok %d failed %d",
			meta.Total, meta.Processed, meta.Successful, meta.Failed)
	}
	if len(meta.Segments) != 3 {
		t.Fatalf("got %d records", len(meta.Segments))
	}
	if meta.Segments[2].Status != types.AlignSkipped {
		t.Errorf("segment without artifact = %v, want skipped", meta.Segments[2].Status)
	}

	// merged_000: 2s into a 2s slot is 1.0x; merged_001: 8s into a 2s slot
	// is 4.0x, within the chained ceiling.
	if meta.Segments[0].SpeedFactor != 1.0 || meta.Segments[1].SpeedFactor != 4.0 {
		t.Errorf("factors = %v, %v", meta.Segments[0].SpeedFactor, meta.Segments[1].SpeedFactor)
	}
	if meta.AvgSpeedFactor != 2.5 || meta.MinSpeedFactor != 1.0 || meta.MaxSpeedFactor != 4.0 {
		t.Errorf("aggregate factors = avg %v min %v max %v",
			meta.AvgSpeedFactor, meta.MinSpeedFactor, meta.MaxSpeedFactor)
	}
	if meta.GoodCount != 1 || meta.PoorCount != 1 {
		t.Errorf("quality counts = good %d poor %d", meta.GoodCount, meta.PoorCount)
	}

	// The report artifact and the metadata summary must both land.
	persisted := &types.AlignmentMetadata{}
	if err := store.ReadJSON(sid, MetadataArtifact, persisted); err != nil {
		t.Fatalf("report artifact missing: %v", err)
	}
	if persisted.Successful != 2 {
		t.Errorf("persisted successful = %d", persisted.Successful)
	}
	summary, err := store.GetField(sid, "time_alignment", nil)
	if err != nil {
		t.Fatalf("metadata summary missing: %v", err)
	}
	if m, ok := summary.(map[string]any); !ok || m["successful"] != float64(2) {
		t.Errorf("summary = %v", summary)
	}
}
