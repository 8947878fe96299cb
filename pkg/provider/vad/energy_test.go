package vad

import (
	"context"
	"math"
	"testing"

	"github.com/anuvox/anuvox/pkg/media"
)

// clipWith lays loud spans onto a silent clip. Spans are [start, end) in
// seconds.
func clipWith(seconds float64, rate int, spans [][2]float64) media.Clip {
	c := media.Silence(seconds, rate)
	for _, span := range spans {
		from := int(span[0]*float64(rate)) * 2
		to := int(span[1]*float64(rate)) * 2
		for i := from; i+1 < to && i+1 < len(c.Data); i += 2 {
			c.Data[i] = 0x00
			c.Data[i+1] = 0x40 // 16384, about -6 dBFS
		}
	}
	return c
}

func TestDetectSpeechSilence(t *testing.T) {
	t.Parallel()

	d := NewEnergy()
	regions, err := d.DetectSpeech(context.Background(), media.Silence(3, 16000))
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 0 {
		t.Errorf("silence produced %d regions", len(regions))
	}
}

func TestDetectSpeechSingleBurst(t *testing.T) {
	t.Parallel()

	d := NewEnergy()
	clip := clipWith(5, 16000, [][2]float64{{1.0, 2.5}})
	regions, err := d.DetectSpeech(context.Background(), clip)
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(regions))
	}
	r := regions[0]
	if math.Abs(r.Start-1.0) > 0.1 || math.Abs(r.End-2.5) > 0.1 {
		t.Errorf("region = [%.2f, %.2f], want ≈[1.0, 2.5]", r.Start, r.End)
	}
}

func TestDetectSpeechBridgesShortPause(t *testing.T) {
	t.Parallel()

	// A 150ms pause is inside the default 300ms hangover, so the two bursts
	// stay one region.
	d := NewEnergy()
	clip := clipWith(5, 16000, [][2]float64{{1.0, 2.0}, {2.15, 3.0}})
	regions, err := d.DetectSpeech(context.Background(), clip)
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1 (pause should be bridged)", len(regions))
	}
}

func TestDetectSpeechSplitsLongPause(t *testing.T) {
	t.Parallel()

	d := NewEnergy()
	clip := clipWith(6, 16000, [][2]float64{{1.0, 2.0}, {3.5, 4.5}})
	regions, err := d.DetectSpeech(context.Background(), clip)
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 2 {
		t.Fatalf("got %d regions, want 2", len(regions))
	}
}

func TestDetectSpeechDropsShortBursts(t *testing.T) {
	t.Parallel()

	// 100ms is below the default 200ms minimum.
	d := NewEnergy()
	clip := clipWith(3, 16000, [][2]float64{{1.0, 1.1}})
	regions, err := d.DetectSpeech(context.Background(), clip)
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 0 {
		t.Errorf("got %d regions, want 0 (burst below minimum)", len(regions))
	}
}

func TestRegionDuration(t *testing.T) {
	t.Parallel()

	if got := (Region{Start: 1.5, End: 4.0}).Duration(); got != 2.5 {
		t.Errorf("Duration() = %v, want 2.5", got)
	}
}
