package media

import (
	"math"
	"testing"
)

// tone returns a clip filled with a constant amplitude square-ish signal,
// enough for level and placement assertions.
func tone(seconds float64, rate int, amp int16) Clip {
	c := Silence(seconds, rate)
	for i := 0; i+1 < len(c.Data); i += 2 {
		c.Data[i] = byte(amp)
		c.Data[i+1] = byte(amp >> 8)
	}
	return c
}

func sampleAt(c Clip, i int) int16 {
	return int16(c.Data[2*i]) | int16(c.Data[2*i+1])<<8
}

func TestSilence(t *testing.T) {
	t.Parallel()

	c := Silence(1.5, 22050)
	if got := c.Samples(); got != 33075 {
		t.Errorf("Samples() = %d, want 33075", got)
	}
	if math.Abs(c.Duration()-1.5) > 1e-9 {
		t.Errorf("Duration() = %f, want 1.5", c.Duration())
	}
	if Silence(-1, 22050).Samples() != 0 {
		t.Error("negative duration should yield an empty clip")
	}
}

func TestConcatenate(t *testing.T) {
	t.Parallel()

	a := Silence(1, 22050)
	b := Silence(0.5, 22050)
	out := Concatenate(a, b)
	if math.Abs(out.Duration()-1.5) > 1e-3 {
		t.Errorf("Duration() = %f, want 1.5", out.Duration())
	}

	// Mismatched rates resample the second clip.
	c := Silence(1, 44100)
	out = Concatenate(a, c)
	if out.SampleRate != 22050 {
		t.Errorf("SampleRate = %d, want 22050", out.SampleRate)
	}
	if math.Abs(out.Duration()-2.0) > 1e-2 {
		t.Errorf("Duration() = %f, want 2.0", out.Duration())
	}
}

func TestOverlayPlacementAndSaturation(t *testing.T) {
	t.Parallel()

	base := Silence(2, 1000)
	over := tone(0.5, 1000, 1000)

	out := Overlay(base, over, 500) // 500ms in
	if sampleAt(out, 499) != 0 {
		t.Error("sample before the overlay position is not silent")
	}
	if sampleAt(out, 500) != 1000 {
		t.Errorf("sample at overlay position = %d, want 1000", sampleAt(out, 500))
	}
	if sampleAt(out, 1001) != 0 {
		t.Error("sample after the overlay end is not silent")
	}
	if len(out.Data) != len(base.Data) {
		t.Error("overlay changed the base length")
	}

	// Mixing two near-max tones saturates instead of wrapping.
	loud := tone(1, 1000, 30000)
	out = Overlay(loud, loud, 0)
	if sampleAt(out, 10) != 32767 {
		t.Errorf("saturated sample = %d, want 32767", sampleAt(out, 10))
	}
}

func TestLoopToLength(t *testing.T) {
	t.Parallel()

	c := tone(0.5, 1000, 123)
	out := LoopToLength(c, 2000) // 2s from a 0.5s clip
	if out.Samples() != 2000 {
		t.Fatalf("Samples() = %d, want 2000", out.Samples())
	}
	if sampleAt(out, 1999) != 123 {
		t.Errorf("looped tail sample = %d, want 123", sampleAt(out, 1999))
	}

	out = LoopToLength(c, 100) // shorter than the clip truncates
	if out.Samples() != 100 {
		t.Errorf("Samples() = %d, want 100", out.Samples())
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	c := Silence(2, 1000)
	if got := Truncate(c, 0.5).Samples(); got != 500 {
		t.Errorf("Samples() = %d, want 500", got)
	}
	if got := Truncate(c, 5).Samples(); got != 2000 {
		t.Errorf("long limit should be a no-op, got %d samples", got)
	}
}

func TestGain(t *testing.T) {
	t.Parallel()

	c := tone(0.1, 1000, 10000)
	out := Gain(c, -6)
	got := sampleAt(out, 5)
	if got < 4900 || got > 5200 {
		t.Errorf("-6dB of 10000 = %d, want ≈5012", got)
	}
	if s := sampleAt(Gain(tone(0.1, 1000, 30000), 12), 5); s != 32767 {
		t.Errorf("boost should saturate, got %d", s)
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	c := tone(1, 44100, 2000)
	out := Resample(c, 22050)
	if out.SampleRate != 22050 {
		t.Fatalf("SampleRate = %d", out.SampleRate)
	}
	if math.Abs(out.Duration()-1.0) > 1e-2 {
		t.Errorf("Duration() = %f, want 1.0", out.Duration())
	}
	if sampleAt(out, 100) != 2000 {
		t.Errorf("resampled level = %d, want 2000", sampleAt(out, 100))
	}
}

func TestRMSDBFS(t *testing.T) {
	t.Parallel()

	if db := RMSDBFS(Silence(0.1, 1000)); db > -80 {
		t.Errorf("silence RMS = %f dBFS, want very low", db)
	}
	loud := RMSDBFS(tone(0.1, 1000, 30000))
	if loud > 0 || loud < -3 {
		t.Errorf("near-full-scale tone RMS = %f dBFS, want within [-3, 0]", loud)
	}
}
