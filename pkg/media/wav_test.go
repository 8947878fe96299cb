package media

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	in := tone(0.25, RateSynthesis, 1234)
	var buf bytes.Buffer
	if err := EncodeWAV(&buf, in); err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	out, err := DecodeWAV(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if out.SampleRate != in.SampleRate {
		t.Errorf("SampleRate = %d, want %d", out.SampleRate, in.SampleRate)
	}
	if !bytes.Equal(out.Data, in.Data) {
		t.Error("decoded samples differ from encoded samples")
	}
}

func TestWAVFileDuration(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := WriteWAVFile(path, Silence(2.0, RateCanvas)); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}
	dur, err := WAVDuration(path)
	if err != nil {
		t.Fatalf("WAVDuration: %v", err)
	}
	if math.Abs(dur-2.0) > 1e-3 {
		t.Errorf("duration = %f, want 2.0", dur)
	}

	clip, err := ReadAudioFile(path)
	if err != nil {
		t.Fatalf("ReadAudioFile: %v", err)
	}
	if clip.SampleRate != RateCanvas {
		t.Errorf("SampleRate = %d, want %d", clip.SampleRate, RateCanvas)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := DecodeWAV(bytes.NewReader([]byte("not a wav file"))); err == nil {
		t.Error("DecodeWAV accepted garbage input")
	}
}
