package media

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Clip is a buffer of little-endian int16 mono PCM at a known sample rate.
// The zero value is an empty clip; most editing functions accept and return
// clips by value since Data is the only heap allocation.
type Clip struct {
	Data       []byte
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Data)/2) / float64(c.SampleRate)
}

// Samples returns the number of int16 samples in the clip.
func (c Clip) Samples() int {
	return len(c.Data) / 2
}

// Silence returns a clip of the given duration filled with zero samples.
func Silence(seconds float64, sampleRate int) Clip {
	if seconds < 0 {
		seconds = 0
	}
	n := int(math.Round(seconds * float64(sampleRate)))
	return Clip{Data: make([]byte, n*2), SampleRate: sampleRate}
}

// Concatenate appends b after a. Both clips must share a sample rate; b is
// resampled when they differ.
func Concatenate(a, b Clip) Clip {
	if a.SampleRate == 0 {
		return b
	}
	if b.SampleRate != a.SampleRate && b.SampleRate != 0 {
		b = Resample(b, a.SampleRate)
	}
	out := make([]byte, len(a.Data)+len(b.Data))
	copy(out, a.Data)
	copy(out[len(a.Data):], b.Data)
	return Clip{Data: out, SampleRate: a.SampleRate}
}

// Overlay mixes overlay into base starting at positionMs, saturating at the
// int16 range. Samples of the overlay that fall past the end of base are
// dropped — the base clip's length never changes.
func Overlay(base, overlay Clip, positionMs float64) Clip {
	if overlay.SampleRate != base.SampleRate && overlay.SampleRate != 0 {
		overlay = Resample(overlay, base.SampleRate)
	}
	out := make([]byte, len(base.Data))
	copy(out, base.Data)

	offset := int(math.Round(positionMs/1000*float64(base.SampleRate))) * 2
	if offset < 0 {
		offset = 0
	}
	for i := 0; i+1 < len(overlay.Data); i += 2 {
		j := offset + i
		if j+1 >= len(out) {
			break
		}
		a := int32(int16(out[j]) | int16(out[j+1])<<8)
		b := int32(int16(overlay.Data[i]) | int16(overlay.Data[i+1])<<8)
		sum := a + b
		if sum > 32767 {
			sum = 32767
		} else if sum < -32768 {
			sum = -32768
		}
		out[j] = byte(sum)
		out[j+1] = byte(sum >> 8)
	}
	return Clip{Data: out, SampleRate: base.SampleRate}
}

// LoopToLength repeats or truncates c so the result has exactly samples
// int16 samples. Used by the stitcher's background-mix policy: a shorter
// background stem loops, a longer one is cut.
func LoopToLength(c Clip, samples int) Clip {
	out := make([]byte, samples*2)
	if len(c.Data) == 0 {
		return Clip{Data: out, SampleRate: c.SampleRate}
	}
	for written := 0; written < len(out); {
		n := copy(out[written:], c.Data)
		written += n
	}
	return Clip{Data: out, SampleRate: c.SampleRate}
}

// Truncate cuts c to at most seconds of audio. A clip shorter than the limit
// is returned unchanged.
func Truncate(c Clip, seconds float64) Clip {
	limit := int(math.Round(seconds*float64(c.SampleRate))) * 2
	if limit < 0 {
		limit = 0
	}
	if limit >= len(c.Data) {
		return c
	}
	return Clip{Data: c.Data[:limit], SampleRate: c.SampleRate}
}

// Gain applies a gain in decibels to the clip (negative attenuates),
// saturating at the int16 range.
func Gain(c Clip, db float64) Clip {
	factor := math.Pow(10, db/20)
	out := make([]byte, len(c.Data))
	for i := 0; i+1 < len(c.Data); i += 2 {
		s := float64(int16(c.Data[i]) | int16(c.Data[i+1])<<8)
		v := s * factor
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		iv := int16(v)
		out[i] = byte(iv)
		out[i+1] = byte(iv >> 8)
	}
	return Clip{Data: out, SampleRate: c.SampleRate}
}

// RMSDBFS returns the root-mean-square level of the clip in dBFS. A silent
// (or empty) clip reports -96 dBFS, the quantisation floor of 16-bit audio.
func RMSDBFS(c Clip) float64 {
	const floor = -96.0
	n := c.Samples()
	if n == 0 {
		return floor
	}
	squares := make([]float64, n)
	for i := range n {
		s := float64(int16(c.Data[i*2])|int16(c.Data[i*2+1])<<8) / 32768.0
		squares[i] = s * s
	}
	mean := stat.Mean(squares, nil)
	if mean <= 0 {
		return floor
	}
	db := 10 * math.Log10(mean)
	if db < floor {
		return floor
	}
	return db
}

// Resample converts c to dstRate using linear interpolation. Returns c
// unchanged when the rates already match.
func Resample(c Clip, dstRate int) Clip {
	return Clip{Data: resampleMono16(c.Data, c.SampleRate, dstRate), SampleRate: dstRate}
}

// resampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. If srcRate == dstRate the input is returned unchanged.
func resampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// stereoToMono averages L+R per stereo frame (4 bytes) to produce mono.
// Uses int32 arithmetic to prevent overflow and clamps to the int16 range.
func stereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}
