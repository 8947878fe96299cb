// Package media is the audio adapter for the dubbing pipeline.
//
// It owns every audio operation the pipeline performs: decoding and encoding
// WAV and MP3, pure-PCM editing (silence, concatenation, overlay, gain,
// looping), duration probing, loudness measurement, and tempo-based time
// stretching. PCM editing is pure Go; time stretching and format conversions
// that need a real codec shell out to ffmpeg through [Toolchain].
//
// All PCM in this package is little-endian signed 16-bit mono unless a
// function documents otherwise.
package media

import (
	"errors"
	"fmt"
)

// Common sample rates used by the pipeline.
const (
	// RateSynthesis is the sample rate TTS clips are normalised to.
	RateSynthesis = 22050

	// RateCanvas is the sample rate of the final stitched output.
	RateCanvas = 44100
)

// ErrMedia is the sentinel all media adapter failures wrap. Callers can use
// errors.Is(err, media.ErrMedia) to distinguish codec/IO problems from
// pipeline logic errors.
var ErrMedia = errors.New("media error")

// mediaErr wraps err as a media adapter failure for operation op.
func mediaErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMedia, op, err)
}
