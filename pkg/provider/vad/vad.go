// Package vad defines the Detector interface for voice activity detection
// and ships an energy-based implementation.
//
// The transcriber uses a Detector to slice long recordings into speech
// regions before handing each region to the ASR provider, which keeps
// per-call payloads small and stops silence from being billed as speech.
package vad

import (
	"context"

	"github.com/anuvox/anuvox/pkg/media"
)

// Region is one detected span of speech, in seconds from the start of the
// analysed clip, End > Start.
type Region struct {
	Start float64
	End   float64
}

// Duration returns the region length in seconds.
func (r Region) Duration() float64 { return r.End - r.Start }

// Detector finds speech regions in an audio clip.
//
// Implementations must be safe for concurrent use.
type Detector interface {
	// DetectSpeech returns the speech regions of the clip in chronological
	// order. An empty slice means the clip contains no detectable speech.
	DetectSpeech(ctx context.Context, clip media.Clip) ([]Region, error)
}
