// Package mock provides a scriptable vad.Detector for tests.
package mock

import (
	"context"

	"github.com/anuvox/anuvox/pkg/media"
	"github.com/anuvox/anuvox/pkg/provider/vad"
)

// Detector is a mock vad.Detector returning fixed regions.
type Detector struct {
	Regions []vad.Region
	Err     error
}

// Compile-time assertion that Detector satisfies vad.Detector.
var _ vad.Detector = (*Detector)(nil)

// DetectSpeech implements vad.Detector.
func (d *Detector) DetectSpeech(context.Context, media.Clip) ([]vad.Region, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	out := make([]vad.Region, len(d.Regions))
	copy(out, d.Regions)
	return out, nil
}
