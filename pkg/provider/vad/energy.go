package vad

import (
	"context"
	"errors"

	"github.com/anuvox/anuvox/pkg/media"
)

const (
	defaultFrameMs     = 30
	defaultThresholdDB = -40.0
	defaultMinSpeechMs = 200
	defaultHangoverMs  = 300
)

// Energy is a frame-energy voice activity detector. Each frame's RMS level
// is compared against a dBFS threshold; contiguous loud frames become speech
// regions, with a hangover window bridging short intra-phrase pauses.
//
// It is deliberately simple — the downstream ASR tolerates loose region
// boundaries, and an energy gate needs no model files.
type Energy struct {
	frameMs     int
	thresholdDB float64
	minSpeechMs int
	hangoverMs  int
}

// Compile-time assertion that Energy satisfies Detector.
var _ Detector = (*Energy)(nil)

// EnergyOption is a functional option for configuring an Energy detector.
type EnergyOption func(*Energy)

// WithFrameMs sets the analysis frame length in milliseconds (default 30).
func WithFrameMs(ms int) EnergyOption {
	return func(e *Energy) { e.frameMs = ms }
}

// WithThresholdDB sets the speech threshold in dBFS (default −40). Frames
// quieter than this are classified as silence.
func WithThresholdDB(db float64) EnergyOption {
	return func(e *Energy) { e.thresholdDB = db }
}

// WithMinSpeechMs sets the minimum region length in milliseconds; shorter
// bursts are discarded as noise (default 200).
func WithMinSpeechMs(ms int) EnergyOption {
	return func(e *Energy) { e.minSpeechMs = ms }
}

// WithHangoverMs sets how much trailing silence is tolerated inside a region
// before it is closed (default 300).
func WithHangoverMs(ms int) EnergyOption {
	return func(e *Energy) { e.hangoverMs = ms }
}

// NewEnergy constructs an Energy detector with the default tuning.
func NewEnergy(opts ...EnergyOption) *Energy {
	e := &Energy{
		frameMs:     defaultFrameMs,
		thresholdDB: defaultThresholdDB,
		minSpeechMs: defaultMinSpeechMs,
		hangoverMs:  defaultHangoverMs,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// DetectSpeech implements Detector.
func (e *Energy) DetectSpeech(ctx context.Context, clip media.Clip) ([]Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if clip.SampleRate <= 0 {
		return nil, errors.New("vad: clip has no sample rate")
	}

	frameSamples := clip.SampleRate * e.frameMs / 1000
	if frameSamples <= 0 {
		frameSamples = 1
	}
	frameBytes := frameSamples * 2
	frameSec := float64(e.frameMs) / 1000.0
	hangoverFrames := e.hangoverMs / e.frameMs

	var (
		regions  []Region
		open     bool
		start    float64
		lastLoud float64
		silent   int
	)

	for i, off := 0, 0; off < len(clip.Data); i, off = i+1, off+frameBytes {
		end := off + frameBytes
		if end > len(clip.Data) {
			end = len(clip.Data)
		}
		frame := media.Clip{Data: clip.Data[off:end], SampleRate: clip.SampleRate}
		t := float64(i) * frameSec

		if media.RMSDBFS(frame) >= e.thresholdDB {
			if !open {
				open = true
				start = t
			}
			lastLoud = t + frameSec
			silent = 0
			continue
		}
		if open {
			silent++
			if silent > hangoverFrames {
				regions = e.closeRegion(regions, start, lastLoud)
				open = false
			}
		}
	}
	if open {
		regions = e.closeRegion(regions, start, lastLoud)
	}
	return regions, nil
}

// closeRegion appends the region unless it is shorter than the noise floor.
func (e *Energy) closeRegion(regions []Region, start, end float64) []Region {
	if (end-start)*1000 < float64(e.minSpeechMs) {
		return regions
	}
	return append(regions, Region{Start: start, End: end})
}
