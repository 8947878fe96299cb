// Package asr defines the Provider interface for batch speech recognition
// with speaker diarization.
//
// Unlike a live captioning stream, the dubbing pipeline transcribes finished
// recordings, so the central operation is a single blocking Transcribe call:
// audio bytes in, a diarized result out. Providers wrap cloud APIs (Sarvam)
// or local models (whisper.cpp); the transcriber composes them behind a
// fallback chain.
//
// Implementations must be safe for concurrent use — the transcriber may issue
// several regional Transcribe calls at once.
package asr

import "context"

// Segment is one diarized span of recognised speech.
type Segment struct {
	// Speaker is an opaque diarization label such as "SPEAKER_00".
	Speaker string

	// Start and End are offsets in seconds from the beginning of the
	// submitted audio, End > Start.
	Start float64
	End   float64

	// Text is the recognised text for the span.
	Text string

	// Confidence is the provider's recognition confidence in [0, 1],
	// 0 when the provider does not report one.
	Confidence float64
}

// Request carries the audio to transcribe.
type Request struct {
	// Audio is raw 16-bit little-endian signed mono PCM.
	Audio []byte

	// SampleRate is the PCM sample rate in Hz.
	SampleRate int

	// Language is a BCP-47 hint (e.g., "hi-IN"). Empty lets the provider
	// auto-detect.
	Language string
}

// Result is the diarized transcription of one Request.
type Result struct {
	// LanguageCode is the detected (or confirmed) BCP-47 language.
	LanguageCode string

	// Transcript is the full recognised text.
	Transcript string

	// Segments are the diarized spans in chronological order. May be empty
	// when the audio contains no recognisable speech.
	Segments []Segment
}

// Provider is the abstraction over any batch ASR backend.
type Provider interface {
	// Transcribe runs recognition over the full request audio and returns
	// the diarized result. It blocks until the provider responds or ctx is
	// cancelled.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
