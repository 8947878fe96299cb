// Package tts defines the Provider interface for Text-to-Speech backends.
//
// The synthesizer routes each segment to a provider (Sarvam for Hindi,
// Cartesia otherwise) and receives encoded audio back. Providers report the
// encoding of their output so the caller can normalise everything to WAV
// through the media adapter.
//
// Implementations must be safe for concurrent use — the synthesizer runs a
// bounded worker pool of per-segment Synthesize calls against one Provider.
package tts

import "context"

// Encoding identifies the container/codec of synthesised audio bytes.
type Encoding string

const (
	// EncodingWAV is a complete RIFF/WAVE file.
	EncodingWAV Encoding = "wav"

	// EncodingMP3 is an MPEG-1 Layer III stream.
	EncodingMP3 Encoding = "mp3"

	// EncodingPCM is raw 16-bit little-endian signed mono PCM with no
	// container.
	EncodingPCM Encoding = "pcm"
)

// Voice describes one synthesis voice offered by a provider.
type Voice struct {
	// ID is the provider-specific voice identifier passed in Request.VoiceID.
	ID string `json:"id"`

	// Name is the human-readable voice name (e.g., "Anushka").
	Name string `json:"name"`

	// Language is the BCP-47 language the voice is tuned for, empty for
	// multilingual voices.
	Language string `json:"language,omitempty"`

	// Gender is "male", "female", or empty when unknown.
	Gender string `json:"gender,omitempty"`
}

// Request carries the text to synthesise.
type Request struct {
	// Text is the text to speak. Callers chunk long inputs; providers may
	// reject texts above their payload cap.
	Text string

	// VoiceID selects the voice. Empty uses the provider default.
	VoiceID string

	// Language is a BCP-47 tag (e.g., "hi-IN") guiding pronunciation.
	Language string

	// SampleRate is the requested output rate in Hz. Zero uses the provider
	// default.
	SampleRate int

	// Pace is a speaking-rate multiplier, 1.0 = normal. Zero means default.
	Pace float64
}

// Result is the synthesised audio for one Request.
type Result struct {
	// Audio is the encoded audio payload.
	Audio []byte

	// Encoding identifies the payload format.
	Encoding Encoding

	// SampleRate is the rate of the payload in Hz.
	SampleRate int
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts the request text into audio. It blocks until the
	// provider responds or ctx is cancelled.
	Synthesize(ctx context.Context, req Request) (*Result, error)

	// ListVoices returns the provider's voice catalogue. Providers with a
	// fixed voice set may serve it from memory without a network call.
	ListVoices(ctx context.Context) ([]Voice, error)
}
