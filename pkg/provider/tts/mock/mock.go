// Package mock provides a scriptable tts.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/anuvox/anuvox/pkg/provider/tts"
)

// Provider is a mock tts.Provider. When SynthesizeFunc is set it handles
// every call; otherwise Result/Err are returned verbatim. All requests are
// recorded for later inspection.
type Provider struct {
	SynthesizeFunc func(ctx context.Context, req tts.Request) (*tts.Result, error)
	Result         *tts.Result
	Err            error

	// Voices is returned by ListVoices.
	Voices []tts.Voice

	mu       sync.Mutex
	requests []tts.Request
}

// Compile-time assertion that Provider satisfies tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.SynthesizeFunc != nil {
		return p.SynthesizeFunc(ctx, req)
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Result != nil {
		return p.Result, nil
	}
	// A short burst of non-zero PCM so duration-sensitive callers see audio.
	return &tts.Result{
		Audio:      make([]byte, 22050*2), // 1 s of silence at 22.05 kHz
		Encoding:   tts.EncodingPCM,
		SampleRate: 22050,
	}, nil
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(context.Context) ([]tts.Voice, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([]tts.Voice, len(p.Voices))
	copy(out, p.Voices)
	return out, nil
}

// Requests returns a copy of all recorded requests in call order.
func (p *Provider) Requests() []tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.Request, len(p.requests))
	copy(out, p.requests)
	return out
}
