// Package mock provides a scriptable asr.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/anuvox/anuvox/pkg/provider/asr"
)

// Provider is a mock asr.Provider. When TranscribeFunc is set it handles
// every call; otherwise Result/Err are returned verbatim. All requests are
// recorded for later inspection.
type Provider struct {
	TranscribeFunc func(ctx context.Context, req asr.Request) (*asr.Result, error)
	Result         *asr.Result
	Err            error

	mu       sync.Mutex
	requests []asr.Request
}

// Compile-time assertion that Provider satisfies asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Transcribe implements asr.Provider.
func (p *Provider) Transcribe(ctx context.Context, req asr.Request) (*asr.Result, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.TranscribeFunc != nil {
		return p.TranscribeFunc(ctx, req)
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Result != nil {
		return p.Result, nil
	}
	return &asr.Result{}, nil
}

// Requests returns a copy of all recorded requests in call order.
func (p *Provider) Requests() []asr.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]asr.Request, len(p.requests))
	copy(out, p.requests)
	return out
}
