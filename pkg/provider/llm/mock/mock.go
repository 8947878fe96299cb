// Package mock provides a scriptable llm.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/anuvox/anuvox/pkg/provider/llm"
)

// Provider is a mock llm.Provider. Responses are served either from the
// CompleteFunc callback (when set) or from the Responses queue in order,
// repeating the last entry once the queue is exhausted.
//
// Provider records every request it receives; Requests is safe to inspect
// after all completions have returned.
type Provider struct {
	// CompleteFunc, when non-nil, handles every Complete call.
	CompleteFunc func(ctx context.Context, req llm.Request) (*llm.Response, error)

	// Responses is the response queue used when CompleteFunc is nil.
	Responses []*llm.Response

	// Err, when non-nil, is returned by every Complete call (after
	// recording the request) unless CompleteFunc is set.
	Err error

	mu       sync.Mutex
	requests []llm.Request
	calls    int
}

// Compile-time assertion that Provider satisfies llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	n := p.calls
	p.calls++
	p.mu.Unlock()

	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, req)
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) == 0 {
		return &llm.Response{}, nil
	}
	if n >= len(p.Responses) {
		n = len(p.Responses) - 1
	}
	return p.Responses[n], nil
}

// Requests returns a copy of all recorded requests in call order.
func (p *Provider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Request, len(p.requests))
	copy(out, p.requests)
	return out
}

// Calls returns the number of Complete invocations so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
