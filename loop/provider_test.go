package loop_test

import (
	"context"
	"errors"
	"sync"

	"github.com/loopkit/agentcore/provider"
)

// scriptedProvider replays a fixed sequence of responses/errors, one per
// Complete call, mirroring the teacher's scripted fake-client test style.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*provider.Response
	errs      []error
	idx       int
	requests  []*provider.Request
}

func (p *scriptedProvider) Complete(_ context.Context, req *provider.Request) (*provider.Response, error) {
	p.mu.Lock()
	i := p.idx
	p.idx++
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i >= len(p.responses) {
		return nil, errors.New("scriptedProvider: no more scripted responses")
	}
	return p.responses[i], nil
}

func (p *scriptedProvider) Stream(context.Context, *provider.Request) (provider.Streamer, error) {
	return nil, errors.New("scriptedProvider: streaming not supported")
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idx
}
