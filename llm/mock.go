package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Mock is a scripted Provider for tests. Responses are served from the
// Script queue in order; when the queue is exhausted the last response
// repeats. RespondFunc, when set, overrides the queue entirely.
type Mock struct {
	mu sync.Mutex

	// Script is the ordered list of responses to serve.
	Script []*Response

	// RespondFunc computes a response per request when set.
	RespondFunc func(req *Request) (*Response, error)

	// Err, when set, fails every call.
	Err error

	// Delay is applied before each call returns.
	Delay time.Duration

	// CallCount is the number of Generate/Stream calls observed.
	CallCount int

	// LastRequest is the most recent request received.
	LastRequest *Request

	// Requests records every request received, in order.
	Requests []*Request
}

var errScriptExhausted = errors.New("mock: empty script")

func (m *Mock) next(req *Request) (*Response, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastRequest = req
	m.Requests = append(m.Requests, req)
	fn := m.RespondFunc
	errOut := m.Err
	var resp *Response
	if len(m.Script) > 0 {
		idx := m.CallCount - 1
		if idx >= len(m.Script) {
			idx = len(m.Script) - 1
		}
		resp = m.Script[idx]
	}
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if errOut != nil {
		return nil, errOut
	}
	if fn != nil {
		return fn(req)
	}
	if resp == nil {
		return nil, errScriptExhausted
	}
	return resp, nil
}

func (m *Mock) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.next(req)
}

// Stream serves the same scripted response split into small chunks.
func (m *Mock) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	resp, err := m.next(req)
	if err != nil {
		return nil, err
	}
	ch := make(chan Chunk, 8)
	go func() {
		defer close(ch)
		const size = 16
		content := resp.Content
		for i := 0; i < len(content); i += size {
			end := i + size
			if end > len(content) {
				end = len(content)
			}
			select {
			case ch <- Chunk{Text: content[i:end]}:
			case <-ctx.Done():
				return
			}
		}
		if resp.Thinking != "" || len(resp.ToolCalls) > 0 {
			select {
			case ch <- Chunk{Thinking: resp.Thinking, ToolCalls: resp.ToolCalls}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}
