package testutil

import (
	"context"
	"iter"
	"sync"

	"github.com/lethehaiau/floatplane-zero-agent/internal/provider"
)

// MockGateway is a scriptable provider.Gateway. Each queued round answers
// one Stream call in order; requests are recorded for assertions.
//
// Thread-safe for concurrent use.
type MockGateway struct {
	mu           sync.Mutex
	rounds       []mockRound
	next         int
	completeText string
	completeErr  error
	requests     []provider.Request
}

type mockRound struct {
	fragments []provider.Fragment
	err       error
}

// NewMockGateway creates an empty mock gateway. A Stream call with no
// queued round yields nothing, mimicking an empty provider response.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// QueueRound scripts the fragments of the next unanswered Stream call.
func (m *MockGateway) QueueRound(fragments ...provider.Fragment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds = append(m.rounds, mockRound{fragments: fragments})
}

// QueueRoundError scripts a round that yields the given fragments and then
// fails.
func (m *MockGateway) QueueRoundError(err error, fragments ...provider.Fragment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds = append(m.rounds, mockRound{fragments: fragments, err: err})
}

// SetCompletion scripts the Complete response.
func (m *MockGateway) SetCompletion(text string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeText = text
	m.completeErr = err
}

// Requests returns a copy of every request received, Stream and Complete
// alike, in call order.
func (m *MockGateway) Requests() []provider.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]provider.Request, len(m.requests))
	copy(cp, m.requests)
	return cp
}

// Complete implements provider.Gateway.
func (m *MockGateway) Complete(_ context.Context, req provider.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.completeText, m.completeErr
}

// Stream implements provider.Gateway.
func (m *MockGateway) Stream(ctx context.Context, req provider.Request) iter.Seq2[provider.Fragment, error] {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	var round mockRound
	if m.next < len(m.rounds) {
		round = m.rounds[m.next]
		m.next++
	}
	m.mu.Unlock()

	return func(yield func(provider.Fragment, error) bool) {
		for _, frag := range round.fragments {
			if ctx.Err() != nil {
				yield(provider.Fragment{}, ctx.Err())
				return
			}
			if !yield(frag, nil) {
				return
			}
		}
		if round.err != nil {
			yield(provider.Fragment{}, round.err)
		}
	}
}

// Text builds a text fragment.
func Text(s string) provider.Fragment {
	return provider.Fragment{Text: s}
}

// ToolDelta builds a tool-call fragment.
func ToolDelta(index int, id, name, args string) provider.Fragment {
	return provider.Fragment{Tool: &provider.ToolDelta{Index: index, ID: id, Name: name, Arguments: args}}
}
