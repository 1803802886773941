package llm

import (
	"context"
	"fmt"
	"sync"
)

// FakeProvider is a scripted Provider for tests. It returns its canned
// responses in order and records every request it receives.
type FakeProvider struct {
	responses []string
	err       error

	mutex    sync.Mutex
	requests [][]ChatMessage
	calls    int
}

// NewFakeProvider creates a fake provider that replays the given responses.
func NewFakeProvider(responses ...string) *FakeProvider {
	return &FakeProvider{responses: responses}
}

// FailWith makes every Chat call return err instead of a response.
func (p *FakeProvider) FailWith(err error) *FakeProvider {
	p.err = err
	return p
}

// Name returns "fake".
func (p *FakeProvider) Name() string { return "fake" }

// Model returns "fake-model".
func (p *FakeProvider) Model() string { return "fake-model" }

// Chat returns the next scripted response.
func (p *FakeProvider) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.requests = append(p.requests, messages)
	if p.err != nil {
		return "", p.err
	}
	if p.calls >= len(p.responses) {
		return "", fmt.Errorf("fake provider: no response scripted for call %d", p.calls+1)
	}
	response := p.responses[p.calls]
	p.calls++
	return response, nil
}

// Calls returns how many Chat calls were made.
func (p *FakeProvider) Calls() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.calls
}

// Requests returns the recorded requests.
func (p *FakeProvider) Requests() [][]ChatMessage {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.requests
}
