package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahrav/questlog/internal/ports"
)

// errSimulated is returned for FailUntilAttempt calls when Error is nil.
var errSimulated = errors.New("simulated failure")

// MockCoreLLM stands in for a vision provider so the client and middleware
// can run without a network. Set the exported fields before use, or call
// SetError once requests may be in flight. Every call is recorded.
type MockCoreLLM struct {
	mu sync.Mutex

	Response      string
	TokensIn      int
	TokensOut     int
	Model         string
	ResponseDelay time.Duration

	// Error fails every call. With FailUntilAttempt set it only fails the
	// first FailUntilAttempt calls.
	Error            error
	FailUntilAttempt int

	CallCount      int
	LastPrompt     string
	LastImages     []ports.Image
	LastOpts       map[string]any
	LastContext    context.Context
	CallTimestamps []time.Time
}

// NewMockCoreLLM returns a mock that accepts every proof.
func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		Response:  "##yes## test response",
		TokensIn:  10,
		TokensOut: 20,
		Model:     "test-model",
	}
}

func (m *MockCoreLLM) DoRequest(ctx context.Context, prompt string, images []ports.Image, opts map[string]any) (string, int, int, error) {
	call, delay := m.record(ctx, prompt, images, opts)

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(call); err != nil {
		return "", 0, 0, err
	}
	return m.Response, m.TokensIn, m.TokensOut, nil
}

func (m *MockCoreLLM) record(ctx context.Context, prompt string, images []ports.Image, opts map[string]any) (int, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	m.LastPrompt = prompt
	m.LastImages = images
	m.LastOpts = opts
	m.LastContext = ctx
	m.CallTimestamps = append(m.CallTimestamps, time.Now())
	return m.CallCount, m.ResponseDelay
}

// failure returns the configured error for the call-th request. Callers
// hold m.mu.
func (m *MockCoreLLM) failure(call int) error {
	switch {
	case m.FailUntilAttempt == 0:
		return m.Error
	case call > m.FailUntilAttempt:
		return nil
	case m.Error != nil:
		return m.Error
	default:
		return errSimulated
	}
}

func (m *MockCoreLLM) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Error = err
}

func (m *MockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

func (m *MockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Model = model
}

func (m *MockCoreLLM) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}
