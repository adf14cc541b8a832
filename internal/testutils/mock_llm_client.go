package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ahrav/questlog/internal/ports"
)

// Canned classifier answers used across tests.
const (
	AcceptResponse = "##yes## The screenshot shows the finished design in Figma."
	RejectResponse = "##no## The image is a blank canvas and shows no completed work."
)

// MockResponse defines a pre-configured response pattern for the mock client.
type MockResponse struct {
	// Pattern is matched case-insensitively against the prompt. An empty
	// pattern sets the default response.
	Pattern string
	// Response is the text returned for matching prompts.
	Response string
	// Err, when set, is returned instead of Response.
	Err error
}

// MockCall records one Complete invocation.
type MockCall struct {
	Prompt  string
	Images  []ports.Image
	Options map[string]any
}

// MockLLMClient implements ports.LLMClient with deterministic responses and
// records every call so tests can assert on what the classifier sent.
type MockLLMClient struct {
	model string

	mu        sync.Mutex
	responses []MockResponse
	fallback  MockResponse
	calls     []MockCall
}

// NewMockLLMClient creates a MockLLMClient that accepts every proof unless
// configured otherwise.
func NewMockLLMClient(model string) *MockLLMClient {
	return &MockLLMClient{
		model:    model,
		fallback: MockResponse{Response: AcceptResponse},
	}
}

// AddResponse adds a response pattern. Patterns are tried in insertion
// order; the first match wins.
func (m *MockLLMClient) AddResponse(r MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Pattern == "" {
		m.fallback = r
		return
	}
	m.responses = append(m.responses, r)
}

// SetResponse replaces the default response.
func (m *MockLLMClient) SetResponse(resp string) {
	m.AddResponse(MockResponse{Response: resp})
}

// SetError makes every unmatched call fail with err.
func (m *MockLLMClient) SetError(err error) {
	m.AddResponse(MockResponse{Err: err})
}

// Complete implements ports.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, images []ports.Image, options map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{
		Prompt:  prompt,
		Images:  append([]ports.Image(nil), images...),
		Options: options,
	})

	r := m.match(prompt)
	if r.Err != nil {
		return "", r.Err
	}
	return r.Response, nil
}

func (m *MockLLMClient) match(prompt string) MockResponse {
	lower := strings.ToLower(prompt)
	for _, r := range m.responses {
		if strings.Contains(lower, strings.ToLower(r.Pattern)) {
			return r
		}
	}
	return m.fallback
}

// GetModel implements ports.LLMClient.
func (m *MockLLMClient) GetModel() string { return m.model }

// Calls returns a copy of the recorded calls.
func (m *MockLLMClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of Complete invocations.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var _ ports.LLMClient = (*MockLLMClient)(nil)
