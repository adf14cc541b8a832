package testutils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/questlog/internal/ports"
)

func TestMockLLMClient_Complete(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(m *MockLLMClient)
		prompt    string
		want      string
		expectErr bool
	}{
		{
			name:   "default accepts",
			prompt: "review this proof",
			want:   AcceptResponse,
		},
		{
			name:   "pattern match is case insensitive",
			setup:  func(m *MockLLMClient) { m.AddResponse(MockResponse{Pattern: "BLANK", Response: RejectResponse}) },
			prompt: "the blank page task",
			want:   RejectResponse,
		},
		{
			name:   "first matching pattern wins",
			setup: func(m *MockLLMClient) {
				m.AddResponse(MockResponse{Pattern: "design", Response: "first"})
				m.AddResponse(MockResponse{Pattern: "design", Response: "second"})
			},
			prompt: "design task",
			want:   "first",
		},
		{
			name:   "replaced default",
			setup:  func(m *MockLLMClient) { m.SetResponse(RejectResponse) },
			prompt: "anything",
			want:   RejectResponse,
		},
		{
			name:      "injected error",
			setup:     func(m *MockLLMClient) { m.SetError(errors.New("upstream down")) },
			prompt:    "anything",
			expectErr: true,
		},
		{
			name:      "empty prompt",
			prompt:    "",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMockLLMClient("mock-vision")
			if tt.setup != nil {
				tt.setup(m)
			}

			got, err := m.Complete(context.Background(), tt.prompt, nil, nil)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMockLLMClient_RecordsCalls(t *testing.T) {
	m := NewMockLLMClient("mock-vision")
	img := ports.Image{MIMEType: "image/png", Data: []byte{1, 2, 3}}

	_, err := m.Complete(context.Background(), "p", []ports.Image{img}, map[string]any{"temperature": 0.7})
	require.NoError(t, err)

	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "p", calls[0].Prompt)
	assert.Equal(t, []ports.Image{img}, calls[0].Images)
	assert.Equal(t, 0.7, calls[0].Options["temperature"])
	assert.Equal(t, 1, m.CallCount())
	assert.Equal(t, "mock-vision", m.GetModel())
}

func TestMockLLMClient_CanceledContext(t *testing.T) {
	m := NewMockLLMClient("mock-vision")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Complete(ctx, "p", nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, m.CallCount())
}
