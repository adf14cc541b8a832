package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/questlog/internal/ports"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		config   ClientConfig
		wantErr  string
	}{
		{
			name:     "missing api key",
			provider: "openai",
			config:   ClientConfig{Model: "gpt-4o"},
			wantErr:  "API key cannot be empty",
		},
		{
			name:     "missing model",
			provider: "openai",
			config:   ClientConfig{APIKey: "k"},
			wantErr:  "model is required",
		},
		{
			name:     "unknown provider",
			provider: "bogus",
			config:   ClientConfig{APIKey: "k", Model: "m"},
			wantErr:  "unknown provider: bogus",
		},
		{
			name:     "openai",
			provider: "openai",
			config:   ClientConfig{APIKey: "k", Model: "gpt-4o"},
		},
		{
			name:     "anthropic",
			provider: "anthropic",
			config:   ClientConfig{APIKey: "k", Model: "claude-3-5-sonnet-20241022"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.provider, tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.config.Model, client.GetModel())
		})
	}
}

func TestProviders_RegisteredInInit(t *testing.T) {
	assert.Equal(t, []string{"anthropic", "google", "openai"}, Providers())
}

func TestClient_CompleteForwardsImagesAndOptions(t *testing.T) {
	mock := NewMockCoreLLM()
	client := NewClientFromCore(mock)

	opts := map[string]any{"temperature": 0.7}
	resp, err := client.Complete(context.Background(), "is this proof?", []ports.Image{pngImage}, opts)

	require.NoError(t, err)
	assert.Equal(t, "##yes## test response", resp)
	assert.Equal(t, "is this proof?", mock.LastPrompt)
	require.Len(t, mock.LastImages, 1)
	assert.Equal(t, "image/png", mock.LastImages[0].MIMEType)
	assert.Equal(t, opts, mock.LastOpts)
}

func TestClient_CompleteWithUsage(t *testing.T) {
	mock := NewMockCoreLLM()
	client := NewClientFromCore(mock)

	resp, in, out, err := client.CompleteWithUsage(context.Background(), "p", nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, resp)
	assert.Equal(t, 10, in)
	assert.Equal(t, 20, out)
}

func TestClient_MiddlewareOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next CoreLLM) CoreLLM {
			return &orderLLM{CoreLLM: next, name: name, order: &order}
		}
	}

	client := NewClientFromCore(NewMockCoreLLM(), tag("outer"), tag("inner"))
	_, err := client.Complete(context.Background(), "p", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestClient_PropagatesErrors(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = errors.New("upstream down")
	client := NewClientFromCore(mock)

	_, err := client.Complete(context.Background(), "p", nil, nil)
	require.Error(t, err)
	assert.Equal(t, "upstream down", err.Error())
}

type orderLLM struct {
	CoreLLM
	name  string
	order *[]string
}

func (o *orderLLM) DoRequest(ctx context.Context, prompt string, images []ports.Image, opts map[string]any) (string, int, int, error) {
	*o.order = append(*o.order, o.name)
	return o.CoreLLM.DoRequest(ctx, prompt, images, opts)
}
