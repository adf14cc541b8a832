package llm

import (
	"encoding/base64"
	"math"
	"sync"

	"github.com/ahrav/questlog/internal/ports"
)

// DefaultMaxTokens bounds the reply length when the caller sets no limit.
// A verdict marker plus a short justification fits well within it.
const DefaultMaxTokens = 1024

// charsPerToken approximates tokenisation when a provider reports no usage.
const charsPerToken = 4

// modelSlot holds the provider's model name behind a lock so middleware and
// requests can read it while SetModel runs.
type modelSlot struct {
	mu    sync.RWMutex
	model string
}

func (m *modelSlot) GetModel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model
}

func (m *modelSlot) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}

// RequestOptions are the per-request knobs the classifier may set.
type RequestOptions struct {
	MaxTokens int
	Model     string

	// Temperature and TopP are nil when the provider default applies.
	Temperature *float64
	TopP        *float64

	System string
}

// ParseRequestOptions reads the option map sent with a classification.
// Entries with the wrong type or out of range are ignored, as are unknown
// keys.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	ro := RequestOptions{MaxTokens: DefaultMaxTokens, Model: defaultModel}

	if n, ok := number(opts["max_tokens"]); ok && n >= 1 && n <= math.MaxInt32 {
		ro.MaxTokens = int(n)
	}
	if s, ok := opts["model"].(string); ok && s != "" {
		ro.Model = s
	}
	if s, ok := opts["system"].(string); ok {
		ro.System = s
	}
	if f, ok := number(opts["temperature"]); ok && f >= MinTemperature && f <= MaxTemperature {
		ro.Temperature = &f
	}
	if f, ok := number(opts["top_p"]); ok && f >= 0 && f <= 1 {
		ro.TopP = &f
	}
	return ro
}

// number widens the numeric types option maps carry in practice: ints from
// Go callers and float64 from decoded JSON or YAML.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// tokensOr returns reported when the provider sent usage, otherwise an
// estimate from text.
func tokensOr(reported int, text string) int {
	if reported > 0 {
		return reported
	}
	return len(text) / charsPerToken
}

// imageDataURI renders a proof image as "data:image/png;base64,...".
func imageDataURI(img ports.Image) string {
	return "data:" + img.MIMEType + ";base64," + imageBase64(img)
}

func imageBase64(img ports.Image) string {
	return base64.StdEncoding.EncodeToString(img.Data)
}
