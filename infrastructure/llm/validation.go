package llm

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ahrav/questlog/internal/ports"
)

// Parameter bounds shared by the providers.
const (
	MinTemperature = 0.0
	// MaxTemperature is Gemini's and OpenAI's ceiling; Anthropic clamps to 1.
	MaxTemperature = 2.0

	MinTimeout = 1 * time.Second
	MaxTimeout = 10 * time.Minute

	// MaxImageBytes caps a single inline proof image. Provider APIs reject
	// larger inline payloads.
	MaxImageBytes = 20 << 20
)

// ValidateImages rejects proofs the providers would refuse: empty payloads,
// non-image content and oversized uploads.
func ValidateImages(images []ports.Image) error {
	for i, img := range images {
		switch {
		case len(img.Data) == 0:
			return fmt.Errorf("image %d: empty payload", i)
		case !strings.HasPrefix(img.MIMEType, "image/"):
			return fmt.Errorf("image %d: unsupported content type %q", i, img.MIMEType)
		case len(img.Data) > MaxImageBytes:
			return fmt.Errorf("image %d: %d bytes exceeds limit of %d", i, len(img.Data), MaxImageBytes)
		}
	}
	return nil
}

// ValidateBaseURL normalizes a provider endpoint override. Empty means the
// provider default.
func ValidateBaseURL(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("base URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base URL %q has no host", raw)
	}
	return u.String(), nil
}

// ValidateTimeout clamps a client timeout to [MinTimeout, MaxTimeout]. Zero
// or negative keeps the SDK default.
func ValidateTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return min(max(d, MinTimeout), MaxTimeout)
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
