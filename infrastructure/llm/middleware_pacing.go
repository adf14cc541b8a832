package llm

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/ahrav/questlog/internal/ports"
)

// requestFunc is the DoRequest signature.
type requestFunc func(ctx context.Context, prompt string, images []ports.Image, opts map[string]any) (string, int, int, error)

// interceptor replaces DoRequest and forwards the model accessors to the
// embedded client.
type interceptor struct {
	CoreLLM
	do requestFunc
}

func (i interceptor) DoRequest(ctx context.Context, prompt string, images []ports.Image, opts map[string]any) (string, int, int, error) {
	return i.do(ctx, prompt, images, opts)
}

// RateLimitMiddleware paces classifications with a token bucket shared by
// every caller of the client: limit requests per second with bursts of up
// to burst. A request whose context ends while queued never reaches the
// provider.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)
	return func(next CoreLLM) CoreLLM {
		return interceptor{CoreLLM: next, do: func(ctx context.Context, prompt string, images []ports.Image, opts map[string]any) (string, int, int, error) {
			if err := limiter.Wait(ctx); err != nil {
				return "", 0, 0, NewProviderError("classifier", ErrorTypeRateLimit, 0, "local rate limit wait aborted", err)
			}
			return next.DoRequest(ctx, prompt, images, opts)
		}}
	}
}
