package llm

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ahrav/questlog/internal/ports"
)

var (
	ErrEmptyAPIKey      = errors.New("API key cannot be empty")
	ErrEmptyResponse    = errors.New("empty response from API")
	ErrNoResponseChoice = errors.New("no response choices returned")
)

// ErrorType classifies a provider failure. The value doubles as the
// metrics label.
type ErrorType string

const (
	ErrorTypeUnknown        ErrorType = ""
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeBadRequest     ErrorType = "bad_request"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeServerError    ErrorType = "server_error"
	// ErrorTypeContentPolicy means the provider refused to look at the
	// proof image, e.g. a safety block.
	ErrorTypeContentPolicy ErrorType = "content_policy"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeTimeout       ErrorType = "timeout"
)

// ProviderError normalizes SDK errors from the vision providers.
type ProviderError struct {
	Type       ErrorType
	Provider   string
	StatusCode int
	Message    string

	WrappedError error
}

// Error renders e.g. "openai error (HTTP 429) [rate_limit]: slow down: <cause>".
func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(" error")
	if e.StatusCode > 0 {
		b.WriteString(" (HTTP " + strconv.Itoa(e.StatusCode) + ")")
	}
	if e.Type != ErrorTypeUnknown {
		b.WriteString(" [" + string(e.Type) + "]")
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.WrappedError != nil {
		b.WriteString(": " + e.WrappedError.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.WrappedError }

// Kind maps the error onto the ports sentinels so the application layer
// can classify failures without importing this package.
func (e *ProviderError) Kind() error {
	switch e.Type {
	case ErrorTypeAuthentication:
		return ports.ErrAuthenticationFailed
	case ErrorTypeRateLimit:
		return ports.ErrRateLimited
	case ErrorTypeServerError, ErrorTypeNetwork:
		return ports.ErrServiceUnavailable
	case ErrorTypeTimeout:
		return ports.ErrTimeout
	default:
		return ports.ErrInvalidResponse
	}
}

func NewProviderError(provider string, errType ErrorType, statusCode int, message string, wrapped error) *ProviderError {
	return &ProviderError{
		Type:         errType,
		Provider:     provider,
		StatusCode:   statusCode,
		Message:      message,
		WrappedError: wrapped,
	}
}

// statusTypes covers the codes the providers document explicitly. 529 is
// Anthropic's "overloaded".
var statusTypes = map[int]ErrorType{
	http.StatusUnauthorized:    ErrorTypeAuthentication,
	http.StatusForbidden:       ErrorTypeAuthentication,
	http.StatusTooManyRequests: ErrorTypeRateLimit,
	http.StatusBadRequest:      ErrorTypeBadRequest,
	http.StatusNotFound:        ErrorTypeNotFound,
	http.StatusRequestTimeout:  ErrorTypeTimeout,
	529:                        ErrorTypeServerError,
}

// ErrorClassifier turns a provider's SDK errors into ProviderErrors.
type ErrorClassifier struct {
	Provider string
}

// ClassifyHTTPError classifies by status code. Authentication and rate-limit
// failures get a fixed message so upstream text never leaks into responses.
func (ec *ErrorClassifier) ClassifyHTTPError(statusCode int, message string, err error) *ProviderError {
	errType, ok := statusTypes[statusCode]
	if !ok {
		switch {
		case statusCode >= 500:
			errType = ErrorTypeServerError
		case statusCode >= 400:
			errType = ErrorTypeBadRequest
		}
	}

	switch errType {
	case ErrorTypeAuthentication:
		message = ec.Provider + " authentication failed"
	case ErrorTypeRateLimit:
		message = ec.Provider + " rate limit exceeded"
	}
	return NewProviderError(ec.Provider, errType, statusCode, message, err)
}

// ClassifyContextError classifies deadline and cancellation errors.
func (ec *ErrorClassifier) ClassifyContextError(err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(ec.Provider, ErrorTypeTimeout, 0, "context deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(ec.Provider, ErrorTypeNetwork, 0, "request canceled", err)
	default:
		return NewProviderError(ec.Provider, ErrorTypeUnknown, 0, "", err)
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
