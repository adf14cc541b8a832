package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ahrav/questlog/internal/domain"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// envelope is the JSON shape of every API response.
type envelope struct {
	Success  bool   `json:"success"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
	Analysis string `json:"analysis,omitempty"`
	Details  any    `json:"details,omitempty"`
}

func sendData(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(envelope{Success: true, Data: data})
}

// resourceError tags err with the resource named in not-found messages.
type resourceError struct {
	entity string
	err    error
}

func (e *resourceError) Error() string { return e.err.Error() }
func (e *resourceError) Unwrap() error { return e.err }

func failed(entity string, err error) error {
	return &resourceError{entity: entity, err: err}
}

// handleError is the fiber error handler. It maps err onto a status code
// and error envelope.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(envelope{Error: fe.Message})
	}

	entity := "resource"
	var re *resourceError
	if errors.As(err, &re) {
		entity = re.entity
	}
	status, body := errorResponse(entity, err)
	if status >= 500 {
		s.logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(body)
}

func errorResponse(entity string, err error) (int, envelope) {
	var (
		rejection  *domain.RejectionError
		validation *domain.ValidationError
	)
	switch {
	case errors.As(err, &rejection):
		return http.StatusBadRequest, envelope{Error: "Verification failed", Analysis: rejection.Analysis}
	case errors.As(err, &validation):
		msg := "Invalid request"
		if len(validation.Errors) > 0 {
			msg = capitalize(validation.Errors[0])
		}
		return http.StatusBadRequest, envelope{Error: msg, Details: validation.Errors}
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest, envelope{Error: "Invalid request", Details: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, envelope{Error: capitalize(entity) + " not found"}
	case errors.Is(err, domain.ErrQuotaExhausted):
		return http.StatusForbidden, envelope{Error: "No retry chances left"}
	case errors.Is(err, domain.ErrTaskNotEligible):
		return http.StatusConflict, envelope{Error: "Task must be marked completed before verification", Details: err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, envelope{Error: "Conflict", Details: err.Error()}
	case errors.Is(err, domain.ErrClassifierUnavailable):
		return http.StatusInternalServerError, envelope{Error: "Verification service unavailable", Details: err.Error()}
	default:
		return http.StatusInternalServerError, envelope{Error: "Internal server error"}
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// decodeJSON decodes a bounded JSON body into dst with the app's decoder.
func decodeJSON(c *fiber.Ctx, dst any) error {
	body := c.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return domain.BadRequest("request", "request body is required")
	}
	if len(body) > maxJSONBody {
		return domain.BadRequest("request", "request body too large")
	}
	if err := c.App().Config().JSONDecoder(body, dst); err != nil {
		return domain.BadRequest("request", "invalid JSON body: "+err.Error())
	}
	return nil
}

// flexTime accepts RFC 3339 timestamps and plain dates.
type flexTime struct{ time.Time }

func (f *flexTime) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			f.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", raw)
}

// ptr returns nil for an unset flexTime.
func (f *flexTime) ptr() *time.Time {
	if f == nil || f.IsZero() {
		return nil
	}
	t := f.Time
	return &t
}
