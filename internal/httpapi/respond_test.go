package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ahrav/questlog/internal/domain"
	"github.com/ahrav/questlog/internal/ports"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"rejection", domain.NewRejectionError("##no## blank"), http.StatusBadRequest, "Verification failed"},
		{"validation", domain.BadRequest("task", "title is required"), http.StatusBadRequest, "Title is required"},
		{"wrapped not found", fmt.Errorf("get: %w", ports.ErrNotFound), http.StatusNotFound, "Task not found"},
		{"quota", fmt.Errorf("retry: %w", domain.ErrQuotaExhausted), http.StatusForbidden, "No retry chances left"},
		{"not eligible", domain.ErrTaskNotEligible, http.StatusConflict, "Task must be marked completed before verification"},
		{"conflict", ports.ErrConflict, http.StatusConflict, "Conflict"},
		{"classifier", fmt.Errorf("%w: timeout", domain.ErrClassifierUnavailable), http.StatusInternalServerError, "Verification service unavailable"},
		{"persistence", ports.NewStoreError("task", "update", errors.New("disk full")), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := errorResponse("task", tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantError, body.Error)
			assert.False(t, body.Success)
		})
	}
}

func TestErrorResponse_HidesInternalDetails(t *testing.T) {
	_, body := errorResponse("task", errors.New("pq: password authentication failed"))
	assert.Nil(t, body.Details)

	_, body = errorResponse("task", domain.NewRejectionError("##no## nothing finished"))
	assert.Equal(t, "##no## nothing finished", body.Analysis)
}

func TestFlexTime(t *testing.T) {
	var req struct {
		A *flexTime `json:"a"`
		B *flexTime `json:"b"`
		C *flexTime `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"2025-09-30","b":"2025-09-30T12:30:00Z","c":null}`), &req))

	assert.Equal(t, time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC), *req.A.ptr())
	assert.Equal(t, time.Date(2025, 9, 30, 12, 30, 0, 0, time.UTC), *req.B.ptr())
	assert.Nil(t, req.C.ptr())

	var bad struct {
		A flexTime `json:"a"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"a":"next tuesday"}`), &bad))
}

func TestHandleError(t *testing.T) {
	s := &Server{logger: zap.NewNop()}
	app := fiber.New(fiber.Config{ErrorHandler: s.handleError})
	app.Get("/quest", func(*fiber.Ctx) error { return failed("quest", fmt.Errorf("get: %w", domain.ErrNotFound)) })
	app.Get("/bare", func(*fiber.Ctx) error { return domain.ErrNotFound })
	app.Get("/teapot", func(*fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "short and stout") })

	tests := []struct {
		path, body string
		status     int
	}{
		{"/quest", `{"success":false,"error":"Quest not found"}`, http.StatusNotFound},
		{"/bare", `{"success":false,"error":"Resource not found"}`, http.StatusNotFound},
		{"/teapot", `{"success":false,"error":"short and stout"}`, http.StatusTeapot},
	}
	for _, tt := range tests {
		rec := serve(t, app, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.status, rec.Code, tt.path)
		assert.JSONEq(t, tt.body, rec.Body.String(), tt.path)
	}
}
