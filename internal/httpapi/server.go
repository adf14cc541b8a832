// Package httpapi exposes the quest, task and verification use cases over
// HTTP with bearer-token authentication and JSON envelopes.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/ahrav/questlog/internal/application"
	"github.com/ahrav/questlog/internal/ports"
)

// DefaultMaxUploadBytes bounds multipart proof uploads when no limit is
// configured.
const DefaultMaxUploadBytes = 25 << 20

// multipartOverhead is the body allowance on top of the image limit for
// boundaries, part headers and the notes field.
const multipartOverhead = 64 << 10

// Services groups the use cases served over HTTP.
type Services struct {
	Quests    *application.QuestService
	Tasks     *application.TaskService
	Verifier  *application.Verifier
	Dashboard *application.DashboardService
}

// Options configures the HTTP surface.
type Options struct {
	Auth    *TokenVerifier
	Logger  *zap.Logger
	Metrics ports.MetricsCollector

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler

	// Health is called by /healthz when set.
	Health func(ctx context.Context) error

	MaxUploadBytes int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Server routes requests to the application services.
type Server struct {
	svc       Services
	auth      *TokenVerifier
	logger    *zap.Logger
	maxUpload int64
	health    func(ctx context.Context) error
}

// NewApp builds the fiber application with routing, authentication,
// request logging and panic recovery.
func NewApp(svc Services, opts Options) (*fiber.App, error) {
	if opts.Auth == nil {
		return nil, errors.New("httpapi: token verifier is required")
	}
	if svc.Quests == nil || svc.Tasks == nil || svc.Verifier == nil || svc.Dashboard == nil {
		return nil, errors.New("httpapi: all services are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}

	s := &Server{
		svc:       svc,
		auth:      opts.Auth,
		logger:    opts.Logger,
		maxUpload: opts.MaxUploadBytes,
		health:    opts.Health,
	}

	app := fiber.New(fiber.Config{
		AppName:               "questlog",
		ErrorHandler:          s.handleError,
		BodyLimit:             int(opts.MaxUploadBytes) + multipartOverhead,
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		Immutable:             true,
		DisableStartupMessage: true,
	})

	app.Use(RequestLogger(s.logger, opts.Metrics))
	app.Use(recover.New(recover.Config{
		EnableStackTrace:  true,
		StackTraceHandler: panicLogger(s.logger),
	}))

	app.Get("/ping", labelRoute, s.ping)
	app.Get("/healthz", labelRoute, s.healthz)
	if opts.MetricsHandler != nil {
		app.Get("/metrics", labelRoute, adaptor.HTTPHandler(opts.MetricsHandler))
	}

	authed := Authenticate(s.auth)
	route := func(method, path string, h fiber.Handler) {
		app.Add(method, path, labelRoute, authed, h)
	}

	route(fiber.MethodPost, "/quests", s.createQuest)
	route(fiber.MethodPost, "/quests/quarter", s.setupQuarter)
	route(fiber.MethodGet, "/quests", s.listQuests)
	route(fiber.MethodGet, "/quests/:id", s.getQuest)
	route(fiber.MethodPut, "/quests/:id", s.updateQuest)
	route(fiber.MethodDelete, "/quests/:id", s.deleteQuest)
	route(fiber.MethodPost, "/quests/:id/progress", s.recomputeQuest)

	route(fiber.MethodPost, "/tasks", s.createTask)
	route(fiber.MethodGet, "/tasks", s.listTasks)
	route(fiber.MethodGet, "/tasks/:id", s.getTask)
	route(fiber.MethodPut, "/tasks/:id", s.updateTask)
	route(fiber.MethodDelete, "/tasks/:id", s.deleteTask)
	route(fiber.MethodPost, "/tasks/:id/verify", s.verifyTask)
	route(fiber.MethodPost, "/tasks/:id/retry", s.retryTask)

	route(fiber.MethodGet, "/dashboard", s.dashboard)

	return app, nil
}

func (s *Server) ping(c *fiber.Ctx) error {
	return c.SendString("pong")
}

func (s *Server) healthz(c *fiber.Ctx) error {
	if s.health != nil {
		if err := s.health(c.UserContext()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// caller returns the authenticated caller id. Authenticate guarantees it is
// present on every API route.
func caller(c *fiber.Ctx) string {
	id, _ := c.Locals(callerKey{}).(string)
	return id
}
