package httpapi

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ahrav/questlog/internal/ports"
)

type routeKey struct{}

// labelRoute records the matched route path for RequestLogger. Requests
// that match no route never pass through it.
func labelRoute(c *fiber.Ctx) error {
	c.Locals(routeKey{}, c.Route().Path)
	return c.Next()
}

// panicLogger logs a panic caught by the recover middleware, which then
// hands it to the error handler as a 500.
func panicLogger(logger *zap.Logger) func(c *fiber.Ctx, recovered any) {
	return func(c *fiber.Ctx, recovered any) {
		logger.Error("panic recovered",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Any("panic", recovered),
			zap.Stack("stack"),
		)
	}
}

// RequestLogger logs one line per request and records request metrics.
// Metrics are labelled by the matched route path, not the raw path.
//
// Errors returned down the chain are rendered here so the logged status is
// the one the client sees.
func RequestLogger(logger *zap.Logger, metrics ports.MetricsCollector) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		elapsed := time.Since(start)

		route, _ := c.Locals(routeKey{}).(string)
		if route == "" {
			route = "unmatched"
		}
		status := c.Response().StatusCode()
		method := c.Method()

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", c.Path()),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
		}
		switch {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}

		if metrics != nil {
			metrics.RecordCounter(ports.MetricHTTPRequests, 1, map[string]string{
				"method": method,
				"route":  route,
				"code":   strconv.Itoa(status),
			})
			metrics.RecordLatency(ports.MetricHTTPLatency, elapsed, map[string]string{
				"method": method,
				"route":  route,
			})
		}
		return nil
	}
}
