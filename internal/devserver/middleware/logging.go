package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const requestIDKey = "requestID"

// RequestLogger writes one http_request line per request and echoes the
// caller's X-Request-ID, generating one when absent.
func RequestLogger(log *slog.Logger, service string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals(requestIDKey, requestID)
		c.Set("X-Request-ID", requestID)

		err := c.Next()

		status := statusOf(c, err)
		attrs := []any{
			"service", service,
			"method", c.Method(),
			"path", c.Path(),
			"status_code", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"ip", c.IP(),
			"request_id", requestID,
		}
		if user := CurrentUser(c); user != nil {
			attrs = append(attrs, "user_id", user.ID)
		}
		switch {
		case status >= 500:
			log.Error("http_request", append(attrs, "error", err)...)
		case status >= 400:
			log.Warn("http_request", attrs...)
		default:
			log.Info("http_request", attrs...)
		}
		return err
	}
}

// SecurityLogger flags refused access separately from the request log.
func SecurityLogger(log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := statusOf(c, err)
		if status != fiber.StatusUnauthorized && status != fiber.StatusForbidden {
			return err
		}
		attrs := []any{"method", c.Method(), "path", c.Path(), "ip", c.IP(), "status_code", status}
		if user := CurrentUser(c); user != nil {
			log.Warn("access_denied", append(attrs, "user_id", user.ID)...)
		} else {
			log.Warn("access_denied_unauthenticated", attrs...)
		}
		return err
	}
}

// statusOf is the status the client will see. Errors returned by handlers
// are only rendered by the error handler, after the middleware chain.
func statusOf(c *fiber.Ctx, err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	if err != nil {
		return fiber.StatusInternalServerError
	}
	return c.Response().StatusCode()
}
