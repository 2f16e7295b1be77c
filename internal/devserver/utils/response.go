package utils

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// Detail writes the error body both services use: {"detail": "..."}.
func Detail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"detail": message})
}

func Message(c *fiber.Ctx, status int, text string) error {
	return c.Status(status).JSON(fiber.Map{"message": text})
}

// ErrorHandler renders *fiber.Error as a detail body and hides everything
// else behind a logged 500.
func ErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return Detail(c, fe.Code, fe.Message)
		}
		log.Error("unhandled_error", "path", c.Path(), "method", c.Method(), "error", err)
		return Detail(c, fiber.StatusInternalServerError, "Internal server error")
	}
}
