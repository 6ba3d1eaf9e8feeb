package api

import (
	"github.com/gofiber/fiber/v2"
)

// Health answers liveness probes.
func Health(ctx *fiber.Ctx) error {
	return ctx.Status(fiber.StatusOK).JSON(Message{Message: "ok"})
}
