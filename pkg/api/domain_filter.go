package api

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func (w webhook) GetDomainFilter(ctx *fiber.Ctx) error {
	w.logger.Info("GetDomainFilter endpoint called",
		zap.String("remote_ip", ctx.IP()),
		zap.String("method", ctx.Method()),
		zap.String("path", ctx.Path()),
		zap.String("request_id", ctx.GetRespHeader("X-Request-ID", "-")))

	domainFilter := w.provider.GetDomainFilter()

	response, err := json.Marshal(domainFilter)
	if err != nil {
		w.logger.Error("Failed to marshal domain filter response", zap.Error(err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to marshal domain filter response",
			"details": err.Error(),
		})
	}

	ctx.Response().Header.Set(contentTypeHeader, MediaTypeFormatAndVersion)
	return ctx.Send(response)
}
