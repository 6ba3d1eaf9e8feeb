package api

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"sigs.k8s.io/external-dns/endpoint"

	weberrors "github.com/oceandns/external-dns-digitalocean-webhook/pkg/errors"
)

func (w webhook) AdjustEndpointsHandler(ctx *fiber.Ctx) error {
	w.logger.Info("AdjustEndpoints endpoint called",
		zap.String("remote_ip", ctx.IP()),
		zap.String("method", ctx.Method()),
		zap.String("path", ctx.Path()),
		zap.String("request_id", ctx.GetRespHeader("X-Request-ID", "-")),
		zap.Int("content_length", ctx.Request().Header.ContentLength()))

	var endpoints []*endpoint.Endpoint
	if err := json.Unmarshal(ctx.Body(), &endpoints); err != nil {
		w.logger.Error("Error parsing request body",
			zap.Error(err))
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": weberrors.ErrInvalidJSONFormat.Error(),
		})
	}

	adjustedEndpoints, err := w.provider.AdjustEndpoints(endpoints)
	if err != nil {
		w.logger.Error("Error adjusting endpoints",
			zap.Error(err),
			zap.String("error_type", "provider_error"))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   weberrors.ErrAPIRequestFailed.Error(),
			"details": err.Error(),
		})
	}

	w.logger.Debug("Adjusted endpoints",
		zap.Int("original_count", len(endpoints)),
		zap.Int("adjusted_count", len(adjustedEndpoints)))

	response, err := json.Marshal(adjustedEndpoints)
	if err != nil {
		w.logger.Error("Failed to marshal adjusted endpoints response", zap.Error(err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to marshal adjusted endpoints response",
		})
	}

	ctx.Set(varyHeader, contentTypeHeader)
	ctx.Response().Header.Set(contentTypeHeader, MediaTypeFormatAndVersion)
	return ctx.Send(response)
}
