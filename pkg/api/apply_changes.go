package api

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"sigs.k8s.io/external-dns/plan"

	weberrors "github.com/oceandns/external-dns-digitalocean-webhook/pkg/errors"
)

func (w webhook) ApplyChanges(ctx *fiber.Ctx) error {
	w.logger.Info("ApplyChanges endpoint called",
		zap.String("remote_ip", ctx.IP()),
		zap.String("method", ctx.Method()),
		zap.String("path", ctx.Path()),
		zap.String("request_id", ctx.GetRespHeader("X-Request-ID", "-")),
		zap.Int("content_length", ctx.Request().Header.ContentLength()))

	var changes plan.Changes
	if err := json.Unmarshal(ctx.Body(), &changes); err != nil {
		w.logger.Error("Failed to parse request body as plan.Changes",
			zap.String(logFieldError, err.Error()))
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": weberrors.ErrInvalidJSONFormat.Error(),
		})
	}

	w.logger.Debug(
		"Parsed changes",
		zap.Int("create_count", len(changes.Create)),
		zap.Int("delete_count", len(changes.Delete)),
		zap.Int("update_count", len(changes.UpdateNew)),
	)

	if err := w.provider.ApplyChanges(ctx.UserContext(), &changes); err != nil {
		w.logger.Error("Failed to apply changes",
			zap.String(logFieldError, err.Error()))

		switch {
		case errors.Is(err, weberrors.ErrMissingToken), errors.Is(err, weberrors.ErrUnauthorized):
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		case errors.Is(err, weberrors.ErrDomainNotFound), errors.Is(err, weberrors.ErrZoneNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		case errors.Is(err, weberrors.ErrAPIRequestFailed):
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "API request to DigitalOcean failed",
			})
		default:
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "Failed to apply DNS changes",
				"details": err.Error(),
			})
		}
	}

	ctx.Response().Header.Set(contentTypeHeader, MediaTypeFormatAndVersion)
	ctx.Status(fiber.StatusNoContent)
	return nil
}
