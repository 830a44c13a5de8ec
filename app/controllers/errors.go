package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CollectFox/internal/pkg/gateway"
)

// statusFor maps an error kind to the HTTP status returned to operators.
func statusFor(err error) int {
	if errors.Is(err, gateway.ErrDeclined) {
		return fiber.StatusPaymentRequired
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return fiber.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindConflict, apperr.KindIntegrityViolation:
		return fiber.StatusConflict
	case apperr.KindComplianceBlocked:
		return fiber.StatusForbidden
	case apperr.KindExternalService:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	kind := string(apperr.KindOf(err))
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
		kind = "internal_server_error"
		message = "Internal error"
	}
	if status == fiber.StatusPaymentRequired {
		kind = "payment_declined"
	}
	return c.Status(status).JSON(fiber.Map{"error": kind, "message": message})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": message})
}
