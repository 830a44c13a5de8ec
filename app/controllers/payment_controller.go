package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CollectFox/internal/pkg/collections"
)

func (a *API) HandleProcessPayment(c *fiber.Ctx) error {
	scope, id, err := scopeAndID(c, "id")
	if err != nil {
		return fiberError(c, err)
	}
	var req collections.PaymentRequest
	if err := a.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if key := c.Get("Idempotency-Key"); key != "" && req.IdempotencyKey == "" {
		req.IdempotencyKey = key
	}
	result, err := a.Collections.ProcessPayment(c.UserContext(), scope, id, req)
	if err != nil {
		if result != nil && result.Payment != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": "payment_failed", "message": err.Error(), "payment": result.Payment})
		}
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (a *API) HandleAddNote(c *fiber.Ctx) error {
	scope, id, err := scopeAndID(c, "id")
	if err != nil {
		return fiberError(c, err)
	}
	var req collections.NoteRequest
	if err := a.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	note, err := a.Collections.AddNote(c.UserContext(), scope, id, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(note)
}

func (a *API) HandleListNotes(c *fiber.Ctx) error {
	scope, id, err := scopeAndID(c, "id")
	if err != nil {
		return fiberError(c, err)
	}
	notes, err := a.Collections.ListNotes(c.UserContext(), scope, id, c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"notes": notes})
}
