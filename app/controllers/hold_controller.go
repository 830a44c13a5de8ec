package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CollectFox/internal/pkg/suspension"
)

type suspendRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
	suspension.SuspendOptions
}

type restoreRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func (a *API) HandleSuspend(c *fiber.Ctx) error {
	scope, id, err := scopeAndID(c, "id")
	if err != nil {
		return fiberError(c, err)
	}
	var req suspendRequest
	if err := a.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	hold, err := a.Holds.Suspend(c.UserContext(), scope, id, req.Reason, req.SuspendOptions)
	if err != nil {
		if hold != nil {
			// an active hold already exists; show it to the operator
			return c.Status(statusFor(err)).JSON(fiber.Map{"error": "conflict", "message": err.Error(), "hold": hold})
		}
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(hold)
}

func (a *API) HandleRestore(c *fiber.Ctx) error {
	scope, id, err := scopeAndID(c, "id")
	if err != nil {
		return fiberError(c, err)
	}
	var req restoreRequest
	if err := a.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.Reason == "" {
		req.Reason = "restored by operator"
	}
	restored, err := a.Holds.Restore(c.UserContext(), scope, id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"hold_id": id, "restored": restored})
}
