package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/CollectFox/internal/pkg/paymentplan"
)

type optimalPlanRequest struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type createPlanRequest struct {
	InvoiceIDs []uint `json:"invoice_ids" validate:"required,min=1"`
	paymentplan.PlanTerms
}

func (a *API) HandleOptimalPlan(c *fiber.Ctx) error {
	scope, id, err := scopeAndID(c, "id")
	if err != nil {
		return fiberError(c, err)
	}
	var req optimalPlanRequest
	if err := a.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	proposal, err := a.Plans.CreateOptimalPlan(c.UserContext(), scope, id, req.TotalAmount)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(proposal)
}

func (a *API) HandleCreatePlan(c *fiber.Ctx) error {
	scope, id, err := scopeAndID(c, "id")
	if err != nil {
		return fiberError(c, err)
	}
	var req createPlanRequest
	if err := a.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	plan, err := a.Plans.CreatePlan(c.UserContext(), scope, id, req.InvoiceIDs, req.PlanTerms)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(plan)
}
