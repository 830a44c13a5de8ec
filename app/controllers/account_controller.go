package controllers

import (
	"github.com/gofiber/fiber/v2"
)

type documentRequest struct {
	DocType string `json:"doc_type" validate:"required"`
}

// HandleAssessRisk returns the current risk assessment of an account.
func (a *API) HandleAssessRisk(c *fiber.Ctx) error {
	scope, id, err := scopeAndID(c, "id")
	if err != nil {
		return fiberError(c, err)
	}
	assessment, err := a.Risk.AssessRisk(c.UserContext(), scope, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(assessment)
}

// HandleComplianceCheck evaluates every regulation of the account's jurisdiction.
func (a *API) HandleComplianceCheck(c *fiber.Ctx) error {
	scope, id, err := scopeAndID(c, "id")
	if err != nil {
		return fiberError(c, err)
	}
	report, err := a.Compliance.Check(c.UserContext(), scope, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

func (a *API) HandleGenerateDocument(c *fiber.Ctx) error {
	scope, id, err := scopeAndID(c, "id")
	if err != nil {
		return fiberError(c, err)
	}
	var req documentRequest
	if err := a.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	doc, err := a.Compliance.GenerateDocument(c.UserContext(), scope, id, req.DocType)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}
