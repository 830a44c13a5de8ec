package controllers

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/internal/pkg/collections"
	"github.com/ManuelReschke/CollectFox/internal/pkg/compliance"
	"github.com/ManuelReschke/CollectFox/internal/pkg/dunning"
	"github.com/ManuelReschke/CollectFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CollectFox/internal/pkg/paymentplan"
	"github.com/ManuelReschke/CollectFox/internal/pkg/risk"
	"github.com/ManuelReschke/CollectFox/internal/pkg/suspension"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
)

type RiskService interface {
	AssessRisk(ctx context.Context, scope tenant.Scope, accountID uint) (*risk.Assessment, error)
}

type ComplianceService interface {
	Check(ctx context.Context, scope tenant.Scope, accountID uint) (*compliance.Report, error)
	GenerateDocument(ctx context.Context, scope tenant.Scope, accountID uint, docType string) (*models.ComplianceDocument, error)
}

type PlanService interface {
	CreateOptimalPlan(ctx context.Context, scope tenant.Scope, accountID uint, total decimal.Decimal) (*paymentplan.Proposal, error)
	CreatePlan(ctx context.Context, scope tenant.Scope, accountID uint, invoiceIDs []uint, terms paymentplan.PlanTerms) (*models.PaymentPlan, error)
}

type HoldService interface {
	Suspend(ctx context.Context, scope tenant.Scope, accountID uint, reason string, opts suspension.SuspendOptions) (*models.AccountHold, error)
	Restore(ctx context.Context, scope tenant.Scope, holdID uint, reason string) (bool, error)
}

type CollectionService interface {
	ProcessPayment(ctx context.Context, scope tenant.Scope, accountID uint, req collections.PaymentRequest) (*collections.PaymentResult, error)
	AddNote(ctx context.Context, scope tenant.Scope, accountID uint, req collections.NoteRequest) (*models.CollectionNote, error)
	ListNotes(ctx context.Context, scope tenant.Scope, accountID uint, limit int) ([]models.CollectionNote, error)
}

type CampaignService interface {
	ExecuteCampaign(ctx context.Context, scope tenant.Scope, campaignID uint) (*dunning.CampaignResult, error)
}

// API holds the services behind the /api/v1 operator endpoints.
type API struct {
	Risk        RiskService
	Compliance  ComplianceService
	Plans       PlanService
	Holds       HoldService
	Collections CollectionService
	Campaigns   CampaignService
	Jobs        jobqueue.Enqueuer

	validate *validator.Validate
}

func NewAPI(api API) *API {
	api.validate = validator.New()
	return &api
}

// HandlePing is the unauthenticated health check.
func (a *API) HandlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ping": "pong"})
}

// scopeAndID reads the tenant set by the API key middleware and a numeric
// route parameter.
func scopeAndID(c *fiber.Ctx, param string) (tenant.Scope, uint, error) {
	scope, ok := tenant.FromCtx(c)
	if !ok {
		return tenant.Scope{}, 0, fiber.NewError(fiber.StatusUnauthorized, "missing tenant")
	}
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		return scope, 0, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid %s", param))
	}
	return scope, uint(id), nil
}

// bind parses and validates a JSON body.
func (a *API) bind(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return a.validate.Struct(out)
	}
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return a.validate.Struct(out)
}

func fiberError(c *fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		kind := "bad_request"
		if fe.Code == fiber.StatusUnauthorized {
			kind = "unauthorized"
		}
		return c.Status(fe.Code).JSON(fiber.Map{"error": kind, "message": fe.Message})
	}
	return badRequest(c, err.Error())
}
