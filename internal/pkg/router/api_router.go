package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CollectFox/app/controllers"
	"github.com/ManuelReschke/CollectFox/app/repository"
	"github.com/ManuelReschke/CollectFox/internal/pkg/middleware"
)

type ApiRouter struct {
	api       *controllers.API
	tenants   repository.TenantRepository
	rateLimit middleware.RateLimitConfig
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	v1 := app.Group("/api/v1")
	v1.Get("/ping", h.api.HandlePing)

	// everything below belongs to the tenant of the API key
	secured := v1.Group("", middleware.APIKeyAuth(h.tenants), middleware.RateLimit(h.rateLimit))

	accounts := secured.Group("/accounts/:id")
	accounts.Get("/risk", h.api.HandleAssessRisk)
	accounts.Get("/compliance", h.api.HandleComplianceCheck)
	accounts.Post("/documents", h.api.HandleGenerateDocument)
	accounts.Post("/payment-plans/optimal", h.api.HandleOptimalPlan)
	accounts.Post("/payment-plans", h.api.HandleCreatePlan)
	accounts.Post("/holds", h.api.HandleSuspend)
	accounts.Post("/payments", h.api.HandleProcessPayment)
	accounts.Get("/notes", h.api.HandleListNotes)
	accounts.Post("/notes", h.api.HandleAddNote)

	secured.Post("/holds/:id/restore", h.api.HandleRestore)
	secured.Post("/campaigns/:id/execute", h.api.HandleExecuteCampaign)
	secured.Post("/campaigns/:id/enqueue", h.api.HandleEnqueueCampaign)
}

func NewApiRouter(api *controllers.API, tenants repository.TenantRepository, rateLimit middleware.RateLimitConfig) *ApiRouter {
	return &ApiRouter{api: api, tenants: tenants, rateLimit: rateLimit}
}
