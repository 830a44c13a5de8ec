package tenant

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Locals key under which the API key middleware stores the resolved scope.
const KeyScope = "TENANT_SCOPE"

var ErrNoTenant = errors.New("tenant scope is required")

// Scope identifies the tenant that owns every row read or written by a call.
// It is passed explicitly; nothing in the repository layer infers it.
type Scope struct {
	TenantID uint `json:"tenant_id"`
}

// New returns the scope for a tenant ID.
func New(tenantID uint) Scope {
	return Scope{TenantID: tenantID}
}

func (s Scope) Validate() error {
	if s.TenantID == 0 {
		return ErrNoTenant
	}
	return nil
}

// Apply narrows a query to the scope's tenant.
func (s Scope) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("tenant_id = ?", s.TenantID)
}

// Owns reports whether a row with the given tenant ID belongs to the scope.
func (s Scope) Owns(tenantID uint) bool {
	return s.TenantID != 0 && s.TenantID == tenantID
}

// FromCtx returns the scope stored by the API key middleware.
func FromCtx(c *fiber.Ctx) (Scope, bool) {
	if v := c.Locals(KeyScope); v != nil {
		if scope, ok := v.(Scope); ok && scope.TenantID != 0 {
			return scope, true
		}
	}
	return Scope{}, false
}

// SetCtx stores the scope on the request.
func SetCtx(c *fiber.Ctx, scope Scope) {
	c.Locals(KeyScope, scope)
}
