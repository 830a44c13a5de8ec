package tenant

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeValidate(t *testing.T) {
	assert.ErrorIs(t, Scope{}.Validate(), ErrNoTenant)
	assert.NoError(t, New(7).Validate())
}

func TestScopeOwns(t *testing.T) {
	s := New(3)
	assert.True(t, s.Owns(3))
	assert.False(t, s.Owns(4))
	assert.False(t, Scope{}.Owns(0))
}

func TestScopeRoundTripThroughLocals(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		_, ok := FromCtx(c)
		assert.False(t, ok)

		SetCtx(c, New(11))
		scope, ok := FromCtx(c)
		assert.True(t, ok)
		assert.Equal(t, uint(11), scope.TenantID)
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
