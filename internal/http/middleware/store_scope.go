package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"visitorinsights/internal/analytics"
)

const scopeKey = "store_scope"

// StoreScope resolves the deviceId query parameter into an analytics scope
// and stores it in the request context. An empty value and the literal "all"
// select every store.
func StoreScope(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deviceID := strings.TrimSpace(c.Query("deviceId"))
		scope := analytics.AllStores()
		if deviceID != "" && deviceID != "all" {
			scope = analytics.Store(deviceID)
		}
		c.Locals(scopeKey, scope)
		logger.Debug("Applied store filter", slog.String("scope", scope.Key()))
		return c.Next()
	}
}

// ScopeFrom returns the scope set by StoreScope, or all stores when the
// middleware did not run.
func ScopeFrom(c *fiber.Ctx) analytics.Scope {
	if scope, ok := c.Locals(scopeKey).(analytics.Scope); ok {
		return scope
	}
	return analytics.AllStores()
}
