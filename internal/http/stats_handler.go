package http

import (
	"github.com/gofiber/fiber/v2"

	"visitorinsights/internal/http/middleware"
)

// VisitorStatsAction returns the blended statistics for a date range.
func (h *Handlers) VisitorStatsAction(c *fiber.Ctx) error {
	rng, err := requiredRange(c)
	if err != nil {
		return err
	}

	result, err := h.Stats.VisitorStats(c.UserContext(), rng, middleware.ScopeFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(result)
}
