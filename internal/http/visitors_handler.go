package http

import (
	"github.com/gofiber/fiber/v2"

	"visitorinsights/internal/http/middleware"
	"visitorinsights/internal/visitors"
)

// VisitorsListAction pages through stored visitor records, newest first.
func (h *Handlers) VisitorsListAction(c *fiber.Ctx) error {
	rng, err := requiredRange(c)
	if err != nil {
		return err
	}

	filter := visitors.Filter{Range: rng, Scope: middleware.ScopeFrom(c)}
	page := parseLeadingInt(c.Query("page", "1"))
	pageSize := parseLeadingInt(c.Query("pageSize", "40"))

	result, err := visitors.List(h.DBManager.GetConnection().WithContext(c.UserContext()), filter, page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(result)
}
