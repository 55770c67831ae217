package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"visitorinsights/internal/http/middleware"
	"visitorinsights/internal/timeframe"
)

// AdminRefreshAction refreshes a range of days on demand. Both ends are
// optional: start defaults to today and end to start.
func (h *Handlers) AdminRefreshAction(c *fiber.Ctx) error {
	rng, err := timeframe.ParseRangeWithDefaults(c.Query("start"), c.Query("end"), h.clock())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	scope := middleware.ScopeFrom(c)

	h.Logger.Info("Manual refresh requested", slog.String("range", rng.String()), slog.String("scope", scope.Key()))

	days, err := h.Refresher.RefreshRange(c.UserContext(), rng, scope)
	if err != nil {
		h.Logger.Error("Manual refresh failed",
			slog.String("range", rng.String()),
			slog.Int("refreshed", days),
			slog.Any("error", err))
		return err
	}

	storeID := "all"
	if !scope.IsAll() {
		storeID = scope.StoreID()
	}
	return c.JSON(fiber.Map{"ok": true, "days": days, "storeId": storeID})
}
