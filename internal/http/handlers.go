// Package http holds the JSON API handlers.
package http

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/coder/quartz"
	"github.com/gofiber/fiber/v2"

	"visitorinsights/internal/analytics"
	"visitorinsights/internal/database"
	"visitorinsights/internal/displayforce"
	"visitorinsights/internal/stats"
	"visitorinsights/internal/timeframe"
)

// Error messages returned to API clients.
const (
	msgMissingCredentials = "email e password obrigatórios"
	msgEmailTaken         = "email já cadastrado"
	msgRegisterFailed     = "erro ao cadastrar"
	msgInvalidCredentials = "credenciais inválidas"
	msgMissingRange       = "start e end YYYY-MM-DD são obrigatórios"
)

// RangeRefresher refreshes every day of a range.
type RangeRefresher interface {
	RefreshRange(ctx context.Context, rng timeframe.Range, scope analytics.Scope) (int, error)
}

// DeviceLister lists the devices (stores) known to the visitor API.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]displayforce.Device, error)
}

// Handlers carries the dependencies shared by every action.
type Handlers struct {
	DBManager *database.DBManager
	Logger    *slog.Logger
	Stats     *stats.Service
	Refresher RangeRefresher
	Devices   DeviceLister
	Clock     quartz.Clock
}

func (h *Handlers) clock() quartz.Clock {
	if h.Clock == nil {
		return quartz.NewReal()
	}
	return h.Clock
}

// ErrorHandler renders every unhandled error as {"error": message}.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("Request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.Any("error", err))
		}
		return jsonError(c, code, err.Error())
	}
}

func jsonError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

// requiredRange parses the mandatory start and end query parameters.
func requiredRange(c *fiber.Ctx) (timeframe.Range, error) {
	start, end := c.Query("start"), c.Query("end")
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return timeframe.Range{}, fiber.NewError(fiber.StatusBadRequest, msgMissingRange)
	}
	rng, err := timeframe.ParseRange(start, end)
	if err != nil {
		return timeframe.Range{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return rng, nil
}

// parseLeadingInt reads the optional sign and leading digits of s, so
// "12abc" is 12. Anything without leading digits is 0.
func parseLeadingInt(s string) int {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
		if n > 1<<30 {
			break
		}
	}
	if neg {
		return -n
	}
	return n
}
