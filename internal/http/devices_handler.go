package http

import (
	"github.com/gofiber/fiber/v2"
)

// DevicesIndexAction proxies the device list so the dashboard can offer a
// store filter.
func (h *Handlers) DevicesIndexAction(c *fiber.Ctx) error {
	devices, err := h.Devices.ListDevices(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.JSON(devices)
}
