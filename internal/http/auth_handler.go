package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"visitorinsights/internal/users"
)

type credentials struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func parseCredentials(c *fiber.Ctx) (credentials, bool) {
	var creds credentials
	if err := c.BodyParser(&creds); err != nil {
		return credentials{}, false
	}
	return creds, creds.Email != "" && creds.Password != ""
}

// RegisterAction creates a user account.
func (h *Handlers) RegisterAction(c *fiber.Ctx) error {
	creds, ok := parseCredentials(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, msgMissingCredentials)
	}

	user, err := users.Register(h.DBManager.GetConnection().WithContext(c.UserContext()), creds.Email, creds.Password)
	switch {
	case errors.Is(err, users.ErrUserExists):
		return jsonError(c, fiber.StatusConflict, msgEmailTaken)
	case errors.Is(err, users.ErrMissingCredentials):
		return jsonError(c, fiber.StatusBadRequest, msgMissingCredentials)
	case err != nil:
		h.Logger.Error("Failed to register user", slog.String("email", creds.Email), slog.Any("error", err))
		return jsonError(c, fiber.StatusInternalServerError, msgRegisterFailed)
	}

	h.Logger.Info("User registered", slog.Uint64("user_id", uint64(user.ID)))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true})
}

// LoginAction checks credentials. It does not open a session.
func (h *Handlers) LoginAction(c *fiber.Ctx) error {
	creds, ok := parseCredentials(c)
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, msgMissingCredentials)
	}

	user, err := users.Authenticate(h.DBManager.GetConnection().WithContext(c.UserContext()), creds.Email, creds.Password)
	switch {
	case errors.Is(err, users.ErrInvalidCredentials):
		h.Logger.Debug("Invalid login attempt", slog.String("email", creds.Email))
		return jsonError(c, fiber.StatusUnauthorized, msgInvalidCredentials)
	case errors.Is(err, users.ErrMissingCredentials):
		return jsonError(c, fiber.StatusBadRequest, msgMissingCredentials)
	case err != nil:
		return err
	}

	return c.JSON(fiber.Map{"ok": true, "userId": user.ID})
}
