package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"ctabeacon/internal/operators"
)

type loginParams struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// LoginStatusAction reports whether the caller holds an operator session.
// It also primes the CSRF cookie required by the login form.
func LoginStatusAction(ctx *cartridge.Context) error {
	userID, authenticated := ctx.Session.GetUserID(ctx.Ctx)
	resp := fiber.Map{"authenticated": authenticated}
	if authenticated {
		resp["operator_id"] = userID
	}
	return ctx.JSON(resp)
}

// ProcessLoginAction authenticates an operator from a form or JSON body.
func ProcessLoginAction(ctx *cartridge.Context) error {
	var params loginParams
	if err := ctx.BodyParser(&params); err != nil {
		ctx.Logger.Debug("Failed to parse login body", slog.Any("error", err))
	}

	if params.Email == "" || params.Password == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email and password are required",
			"code":  "MISSING_CREDENTIALS",
		})
	}

	op, err := operators.Authenticate(ctx.DB(), ctx.Logger, params.Email, params.Password)
	if err != nil {
		if errors.Is(err, operators.ErrInvalidCredentials) {
			ctx.Logger.Debug("Invalid login attempt", slog.String("email", params.Email))
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid email or password",
				"code":  "INVALID_CREDENTIALS",
			})
		}
		ctx.Logger.Error("Login failed", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Login failed",
			"code":  "LOGIN_ERROR",
		})
	}

	if err := ctx.Session.SetSession(ctx.Ctx, op.ID); err != nil {
		ctx.Logger.Error("Failed to set session", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Login failed",
			"code":  "LOGIN_ERROR",
		})
	}

	ctx.Logger.Info("Operator logged in", slog.Uint64("operator_id", uint64(op.ID)))
	return ctx.JSON(fiber.Map{"authenticated": true, "operator_id": op.ID})
}

// LogoutAction clears the operator session.
func LogoutAction(ctx *cartridge.Context) error {
	ctx.Session.ClearSession(ctx.Ctx)
	return ctx.JSON(fiber.Map{"authenticated": false})
}
