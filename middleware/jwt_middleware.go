package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"runwayiq/session"
	"runwayiq/utils"
)

// Protected verifies the access token and places the caller's session on the request
func Protected(secret string, sessions *session.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Try to get token from Authorization header first
		var token string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid authorization format", nil)
			}
			token = tokenParts[1]
		} else {
			// Fall back to cookie if header not present
			token = c.Cookies("access_token")
			if token == "" {
				return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
			}
		}

		claims, err := utils.ParseJWTToken(token, secret)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid or expired token", nil)
		}
		s := session.FromClaims(claims)

		if err := sessions.Check(c.UserContext(), s); err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Session has been signed out", nil)
		}

		profile, err := sessions.Profile(c.UserContext(), s.UserID)
		switch {
		case errors.Is(err, session.ErrUserNotFound):
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "User not found", nil)
		case errors.Is(err, session.ErrUserInactive):
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Account is not active", nil)
		case err != nil:
			utils.LogError("session_profile", err, map[string]interface{}{"user_id": s.UserID})
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load session", nil)
		}
		s.Email = profile.Email
		s.Name = profile.Name

		session.Set(c, s)
		return c.Next()
	}
}
