package middleware

import (
	"github.com/gofiber/fiber/v2"

	"runwayiq/utils"
)

// SignatureValidator checks Twilio's X-Twilio-Signature header
type SignatureValidator interface {
	ValidSignature(url string, params map[string]string, signature string) bool
}

// TwilioSignature rejects webhook calls that were not signed by Twilio.
// A nil validator lets every request through.
func TwilioSignature(v SignatureValidator, publicBaseURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if v == nil {
			return c.Next()
		}

		params := make(map[string]string)
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			params[string(key)] = string(value)
		})

		url := publicBaseURL + c.OriginalURL()
		if !v.ValidSignature(url, params, c.Get("X-Twilio-Signature")) {
			utils.LogEvent("twilio_signature_rejected", map[string]interface{}{
				"path": c.Path(),
				"ip":   c.IP(),
			})
			return c.Status(fiber.StatusForbidden).SendString("Invalid signature")
		}
		return c.Next()
	}
}
