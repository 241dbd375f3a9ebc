package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"runwayiq/calling"
	"runwayiq/session"
)

// RequireUpgrade rejects plain HTTP requests on websocket routes
func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// LiveCalls streams call events for the caller's campaigns until the client disconnects
func (cc *CallingController) LiveCalls() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		defer conn.Close()

		sess, err := session.FromValue(conn.Locals(session.LocalsKey))
		if err != nil {
			_ = conn.WriteJSON(fiber.Map{"type": "error", "message": "Authorization required"})
			return
		}

		unregister := cc.Hub.Register(sess.UserID, conn)
		defer unregister()

		log := cc.Logger.WithField("user_id", sess.UserID)
		log.Debug("Live call stream connected")
		if err := conn.WriteJSON(calling.NewEvent("connected", map[string]interface{}{"userId": sess.UserID})); err != nil {
			return
		}

		// the client only ever sends pings; reading detects the close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				log.WithError(err).Debug("Live call stream closed")
				return
			}
		}
	})
}
