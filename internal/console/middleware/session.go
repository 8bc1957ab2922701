package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tair/product-console/internal/console/session"
	"github.com/tair/product-console/pkg/logger"
)

// LocalSessionID is the fiber local holding the page session id
const LocalSessionID = "session_id"

// SessionMiddleware makes sure every request belongs to a page session,
// issuing the cookie on first contact
func SessionMiddleware(ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Cookies(session.CookieName)
		if !session.ValidID(id) {
			id = session.NewID()
			c.Cookie(&fiber.Cookie{
				Name:     session.CookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   int(ttl.Seconds()),
				HTTPOnly: true,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}

		c.Locals(LocalSessionID, id)
		c.SetUserContext(logger.ContextWithSession(c.UserContext(), id))
		return c.Next()
	}
}

// SessionID returns the session id stored by SessionMiddleware
func SessionID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalSessionID).(string)
	return id
}
