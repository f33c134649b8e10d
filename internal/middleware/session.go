package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	sessionCookieName = "session_id"
	sessionIDLocal    = "session_id"
)

// SessionCookie assigns every client an opaque session identifier carried in
// an HTTP-only cookie. Server-side login state is keyed by this identifier;
// the cookie itself holds no credentials.
func SessionCookie(ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Cookies(sessionCookieName)
		if id == "" {
			id = uuid.NewString()
			c.Cookie(&fiber.Cookie{
				Name:     sessionCookieName,
				Value:    id,
				HTTPOnly: true,
				SameSite: fiber.CookieSameSiteLaxMode,
				Expires:  time.Now().Add(ttl),
			})
		}

		c.Locals(sessionIDLocal, id)

		return c.Next()
	}
}

// SessionID returns the session identifier bound to the request.
func SessionID(c *fiber.Ctx) string {
	id, _ := c.Locals(sessionIDLocal).(string)
	return id
}
