package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/mathieu-neron/toptabled/internal/model"
	"github.com/mathieu-neron/toptabled/internal/service"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderElevated = "X-User-Elevated"

	identityKey = "identity"
)

// NewIdentity resolves the caller from the identity headers set by the
// authenticating proxy. A missing or malformed user id leaves the request
// anonymous; the vote endpoints reject it later.
//
// The headers are trusted as-is. The proxy must strip any client-supplied
// HeaderUserID and HeaderElevated before setting its own; browsers are kept
// from sending HeaderElevated cross-origin by NewCORS.
func NewIdentity(classifier *service.Classifier) fiber.Handler {
	return func(c fiber.Ctx) error {
		ident := model.Anonymous
		if id, msg := ValidateUserID(c.Get(HeaderUserID)); msg == "" && id != "" {
			elevated, _ := strconv.ParseBool(c.Get(HeaderElevated))
			ident = classifier.Identify(id, elevated)
		}
		c.Locals(identityKey, ident)
		return c.Next()
	}
}

// IdentityFrom returns the identity resolved by NewIdentity, or the anonymous
// identity when the middleware did not run.
func IdentityFrom(c fiber.Ctx) model.Identity {
	if ident, ok := c.Locals(identityKey).(model.Identity); ok {
		return ident
	}
	return model.Anonymous
}
