package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/mathieu-neron/toptabled/internal/logging"
	"github.com/mathieu-neron/toptabled/pkg/hash"
)

// hashIPForLog produces a short, irreversible hash prefix of the IP address
// for log correlation without storing raw PII.
func hashIPForLog(ip string) string {
	return hash.Prefix(ip, 12)
}

// sanitizePath replaces dynamic path segments (item IDs) with placeholders so
// log lines group by route.
func sanitizePath(path string) string {
	parts := strings.Split(path, "/")
	for i := range parts {
		if i == 0 {
			continue
		}
		if parts[i-1] == "items" && parts[i] != "" {
			parts[i] = ":itemId"
		}
	}
	return strings.Join(parts, "/")
}

// NewRequestLogger returns a Fiber middleware that logs each request as
// structured JSON via zerolog.
// Privacy: raw IPs and user ids are hashed; dynamic path segments are sanitized.
func NewRequestLogger() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()

		evt := logging.Logger.Info()
		if status >= 500 {
			evt = logging.Logger.Error()
		} else if status >= 400 {
			evt = logging.Logger.Warn()
		}

		if ident := IdentityFrom(c); ident.SignedIn() {
			evt = evt.Str("user_hash", hash.Prefix(ident.ID, 12)).Str("class", ident.Class.String())
		}

		evt.
			Str("method", c.Method()).
			Str("path", sanitizePath(c.Path())).
			Int("status", status).
			Dur("duration_ms", duration).
			Str("ip_hash", hashIPForLog(c.IP())).
			Int("bytes_sent", len(c.Response().Body())).
			Msg("request")

		return err
	}
}
