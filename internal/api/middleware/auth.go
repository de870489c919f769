package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// LocalAPIKeyHash is the key to retrieve the caller's API key hash from context
const LocalAPIKeyHash = "api_key_hash"

// wsTokenParam carries the API key on WebSocket upgrades, where browsers
// cannot set an Authorization header.
const wsTokenParam = "token"

// Auth creates an authentication middleware that accepts a single API key
func Auth(apiKey string) fiber.Handler {
	expected := domain.HashAPIKey(apiKey)

	return func(c *fiber.Ctx) error {
		// 1. Extract Bearer token
		token := extractBearerToken(c)
		if token == "" && websocket.IsWebSocketUpgrade(c) {
			token = c.Query(wsTokenParam)
		}
		if token == "" {
			return domain.ErrUnauthorized
		}

		// 2. Compare hashes in constant time
		got := domain.HashAPIKey(token)
		if subtle.ConstantTimeCompare(got[:], expected[:]) != 1 {
			return domain.ErrUnauthorized
		}

		c.Locals(LocalAPIKeyHash, domain.APIKeyFingerprint(token))

		return c.Next()
	}
}

// extractBearerToken extracts token from Authorization header
func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
