package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/superpool/dispute-service/internal/domain"
	"github.com/superpool/dispute-service/pkg/util"
)

const (
	principalKey = "auth_principal"

	// HeaderMerchantID and HeaderAPIKey authenticate merchant integrations.
	HeaderMerchantID = "X-Merchant-ID"
	HeaderAPIKey     = "X-API-Key"
)

// AuthMiddleware accepts staff bearer tokens or merchant API keys.
type AuthMiddleware struct {
	tokens *TokenManager
	keys   *APIKeyVerifier
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, keys *APIKeyVerifier) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, keys: keys}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	if authHeader := c.Get(fiber.HeaderAuthorization); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return util.NewUnauthorized("invalid authorization header")
		}
		claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			return util.NewUnauthorized("invalid token")
		}
		c.Locals(principalKey, &domain.Principal{
			Type: domain.SubjectTypeStaff,
			ID:   claims.SubjectID,
			Role: claims.Role,
		})
		return c.Next()
	}

	merchantID := strings.TrimSpace(c.Get(HeaderMerchantID))
	apiKey := c.Get(HeaderAPIKey)
	if merchantID == "" || apiKey == "" {
		return util.NewUnauthorized("missing credentials")
	}
	if m.keys == nil || m.keys.Verify(merchantID, apiKey) != nil {
		return util.NewUnauthorized("invalid merchant credentials")
	}
	c.Locals(principalKey, &domain.Principal{
		Type:       domain.SubjectTypeMerchant,
		ID:         merchantID,
		MerchantID: merchantID,
	})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (domain.Principal, bool) {
	principal, ok := c.Locals(principalKey).(*domain.Principal)
	if !ok || principal == nil {
		return domain.Principal{}, false
	}
	return *principal, true
}
