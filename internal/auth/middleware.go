package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vendorhub/ticket-sync/internal/domain"
	apperrors "github.com/vendorhub/ticket-sync/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	SubjectID string
	Role      domain.SenderRole
}

// AuthMiddleware validates bearer tokens.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	token, ok := BearerToken(authHeader)
	if !ok {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	principal, err := m.Authenticate(token)
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

// Authenticate validates a raw token and returns its principal. The realtime
// endpoint shares it with the HTTP middleware.
func (m *AuthMiddleware) Authenticate(token string) (*Principal, error) {
	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}
	subject := claims.SubjectID
	if subject == "" {
		subject = claims.Subject
	}
	return &Principal{SubjectID: subject, Role: claims.Role}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
