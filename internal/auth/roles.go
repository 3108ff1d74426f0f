package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vendorhub/ticket-sync/internal/domain"
	apperrors "github.com/vendorhub/ticket-sync/pkg/util/errorutil"
)

// RequireRole ensures the principal has one of the allowed roles. With no
// roles it only requires authentication.
func RequireRole(allowed ...domain.SenderRole) fiber.Handler {
	allowedSet := make(map[domain.SenderRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
