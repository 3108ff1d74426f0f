package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vendorhub/ticket-sync/internal/domain"
	apperrors "github.com/vendorhub/ticket-sync/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	token, exp, err := tm.GenerateToken("vendor-1", domain.SenderVendor)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry in the past: %v", exp)
	}

	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.SubjectID != "vendor-1" || claims.Role != domain.SenderVendor {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := NewTokenManager("other", time.Hour).ParseToken(token); err == nil {
		t.Fatal("token verified with the wrong secret")
	}
	if _, _, err := tm.GenerateToken("x", domain.SenderRole("root")); err == nil {
		t.Fatal("expected unknown role to be rejected")
	}
}

func TestSessionFromToken(t *testing.T) {
	tm := NewTokenManager("secret", 30*time.Minute)
	token, exp, err := tm.GenerateToken("vendor-7", domain.SenderVendor)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	session, err := SessionFromToken(token)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if session.SubjectID != "vendor-7" || session.Role != domain.SenderVendor {
		t.Fatalf("session = %+v", session)
	}
	if session.ExpiresAt.Unix() != exp.Unix() {
		t.Fatalf("expires = %v, want %v", session.ExpiresAt, exp)
	}
	if session.Expired(time.Now()) {
		t.Fatal("fresh session reported expired")
	}

	if _, err := SessionFromToken("not-a-jwt"); err == nil {
		t.Fatal("expected garbage credential to fail")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer  abc": "abc",
	}
	for header, want := range cases {
		got, ok := BearerToken(header)
		if !ok || got != want {
			t.Fatalf("BearerToken(%q) = %q, %v", header, got, ok)
		}
	}
	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer   "} {
		if _, ok := BearerToken(header); ok {
			t.Fatalf("BearerToken(%q) accepted", header)
		}
	}
}

func newAuthApp(tm *TokenManager, roles ...domain.SenderRole) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var de *apperrors.DomainError
			if errors.As(err, &de) {
				return c.SendStatus(de.HTTPStatus)
			}
			return c.SendStatus(fiber.StatusInternalServerError)
		},
	})
	mw := NewAuthMiddleware(tm)
	app.Get("/me", mw.Handle, RequireRole(roles...), func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(p.SubjectID + ":" + string(p.Role))
	})
	return app
}

func TestMiddlewareAndRoles(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	vendorToken, _, _ := tm.GenerateToken("v1", domain.SenderVendor)
	customerToken, _, _ := tm.GenerateToken("c1", domain.SenderCustomer)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"bad token", "Bearer nope", fiber.StatusUnauthorized},
		{"wrong role", "Bearer " + customerToken, fiber.StatusForbidden},
		{"vendor", "Bearer " + vendorToken, fiber.StatusOK},
	}
	app := newAuthApp(tm, domain.SenderVendor, domain.SenderAdmin)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}
