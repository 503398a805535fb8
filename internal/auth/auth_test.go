package auth

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"planadmin-backend/internal/engine"
)

const testSecret = "test-secret"

// newTestApp mirrors the server's error handler so AppError statuses
// surface instead of collapsing to 500.
func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var appErr *engine.AppError
			if errors.As(err, &appErr) {
				return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
			}
			return c.Status(500).SendString(err.Error())
		},
	})
}

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("42", "ana", []string{"advisor"}, testSecret)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := ParseAccessToken(token, testSecret)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "42" {
		t.Errorf("expected subject 42, got %s", claims.Subject)
	}
	if claims.Username != "ana" {
		t.Errorf("expected username ana, got %s", claims.Username)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "advisor" {
		t.Errorf("expected roles [advisor], got %v", claims.Roles)
	}
}

func TestParseAccessTokenWrongSecret(t *testing.T) {
	token, err := GenerateAccessToken("42", "ana", nil, testSecret)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := ParseAccessToken(token, "other-secret"); err == nil {
		t.Fatal("expected error for token signed with a different secret")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("changeme")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "changeme" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !CheckPassword("changeme", hash) {
		t.Error("expected correct password to verify")
	}
	if CheckPassword("wrong", hash) {
		t.Error("expected wrong password to fail")
	}
}

func TestMiddlewareSetsUserContext(t *testing.T) {
	app := newTestApp()
	app.Use(Middleware(testSecret))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			t.Fatal("expected user context on authenticated request")
		}
		return c.JSON(fiber.Map{"id": user.ID, "username": user.Username})
	})

	// No token: 401 before the handler runs.
	req, _ := http.NewRequest("GET", "/whoami", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	token, err := GenerateAccessToken("7", "ana", []string{"advisor"}, testSecret)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req2, _ := http.NewRequest("GET", "/whoami", nil)
	req2.Header.Set("Authorization", "Bearer "+token)
	resp2, err := app.Test(req2, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp2.StatusCode != 200 {
		t.Fatalf("expected 200 with valid token, got %d", resp2.StatusCode)
	}
}

func TestRequireAdmin(t *testing.T) {
	app := newTestApp()
	app.Use(Middleware(testSecret))
	app.Use(RequireAdmin())
	app.Get("/secure", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	advisorToken, _ := GenerateAccessToken("7", "ana", []string{"advisor"}, testSecret)
	req, _ := http.NewRequest("GET", "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+advisorToken)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 403 {
		t.Fatalf("expected 403 for non-admin, got %d", resp.StatusCode)
	}

	adminToken, _ := GenerateAccessToken("1", "root", []string{"admin"}, testSecret)
	req2, _ := http.NewRequest("GET", "/secure", nil)
	req2.Header.Set("Authorization", "Bearer "+adminToken)
	resp2, err := app.Test(req2, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp2.StatusCode != 200 {
		t.Fatalf("expected 200 for admin, got %d", resp2.StatusCode)
	}
}
