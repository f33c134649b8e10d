package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/otpline/otpline/internal/config"
	"github.com/otpline/otpline/internal/logging"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	cfg := config.Config{
		AppName:    "otpline-test",
		AppEnv:     "development",
		Port:       "8080",
		SessionTTL: time.Minute,
	}

	app := fiber.New()
	if err := Setup(app, Deps{Cfg: cfg, Cache: cache, Logger: logging.Discard()}); err != nil {
		t.Fatalf("setup routes: %v", err)
	}
	return app
}

type client struct {
	t       *testing.T
	app     *fiber.App
	session string
}

func (c *client) do(method, path string, body any) (*http.Response, map[string]any) {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: c.session})
	}

	resp, err := c.app.Test(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == "session_id" {
			c.session = ck.Value
		}
	}

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	resp.Body.Close()
	return resp, decoded
}

// register walks a client through the full login and returns its profile.
func (c *client) register(phone string) map[string]any {
	c.t.Helper()
	resp, body := c.do(fiber.MethodPost, "/api/v1/users/login", fiber.Map{"phone_number": phone})
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("login: expected 201, got %d", resp.StatusCode)
	}
	password, _ := body["one_time_password"].(string)
	if password == "" {
		c.t.Fatal("login: expected a one_time_password in the body")
	}

	resp, _ = c.do(fiber.MethodPost, "/api/v1/users/authenticate", fiber.Map{"password": password})
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("authenticate: expected 201, got %d", resp.StatusCode)
	}

	resp, profile := c.do(fiber.MethodGet, "/api/v1/users/profile", nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("profile: expected 200, got %d", resp.StatusCode)
	}
	return profile
}

func TestLoginValidatesPhone(t *testing.T) {
	app := setupTestApp(t)
	c := &client{t: t, app: app}

	resp, _ := c.do(fiber.MethodPost, "/api/v1/users/login", fiber.Map{"phone_number": "12345"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed phone, got %d", resp.StatusCode)
	}
}

func TestProfileRequiresAuthentication(t *testing.T) {
	app := setupTestApp(t)
	c := &client{t: t, app: app}

	resp, _ := c.do(fiber.MethodGet, "/api/v1/users/profile", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without a session, got %d", resp.StatusCode)
	}
}

func TestAuthenticateWithoutLoginFails(t *testing.T) {
	app := setupTestApp(t)
	c := &client{t: t, app: app}

	resp, _ := c.do(fiber.MethodPost, "/api/v1/users/authenticate", fiber.Map{"password": "9999"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 with no pending login, got %d", resp.StatusCode)
	}

	resp, _ = c.do(fiber.MethodGet, "/api/v1/users/profile", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected session to remain anonymous, got %d", resp.StatusCode)
	}
}

func TestFullLoginProfileLogoutFlow(t *testing.T) {
	app := setupTestApp(t)
	c := &client{t: t, app: app}

	profile := c.register("+79991234567")
	if profile["phone_number"] != "+79991234567" {
		t.Fatalf("unexpected profile phone: %v", profile["phone_number"])
	}
	if profile["invited_by_code"] != nil {
		t.Fatalf("fresh user must have null invited_by_code, got %v", profile["invited_by_code"])
	}
	if invited, ok := profile["invited_users"].([]any); !ok || len(invited) != 0 {
		t.Fatalf("fresh user must have empty invited_users, got %v", profile["invited_users"])
	}

	resp, updated := c.do(fiber.MethodPatch, "/api/v1/users/profile", fiber.Map{
		"first_name": "Ivan",
		"last_name":  "Petrov",
		"email":      "ivan@example.com",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update profile: expected 200, got %d", resp.StatusCode)
	}
	if updated["first_name"] != "Ivan" || updated["email"] != "ivan@example.com" {
		t.Fatalf("unexpected updated profile: %v", updated)
	}

	resp, _ = c.do(fiber.MethodDelete, "/api/v1/users/profile", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", resp.StatusCode)
	}

	resp, _ = c.do(fiber.MethodGet, "/api/v1/users/profile", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 after logout, got %d", resp.StatusCode)
	}
}

func TestInviteRedemptionFlow(t *testing.T) {
	app := setupTestApp(t)

	inviter := &client{t: t, app: app}
	inviterProfile := inviter.register("+79991111111")
	inviteCode, _ := inviterProfile["invite_code"].(string)
	if inviteCode == "" {
		t.Fatal("expected the inviter to have an invite code")
	}

	invitee := &client{t: t, app: app}
	invitee.register("+79992222222")

	// Self-referral is rejected.
	resp, profile := invitee.do(fiber.MethodGet, "/api/v1/users/profile", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("invitee profile: expected 200, got %d", resp.StatusCode)
	}
	ownCode, _ := profile["invite_code"].(string)
	resp, _ = invitee.do(fiber.MethodPut, "/api/v1/users/profile", fiber.Map{"invited_by_code": ownCode})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("self-referral: expected 400, got %d", resp.StatusCode)
	}

	resp, redeemed := invitee.do(fiber.MethodPut, "/api/v1/users/profile", fiber.Map{"invited_by_code": inviteCode})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("redeem: expected 200, got %d", resp.StatusCode)
	}
	if redeemed["invited_by_code"] != inviteCode {
		t.Fatalf("expected invited_by_code %q, got %v", inviteCode, redeemed["invited_by_code"])
	}

	// A second redemption with any code is rejected.
	resp, _ = invitee.do(fiber.MethodPut, "/api/v1/users/profile", fiber.Map{"invited_by_code": inviteCode})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("second redeem: expected 400, got %d", resp.StatusCode)
	}

	// The inviter now sees the invitee's phone number.
	resp, inviterProfile = inviter.do(fiber.MethodGet, "/api/v1/users/profile", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("inviter profile: expected 200, got %d", resp.StatusCode)
	}
	invited, _ := inviterProfile["invited_users"].([]any)
	if len(invited) != 1 || invited[0] != "+79992222222" {
		t.Fatalf("expected invited_users [+79992222222], got %v", inviterProfile["invited_users"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	app := setupTestApp(t)
	c := &client{t: t, app: app}

	resp, _ := c.do(fiber.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthy app, got %d", resp.StatusCode)
	}
}
