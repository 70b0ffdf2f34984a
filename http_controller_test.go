package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testService struct {
	app    *fiber.App
	repo   RepositoryManager
	mailer *RecorderMailer
	auther *Auther
	cfg    *Config
}

func newTestService(t *testing.T) *testService {
	t.Helper()

	cfg := testConfig()
	repo := newTestRepo(t)
	mailer := &RecorderMailer{}

	auther := NewAuthenticator(NewUserProvider(repo.Users()), cfg)

	controller := NewAccountController(
		WithRepository(repo),
		WithMailer(mailer),
		WithAuthenticator(auther),
		WithConfig(cfg),
		WithTokenValidator(auther.TokenService()),
	)

	app := fiber.New()
	controller.RegisterRoutes(app.Group("/api/v1/users"))

	return &testService{app: app, repo: repo, mailer: mailer, auther: auther, cfg: cfg}
}

func (s *testService) request(t *testing.T, method, target string, payload any, mutate ...func(*http.Request)) (*http.Response, map[string]any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, target, body)
	require.NoError(t, err)

	if payload != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	for _, m := range mutate {
		m(req)
	}

	resp, err := s.app.Test(req, 10000)
	require.NoError(t, err)

	decoded := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}

	return resp, decoded
}

// register runs the happy-path registration and returns the verification
// token captured from the outbound mail.
func (s *testService) register(t *testing.T, name, email, password string) string {
	t.Helper()

	resp, body := s.request(t, http.MethodPost, "/api/v1/users/register", fiber.Map{
		"name":     name,
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %v", body)

	msg, ok := s.mailer.Last()
	require.True(t, ok)

	return tokenFromMailBody(t, msg.Body, "/api/v1/users/verify/")
}

func (s *testService) verify(t *testing.T, token string) {
	t.Helper()

	resp, body := s.request(t, http.MethodGet, "/api/v1/users/verify/"+token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", body)
}

func (s *testService) login(t *testing.T, email, password string) (*http.Response, map[string]any) {
	t.Helper()

	return s.request(t, http.MethodPost, "/api/v1/users/login", fiber.Map{
		"email":    email,
		"password": password,
	})
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

func withBearer(token string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
}

func TestAccountLifecycle(t *testing.T) {
	svc := newTestService(t)

	verifyToken := svc.register(t, "Ann", "ann@example.com", "sup3rs3cret")

	t.Run("login is refused before verification", func(t *testing.T) {
		resp, body := svc.login(t, "ann@example.com", "sup3rs3cret")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "ACCOUNT_NOT_VERIFIED", body["error"])
	})

	svc.verify(t, verifyToken)

	resp, body := svc.login(t, "ann@example.com", "sup3rs3cret")
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", body)

	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ann", user["name"])
	assert.Equal(t, "ann@example.com", user["email"])
	assert.Equal(t, RoleUser, user["role"])

	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)
	assert.Equal(t, token, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	t.Run("profile with bearer token", func(t *testing.T) {
		resp, body := svc.request(t, http.MethodGet, "/api/v1/users/profile", nil, withBearer(token))
		require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", body)

		profile, ok := body["user"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "ann@example.com", profile["email"])

		// Secrets never leave the service.
		assert.NotContains(t, profile, "password_hash")
		assert.NotContains(t, profile, "verification_token")
		assert.NotContains(t, profile, "password_reset_token")
	})

	t.Run("profile with session cookie", func(t *testing.T) {
		resp, _ := svc.request(t, http.MethodGet, "/api/v1/users/profile", nil, func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("logout evicts the cookie", func(t *testing.T) {
		resp, body := svc.request(t, http.MethodGet, "/api/v1/users/logout", nil, withBearer(token))
		require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", body)

		cookie := sessionCookie(resp)
		require.NotNil(t, cookie)
		assert.Empty(t, cookie.Value)
		assert.True(t, cookie.Expires.Before(time.Now()))
	})

	t.Run("verification token is single use", func(t *testing.T) {
		resp, body := svc.request(t, http.MethodGet, "/api/v1/users/verify/"+verifyToken, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, false, body["success"])
	})
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc := newTestService(t)

	t.Run("missing fields", func(t *testing.T) {
		resp, _ := svc.request(t, http.MethodPost, "/api/v1/users/register", fiber.Map{
			"email": "ann@example.com",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid email", func(t *testing.T) {
		resp, _ := svc.request(t, http.MethodPost, "/api/v1/users/register", fiber.Map{
			"name":     "Ann",
			"email":    "not-an-email",
			"password": "sup3rs3cret",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("short password", func(t *testing.T) {
		resp, _ := svc.request(t, http.MethodPost, "/api/v1/users/register", fiber.Map{
			"name":     "Ann",
			"email":    "ann@example.com",
			"password": "short",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("duplicate email", func(t *testing.T) {
		svc.register(t, "Ann", "ann@example.com", "sup3rs3cret")

		resp, body := svc.request(t, http.MethodPost, "/api/v1/users/register", fiber.Map{
			"name":     "Imposter",
			"email":    "Ann@Example.com",
			"password": "sup3rs3cret",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "EMAIL_TAKEN", body["error"])
	})
}

func TestLoginFailuresDoNotLeakAccounts(t *testing.T) {
	svc := newTestService(t)

	token := svc.register(t, "Ann", "ann@example.com", "sup3rs3cret")
	svc.verify(t, token)

	respUnknown, bodyUnknown := svc.login(t, "nobody@example.com", "sup3rs3cret")
	respWrong, bodyWrong := svc.login(t, "ann@example.com", "wrong-password")

	assert.Equal(t, http.StatusUnauthorized, respUnknown.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, respWrong.StatusCode)
	assert.Equal(t, bodyUnknown["message"], bodyWrong["message"])
	assert.Equal(t, "INVALID_CREDENTIALS", bodyWrong["error"])
}

func TestSessionGuard(t *testing.T) {
	svc := newTestService(t)

	t.Run("missing token", func(t *testing.T) {
		resp, body := svc.request(t, http.MethodGet, "/api/v1/users/profile", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "TOKEN_MALFORMED", body["error"])
	})

	t.Run("garbage token", func(t *testing.T) {
		resp, body := svc.request(t, http.MethodGet, "/api/v1/users/profile", nil, withBearer("garbage"))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "TOKEN_MALFORMED", body["error"])
	})

	t.Run("expired token", func(t *testing.T) {
		verifyToken := svc.register(t, "Ann", "ann@example.com", "sup3rs3cret")
		svc.verify(t, verifyToken)

		account, err := svc.repo.Users().GetByEmail(context.Background(), "ann@example.com")
		require.NoError(t, err)

		// Same secret, negative validity window: the token is expired on arrival.
		stale := NewTokenService([]byte(svc.cfg.SigningSecret), -1, svc.cfg.Issuer, svc.cfg.Audience(), nil)
		token, err := stale.Generate(IdentityFromUser(account))
		require.NoError(t, err)

		resp, body := svc.request(t, http.MethodGet, "/api/v1/users/profile", nil, withBearer(token))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "TOKEN_EXPIRED", body["error"])
	})
}

func TestPasswordRecoveryFlow(t *testing.T) {
	svc := newTestService(t)

	verifyToken := svc.register(t, "Ann", "ann@example.com", "sup3rs3cret")
	svc.verify(t, verifyToken)

	resp, body := svc.request(t, http.MethodPost, "/api/v1/users/forget-password", fiber.Map{
		"email": "ann@example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", body)

	msg, ok := svc.mailer.Last()
	require.True(t, ok)
	require.Equal(t, SubjectResetPassword, msg.Subject)
	resetToken := tokenFromMailBody(t, msg.Body, "/reset-password/")

	t.Run("mismatched confirmation", func(t *testing.T) {
		resp, _ := svc.request(t, http.MethodPost, "/api/v1/users/reset-password/"+resetToken, fiber.Map{
			"password":         "n3w-s3cret-1",
			"confirm_password": "n3w-s3cret-2",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	resp, body = svc.request(t, http.MethodPost, "/api/v1/users/reset-password/"+resetToken, fiber.Map{
		"password":         "n3w-s3cret-1",
		"confirm_password": "n3w-s3cret-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", body)

	t.Run("old password stops working", func(t *testing.T) {
		resp, _ := svc.login(t, "ann@example.com", "sup3rs3cret")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("new password logs in", func(t *testing.T) {
		resp, _ := svc.login(t, "ann@example.com", "n3w-s3cret-1")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("reset token is single use", func(t *testing.T) {
		resp, body := svc.request(t, http.MethodPost, "/api/v1/users/reset-password/"+resetToken, fiber.Map{
			"password":         "an0ther-s3cret",
			"confirm_password": "an0ther-s3cret",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, TextCodeTokenExpired, body["error"])
	})
}

func TestPasswordRecoveryExpiredToken(t *testing.T) {
	svc := newTestService(t)

	token := "stale-reset-token"
	expiry := time.Now().Add(-time.Minute)
	seedUser(t, svc.repo, &User{
		Name:                "Ann",
		Email:               "ann@example.com",
		IsVerified:          true,
		PasswordResetToken:  &token,
		PasswordResetExpiry: &expiry,
	})

	resp, body := svc.request(t, http.MethodPost, "/api/v1/users/reset-password/"+token, fiber.Map{
		"password":         "n3w-s3cret-1",
		"confirm_password": "n3w-s3cret-1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, TextCodeTokenExpired, body["error"])
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	svc := newTestService(t)

	resp, body := svc.request(t, http.MethodPost, "/api/v1/users/forget-password", fiber.Map{
		"email": "nobody@example.com",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "ACCOUNT_NOT_FOUND", body["error"])
}
