package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/superpool/dispute-service/internal/domain"
	"github.com/superpool/dispute-service/pkg/util"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, expires, err := tm.GenerateToken("staff-1", domain.StaffRoleSupport)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expires, time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.SubjectID)
	assert.Equal(t, domain.StaffRoleSupport, claims.Role)

	_, err = NewTokenManager("other", 5).ParseToken(token)
	assert.Error(t, err)

	_, _, err = tm.GenerateToken("staff-1", domain.StaffRole("OWNER"))
	assert.Error(t, err)
}

func TestTokenExpiry(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	issued := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return issued }
	token, _, err := tm.GenerateToken("staff-1", domain.StaffRoleAgent)
	require.NoError(t, err)

	tm.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tm.ParseToken(token)
	assert.Error(t, err)
}

func TestAPIKeyVerifier(t *testing.T) {
	hash, err := HashAPIKey("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	v := NewAPIKeyVerifier(map[string]string{"merch-1": hash})

	assert.NoError(t, v.Verify("merch-1", "s3cret"))
	assert.Error(t, v.Verify("merch-1", "wrong"))
	assert.ErrorIs(t, v.Verify("merch-2", "s3cret"), ErrUnknownMerchant)
}

func TestAPIKeyVerifierComparesForUnknownMerchant(t *testing.T) {
	hash, err := HashAPIKey("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	v := NewAPIKeyVerifier(map[string]string{"merch-1": hash})

	cost, err := bcrypt.Cost(v.dummy)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	var compared [][]byte
	v.compare = func(h, key []byte) error {
		compared = append(compared, h)
		return bcrypt.CompareHashAndPassword(h, key)
	}

	assert.ErrorIs(t, v.Verify("merch-404", "s3cret"), ErrUnknownMerchant)
	require.Len(t, compared, 1)
	assert.Equal(t, v.dummy, compared[0])

	assert.NoError(t, v.Verify("merch-1", "s3cret"))
	require.Len(t, compared, 2)
	assert.Equal(t, []byte(hash), compared[1])
}

func newAuthApp(t *testing.T, tm *TokenManager, keys *APIKeyVerifier, guards ...fiber.Handler) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		de := util.ToDomainError(err)
		return c.Status(de.HTTPStatus).SendString(de.Code)
	}})
	handlers := append([]fiber.Handler{NewAuthMiddleware(tm, keys).Handle}, guards...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(string(p.Type) + ":" + p.ID + ":" + string(p.Role))
	})
	app.Get("/whoami", handlers...)
	return app
}

func call(t *testing.T, app *fiber.App, headers map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	hash, err := HashAPIKey("key-1", bcrypt.MinCost)
	require.NoError(t, err)
	keys := NewAPIKeyVerifier(map[string]string{"merch-1": hash})
	app := newAuthApp(t, tm, keys)

	token, _, err := tm.GenerateToken("admin-1", domain.StaffRoleAdmin)
	require.NoError(t, err)

	status, body := call(t, app, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "STAFF:admin-1:ADMIN", body)

	status, body = call(t, app, map[string]string{HeaderMerchantID: "merch-1", HeaderAPIKey: "key-1"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "MERCHANT:merch-1:", body)

	status, body = call(t, app, map[string]string{HeaderMerchantID: "merch-1", HeaderAPIKey: "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, util.CodeUnauthorized, body)

	status, _ = call(t, app, map[string]string{"Authorization": "Token abc"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, app, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRequireStaffRole(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	hash, err := HashAPIKey("key-1", bcrypt.MinCost)
	require.NoError(t, err)
	app := newAuthApp(t, tm, NewAPIKeyVerifier(map[string]string{"merch-1": hash}), RequireStaffRole(domain.StaffRoleAdmin))

	agentToken, _, err := tm.GenerateToken("agent-1", domain.StaffRoleAgent)
	require.NoError(t, err)
	status, body := call(t, app, map[string]string{"Authorization": "Bearer " + agentToken})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, util.CodeForbidden, body)

	status, _ = call(t, app, map[string]string{HeaderMerchantID: "merch-1", HeaderAPIKey: "key-1"})
	assert.Equal(t, http.StatusForbidden, status)

	adminToken, _, err := tm.GenerateToken("admin-1", domain.StaffRoleAdmin)
	require.NoError(t, err)
	status, _ = call(t, app, map[string]string{"Authorization": "Bearer " + adminToken})
	assert.Equal(t, http.StatusOK, status)
}
