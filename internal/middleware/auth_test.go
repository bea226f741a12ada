package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copytrade/internal/domain"
)

func serve(t *testing.T, h echo.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, h(c)
}

func whoami(c echo.Context) error {
	id, err := GetUserID(c)
	if err != nil {
		return err
	}
	return c.String(http.StatusOK, id.String())
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected echo.HTTPError, got %v", err)
	return he.Code
}

func TestMiddlewareAcceptsBearerToken(t *testing.T) {
	auth := NewJWTAuth("s3cret", time.Hour)
	userID := uuid.New()
	token, err := auth.GenerateJWT(userID, domain.RoleUser)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/brokers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, err := serve(t, auth.Middleware(whoami), req)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), rec.Body.String())
}

func TestMiddlewareAcceptsCookie(t *testing.T) {
	auth := NewJWTAuth("s3cret", time.Hour)
	userID := uuid.New()
	token, err := auth.GenerateJWT(userID, domain.RoleAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/brokers", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
	rec, err := serve(t, auth.Middleware(whoami), req)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), rec.Body.String())
}

func TestMiddlewareRejects(t *testing.T) {
	auth := NewJWTAuth("s3cret", time.Hour)
	other := NewJWTAuth("other", time.Hour)
	foreign, err := other.GenerateJWT(uuid.New(), domain.RoleUser)
	require.NoError(t, err)

	expired := NewJWTAuth("s3cret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, err := expired.GenerateJWT(uuid.New(), domain.RoleUser)
	require.NoError(t, err)

	cases := map[string]string{
		"missing":      "",
		"wrong scheme": "Token abc",
		"garbage":      "Bearer not-a-jwt",
		"wrong secret": "Bearer " + foreign,
		"expired":      "Bearer " + stale,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/brokers", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			_, err := serve(t, auth.Middleware(whoami), req)
			assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
		})
	}
}

func TestAdminMiddleware(t *testing.T) {
	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.Set("role", domain.RoleUser)
	assert.Equal(t, http.StatusForbidden, statusOf(t, AdminMiddleware(ok)(c)))

	rec := httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.Set("role", domain.RoleAdmin)
	require.NoError(t, AdminMiddleware(ok)(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, IsAdmin(c))
}
