package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func init() { gin.SetMode(gin.TestMode) }

func newRouter(cfg JWTSettings, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	chain := append([]gin.HandlerFunc{JWTAuth(cfg)}, extra...)
	chain = append(chain, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":   c.GetString("user_id"),
			"role":      c.GetString("role"),
			"user_name": c.GetString("user_name"),
		})
	})
	r.GET("/me", chain...)
	return r
}

func do(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	t.Parallel()
	r := newRouter(JWTSettings{Secret: secret, Audience: "authenticated"})
	tok := sign(t, jwt.MapClaims{
		"sub":           "a11ce000-0000-4000-8000-000000000001",
		"aud":           "authenticated",
		"exp":           time.Now().Add(time.Hour).Unix(),
		"app_metadata":  map[string]any{"role": "admin"},
		"user_metadata": map[string]any{"full_name": "Alice Doe"},
	})

	w := do(r, tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"a11ce000-0000-4000-8000-000000000001","role":"admin","user_name":"Alice Doe"}`, w.Body.String())
}

func TestJWTAuthRejects(t *testing.T) {
	t.Parallel()
	r := newRouter(JWTSettings{Secret: secret, Issuer: "https://x.supabase.co/auth/v1"})

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "garbage").Code)

	expired := sign(t, jwt.MapClaims{"sub": "u", "iss": "https://x.supabase.co/auth/v1", "exp": time.Now().Add(-time.Minute).Unix()})
	assert.Equal(t, http.StatusUnauthorized, do(r, expired).Code)

	wrongIssuer := sign(t, jwt.MapClaims{"sub": "u", "iss": "https://evil.example", "exp": time.Now().Add(time.Hour).Unix()})
	assert.Equal(t, http.StatusUnauthorized, do(r, wrongIssuer).Code)

	noSubject := sign(t, jwt.MapClaims{"iss": "https://x.supabase.co/auth/v1", "exp": time.Now().Add(time.Hour).Unix()})
	assert.Equal(t, http.StatusUnauthorized, do(r, noSubject).Code)
}

func TestJWTAuthWithoutSecretIsConfigurationError(t *testing.T) {
	t.Parallel()
	w := do(newRouter(JWTSettings{}), "anything")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "CONFIGURATION")
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()
	r := newRouter(JWTSettings{Secret: secret}, RequireAdmin())

	user := sign(t, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(time.Hour).Unix()})
	assert.Equal(t, http.StatusForbidden, do(r, user).Code)

	admin := sign(t, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(time.Hour).Unix(), "app_metadata": map[string]any{"role": "Admin"}})
	assert.Equal(t, http.StatusOK, do(r, admin).Code)
}
