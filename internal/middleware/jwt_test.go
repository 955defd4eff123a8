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

	"github.com/madrasa-adp/intake-api/internal/models"
)

func signTestToken(t *testing.T, secret, name string) string {
	t.Helper()
	claims := &models.JWTClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func runMiddleware(mw gin.HandlerFunc, authorization string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admissions", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	c.Request = req
	mw(c)
	return c, w
}

func TestJWTRejectsMissingToken(t *testing.T) {
	validator := NewTokenValidator("secret")
	c, w := runMiddleware(JWT(validator), "")
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsInvalidToken(t *testing.T) {
	validator := NewTokenValidator("secret")
	c, w := runMiddleware(JWT(validator), "Bearer not-a-token")
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	validator := NewTokenValidator("secret")
	token := signTestToken(t, "other-secret", "registrar")
	c, w := runMiddleware(JWT(validator), "Bearer "+token)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAcceptsValidToken(t *testing.T) {
	validator := NewTokenValidator("secret")
	token := signTestToken(t, "secret", "registrar")
	c, _ := runMiddleware(JWT(validator), "Bearer "+token)
	assert.False(t, c.IsAborted())

	value, ok := c.Get(ContextUserKey)
	require.True(t, ok)
	claims, ok := value.(*models.JWTClaims)
	require.True(t, ok)
	assert.Equal(t, "registrar", claims.Name)
}

func TestOptionalJWTPassesWithoutToken(t *testing.T) {
	validator := NewTokenValidator("secret")
	c, _ := runMiddleware(OptionalJWT(validator), "")
	assert.False(t, c.IsAborted())

	_, ok := c.Get(ContextUserKey)
	assert.False(t, ok)
}

func TestOptionalJWTAttachesClaims(t *testing.T) {
	validator := NewTokenValidator("secret")
	token := signTestToken(t, "secret", "registrar")
	c, _ := runMiddleware(OptionalJWT(validator), "Bearer "+token)

	value, ok := c.Get(ContextUserKey)
	require.True(t, ok)
	claims, ok := value.(*models.JWTClaims)
	require.True(t, ok)
	assert.Equal(t, "registrar", claims.Actor())
}
