package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcevia/be-entity-workflow/internal/workflow"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	v := NewVerifier(testSecret, "sourcevia_session")

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "u-1",
		"name": "Olivia Officer",
		"role": "procurement_officer",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	session, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", session.UserID)
	assert.Equal(t, "Olivia Officer", session.UserName)
	assert.Equal(t, workflow.RoleOfficer, session.Role)
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	v := NewVerifier(testSecret, "sourcevia_session")

	token := signToken(t, "other-secret", jwt.MapClaims{
		"sub": "u-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewVerifier(testSecret, "sourcevia_session")

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "u-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := v.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	v := NewVerifier(testSecret, "sourcevia_session")

	token := signToken(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(token)
	assert.Error(t, err)
}

func TestFromRequestCookieTakesPrecedence(t *testing.T) {
	v := NewVerifier(testSecret, "sourcevia_session")

	cookieToken := signToken(t, testSecret, jwt.MapClaims{
		"sub": "u-cookie",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	bearerToken := signToken(t, testSecret, jwt.MapClaims{
		"sub": "u-bearer",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Cookie", "sourcevia_session="+cookieToken)
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	session, err := v.FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "u-cookie", session.UserID)
}

func TestFromRequestBearerFallback(t *testing.T) {
	v := NewVerifier(testSecret, "sourcevia_session")

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "u-bearer",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	session, err := v.FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "u-bearer", session.UserID)
}

func TestFromRequestMissingToken(t *testing.T) {
	v := NewVerifier(testSecret, "sourcevia_session")

	_, err := v.FromRequest(httptest.NewRequest("GET", "/", nil))
	assert.Error(t, err)
}
