package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hris-leave-api/internal/models"
	appErrors "github.com/noah-isme/hris-leave-api/pkg/errors"
)

func TestAuthServiceIssueAndValidate(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "hris"})

	token, expiresAt, err := svc.IssueToken("emp-1", models.RoleEmployee, "dana@example.com", "Dana Cruz")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "emp-1", claims.UserID)
	assert.Equal(t, models.RoleEmployee, claims.Role)
	assert.Equal(t, "Dana Cruz", claims.FullName)
}

func TestAuthServiceRejectsWrongSecretAndIssuer(t *testing.T) {
	issuer := NewAuthService(nil, AuthConfig{AccessTokenSecret: "other", Issuer: "hris"})
	token, _, err := issuer.IssueToken("emp-1", models.RoleEmployee, "", "")
	require.NoError(t, err)

	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "hris"})
	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	foreign := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "someone-else"})
	token, _, err = foreign.IssueToken("emp-1", models.RoleEmployee, "", "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	require.Error(t, err)
}

func TestAuthServiceFallsBackToSubject(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: "emp-7", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret"})
	parsed, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "emp-7", parsed.UserID)
}

func TestAuthServiceRejectsExpired(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret"})
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := svc.IssueToken("emp-1", models.RoleEmployee, "", "")
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	require.Error(t, err)
}
