package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-unit-tests"

func newTestPair(t *testing.T, expiry time.Duration) (*JWTGenerator, *JWTValidator) {
	t.Helper()
	generator, err := NewJWTGenerator(JWTGeneratorConfig{
		SecretKey:  testSecret,
		Issuer:     "keepsake-test",
		ExpiryTime: expiry,
	})
	require.NoError(t, err)

	validator, err := NewJWTValidator(JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     testSecret,
		Issuer:        "keepsake-test",
	})
	require.NoError(t, err)

	return generator, validator
}

func TestJWTRoundTrip(t *testing.T) {
	generator, validator := newTestPair(t, time.Hour)

	token, err := generator.GenerateToken("1bb4cd47-9711-4f03-9777-1a14c2d0e259", "user@example.com")
	require.NoError(t, err)

	claims, err := validator.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "1bb4cd47-9711-4f03-9777-1a14c2d0e259", claims.AccountID)
	assert.Equal(t, "user@example.com", claims.Email)
}

func TestJWTRoundTrip_BearerPrefixStripped(t *testing.T) {
	generator, validator := newTestPair(t, time.Hour)

	token, err := generator.GenerateToken("1bb4cd47-9711-4f03-9777-1a14c2d0e259", "user@example.com")
	require.NoError(t, err)

	_, err = validator.ValidateToken("Bearer " + token)
	assert.NoError(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	generator, validator := newTestPair(t, -time.Minute)

	token, err := generator.GenerateToken("1bb4cd47-9711-4f03-9777-1a14c2d0e259", "user@example.com")
	require.NoError(t, err)

	_, err = validator.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	generator, _ := newTestPair(t, time.Hour)

	validator, err := NewJWTValidator(JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     "a-different-secret",
		Issuer:        "keepsake-test",
	})
	require.NoError(t, err)

	token, err := generator.GenerateToken("1bb4cd47-9711-4f03-9777-1a14c2d0e259", "user@example.com")
	require.NoError(t, err)

	_, err = validator.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	generator, err := NewJWTGenerator(JWTGeneratorConfig{
		SecretKey:  testSecret,
		Issuer:     "someone-else",
		ExpiryTime: time.Hour,
	})
	require.NoError(t, err)

	_, validator := newTestPair(t, time.Hour)

	token, err := generator.GenerateToken("1bb4cd47-9711-4f03-9777-1a14c2d0e259", "user@example.com")
	require.NoError(t, err)

	_, err = validator.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestValidateToken_Missing(t *testing.T) {
	_, validator := newTestPair(t, time.Hour)

	_, err := validator.ValidateToken("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()

	_, err := GetPrincipalFromContext(ctx)
	assert.Error(t, err)

	want := &Principal{AccountID: "1bb4cd47-9711-4f03-9777-1a14c2d0e259", Email: "user@example.com"}
	ctx = SetPrincipalInContext(ctx, want)

	got, err := GetPrincipalFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTokenBucketLimiter(t *testing.T) {
	limiter := NewTokenBucketLimiter(3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should pass", i)
	}

	allowed, err := limiter.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Other keys are unaffected.
	allowed, err = limiter.Allow(ctx, "client-b")
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, limiter.Reset(ctx, "client-a"))
	allowed, err = limiter.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, allowed)
}
