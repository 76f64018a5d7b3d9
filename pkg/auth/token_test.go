package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/millflow-backend/pkg/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "millflow",
		ExpirationMinutes: 30,
	}
}

func newTestIssuer(t *testing.T, cfg config.JWTConfig) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(cfg)
	require.NoError(t, err)
	return issuer
}

func TestMintAndVerify(t *testing.T) {
	issuer := newTestIssuer(t, testJWTConfig())
	now := time.Now().UTC()

	token, err := issuer.Mint(now, Operator{Subject: " planner@mill ", Role: " Planner "})
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Operator{Subject: "planner@mill", Role: "planner"}, claims.Operator())
	assert.Equal(t, "millflow", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestNewIssuerValidatesConfig(t *testing.T) {
	for _, mutate := range []func(*config.JWTConfig){
		func(c *config.JWTConfig) { c.Secret = "" },
		func(c *config.JWTConfig) { c.Issuer = "" },
		func(c *config.JWTConfig) { c.ExpirationMinutes = 0 },
	} {
		cfg := testJWTConfig()
		mutate(&cfg)
		_, err := NewIssuer(cfg)
		assert.Error(t, err)
	}
}

func TestMintRequiresSubject(t *testing.T) {
	_, err := newTestIssuer(t, testJWTConfig()).Mint(time.Now(), Operator{Role: "admin"})
	assert.Error(t, err)
}

func TestVerifyRejectsOtherSecret(t *testing.T) {
	token, err := newTestIssuer(t, testJWTConfig()).Mint(time.Now(), Operator{Subject: "op", Role: "planner"})
	require.NoError(t, err)

	cfg := testJWTConfig()
	cfg.Secret = "other"
	_, err = newTestIssuer(t, cfg).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer := newTestIssuer(t, testJWTConfig())
	token, err := issuer.Mint(time.Now().Add(-2*time.Hour), Operator{Subject: "op"})
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerifyHonoursLeeway(t *testing.T) {
	cfg := testJWTConfig()
	cfg.Leeway = time.Minute
	issuer := newTestIssuer(t, cfg)
	token, err := issuer.Mint(time.Now().Add(-30*time.Minute-10*time.Second), Operator{Subject: "op"})
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.NoError(t, err)
}

func TestVerifyRejectsOtherIssuer(t *testing.T) {
	cfg := testJWTConfig()
	cfg.Issuer = "someone-else"
	token, err := newTestIssuer(t, cfg).Mint(time.Now(), Operator{Subject: "op"})
	require.NoError(t, err)

	_, err = newTestIssuer(t, testJWTConfig()).Verify(token)
	assert.True(t, errors.Is(err, jwt.ErrTokenInvalidIssuer))
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "op",
		Issuer:    "millflow",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestIssuer(t, testJWTConfig()).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
