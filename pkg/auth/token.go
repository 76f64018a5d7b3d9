package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/millflow-backend/pkg/config"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid operator token")

var signingMethod = jwt.SigningMethodHS256

// Issuer mints and verifies HS256 operator tokens for one configuration.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
}

func NewIssuer(cfg config.JWTConfig) (*Issuer, error) {
	switch {
	case cfg.Secret == "":
		return nil, errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return nil, errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return nil, errors.New("jwt expiration minutes must be positive")
	}
	return &Issuer{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    time.Duration(cfg.ExpirationMinutes) * time.Minute,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingMethod.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(cfg.Leeway),
		),
	}, nil
}

// TTL is how long minted tokens stay valid.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Mint signs a token for op, valid from now for the configured TTL.
func (i *Issuer) Mint(now time.Time, op Operator) (string, error) {
	op = op.normalized()
	if op.Subject == "" {
		return "", errors.New("operator subject is required")
	}
	claims := Claims{
		Role: op.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   op.Subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign operator token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry and returns the claims.
func (i *Issuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	if _, err := i.parser.ParseWithClaims(token, claims, i.key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims, nil
}

func (i *Issuer) key(*jwt.Token) (any, error) {
	return i.secret, nil
}
