package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Operator is the mill staff member acting through the API.
type Operator struct {
	Subject string
	Role    string
}

func (o Operator) normalized() Operator {
	return Operator{
		Subject: strings.TrimSpace(o.Subject),
		Role:    strings.ToLower(strings.TrimSpace(o.Role)),
	}
}

// Claims is the JWT body. The operator id is the registered "sub" claim.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Operator() Operator {
	return Operator{Subject: c.Subject, Role: c.Role}
}
