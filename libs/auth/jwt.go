package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptySecret  = errors.New("jwt secret is empty")
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
)

// Claims identifies the actor behind an API call. Sub is recorded as
// approvedBy / reportedBy on workflow writes.
type Claims struct {
	Sub  string
	Role string
	Exp  int64
	Iat  int64
}

func (c Claims) HasRole(roles ...string) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func unixDate(sec int64) *jwt.NumericDate {
	if sec == 0 {
		return nil
	}
	return jwt.NewNumericDate(time.Unix(sec, 0))
}

func SignHS256(claims Claims, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Role: claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Sub,
			ExpiresAt: unixDate(claims.Exp),
			IssuedAt:  unixDate(claims.Iat),
		},
	})
	return tok.SignedString([]byte(secret))
}

func ParseAndVerifyHS256(token, secret string) (*Claims, error) {
	return parseAndVerifyHS256(token, secret, time.Now())
}

func parseAndVerifyHS256(token, secret string, now time.Time) (*Claims, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	var tc tokenClaims
	_, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || tc.Subject == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{Sub: tc.Subject, Role: tc.Role}
	if tc.ExpiresAt != nil {
		claims.Exp = tc.ExpiresAt.Unix()
	}
	if tc.IssuedAt != nil {
		claims.Iat = tc.IssuedAt.Unix()
	}
	return claims, nil
}
