package core

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Lifetimes selected by the login request's expire field.
const (
	DefaultTokenLifetime  = 15 * time.Minute
	RememberTokenLifetime = 30 * 24 * time.Hour
)

// Claims is the payload of an issued credential.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs credentials for the login flow. The gate itself never
// looks inside a token; only API handlers call Verify.
type TokenIssuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Lifetime maps the expire field: 0 -> 15 minutes, >0 -> that many minutes,
// -1 -> 30 days. Other negatives fall back to the default.
func Lifetime(expireMinutes int) time.Duration {
	switch {
	case expireMinutes > 0:
		return time.Duration(expireMinutes) * time.Minute
	case expireMinutes == -1:
		return RememberTokenLifetime
	default:
		return DefaultTokenLifetime
	}
}

// Issue returns a signed token and its expiry instant.
func (t *TokenIssuer) Issue(userID int64, expireMinutes int) (string, time.Time, error) {
	now := t.now()
	expireAt := now.Add(Lifetime(expireMinutes)).Truncate(time.Second)
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expireAt),
			Issuer:    t.issuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expireAt, nil
}

// Verify parses and validates a token signed by this issuer.
func (t *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
