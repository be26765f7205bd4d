package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionTokenTTL is the fixed lifetime of a session token.
const SessionTokenTTL = time.Hour

var ErrInvalidToken = errors.New("invalid token")

// SessionClaims is the payload of a session token.
type SessionClaims struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTAuthenticator signs and verifies HS256 session tokens.
type JWTAuthenticator struct {
	audience string
	issuer   string
	secret   []byte
	now      func() time.Time
}

// NewJWTAuthenticator creates a new JWTAuthenticator instance.
func NewJWTAuthenticator(audience, issuer, secret string) *JWTAuthenticator {
	return &JWTAuthenticator{
		audience: audience,
		issuer:   issuer,
		secret:   []byte(secret),
		now:      time.Now,
	}
}

// WithClock returns a copy of the authenticator that reads time from now.
func (a *JWTAuthenticator) WithClock(now func() time.Time) *JWTAuthenticator {
	cp := *a
	cp.now = now
	return &cp
}

// IssueSessionToken signs a session token for the given user. The returned
// time is the token's expiry.
func (a *JWTAuthenticator) IssueSessionToken(userID, username string) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(SessionTokenTTL)

	claims := SessionClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    a.issuer,
			Audience:  jwt.ClaimStrings{a.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenStr, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}

	return tokenStr, expiresAt, nil
}

// ParseSessionToken verifies the signature, issuer, audience and expiry of a
// session token and returns its claims.
func (a *JWTAuthenticator) ParseSessionToken(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		return a.secret, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithAudience(a.audience),
		jwt.WithIssuer(a.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
