package flatbank

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IdentityChecker reports whether a username still has credentials.
type IdentityChecker interface {
	Exists(username string) bool
}

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenGate issues and verifies stateless bearer tokens. There is no
// revocation; Verify only re-checks that the identity still exists.
type TokenGate struct {
	secret []byte
	ttl    time.Duration
	idents IdentityChecker
	now    func() time.Time
}

func NewTokenGate(secret string, ttl time.Duration, idents IdentityChecker) *TokenGate {
	return &TokenGate{
		secret: []byte(secret),
		ttl:    ttl,
		idents: idents,
		now:    time.Now,
	}
}

func (g *TokenGate) Issue(username string) (string, error) {
	now := g.now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.secret)
}

// Verify returns the username carried by a valid token.
func (g *TokenGate) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return g.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return "", ErrUnauthorized{}
	}
	if claims.Username == "" {
		return "", ErrUnauthorized{}
	}
	if g.idents != nil && !g.idents.Exists(claims.Username) {
		return "", ErrUnauthorized{}
	}
	return claims.Username, nil
}
