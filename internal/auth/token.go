// Package auth issues and verifies the HS256 access tokens that carry a
// requester's identity between the HTTP transport and the engine.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"roombooking/backend/internal/domain"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for who. The role claim is derived from IsAdmin.
func (i *Issuer) Issue(who domain.Identity) (AccessToken, error) {
	if who.IsZero() {
		return AccessToken{}, errors.New("cannot issue a token without a subject")
	}
	now := i.now().UTC()
	exp := now.Add(i.ttl)
	role := RoleUser
	if who.IsAdmin {
		role = RoleAdmin
	}
	claims := Claims{
		Name: who.DisplayName,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   who.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, ExpiresAt: exp.Truncate(time.Second)}, nil
}

// Verify checks the signature and expiry of raw and returns the identity it
// carries.
func (i *Issuer) Verify(raw string) (domain.Identity, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return domain.Identity{
		UserID:      claims.Subject,
		DisplayName: claims.Name,
		IsAdmin:     claims.Role == RoleAdmin,
	}, nil
}
