// Package identity verifies bearer tokens into caller identities and mints
// tokens for local development.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"retireplan/pkg/domain"
	dErrors "retireplan/pkg/domain-errors"
)

// Claims are the token claims. The subject is the uid.
type Claims struct {
	Email     string `json:"email,omitempty"`
	Anonymous bool   `json:"anonymous,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and validates HS256 tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

func NewTokenService(signingKey, issuer, audience string) *TokenService {
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
}

// Issue mints a token for id. Roles are never embedded; they are resolved
// from the claim store on each request.
func (s *TokenService) Issue(id domain.Identity, expiresIn time.Duration) (string, error) {
	if id.UID == "" {
		return "", errors.New("identity has no uid")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:     id.Email,
		Anonymous: id.Anonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// RoleResolver looks up the out-of-band role claim for a uid.
type RoleResolver interface {
	RoleOf(ctx context.Context, uid string) (domain.Role, error)
}

// Authenticator turns a bearer token into a domain.Identity.
type Authenticator struct {
	tokens *TokenService
	roles  RoleResolver
}

// NewAuthenticator builds an Authenticator. roles may be nil, in which case
// identities carry no role.
func NewAuthenticator(tokens *TokenService, roles RoleResolver) *Authenticator {
	return &Authenticator{tokens: tokens, roles: roles}
}

func (a *Authenticator) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	claims, err := a.tokens.Validate(token)
	if err != nil {
		return domain.Identity{}, err
	}
	id := domain.Identity{
		UID:       claims.Subject,
		Email:     claims.Email,
		Anonymous: claims.Anonymous,
	}
	if a.roles != nil && !id.Anonymous {
		role, err := a.roles.RoleOf(ctx, id.UID)
		if err != nil {
			return domain.Identity{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "resolve role claim")
		}
		id.Role = role
	}
	return id, nil
}
