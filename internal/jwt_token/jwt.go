// Package jwttoken verifies the HS256 bearer tokens that carry a ledger
// principal: tenant, user, email and roles.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"evidenceledger/internal/platform/config"
	dErrors "evidenceledger/pkg/domain-errors"
	authmw "evidenceledger/pkg/platform/middleware/auth"
)

const clockSkew = 30 * time.Second

// Claims are the ledger token claims. Subject holds the user id.
type Claims struct {
	TenantID string   `json:"tenant_id"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Principal is who a minted token speaks for.
type Principal struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Email    string
	Roles    []string
}

type Service struct {
	key    []byte
	parser *jwt.Parser
	cfg    config.AuthConfig
}

func NewService(cfg config.AuthConfig) *Service {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
	}
	return &Service{key: []byte(cfg.JWTSigningKey), parser: jwt.NewParser(opts...), cfg: cfg}
}

// Mint signs a token for p. Production tokens come from the identity
// provider sharing the key; this exists for local tooling and tests.
func (s *Service) Mint(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantID: p.TenantID.String(),
		Email:    p.Email,
		Roles:    p.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.UserID.String(),
			Issuer:    s.cfg.JWTIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if s.cfg.JWTAudience != "" {
		claims.Audience = jwt.ClaimStrings{s.cfg.JWTAudience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify checks signature and registered claims, then requires a UUID
// tenant and a subject so every request is attributable.
func (s *Service) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
	case err != nil:
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if _, err := uuid.Parse(claims.TenantID); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token tenant_id is not a valid id")
	}
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	return claims, nil
}

// Validator adapts the service to the auth middleware.
func (s *Service) Validator() authmw.JWTValidator { return validator{s} }

type validator struct{ s *Service }

func (v validator) ValidateToken(raw string) (*authmw.JWTClaims, error) {
	c, err := v.s.Verify(raw)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{TenantID: c.TenantID, UserID: c.Subject, Email: c.Email, Roles: c.Roles}, nil
}
