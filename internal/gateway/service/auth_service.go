package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"coderank/internal/admission"
	appErr "coderank/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated caller.
type Identity struct {
	OwnerID string
	Role    admission.Role
}

// Blacklist reports revoked tokens.
type Blacklist interface {
	IsBlacklisted(ctx context.Context, rawToken string) (bool, error)
}

type AuthService struct {
	jwtSecret []byte
	jwtIssuer string
	blacklist Blacklist
}

// NewAuthService verifies HS256 tokens signed with jwtSecret. blacklist may be nil.
func NewAuthService(jwtSecret, jwtIssuer string, blacklist Blacklist) *AuthService {
	return &AuthService{
		jwtSecret: []byte(jwtSecret),
		jwtIssuer: jwtIssuer,
		blacklist: blacklist,
	}
}

type tokenClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

func (s *AuthService) Authenticate(ctx context.Context, raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, appErr.New(appErr.Unauthorized).WithMessage("missing bearer token")
	}
	claims, err := s.parseToken(raw)
	if err != nil {
		return Identity{}, err
	}
	if s.blacklist != nil {
		blacklisted, err := s.blacklist.IsBlacklisted(ctx, raw)
		if err != nil {
			return Identity{}, appErr.Wrap(err, appErr.ServiceUnavailable)
		}
		if blacklisted {
			return Identity{}, appErr.New(appErr.TokenInvalid).WithMessage("token revoked")
		}
	}
	return Identity{OwnerID: claims.Subject, Role: admission.ParseRole(claims.Role)}, nil
}

func (s *AuthService) parseToken(raw string) (*tokenClaims, error) {
	if len(s.jwtSecret) == 0 {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErr.New(appErr.TokenExpired)
		}
		return nil, appErr.New(appErr.TokenInvalid)
	}
	if !parsed.Valid {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	if s.jwtIssuer != "" && claims.Issuer != s.jwtIssuer {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	// Tokens without a type are accepted; refresh tokens are not.
	if claims.TokenType != "" && claims.TokenType != "access" {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	return claims, nil
}
