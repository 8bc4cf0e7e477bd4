// Package admission decides whether an owner may submit more work right now.
package admission

import (
	"context"
	"strings"
	"time"
)

// Role is the caller's plan as carried by the auth token.
type Role string

const (
	RoleUser    Role = "USER"
	RolePremium Role = "PREMIUM"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole maps a claim value onto a Role. Unknown values fall back to RoleUser.
func ParseRole(raw string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RolePremium:
		return RolePremium
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Gate admits or refuses a submission before any record exists.
// An error means the gate itself could not decide.
type Gate interface {
	TryAdmit(ctx context.Context, ownerID string, role Role) (bool, error)
}

// Policy is the number of submissions each role may make per window.
type Policy struct {
	Window time.Duration `yaml:"window"`
	Limits map[Role]int   `yaml:"limits"`
}

// DefaultPolicy allows USER 10, PREMIUM 100 and ADMIN 1000 submissions per minute.
func DefaultPolicy() Policy {
	return Policy{
		Window: time.Minute,
		Limits: map[Role]int{
			RoleUser:    10,
			RolePremium: 100,
			RoleAdmin:   1000,
		},
	}
}

// Limit returns the allowance for role; roles missing from the policy get the USER allowance.
func (p Policy) Limit(role Role) int {
	if n, ok := p.Limits[role]; ok {
		return n
	}
	return p.Limits[RoleUser]
}

func (p Policy) withDefaults() Policy {
	defaults := DefaultPolicy()
	if p.Window <= 0 {
		p.Window = defaults.Window
	}
	if len(p.Limits) == 0 {
		p.Limits = defaults.Limits
	}
	return p
}

// AllowAll admits everything; used when admission is disabled.
type AllowAll struct{}

func (AllowAll) TryAdmit(context.Context, string, Role) (bool, error) { return true, nil }
