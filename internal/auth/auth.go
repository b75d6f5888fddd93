// Package auth is the narrow interface onto the platform's token
// verification. Tracking only needs it to tag sessions with a driver
// identity before accepting driver:location submissions.
package auth

import (
	"strings"

	"tracking-svr/internal/apperr"
)

const (
	RoleDriver  = "driver"
	RoleAdmin   = "admin"
	RoleService = "service" // in-process publishers such as the simulator
)

// Principal identifies an authenticated party on a session.
type Principal struct {
	ID   string
	Role string
}

func (p Principal) Authenticated() bool { return p.ID != "" }

// CanSubmitFor reports whether this principal may submit a fix attributed
// to the given driver. Drivers may only report as themselves; service
// principals publish on behalf of simulated vehicles.
func (p Principal) CanSubmitFor(driverID string) bool {
	switch p.Role {
	case RoleService, RoleAdmin:
		return true
	case RoleDriver:
		return driverID == "" || driverID == p.ID
	default:
		return false
	}
}

// Verifier validates a bearer token.
type Verifier interface {
	Verify(token string) (Principal, error)
}

// StaticVerifier resolves tokens from a fixed table; the real platform
// plugs its own implementation in.
type StaticVerifier struct {
	tokens map[string]Principal
}

func NewStaticVerifier(tokens map[string]Principal) *StaticVerifier {
	if tokens == nil {
		tokens = map[string]Principal{}
	}
	return &StaticVerifier{tokens: tokens}
}

func (v *StaticVerifier) Verify(token string) (Principal, error) {
	if p, ok := v.tokens[token]; ok {
		return p, nil
	}
	return Principal{}, apperr.Unauthorized("invalid token")
}

// ParseStaticTokens parses "token=id:role" pairs separated by commas, the
// AUTH_TOKENS env format.
func ParseStaticTokens(s string) map[string]Principal {
	tokens := map[string]Principal{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, ident, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		id, role, ok := strings.Cut(ident, ":")
		if !ok || token == "" || id == "" {
			continue
		}
		tokens[token] = Principal{ID: id, Role: role}
	}
	return tokens
}
