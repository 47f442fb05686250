// Package auth validates tenant API keys for the gateway's HTTP surface.
// The key format is "sgk_" followed by 64 hex chars; the first 8 characters
// form the lookup prefix stored alongside the bcrypt hash.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/vocalia-ai/secgate/internal/policy"
)

var (
	ErrMissingAPIKey   = errors.New("missing API key")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrAuthUnavailable = errors.New("authentication backend unavailable")
)

// KeyPrefix is the mandatory API key prefix.
const KeyPrefix = "sgk_"

// TenantContext holds the authenticated tenant's configuration for a request.
type TenantContext struct {
	TenantID string
	Mode     string // "enforce" or "monitor"
	FailOpen bool
	Policy   *policy.Config // nil = server defaults
}

// Authenticator validates an API key and returns the tenant context.
// Implementations must be safe for concurrent use.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*TenantContext, error)
}

// ValidKeyFormat reports whether a token even looks like a tenant API key.
// Rejecting malformed tokens early keeps bogus keys out of the cache and
// away from bcrypt.
func ValidKeyFormat(token string) bool {
	return len(token) >= 8 && strings.HasPrefix(token, KeyPrefix)
}
