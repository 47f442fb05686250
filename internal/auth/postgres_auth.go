package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocalia-ai/secgate/internal/policy"
	"github.com/vocalia-ai/secgate/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// TenantStore abstracts the tenant prefix lookup for testability.
// *store.Store satisfies it; a nil row with a nil error means no tenant owns
// the prefix.
type TenantStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*store.TenantWithPolicy, error)
}

// PostgresAuthenticator validates API keys against the tenants table.
// Uses Cache with stale-while-revalidate to avoid DB + bcrypt on the hot path.
// Auth failures always return an error — no gateway decision is made without
// valid auth. The caller is responsible for fail-open behavior on its side.
type PostgresAuthenticator struct {
	store  TenantStore
	cache  *Cache
	logger *zap.Logger
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	Store    *store.Store
	CacheTTL time.Duration // Default: 30s
	Logger   *zap.Logger
}

// NewPostgresAuthenticator creates a new authenticator backed by PostgreSQL.
func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:  cfg.Store,
		cache:  NewCache(ttl),
		logger: cfg.Logger,
	}
}

// newPostgresAuthenticatorWithStore creates an authenticator with an injected store (for testing).
func newPostgresAuthenticatorWithStore(store TenantStore, cache *Cache, logger *zap.Logger) *PostgresAuthenticator {
	return &PostgresAuthenticator{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// Authenticate validates the API key against the database.
//
// Flow:
//  1. Format check on the token (prefix + length)
//  2. Cache lookup (stale-while-revalidate):
//     - Fresh hit: return immediately (sub-microsecond)
//     - Stale hit: return stale tenant, spawn background refresh
//     - Miss: do full DB + bcrypt lookup synchronously
func (a *PostgresAuthenticator) Authenticate(ctx context.Context, apiKey string) (*TenantContext, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if !ValidKeyFormat(apiKey) {
		return nil, ErrInvalidAPIKey
	}

	// 1. Cache lookup
	result := a.cache.Get(apiKey)

	if result.Hit {
		// Stale hit — kick off background refresh, return stale value immediately
		if result.NeedsRefresh {
			go a.backgroundRefresh(apiKey)
		}
		return result.Tenant, nil
	}

	// 2. Cache miss — do full lookup synchronously
	tenant, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		return a.handleLookupError(err)
	}

	a.cache.Set(apiKey, tenant)
	return tenant, nil
}

// backgroundRefresh performs the DB + bcrypt lookup in a background goroutine.
// Errors are logged but don't affect the caller (they already got the stale value).
func (a *PostgresAuthenticator) backgroundRefresh(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tenant, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		a.logger.Warn("background cache refresh failed",
			zap.Error(err),
		)
		// Don't update cache — drop the entry so the next read retries the DB.
		a.cache.Delete(apiKey)
		return
	}

	a.cache.Set(apiKey, tenant)
}

// lookupAndVerify does the full DB prefix lookup + bcrypt verification + policy parsing.
func (a *PostgresAuthenticator) lookupAndVerify(ctx context.Context, apiKey string) (*TenantContext, error) {
	// api_key_prefix is the first 8 chars (e.g. "sgk_abcd")
	prefix := apiKey[:8]

	row, err := a.store.LookupByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("lookupAndVerify: %w", err)
	}
	if row == nil {
		return nil, ErrInvalidAPIKey // No tenant with this prefix — reject, don't fail open
	}

	// bcrypt verify
	if err := bcrypt.CompareHashAndPassword([]byte(row.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, ErrInvalidAPIKey
	}

	// Parse the tenant policy from gateway_config JSONB. A bad document does
	// not fail the request, the tenant just runs on server defaults.
	var cfg *policy.Config
	if len(row.GatewayConfig) > 0 {
		parsed, err := policy.Parse(row.GatewayConfig)
		if err != nil {
			a.logger.Warn("failed to parse gateway_config, using defaults",
				zap.String("tenant_id", row.ID),
				zap.Error(err),
			)
		} else {
			cfg = parsed
		}
	}

	return &TenantContext{
		TenantID: row.ID,
		Mode:     row.Mode,
		FailOpen: row.FailOpen,
		Policy:   cfg,
	}, nil
}

// handleLookupError returns the appropriate error — invalid keys are always
// rejected, DB outages surface as ErrAuthUnavailable.
func (a *PostgresAuthenticator) handleLookupError(lookupErr error) (*TenantContext, error) {
	if errors.Is(lookupErr, ErrInvalidAPIKey) {
		return nil, ErrInvalidAPIKey
	}

	a.logger.Warn("auth DB unreachable",
		zap.Error(lookupErr),
	)
	return nil, fmt.Errorf("%w: %v", ErrAuthUnavailable, lookupErr)
}
