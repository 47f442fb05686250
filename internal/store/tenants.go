package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Tenant represents a row in the tenants table.
type Tenant struct {
	ID           string
	Name         string
	APIKeyHash   string
	APIKeyPrefix string
	Mode         string // "enforce" or "monitor"
	FailOpen     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TenantWithPolicy is a Tenant joined with its Policy (for auth lookups).
type TenantWithPolicy struct {
	Tenant
	GatewayConfig json.RawMessage // from policies.gateway_config
}

// UpdateTenantParams holds optional fields for partial tenant updates.
type UpdateTenantParams struct {
	Name     *string
	Mode     *string
	FailOpen *bool
}

// GenerateAPIKey creates a new sgk_ API key with its bcrypt hash and prefix.
// Returns (fullKey, hash, prefix, error). The fullKey is shown to the user once.
func GenerateAPIKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := "sgk_" + hex.EncodeToString(raw) // 68 chars total

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}

	prefix := fullKey[:8] // "sgk_abcd"
	return fullKey, string(hashBytes), prefix, nil
}

// CreateTenant inserts a new tenant and its default policy in a single transaction.
// Returns the tenant, policy, and plaintext API key (shown once).
func (s *Store) CreateTenant(ctx context.Context, name string) (*Tenant, *Policy, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, nil, "", fmt.Errorf("CreateTenant: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, "", fmt.Errorf("CreateTenant: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var t Tenant
	err = tx.QueryRowContext(ctx, `
		INSERT INTO tenants (name, api_key_hash, api_key_prefix)
		VALUES ($1, $2, $3)
		RETURNING id, name, api_key_hash, api_key_prefix, mode, fail_open,
		          created_at, updated_at`,
		name, keyHash, keyPrefix,
	).Scan(&t.ID, &t.Name, &t.APIKeyHash, &t.APIKeyPrefix, &t.Mode, &t.FailOpen,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, nil, "", fmt.Errorf("CreateTenant: %w", err)
	}

	var pol Policy
	err = tx.QueryRowContext(ctx, `
		INSERT INTO policies (tenant_id)
		VALUES ($1)
		RETURNING id, tenant_id, gateway_config, created_at, updated_at`,
		t.ID,
	).Scan(&pol.ID, &pol.TenantID, &pol.GatewayConfig, &pol.CreatedAt, &pol.UpdatedAt)
	if err != nil {
		return nil, nil, "", fmt.Errorf("CreateTenant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, "", fmt.Errorf("CreateTenant: %w", err)
	}

	return &t, &pol, fullKey, nil
}

// ListTenants returns all tenants ordered by created_at DESC.
func (s *Store) ListTenants(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix, mode, fail_open,
		       created_at, updated_at
		FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListTenants: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.APIKeyHash, &t.APIKeyPrefix,
			&t.Mode, &t.FailOpen, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListTenants: %w", err)
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}

// GetTenant returns a tenant by ID, or nil if not found.
func (s *Store) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix, mode, fail_open,
		       created_at, updated_at
		FROM tenants WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.APIKeyHash, &t.APIKeyPrefix,
		&t.Mode, &t.FailOpen, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetTenant: %w", err)
	}
	return &t, nil
}

// UpdateTenant applies a partial update to a tenant. Only non-nil fields are changed.
func (s *Store) UpdateTenant(ctx context.Context, id string, params UpdateTenantParams) (*Tenant, error) {
	var t Tenant
	err := s.db.QueryRowContext(ctx, `
		UPDATE tenants SET
			name       = COALESCE($2, name),
			mode       = COALESCE($3, mode),
			fail_open  = COALESCE($4, fail_open),
			updated_at = now()
		WHERE id = $1
		RETURNING id, name, api_key_hash, api_key_prefix, mode, fail_open,
		          created_at, updated_at`,
		id, params.Name, params.Mode, params.FailOpen,
	).Scan(&t.ID, &t.Name, &t.APIKeyHash, &t.APIKeyPrefix,
		&t.Mode, &t.FailOpen, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateTenant: %w", err)
	}
	return &t, nil
}

// DeleteTenant deletes a tenant by ID. The policy cascades.
func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteTenant: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RotateAPIKey generates a new API key for a tenant.
// Returns the updated tenant and the plaintext key (shown once).
func (s *Store) RotateAPIKey(ctx context.Context, id string) (*Tenant, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", err)
	}

	var t Tenant
	err = s.db.QueryRowContext(ctx, `
		UPDATE tenants SET
			api_key_hash   = $2,
			api_key_prefix = $3,
			updated_at     = now()
		WHERE id = $1
		RETURNING id, name, api_key_hash, api_key_prefix, mode, fail_open,
		          created_at, updated_at`,
		id, keyHash, keyPrefix,
	).Scan(&t.ID, &t.Name, &t.APIKeyHash, &t.APIKeyPrefix,
		&t.Mode, &t.FailOpen, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("RotateAPIKey: tenant not found")
	}
	if err != nil {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", err)
	}

	return &t, fullKey, nil
}

// LookupByPrefix finds a tenant by API key prefix (first 8 chars).
// Used by auth to narrow candidates before bcrypt verify.
func (s *Store) LookupByPrefix(ctx context.Context, prefix string) (*TenantWithPolicy, error) {
	var tw TenantWithPolicy
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.name, t.api_key_hash, t.api_key_prefix, t.mode, t.fail_open,
		       t.created_at, t.updated_at,
		       COALESCE(pol.gateway_config, '{}')
		FROM tenants t
		LEFT JOIN policies pol ON pol.tenant_id = t.id
		WHERE t.api_key_prefix = $1`, prefix,
	).Scan(&tw.ID, &tw.Name, &tw.APIKeyHash, &tw.APIKeyPrefix,
		&tw.Mode, &tw.FailOpen, &tw.CreatedAt, &tw.UpdatedAt,
		&tw.GatewayConfig)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupByPrefix: %w", err)
	}
	return &tw, nil
}
