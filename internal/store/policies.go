package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalidConfig marks a policy document rejected by schema validation.
var ErrInvalidConfig = errors.New("invalid gateway config")

// Policy represents a row in the policies table.
type Policy struct {
	ID            string
	TenantID      string
	GatewayConfig json.RawMessage // JSONB — raw bytes
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UpdatePolicyParams holds optional fields for partial policy updates.
type UpdatePolicyParams struct {
	GatewayConfig *json.RawMessage // nil = don't change
}

// ReplacePolicyParams holds fields for a full policy replace.
type ReplacePolicyParams struct {
	GatewayConfig json.RawMessage
}

// gatewayConfigSchema constrains tenant policy documents before they are
// persisted. A document the auth path cannot parse would silently drop the
// tenant to server defaults, so malformed writes are rejected here instead.
const gatewayConfigSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"field_classes": {
			"type": "object",
			"additionalProperties": {
				"type": "string",
				"enum": ["public", "account_verified", "never_expose"]
			}
		},
		"leak_filter": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"enabled": {"type": "boolean"},
				"keep_leading_digits": {"type": "integer", "minimum": 0, "maximum": 5},
				"keep_trailing_digits": {"type": "integer", "minimum": 0, "maximum": 5},
				"extra_internal_terms": {
					"type": "array",
					"items": {"type": "string", "minLength": 2}
				}
			}
		},
		"claim_gates": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"tool_required_enabled": {"type": "boolean"},
				"not_found_enabled": {"type": "boolean"}
			}
		}
	}
}`

var compiledConfigSchema = mustCompileConfigSchema()

func mustCompileConfigSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(gatewayConfigSchema)))
	if err != nil {
		panic(fmt.Sprintf("gateway config schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("gateway_config.json", doc); err != nil {
		panic(fmt.Sprintf("gateway config schema: %v", err))
	}
	sch, err := c.Compile("gateway_config.json")
	if err != nil {
		panic(fmt.Sprintf("gateway config schema: %v", err))
	}
	return sch
}

// ValidateGatewayConfig checks a policy document against the config schema.
// nil and empty documents are valid (server defaults).
func ValidateGatewayConfig(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if inst == nil {
		return nil
	}
	if err := compiledConfigSchema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// GetPolicy returns the policy for a tenant, or nil if not found.
func (s *Store) GetPolicy(ctx context.Context, tenantID string) (*Policy, error) {
	var p Policy
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, gateway_config, created_at, updated_at
		FROM policies WHERE tenant_id = $1`, tenantID,
	).Scan(&p.ID, &p.TenantID, &p.GatewayConfig, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetPolicy: %w", err)
	}
	return &p, nil
}

// UpdatePolicy applies a partial update to a policy. Only non-nil fields are changed.
// The document is schema-validated before the write.
func (s *Store) UpdatePolicy(ctx context.Context, tenantID string, params UpdatePolicyParams) (*Policy, error) {
	if params.GatewayConfig != nil {
		if err := ValidateGatewayConfig(*params.GatewayConfig); err != nil {
			return nil, fmt.Errorf("UpdatePolicy: %w", err)
		}
	}

	var p Policy
	err := s.db.QueryRowContext(ctx, `
		UPDATE policies SET
			gateway_config = COALESCE($2, gateway_config),
			updated_at     = now()
		WHERE tenant_id = $1
		RETURNING id, tenant_id, gateway_config, created_at, updated_at`,
		tenantID, nullableJSON(params.GatewayConfig),
	).Scan(&p.ID, &p.TenantID, &p.GatewayConfig, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdatePolicy: %w", err)
	}
	return &p, nil
}

// ReplacePolicy fully replaces a tenant's policy document.
// The document is schema-validated before the write.
func (s *Store) ReplacePolicy(ctx context.Context, tenantID string, params ReplacePolicyParams) (*Policy, error) {
	gc := params.GatewayConfig
	if gc == nil {
		gc = json.RawMessage(`{}`)
	}
	if err := ValidateGatewayConfig(gc); err != nil {
		return nil, fmt.Errorf("ReplacePolicy: %w", err)
	}

	var p Policy
	err := s.db.QueryRowContext(ctx, `
		UPDATE policies SET
			gateway_config = $2,
			updated_at     = now()
		WHERE tenant_id = $1
		RETURNING id, tenant_id, gateway_config, created_at, updated_at`,
		tenantID, gc,
	).Scan(&p.ID, &p.TenantID, &p.GatewayConfig, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ReplacePolicy: %w", err)
	}
	return &p, nil
}

// nullableJSON returns nil (SQL NULL) if the pointer is nil, otherwise the raw bytes.
func nullableJSON(v *json.RawMessage) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
