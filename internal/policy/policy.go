// Package policy defines the per-tenant gateway configuration document
// stored in the policies table's JSONB column. All pointer fields use nil to
// mean "use server default", so an empty document changes nothing.
package policy

import (
	"encoding/json"
	"fmt"

	"github.com/vocalia-ai/secgate/internal/registry"
)

// Config is a tenant's policy document.
type Config struct {
	// FieldClasses overrides the built-in field classification, e.g.
	// {"warranty_duration": "public", "delivery_address": "never_expose"}.
	FieldClasses map[string]string `json:"field_classes,omitempty"`
	LeakFilter   LeakFilterPolicy  `json:"leak_filter,omitempty"`
	ClaimGates   ClaimGatePolicy   `json:"claim_gates,omitempty"`
}

// LeakFilterPolicy controls the reply filter for a tenant.
type LeakFilterPolicy struct {
	Enabled            *bool    `json:"enabled,omitempty"`              // nil = true
	KeepLeadingDigits  *int     `json:"keep_leading_digits,omitempty"`  // nil = server default (3)
	KeepTrailingDigits *int     `json:"keep_trailing_digits,omitempty"` // nil = server default (2)
	ExtraInternalTerms []string `json:"extra_internal_terms,omitempty"`
}

// ClaimGatePolicy toggles the two claim gates.
type ClaimGatePolicy struct {
	ToolRequiredEnabled *bool `json:"tool_required_enabled,omitempty"` // nil = true
	NotFoundEnabled     *bool `json:"not_found_enabled,omitempty"`     // nil = true
}

// Parse decodes a policy JSONB document. Empty, "{}" and "null" documents
// yield a nil Config (server defaults).
func Parse(raw json.RawMessage) (*Config, error) {
	if len(raw) == 0 || string(raw) == "{}" || string(raw) == "null" {
		return nil, nil
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("policy.Parse: %w", err)
	}
	return &cfg, nil
}

// FieldOverrides converts the override map to registry classes.
// Safe on a nil Config.
func (c *Config) FieldOverrides() map[string]registry.DataClass {
	if c == nil || len(c.FieldClasses) == 0 {
		return nil
	}
	out := make(map[string]registry.DataClass, len(c.FieldClasses))
	for field, class := range c.FieldClasses {
		out[field] = registry.ParseDataClass(class)
	}
	return out
}

// LeakFilterEnabled reports whether the reply filter runs for this tenant.
func (c *Config) LeakFilterEnabled() bool {
	if c == nil || c.LeakFilter.Enabled == nil {
		return true
	}
	return *c.LeakFilter.Enabled
}

// EffectiveKeepLeading returns the visible leading-digit count.
func (c *Config) EffectiveKeepLeading(serverDefault int) int {
	if c == nil || c.LeakFilter.KeepLeadingDigits == nil {
		return serverDefault
	}
	return *c.LeakFilter.KeepLeadingDigits
}

// EffectiveKeepTrailing returns the visible trailing-digit count.
func (c *Config) EffectiveKeepTrailing(serverDefault int) int {
	if c == nil || c.LeakFilter.KeepTrailingDigits == nil {
		return serverDefault
	}
	return *c.LeakFilter.KeepTrailingDigits
}

// ExtraTerms returns tenant-specific internal vocabulary additions.
func (c *Config) ExtraTerms() []string {
	if c == nil {
		return nil
	}
	return c.LeakFilter.ExtraInternalTerms
}

// ToolRequiredGateEnabled reports whether the tool-required gate runs.
func (c *Config) ToolRequiredGateEnabled() bool {
	if c == nil || c.ClaimGates.ToolRequiredEnabled == nil {
		return true
	}
	return *c.ClaimGates.ToolRequiredEnabled
}

// NotFoundGateEnabled reports whether the not-found gate runs.
func (c *Config) NotFoundGateEnabled() bool {
	if c == nil || c.ClaimGates.NotFoundEnabled == nil {
		return true
	}
	return *c.ClaimGates.NotFoundEnabled
}
