package store

import (
	"encoding/json"
	"testing"
)

func TestValidateGatewayConfig(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"empty", "", false},
		{"empty object", "{}", false},
		{"null", "null", false},
		{
			"full document",
			`{
				"field_classes": {"warranty_duration": "public", "delivery_address": "never_expose"},
				"leak_filter": {"enabled": true, "keep_leading_digits": 2, "keep_trailing_digits": 4, "extra_internal_terms": ["acme_crm"]},
				"claim_gates": {"tool_required_enabled": false, "not_found_enabled": true}
			}`,
			false,
		},
		{"unknown top-level key", `{"detectors": {}}`, true},
		{"bad data class", `{"field_classes": {"x": "secret"}}`, true},
		{"keep digits out of range", `{"leak_filter": {"keep_leading_digits": 9}}`, true},
		{"term too short", `{"leak_filter": {"extra_internal_terms": ["a"]}}`, true},
		{"not an object", `[1, 2, 3]`, true},
		{"invalid json", `{not json`, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateGatewayConfig(json.RawMessage(tc.raw))
			if tc.wantErr && err == nil {
				t.Errorf("ValidateGatewayConfig(%q): expected error", tc.raw)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("ValidateGatewayConfig(%q): %v", tc.raw, err)
			}
		})
	}
}

func TestGenerateAPIKey(t *testing.T) {
	fullKey, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if len(fullKey) != 68 {
		t.Errorf("key length = %d, want 68", len(fullKey))
	}
	if fullKey[:4] != "sgk_" {
		t.Errorf("key prefix = %q, want sgk_", fullKey[:4])
	}
	if prefix != fullKey[:8] {
		t.Errorf("lookup prefix = %q, want %q", prefix, fullKey[:8])
	}
	if hash == "" || hash == fullKey {
		t.Error("hash must be a bcrypt digest, not the plaintext key")
	}
}
