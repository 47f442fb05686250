package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vocalia-ai/secgate/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// testAPIKey is the raw API key used in tests. Must start with "sgk_" and be >= 8 chars.
const testAPIKey = "sgk_test_valid_key_1234567890abcdef"

// testHash returns a bcrypt hash of testAPIKey using MinCost (fast for tests).
func testHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAPIKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}
	return string(hash)
}

// tenantRow builds the joined row the store returns for a prefix lookup.
func tenantRow(id, hash, mode string, failOpen bool, gatewayConfig string) *store.TenantWithPolicy {
	tw := &store.TenantWithPolicy{}
	tw.ID = id
	tw.APIKeyHash = hash
	tw.Mode = mode
	tw.FailOpen = failOpen
	if gatewayConfig != "" {
		tw.GatewayConfig = json.RawMessage(gatewayConfig)
	}
	return tw
}

// mockStore implements TenantStore for testing.
// A nil row with a nil error means no tenant owns the prefix, matching
// store.Store.LookupByPrefix.
type mockStore struct {
	row       *store.TenantWithPolicy
	err       error
	callCount atomic.Int32
}

func (m *mockStore) LookupByPrefix(_ context.Context, _ string) (*store.TenantWithPolicy, error) {
	m.callCount.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.row, nil
}

func TestPostgresAuth_CacheMiss_ValidKey(t *testing.T) {
	ts := &mockStore{
		row: tenantRow("ten_abc", testHash(t), "enforce", true, ""),
	}
	cache := NewCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(ts, cache, zap.NewNop())

	tenant, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if tenant.TenantID != "ten_abc" {
		t.Errorf("expected tenant ID ten_abc, got %s", tenant.TenantID)
	}
	if tenant.Mode != "enforce" {
		t.Errorf("expected mode enforce, got %s", tenant.Mode)
	}
	if !tenant.FailOpen {
		t.Error("expected fail_open=true")
	}
	if tenant.Policy != nil {
		t.Error("expected nil policy (no gateway_config)")
	}
	if ts.callCount.Load() != 1 {
		t.Errorf("expected 1 DB call, got %d", ts.callCount.Load())
	}
}

func TestPostgresAuth_CacheHit_NoDBCall(t *testing.T) {
	ts := &mockStore{
		row: tenantRow("ten_abc", testHash(t), "enforce", true, ""),
	}
	cache := NewCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(ts, cache, zap.NewNop())

	// First call — cache miss, hits DB
	_, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if ts.callCount.Load() != 1 {
		t.Fatalf("expected 1 DB call after first auth, got %d", ts.callCount.Load())
	}

	// Second call — cache hit, no DB call
	tenant, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if ts.callCount.Load() != 1 {
		t.Errorf("expected still 1 DB call (cache hit), got %d", ts.callCount.Load())
	}
	if tenant.TenantID != "ten_abc" {
		t.Errorf("expected ten_abc from cache, got %s", tenant.TenantID)
	}
}

func TestPostgresAuth_CacheMiss_InvalidKey(t *testing.T) {
	ts := &mockStore{
		row: tenantRow("ten_abc", testHash(t), "enforce", true, ""), // Hash of testAPIKey
	}
	cache := NewCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(ts, cache, zap.NewNop())

	// Use a different API key that won't match the bcrypt hash
	_, err := auth.Authenticate(context.Background(), "sgk_wrong_key_doesnt_match_hash_at_all")
	if err == nil {
		t.Fatal("expected error for invalid key, got nil")
	}
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got: %v", err)
	}
}

func TestPostgresAuth_TenantNotFound(t *testing.T) {
	// The store returns (nil, nil) for an unknown prefix.
	ts := &mockStore{}
	cache := NewCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(ts, cache, zap.NewNop())

	_, err := auth.Authenticate(context.Background(), testAPIKey)
	if err == nil {
		t.Fatal("expected error for tenant not found, got nil")
	}
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got: %v", err)
	}
}

func TestPostgresAuth_DBDown_ReturnsUnavailable(t *testing.T) {
	ts := &mockStore{
		err: errors.New("connection refused"),
	}
	cache := NewCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(ts, cache, zap.NewNop())

	_, err := auth.Authenticate(context.Background(), testAPIKey)
	if err == nil {
		t.Fatal("expected error when DB is down, got nil")
	}
	if !errors.Is(err, ErrAuthUnavailable) {
		t.Errorf("expected ErrAuthUnavailable, got: %v", err)
	}
}

func TestPostgresAuth_PolicyParsing(t *testing.T) {
	ts := &mockStore{
		row: tenantRow("ten_with_policy", testHash(t), "monitor", false, `{
			"field_classes": {"warranty_duration": "public"},
			"leak_filter": {"keep_leading_digits": 2},
			"claim_gates": {"not_found_enabled": false}
		}`),
	}
	cache := NewCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(ts, cache, zap.NewNop())

	tenant, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if tenant.Mode != "monitor" {
		t.Errorf("expected monitor mode, got %s", tenant.Mode)
	}
	if tenant.Policy == nil {
		t.Fatal("expected non-nil policy")
	}
	if got := tenant.Policy.EffectiveKeepLeading(3); got != 2 {
		t.Errorf("expected keep_leading_digits 2, got %d", got)
	}
	if tenant.Policy.NotFoundGateEnabled() {
		t.Error("not_found gate should be disabled")
	}
	if !tenant.Policy.ToolRequiredGateEnabled() {
		t.Error("unset tool_required gate should default to enabled")
	}
}

func TestPostgresAuth_EmptyGatewayConfig(t *testing.T) {
	// The store COALESCEs a missing policy row to "{}".
	ts := &mockStore{
		row: tenantRow("ten_empty", testHash(t), "enforce", true, "{}"),
	}
	cache := NewCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(ts, cache, zap.NewNop())

	tenant, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// Empty "{}" should result in nil policy (server defaults)
	if tenant.Policy != nil {
		t.Error("expected nil policy for empty gateway_config")
	}
}

func TestPostgresAuth_NilGatewayConfig(t *testing.T) {
	ts := &mockStore{
		row: tenantRow("ten_nil", testHash(t), "enforce", true, ""),
	}
	cache := NewCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(ts, cache, zap.NewNop())

	tenant, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if tenant.Policy != nil {
		t.Error("expected nil policy for absent gateway_config")
	}
}

func TestPostgresAuth_InvalidJSON_FallsBackToDefaults(t *testing.T) {
	ts := &mockStore{
		row: tenantRow("ten_bad_json", testHash(t), "enforce", true, `not valid json!!!`),
	}
	cache := NewCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(ts, cache, zap.NewNop())

	// Should not fail — just use nil policy
	tenant, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error (graceful fallback), got: %v", err)
	}
	if tenant.Policy != nil {
		t.Error("expected nil policy for invalid JSON")
	}
}

func TestPostgresAuth_MissingAPIKey(t *testing.T) {
	ts := &mockStore{}
	cache := NewCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(ts, cache, zap.NewNop())

	_, err := auth.Authenticate(context.Background(), "")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got: %v", err)
	}
	// DB should never be called
	if ts.callCount.Load() != 0 {
		t.Error("DB should not be called when API key is missing")
	}
}

func TestPostgresAuth_MalformedKey_RejectedBeforeDB(t *testing.T) {
	ts := &mockStore{}
	cache := NewCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(ts, cache, zap.NewNop())

	for _, key := range []string{"tsk_wrong_prefix_key", "sgk_", "short"} {
		_, err := auth.Authenticate(context.Background(), key)
		if !errors.Is(err, ErrInvalidAPIKey) {
			t.Errorf("Authenticate(%q): expected ErrInvalidAPIKey, got %v", key, err)
		}
	}
	if ts.callCount.Load() != 0 {
		t.Error("DB should not be called for malformed keys")
	}
}

func TestPostgresAuth_StaleHit_ServesStaleAndRefreshes(t *testing.T) {
	hash := testHash(t)
	ts := &mockStore{
		row: tenantRow("ten_stale", hash, "enforce", true, ""),
	}
	cache := NewCache(1 * time.Millisecond) // Very short TTL
	auth := newPostgresAuthenticatorWithStore(ts, cache, zap.NewNop())

	// First call — cache miss
	tenant, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if tenant.TenantID != "ten_stale" {
		t.Fatalf("expected ten_stale, got %s", tenant.TenantID)
	}
	if ts.callCount.Load() != 1 {
		t.Fatalf("expected 1 DB call, got %d", ts.callCount.Load())
	}

	// Wait for cache to expire
	time.Sleep(5 * time.Millisecond)

	// Update what the store returns so we can verify refresh happened
	ts.row = tenantRow("ten_stale", hash, "monitor", true, "") // Mode changed!

	// Second call — stale hit, returns old value immediately
	tenant2, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	// Should return stale value (mode=enforce, not monitor yet)
	if tenant2.Mode != "enforce" {
		t.Errorf("stale hit should return old mode=enforce, got %s", tenant2.Mode)
	}

	// Wait for background refresh to complete
	time.Sleep(200 * time.Millisecond)

	// Third call — should now have refreshed value
	tenant3, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("third call failed: %v", err)
	}
	if tenant3.Mode != "monitor" {
		t.Errorf("expected refreshed mode=monitor, got %s", tenant3.Mode)
	}
}

func TestValidKeyFormat(t *testing.T) {
	cases := []struct {
		token string
		want  bool
	}{
		{testAPIKey, true},
		{"sgk_abcd", true},
		{"sgk_abc", false}, // too short for a prefix lookup
		{"tsk_test_valid_key", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ValidKeyFormat(tc.token); got != tc.want {
			t.Errorf("ValidKeyFormat(%q) = %v, want %v", tc.token, got, tc.want)
		}
	}
}

// Verify the interfaces are satisfied at compile time.
var _ Authenticator = (*PostgresAuthenticator)(nil)
var _ TenantStore = (*store.Store)(nil)
