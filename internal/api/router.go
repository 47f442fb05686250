package api

import (
	"net/http"

	"github.com/vocalia-ai/secgate/internal/auth"
	"github.com/vocalia-ai/secgate/internal/chread"
	"github.com/vocalia-ai/secgate/internal/gateway"
	"github.com/vocalia-ai/secgate/internal/leakfilter"
	"github.com/vocalia-ai/secgate/internal/registry"
	"github.com/vocalia-ai/secgate/internal/storage"
	"github.com/vocalia-ai/secgate/internal/store"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Store      *store.Store
	Auth       auth.Authenticator
	Gateway    *gateway.Gateway // server-default field registry
	Patterns   *registry.PatternSet
	FilterOpts leakfilter.Options // server-default mask widths
	Writer     storage.EventWriter
	Reader     *chread.Reader // nil if ClickHouse unavailable
	Logger     *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Gateway endpoints (auth required via Bearer sgk_ token)
	mux.HandleFunc("POST /v1/secgate/evaluate", deps.authMiddleware(deps.handleEvaluate))
	mux.HandleFunc("POST /v1/secgate/reply-filter", deps.authMiddleware(deps.handleReplyFilter))
	mux.HandleFunc("POST /v1/secgate/claims", deps.authMiddleware(deps.handleClaims))

	// Tenant CRUD (no auth — dashboard auth added later)
	mux.HandleFunc("POST /api/secgate/tenants", deps.handleCreateTenant)
	mux.HandleFunc("GET /api/secgate/tenants", deps.handleListTenants)
	mux.HandleFunc("GET /api/secgate/tenants/{tenant_id}", deps.handleGetTenant)
	mux.HandleFunc("PATCH /api/secgate/tenants/{tenant_id}", deps.handleUpdateTenant)
	mux.HandleFunc("DELETE /api/secgate/tenants/{tenant_id}", deps.handleDeleteTenant)
	mux.HandleFunc("POST /api/secgate/tenants/{tenant_id}/rotate-key", deps.handleRotateKey)

	// Policy CRUD (no auth)
	mux.HandleFunc("GET /api/secgate/tenants/{tenant_id}/policy", deps.handleGetPolicy)
	mux.HandleFunc("PUT /api/secgate/tenants/{tenant_id}/policy", deps.handleReplacePolicy)
	mux.HandleFunc("PATCH /api/secgate/tenants/{tenant_id}/policy", deps.handleUpdatePolicy)

	// Events & Analytics (no auth)
	mux.HandleFunc("GET /api/secgate/events", deps.handleListEvents)
	mux.HandleFunc("GET /api/secgate/events/{request_id}", deps.handleGetEvent)
	mux.HandleFunc("GET /api/secgate/analytics", deps.handleGetAnalytics)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}

// tenantGateway returns the gateway to use for a tenant: the shared
// server-default one, or a per-request gateway over an overridden registry.
func (d *Dependencies) tenantGateway(tenant *auth.TenantContext) *gateway.Gateway {
	overrides := tenant.Policy.FieldOverrides()
	if len(overrides) == 0 {
		return d.Gateway
	}
	return gateway.New(registry.NewFieldRegistryWith(overrides))
}

// tenantFilter builds the leak filter for a tenant, applying its extra
// internal terms and mask-width overrides. Falls back to the server-default
// pattern set if the tenant's extra terms fail to compile.
func (d *Dependencies) tenantFilter(tenant *auth.TenantContext) *leakfilter.Filter {
	set := d.Patterns
	if terms := tenant.Policy.ExtraTerms(); len(terms) > 0 {
		extended, err := set.WithExtraTerms(terms)
		if err != nil {
			d.Logger.Warn("tenant extra terms failed to compile, using defaults",
				zap.String("tenant_id", tenant.TenantID),
				zap.Error(err),
			)
		} else {
			set = extended
		}
	}

	opts := leakfilter.Options{
		KeepLeadingDigits:  tenant.Policy.EffectiveKeepLeading(d.FilterOpts.KeepLeadingDigits),
		KeepTrailingDigits: tenant.Policy.EffectiveKeepTrailing(d.FilterOpts.KeepTrailingDigits),
		MaskByte:           d.FilterOpts.MaskByte,
	}
	return leakfilter.New(set, opts)
}
