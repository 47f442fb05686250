package api

import (
	"database/sql"
	"net/http"

	"github.com/vocalia-ai/secgate/internal/store"
	"go.uber.org/zap"
)

func (d *Dependencies) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" || len(req.Name) > 255 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	tenant, _, plainKey, err := d.Store.CreateTenant(r.Context(), req.Name)
	if err != nil {
		d.Logger.Error("failed to create tenant", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create tenant"})
		return
	}

	writeJSON(w, http.StatusCreated, CreateTenantResp{
		ID:           tenant.ID,
		Name:         tenant.Name,
		APIKey:       plainKey,
		APIKeyPrefix: tenant.APIKeyPrefix,
		Mode:         tenant.Mode,
		FailOpen:     tenant.FailOpen,
		CreatedAt:    tenant.CreatedAt,
	})
}

func (d *Dependencies) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := d.Store.ListTenants(r.Context())
	if err != nil {
		d.Logger.Error("failed to list tenants", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list tenants"})
		return
	}

	resp := make([]TenantResp, 0, len(tenants))
	for _, t := range tenants {
		resp = append(resp, tenantToResp(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("tenant_id")
	tenant, err := d.Store.GetTenant(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to get tenant", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get tenant"})
		return
	}
	if tenant == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Tenant not found."})
		return
	}
	writeJSON(w, http.StatusOK, tenantToResp(tenant))
}

func (d *Dependencies) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("tenant_id")

	var req UpdateTenantReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	// Validate name if provided
	if req.Name != nil && (len(*req.Name) == 0 || len(*req.Name) > 255) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	// Validate mode if provided
	if req.Mode != nil && *req.Mode != "enforce" && *req.Mode != "monitor" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "mode must be 'enforce' or 'monitor'"})
		return
	}

	tenant, err := d.Store.UpdateTenant(r.Context(), id, store.UpdateTenantParams{
		Name:     req.Name,
		Mode:     req.Mode,
		FailOpen: req.FailOpen,
	})
	if err != nil {
		d.Logger.Error("failed to update tenant", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update tenant"})
		return
	}
	if tenant == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Tenant not found."})
		return
	}
	writeJSON(w, http.StatusOK, tenantToResp(tenant))
}

func (d *Dependencies) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("tenant_id")
	err := d.Store.DeleteTenant(r.Context(), id)
	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Tenant not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to delete tenant", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete tenant"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("tenant_id")
	tenant, plainKey, err := d.Store.RotateAPIKey(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to rotate key", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to rotate API key"})
		return
	}
	writeJSON(w, http.StatusOK, RotateKeyResp{
		APIKey:       plainKey,
		APIKeyPrefix: tenant.APIKeyPrefix,
	})
}

func tenantToResp(t *store.Tenant) TenantResp {
	return TenantResp{
		ID:           t.ID,
		Name:         t.Name,
		APIKeyPrefix: t.APIKeyPrefix,
		Mode:         t.Mode,
		FailOpen:     t.FailOpen,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}
