package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vocalia-ai/secgate/internal/store"
	"go.uber.org/zap"
)

func (d *Dependencies) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant_id")
	policy, err := d.Store.GetPolicy(r.Context(), tenantID)
	if err != nil {
		d.Logger.Error("failed to get policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get policy"})
		return
	}
	if policy == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Policy not found."})
		return
	}
	writeJSON(w, http.StatusOK, policyToResp(policy))
}

func (d *Dependencies) handleReplacePolicy(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant_id")

	var req UpdatePolicyReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	gc := req.GatewayConfig
	if gc == nil {
		gc = json.RawMessage(`{}`)
	}

	policy, err := d.Store.ReplacePolicy(r.Context(), tenantID, store.ReplacePolicyParams{
		GatewayConfig: gc,
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidConfig) {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResp{Detail: err.Error()})
			return
		}
		d.Logger.Error("failed to replace policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to replace policy"})
		return
	}
	if policy == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Policy not found."})
		return
	}
	writeJSON(w, http.StatusOK, policyToResp(policy))
}

func (d *Dependencies) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant_id")

	var req UpdatePolicyReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	params := store.UpdatePolicyParams{}
	if req.GatewayConfig != nil {
		params.GatewayConfig = &req.GatewayConfig
	}

	policy, err := d.Store.UpdatePolicy(r.Context(), tenantID, params)
	if err != nil {
		if errors.Is(err, store.ErrInvalidConfig) {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResp{Detail: err.Error()})
			return
		}
		d.Logger.Error("failed to update policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update policy"})
		return
	}
	if policy == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Policy not found."})
		return
	}
	writeJSON(w, http.StatusOK, policyToResp(policy))
}

func policyToResp(p *store.Policy) PolicyResp {
	gc := p.GatewayConfig
	if gc == nil {
		gc = json.RawMessage(`{}`)
	}
	return PolicyResp{
		ID:            p.ID,
		TenantID:      p.TenantID,
		GatewayConfig: gc,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
