package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/vocalia-ai/secgate/internal/gateway"
	"github.com/vocalia-ai/secgate/internal/leakfilter"
	"github.com/vocalia-ai/secgate/internal/storage"
)

// handleReplyFilter implements POST /v1/secgate/reply-filter.
func (d *Dependencies) handleReplyFilter(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ReplyFilterRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Reply == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "reply is required"})
		return
	}

	tenant := tenantFromContext(r.Context())
	if tenant == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing tenant context"})
		return
	}

	requestID := uuid.New().String()
	state := gateway.ParseVerificationState(req.VerificationState)

	// Tenant policy can switch the filter off entirely.
	if !tenant.Policy.LeakFilterEnabled() {
		writeJSON(w, http.StatusOK, ReplyFilterResponse{
			RequestID: requestID,
			Safe:      true,
			Action:    leakfilter.ActionPass.String(),
			Reply:     req.Reply,
			Leaks:     []LeakResp{},
			LatencyMs: float64(time.Since(start)) / float64(time.Millisecond),
		})
		return
	}

	result := d.tenantFilter(tenant).Apply(req.Reply, state, req.Language, leakfilter.Collected{
		Phones: req.CollectedPhones,
	})

	// Monitor mode: record the real verdict but deliver the original text.
	deliveredReply := result.Sanitized
	deliveredAction := result.Action
	deliveredSafe := result.Safe
	isShadow := false
	if tenant.Mode == "monitor" && result.Action != leakfilter.ActionPass {
		isShadow = true
		deliveredReply = req.Reply
		deliveredAction = leakfilter.ActionPass
		deliveredSafe = true
	}

	latencyMs := float64(time.Since(start)) / float64(time.Millisecond)

	d.writeFilterEvent(req, tenant.TenantID, requestID, result, isShadow, float32(latencyMs))

	leaks := make([]LeakResp, 0, len(result.Leaks))
	for _, l := range result.Leaks {
		leaks = append(leaks, LeakResp{Type: string(l.Type), Pattern: l.Pattern})
	}

	writeJSON(w, http.StatusOK, ReplyFilterResponse{
		RequestID: requestID,
		Safe:      deliveredSafe,
		Action:    deliveredAction.String(),
		Reply:     deliveredReply,
		Leaks:     leaks,
		IsShadow:  isShadow,
		LatencyMs: latencyMs,
	})
}

// writeFilterEvent persists the real filter verdict. Only a hash and size of
// the reply are stored, never the text.
func (d *Dependencies) writeFilterEvent(
	req ReplyFilterRequest,
	tenantID, requestID string,
	result leakfilter.Result,
	isShadow bool,
	latencyMs float32,
) {
	leakTypes := make([]string, len(result.Leaks))
	leakPatterns := make([]string, len(result.Leaks))
	for i, l := range result.Leaks {
		leakTypes[i] = string(l.Type)
		leakPatterns[i] = l.Pattern
	}

	d.Writer.Write(&storage.DecisionEvent{
		RequestID:         requestID,
		TenantID:          tenantID,
		Timestamp:         time.Now(),
		Kind:              storage.KindReplyFilter,
		ConversationID:    req.ConversationID,
		TurnID:            req.TurnID,
		Language:          req.Language,
		VerificationState: gateway.ParseVerificationState(req.VerificationState).String(),
		FilterAction:      result.Action.String(),
		LeakTypes:         leakTypes,
		LeakPatterns:      leakPatterns,
		ReplyHash:         storage.HashText(req.Reply),
		ReplySize:         uint32(len(req.Reply)),
		IsShadow:          isShadow,
		LatencyMs:         latencyMs,
	})
}
