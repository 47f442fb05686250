package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/vocalia-ai/secgate/internal/extract"
	"github.com/vocalia-ai/secgate/internal/gateway"
	"github.com/vocalia-ai/secgate/internal/storage"
)

// handleEvaluate implements POST /v1/secgate/evaluate.
// Auth middleware has already validated the Bearer token and injected the tenant.
func (d *Dependencies) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req EvaluateRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if len(req.RequestedFields) == 0 && len(req.ToolOutputs) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "requested_fields or tool_outputs is required"})
		return
	}

	tenant := tenantFromContext(r.Context())
	if tenant == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing tenant context"})
		return
	}

	state := gateway.ParseVerificationState(req.VerificationState)
	verified := identityFromReq(req.VerifiedIdentity)
	record := identityFromReq(req.RecordOwner)

	// Collect the field universe: explicit fields plus whatever the tool
	// outputs would disclose. When no record owner was given explicitly,
	// the first tool output that names one supplies it.
	fields := append([]string(nil), req.RequestedFields...)
	for _, out := range req.ToolOutputs {
		res := extract.Normalize(out.Tool, out.Output, d.Patterns)
		fields = append(fields, res.Fields...)
		if record.IsEmpty() && !res.Owner.IsEmpty() {
			record = res.Owner
		}
	}

	decision := d.tenantGateway(tenant).Evaluate(state, verified, record, fields)

	// Monitor mode: record the real decision but let the turn through.
	responseDecision := decision
	isShadow := false
	if tenant.Mode == "monitor" && decision.ResponseMode != gateway.ModeNormal {
		isShadow = true
		responseDecision = passThroughDecision(state, fields)
	}

	requestID := uuid.New().String()
	latencyMs := float64(time.Since(start)) / float64(time.Millisecond)

	// Fire-and-forget: persist the real decision
	d.writeEvaluateEvent(req, tenant.TenantID, requestID, decision, isShadow, float32(latencyMs))

	writeJSON(w, http.StatusOK, evaluateResponse(requestID, responseDecision, isShadow, latencyMs))
}

// passThroughDecision is the monitor-mode stand-in: every requested field
// allowed, no restrictions surfaced to the caller.
func passThroughDecision(state gateway.VerificationState, fields []string) gateway.Decision {
	d := gateway.Decision{
		RiskLevel:    gateway.RiskLow,
		ResponseMode: gateway.ModeNormal,
		AllowedActions: gateway.AllowedActions{
			AnswerPolicyQuestions: true,
			RequestVerification:   true,
			CallTools:             true,
			ShareVerifiedData:     state == gateway.VerificationVerified,
		},
	}
	seen := map[string]bool{}
	for _, f := range fields {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		d.AllowedFields = append(d.AllowedFields, f)
	}
	return d
}

func evaluateResponse(requestID string, dec gateway.Decision, isShadow bool, latencyMs float64) EvaluateResponse {
	denied := make([]DeniedFieldResp, 0, len(dec.DeniedFields))
	for _, df := range dec.DeniedFields {
		denied = append(denied, DeniedFieldResp{Field: df.Field, Reason: string(df.Reason)})
	}
	allowed := dec.AllowedFields
	if allowed == nil {
		allowed = []string{}
	}
	return EvaluateResponse{
		RequestID:     requestID,
		RiskLevel:     dec.RiskLevel.String(),
		ResponseMode:  dec.ResponseMode.String(),
		AllowedFields: allowed,
		DeniedFields:  denied,
		AllowedActions: AllowedActionsResp{
			AnswerPolicyQuestions: dec.AllowedActions.AnswerPolicyQuestions,
			RequestVerification:   dec.AllowedActions.RequestVerification,
			CallTools:             dec.AllowedActions.CallTools,
			ShareVerifiedData:     dec.AllowedActions.ShareVerifiedData,
		},
		RequiresVerification: dec.RequiresVerification,
		HasIdentityMismatch:  dec.HasIdentityMismatch,
		IsShadow:             isShadow,
		LatencyMs:            latencyMs,
	}
}

func identityFromReq(req *IdentityReq) gateway.Identity {
	if req == nil {
		return gateway.Identity{}
	}
	return gateway.Identity{
		Phone:      req.Phone,
		Email:      req.Email,
		OrderID:    req.OrderID,
		CustomerID: req.CustomerID,
	}
}

// writeEvaluateEvent builds a DecisionEvent and fires it to the async writer.
func (d *Dependencies) writeEvaluateEvent(
	req EvaluateRequest,
	tenantID, requestID string,
	dec gateway.Decision,
	isShadow bool,
	latencyMs float32,
) {
	deniedFields := make([]string, len(dec.DeniedFields))
	denyReasons := make([]string, len(dec.DeniedFields))
	for i, df := range dec.DeniedFields {
		deniedFields[i] = df.Field
		denyReasons[i] = string(df.Reason)
	}

	d.Writer.Write(&storage.DecisionEvent{
		RequestID:         requestID,
		TenantID:          tenantID,
		Timestamp:         time.Now(),
		Kind:              storage.KindEvaluate,
		ConversationID:    req.ConversationID,
		TurnID:            req.TurnID,
		Language:          req.Language,
		VerificationState: gateway.ParseVerificationState(req.VerificationState).String(),
		RiskLevel:         dec.RiskLevel.String(),
		ResponseMode:      dec.ResponseMode.String(),
		AllowedFields:     dec.AllowedFields,
		DeniedFields:      deniedFields,
		DenyReasons:       denyReasons,
		IsShadow:          isShadow,
		LatencyMs:         latencyMs,
	})
}
