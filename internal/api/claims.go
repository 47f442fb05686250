package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/vocalia-ai/secgate/internal/claimgate"
	"github.com/vocalia-ai/secgate/internal/extract"
	"github.com/vocalia-ai/secgate/internal/storage"
)

// handleClaims implements POST /v1/secgate/claims. Both gates run in one
// call; tenant policy can disable either.
func (d *Dependencies) handleClaims(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ClaimsRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.UserMessage == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "user_message is required"})
		return
	}

	tenant := tenantFromContext(r.Context())
	if tenant == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing tenant context"})
		return
	}

	var trResult claimgate.ToolRequiredResult
	if tenant.Policy.ToolRequiredGateEnabled() {
		trResult = claimgate.EvaluateToolRequired(claimgate.ToolRequiredInput{
			UserMessage: req.UserMessage,
			Intent:      req.Intent,
			ActiveFlow:  req.ActiveFlow,
			ToolsCalled: req.ToolsCalled,
		})
	}

	var nfResult claimgate.NotFoundResult
	if tenant.Policy.NotFoundGateEnabled() {
		outcomes := make([]claimgate.ToolOutcome, 0, len(req.ToolOutputs))
		for _, out := range req.ToolOutputs {
			res := extract.Normalize(out.Tool, out.Output, d.Patterns)
			outcomes = append(outcomes, claimgate.ToolOutcome{Tool: res.Tool, NotFound: res.NotFound})
		}
		nfResult = claimgate.EvaluateNotFound(req.UserMessage, outcomes)
	}

	// Monitor mode: record the gate verdicts but report them inert.
	isShadow := false
	reportedTR := trResult
	reportedNF := nfResult
	if tenant.Mode == "monitor" && (trResult.NeedsMinInfo || nfResult.NeedsClarification) {
		isShadow = true
		reportedTR = claimgate.ToolRequiredResult{Topic: trResult.Topic}
		reportedNF = claimgate.NotFoundResult{Topic: nfResult.Topic}
	}

	requestID := uuid.New().String()
	latencyMs := float64(time.Since(start)) / float64(time.Millisecond)

	d.writeClaimsEvent(req, tenant.TenantID, requestID, trResult, nfResult, isShadow, float32(latencyMs))

	writeJSON(w, http.StatusOK, ClaimsResponse{
		RequestID: requestID,
		ToolRequired: ToolRequiredResp{
			NeedsMinInfo:  reportedTR.NeedsMinInfo,
			Reason:        reportedTR.Reason,
			Topic:         string(reportedTR.Topic),
			MissingFields: reportedTR.MissingFields,
		},
		NotFound: NotFoundResp{
			NeedsClarification: reportedNF.NeedsClarification,
			Reason:             reportedNF.Reason,
			Topic:              string(reportedNF.Topic),
			MissingFields:      reportedNF.MissingFields,
		},
		IsShadow:  isShadow,
		LatencyMs: latencyMs,
	})
}

// writeClaimsEvent persists the gate verdicts. The not-found gate wins the
// single topic/reason slot when both fire; its clarification is the one the
// reply loop acts on.
func (d *Dependencies) writeClaimsEvent(
	req ClaimsRequest,
	tenantID, requestID string,
	tr claimgate.ToolRequiredResult,
	nf claimgate.NotFoundResult,
	isShadow bool,
	latencyMs float32,
) {
	topic, reason, missing := string(tr.Topic), tr.Reason, tr.MissingFields
	if nf.NeedsClarification {
		topic, reason, missing = string(nf.Topic), nf.Reason, nf.MissingFields
	}

	d.Writer.Write(&storage.DecisionEvent{
		RequestID:      requestID,
		TenantID:       tenantID,
		Timestamp:      time.Now(),
		Kind:           storage.KindClaims,
		ConversationID: req.ConversationID,
		TurnID:         req.TurnID,
		Language:       req.Language,
		GateTopic:      topic,
		GateReason:     reason,
		MissingFields:  missing,
		IsShadow:       isShadow,
		LatencyMs:      latencyMs,
	})
}
