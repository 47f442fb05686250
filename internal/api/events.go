package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vocalia-ai/secgate/internal/chread"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tenant_id query parameter is required"})
		return
	}

	params := chread.ListEventsParams{
		TenantID: tenantID,
		Page:     queryInt(q, "page", 1),
		PageSize: queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("kind"); v != "" {
		params.Kind = &v
	}
	if v := q.Get("risk_level"); v != "" {
		params.RiskLevel = &v
	}
	if v := q.Get("filter_action"); v != "" {
		params.FilterAction = &v
	}
	if v := q.Get("gate_reason"); v != "" {
		params.GateReason = &v
	}
	if v := q.Get("is_shadow"); v != "" {
		b := v == "true" || v == "1"
		params.IsShadow = &b
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	events, total, err := d.Reader.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list events"})
		return
	}

	resp := EventListResp{
		Events:   make([]DecisionEventResp, 0, len(events)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for _, e := range events {
		resp.Events = append(resp.Events, eventRowToResp(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	requestID := r.PathValue("request_id")
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tenant_id query parameter is required"})
		return
	}

	event, err := d.Reader.GetEvent(r.Context(), tenantID, requestID)
	if err != nil {
		d.Logger.Error("failed to get event", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get event"})
		return
	}
	if event == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Event not found."})
		return
	}

	writeJSON(w, http.StatusOK, eventRowToResp(*event))
}

func (d *Dependencies) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tenant_id query parameter is required"})
		return
	}

	days := queryInt(q, "days", 7)
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}

	result, err := d.Reader.GetAnalytics(r.Context(), tenantID, days)
	if err != nil {
		d.Logger.Error("failed to get analytics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get analytics"})
		return
	}

	writeJSON(w, http.StatusOK, AnalyticsResp{
		Summary: SummaryStatsResp{
			TotalRequests: result.Summary.TotalRequests,
			Blocks:        result.Summary.Blocks,
			Sanitizes:     result.Summary.Sanitizes,
			Refusals:      result.Summary.Refusals,
			Clarification: result.Summary.Clarification,
		},
		BlocksOverTime:  toTimeSeriesResp(result.BlocksOverTime),
		TopDenyReasons:  toReasonResp(result.TopDenyReasons),
		TopLeakPatterns: toPatternResp(result.TopLeakPatterns),
		ShadowReport: ShadowReportResp{
			Total:         result.ShadowReport.Total,
			WouldBlock:    result.ShadowReport.WouldBlock,
			WouldSanitize: result.ShadowReport.WouldSanitize,
		},
		LatencyPercentiles: LatencyPercentilesResp{
			P50: result.LatencyPercentiles.P50,
			P95: result.LatencyPercentiles.P95,
			P99: result.LatencyPercentiles.P99,
		},
	})
}

// eventRowToResp converts a ClickHouse EventRow to the API response.
func eventRowToResp(e chread.EventRow) DecisionEventResp {
	return DecisionEventResp{
		RequestID:         e.RequestID,
		TenantID:          e.TenantID,
		Kind:              e.Kind,
		ConversationID:    nilIfEmpty(e.ConversationID),
		TurnID:            nilIfEmpty(e.TurnID),
		Language:          nilIfEmpty(e.Language),
		VerificationState: nilIfEmpty(e.VerificationState),
		RiskLevel:         nilIfEmpty(e.RiskLevel),
		ResponseMode:      nilIfEmpty(e.ResponseMode),
		AllowedFields:     emptyIfNil(e.AllowedFields),
		DeniedFields:      emptyIfNil(e.DeniedFields),
		DenyReasons:       emptyIfNil(e.DenyReasons),
		FilterAction:      nilIfEmpty(e.FilterAction),
		LeakTypes:         emptyIfNil(e.LeakTypes),
		LeakPatterns:      emptyIfNil(e.LeakPatterns),
		ReplyHash:         nilIfEmpty(e.ReplyHash),
		ReplySize:         e.ReplySize,
		GateTopic:         nilIfEmpty(e.GateTopic),
		GateReason:        nilIfEmpty(e.GateReason),
		MissingFields:     emptyIfNil(e.MissingFields),
		IsShadow:          e.IsShadow == 1,
		LatencyMs:         e.LatencyMs,
		Timestamp:         e.Timestamp,
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func queryInt(q interface{ Get(string) string }, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func toTimeSeriesResp(buckets []chread.TimeSeriesBucket) []TimeSeriesBucketResp {
	out := make([]TimeSeriesBucketResp, len(buckets))
	for i, b := range buckets {
		out[i] = TimeSeriesBucketResp{Hour: b.Hour, Count: b.Count}
	}
	return out
}

func toReasonResp(reasons []chread.ReasonCount) []ReasonCountResp {
	out := make([]ReasonCountResp, len(reasons))
	for i, c := range reasons {
		out[i] = ReasonCountResp{Reason: c.Reason, Count: c.Count}
	}
	return out
}

func toPatternResp(patterns []chread.PatternCount) []PatternCountResp {
	out := make([]PatternCountResp, len(patterns))
	for i, p := range patterns {
		out[i] = PatternCountResp{Pattern: p.Pattern, Count: p.Count}
	}
	return out
}
