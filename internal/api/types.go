package api

import (
	"encoding/json"
	"time"
)

// --- POST /v1/secgate/evaluate request/response ---

// IdentityReq carries the attribute tuple for one side of an identity match.
type IdentityReq struct {
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
}

// ToolOutputReq is one raw tool output to be normalized server-side.
type ToolOutputReq struct {
	Tool   string         `json:"tool"`
	Output map[string]any `json:"output"`
}

// EvaluateRequest is the JSON body for POST /v1/secgate/evaluate.
// Requested fields may be given explicitly, derived from tool outputs,
// or both.
type EvaluateRequest struct {
	VerificationState string          `json:"verification_state"`
	VerifiedIdentity  *IdentityReq    `json:"verified_identity,omitempty"`
	RecordOwner       *IdentityReq    `json:"record_owner,omitempty"`
	RequestedFields   []string        `json:"requested_fields,omitempty"`
	ToolOutputs       []ToolOutputReq `json:"tool_outputs,omitempty"`
	ConversationID    string          `json:"conversation_id,omitempty"`
	TurnID            string          `json:"turn_id,omitempty"`
	Language          string          `json:"language,omitempty"`
	TraceID           string          `json:"trace_id,omitempty"`
}

// DeniedFieldResp pairs a withheld field with its reason code.
type DeniedFieldResp struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// AllowedActionsResp mirrors gateway.AllowedActions.
type AllowedActionsResp struct {
	AnswerPolicyQuestions bool `json:"answer_policy_questions"`
	RequestVerification   bool `json:"request_verification"`
	CallTools             bool `json:"call_tools"`
	ShareVerifiedData     bool `json:"share_verified_data"`
}

// EvaluateResponse is the gateway verdict for one turn.
type EvaluateResponse struct {
	RequestID            string             `json:"request_id"`
	RiskLevel            string             `json:"risk_level"`
	ResponseMode         string             `json:"response_mode"`
	AllowedFields        []string           `json:"allowed_fields"`
	DeniedFields         []DeniedFieldResp  `json:"denied_fields"`
	AllowedActions       AllowedActionsResp `json:"allowed_actions"`
	RequiresVerification bool               `json:"requires_verification"`
	HasIdentityMismatch  bool               `json:"has_identity_mismatch"`
	IsShadow             bool               `json:"is_shadow"`
	LatencyMs            float64            `json:"latency_ms"`
}

// --- POST /v1/secgate/reply-filter ---

// ReplyFilterRequest is the JSON body for POST /v1/secgate/reply-filter.
// CollectedPhones are numbers the customer supplied themselves this session.
type ReplyFilterRequest struct {
	Reply             string   `json:"reply"`
	VerificationState string   `json:"verification_state"`
	Language          string   `json:"language,omitempty"`
	CollectedPhones   []string `json:"collected_phones,omitempty"`
	ConversationID    string   `json:"conversation_id,omitempty"`
	TurnID            string   `json:"turn_id,omitempty"`
	TraceID           string   `json:"trace_id,omitempty"`
}

// LeakResp identifies one matched rule by pattern ID. Matched text is never
// echoed back.
type LeakResp struct {
	Type    string `json:"type"`
	Pattern string `json:"pattern"`
}

// ReplyFilterResponse is the filter verdict. Reply always holds the text to
// deliver, whatever the action.
type ReplyFilterResponse struct {
	RequestID string     `json:"request_id"`
	Safe      bool       `json:"safe"`
	Action    string     `json:"action"`
	Reply     string     `json:"reply"`
	Leaks     []LeakResp `json:"leaks"`
	IsShadow  bool       `json:"is_shadow"`
	LatencyMs float64    `json:"latency_ms"`
}

// --- POST /v1/secgate/claims ---

// ClaimsRequest is the JSON body for POST /v1/secgate/claims.
type ClaimsRequest struct {
	UserMessage    string          `json:"user_message"`
	Intent         string          `json:"intent,omitempty"`
	ActiveFlow     string          `json:"active_flow,omitempty"`
	ToolsCalled    []string        `json:"tools_called,omitempty"`
	ToolOutputs    []ToolOutputReq `json:"tool_outputs,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	TurnID         string          `json:"turn_id,omitempty"`
	Language       string          `json:"language,omitempty"`
	TraceID        string          `json:"trace_id,omitempty"`
}

// ToolRequiredResp is the tool-required gate verdict.
type ToolRequiredResp struct {
	NeedsMinInfo  bool     `json:"needs_min_info"`
	Reason        string   `json:"reason,omitempty"`
	Topic         string   `json:"topic,omitempty"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

// NotFoundResp is the not-found gate verdict.
type NotFoundResp struct {
	NeedsClarification bool     `json:"needs_clarification"`
	Reason             string   `json:"reason,omitempty"`
	Topic              string   `json:"topic,omitempty"`
	MissingFields      []string `json:"missing_fields,omitempty"`
}

// ClaimsResponse holds both gate verdicts for the turn.
type ClaimsResponse struct {
	RequestID    string           `json:"request_id"`
	ToolRequired ToolRequiredResp `json:"tool_required"`
	NotFound     NotFoundResp     `json:"not_found"`
	IsShadow     bool             `json:"is_shadow"`
	LatencyMs    float64          `json:"latency_ms"`
}

// --- Tenant CRUD ---

// CreateTenantReq is the JSON body for POST /api/secgate/tenants.
type CreateTenantReq struct {
	Name string `json:"name"`
}

// CreateTenantResp includes the plaintext API key (shown once).
type CreateTenantResp struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKey       string    `json:"api_key"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	Mode         string    `json:"mode"`
	FailOpen     bool      `json:"fail_open"`
	CreatedAt    time.Time `json:"created_at"`
}

// UpdateTenantReq is the JSON body for PATCH /api/secgate/tenants/{id}.
type UpdateTenantReq struct {
	Name     *string `json:"name,omitempty"`
	Mode     *string `json:"mode,omitempty"`
	FailOpen *bool   `json:"fail_open,omitempty"`
}

// TenantResp is a tenant without the plaintext key.
type TenantResp struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	Mode         string    `json:"mode"`
	FailOpen     bool      `json:"fail_open"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RotateKeyResp includes the new plaintext API key (shown once).
type RotateKeyResp struct {
	APIKey       string `json:"api_key"`
	APIKeyPrefix string `json:"api_key_prefix"`
}

// --- Policy CRUD ---

// UpdatePolicyReq is the JSON body for PATCH/PUT policy endpoints.
type UpdatePolicyReq struct {
	GatewayConfig json.RawMessage `json:"gateway_config,omitempty"`
}

// PolicyResp is a tenant policy document.
type PolicyResp struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	GatewayConfig json.RawMessage `json:"gateway_config"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// --- Decision events ---

// DecisionEventResp is one persisted gateway verdict.
type DecisionEventResp struct {
	RequestID         string    `json:"request_id"`
	TenantID          string    `json:"tenant_id"`
	Kind              string    `json:"kind"`
	ConversationID    *string   `json:"conversation_id"`
	TurnID            *string   `json:"turn_id"`
	Language          *string   `json:"language"`
	VerificationState *string   `json:"verification_state"`
	RiskLevel         *string   `json:"risk_level"`
	ResponseMode      *string   `json:"response_mode"`
	AllowedFields     []string  `json:"allowed_fields"`
	DeniedFields      []string  `json:"denied_fields"`
	DenyReasons       []string  `json:"deny_reasons"`
	FilterAction      *string   `json:"filter_action"`
	LeakTypes         []string  `json:"leak_types"`
	LeakPatterns      []string  `json:"leak_patterns"`
	ReplyHash         *string   `json:"reply_hash"`
	ReplySize         uint32    `json:"reply_size"`
	GateTopic         *string   `json:"gate_topic"`
	GateReason        *string   `json:"gate_reason"`
	MissingFields     []string  `json:"missing_fields"`
	IsShadow          bool      `json:"is_shadow"`
	LatencyMs         float32   `json:"latency_ms"`
	Timestamp         time.Time `json:"timestamp"`
}

// EventListResp is a paginated event listing.
type EventListResp struct {
	Events   []DecisionEventResp `json:"events"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// --- Analytics ---

// AnalyticsResp mirrors chread.AnalyticsResult for the dashboard.
type AnalyticsResp struct {
	Summary            SummaryStatsResp       `json:"summary"`
	BlocksOverTime     []TimeSeriesBucketResp `json:"blocks_over_time"`
	TopDenyReasons     []ReasonCountResp      `json:"top_deny_reasons"`
	TopLeakPatterns    []PatternCountResp     `json:"top_leak_patterns"`
	ShadowReport       ShadowReportResp       `json:"shadow_report"`
	LatencyPercentiles LatencyPercentilesResp `json:"latency_percentiles"`
}

// SummaryStatsResp holds aggregate counts.
type SummaryStatsResp struct {
	TotalRequests int `json:"total_requests"`
	Blocks        int `json:"blocks"`
	Sanitizes     int `json:"sanitizes"`
	Refusals      int `json:"refusals"`
	Clarification int `json:"clarifications"`
}

// TimeSeriesBucketResp holds an hourly count.
type TimeSeriesBucketResp struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// ReasonCountResp holds a deny reason and its count.
type ReasonCountResp struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// PatternCountResp holds a leaked pattern ID and its count.
type PatternCountResp struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// ShadowReportResp holds monitor mode analysis.
type ShadowReportResp struct {
	Total         int `json:"total"`
	WouldBlock    int `json:"would_block"`
	WouldSanitize int `json:"would_sanitize"`
}

// LatencyPercentilesResp holds latency percentiles.
type LatencyPercentilesResp struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
