// Package chread provides read access to the ClickHouse decision_events
// table for the dashboard API.
package chread

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the ClickHouse decision_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow represents a single row from the decision_events table.
type EventRow struct {
	RequestID         string
	TenantID          string
	Timestamp         time.Time
	Kind              string
	ConversationID    string
	TurnID            string
	Language          string
	VerificationState string
	RiskLevel         string
	ResponseMode      string
	AllowedFields     []string
	DeniedFields      []string
	DenyReasons       []string
	FilterAction      string
	LeakTypes         []string
	LeakPatterns      []string
	ReplyHash         string
	ReplySize         uint32
	GateTopic         string
	GateReason        string
	MissingFields     []string
	IsShadow          uint8
	LatencyMs         float32
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	TenantID     string
	Kind         *string
	RiskLevel    *string
	FilterAction *string
	GateReason   *string
	IsShadow     *bool
	StartTime    *time.Time
	EndTime      *time.Time
	Page         int
	PageSize     int
}

// ListEvents returns paginated, filtered decision events and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	conditions := []string{"tenant_id = @tenant_id"}
	args := []any{
		clickhouse.Named("tenant_id", params.TenantID),
	}

	if params.Kind != nil {
		conditions = append(conditions, "kind = @kind")
		args = append(args, clickhouse.Named("kind", *params.Kind))
	}
	if params.RiskLevel != nil {
		conditions = append(conditions, "risk_level = @risk_level")
		args = append(args, clickhouse.Named("risk_level", *params.RiskLevel))
	}
	if params.FilterAction != nil {
		conditions = append(conditions, "filter_action = @filter_action")
		args = append(args, clickhouse.Named("filter_action", *params.FilterAction))
	}
	if params.GateReason != nil {
		conditions = append(conditions, "gate_reason = @gate_reason")
		args = append(args, clickhouse.Named("gate_reason", *params.GateReason))
	}
	if params.IsShadow != nil {
		var v uint8
		if *params.IsShadow {
			v = 1
		}
		conditions = append(conditions, "is_shadow = @is_shadow")
		args = append(args, clickhouse.Named("is_shadow", v))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	where := strings.Join(conditions, " AND ")
	offset := (params.Page - 1) * params.PageSize

	// Count query
	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM decision_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	// Data query
	dataQuery := fmt.Sprintf(
		"SELECT "+eventColumns+" FROM decision_events WHERE %s "+
			"ORDER BY timestamp DESC "+
			"LIMIT @limit OFFSET @offset",
		where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := scanEvent(rows, &e); err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}

const eventColumns = "request_id, tenant_id, timestamp, kind, " +
	"conversation_id, turn_id, language, verification_state, " +
	"risk_level, response_mode, allowed_fields, denied_fields, deny_reasons, " +
	"filter_action, leak_types, leak_patterns, reply_hash, reply_size, " +
	"gate_topic, gate_reason, missing_fields, " +
	"is_shadow, latency_ms"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner, e *EventRow) error {
	return row.Scan(
		&e.RequestID, &e.TenantID, &e.Timestamp, &e.Kind,
		&e.ConversationID, &e.TurnID, &e.Language, &e.VerificationState,
		&e.RiskLevel, &e.ResponseMode, &e.AllowedFields, &e.DeniedFields, &e.DenyReasons,
		&e.FilterAction, &e.LeakTypes, &e.LeakPatterns, &e.ReplyHash, &e.ReplySize,
		&e.GateTopic, &e.GateReason, &e.MissingFields,
		&e.IsShadow, &e.LatencyMs,
	)
}

// GetEvent returns a single event by tenant ID and request ID, or nil if not found.
func (r *Reader) GetEvent(ctx context.Context, tenantID, requestID string) (*EventRow, error) {
	row := r.conn.QueryRow(ctx,
		"SELECT "+eventColumns+" FROM decision_events "+
			"WHERE tenant_id = @tenant_id AND request_id = @request_id",
		clickhouse.Named("tenant_id", tenantID),
		clickhouse.Named("request_id", requestID),
	)

	var e EventRow
	if err := scanEvent(row, &e); err != nil {
		// ClickHouse doesn't return sql.ErrNoRows, so check for empty result
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	if e.RequestID == "" {
		return nil, nil
	}
	return &e, nil
}

// SummaryStats holds aggregate counts.
type SummaryStats struct {
	TotalRequests int `json:"total_requests"`
	Blocks        int `json:"blocks"`
	Sanitizes     int `json:"sanitizes"`
	Refusals      int `json:"refusals"`
	Clarification int `json:"clarifications"`
}

// TimeSeriesBucket holds an hourly count.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// ReasonCount holds a deny reason and its count.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// PatternCount holds a leaked pattern ID and its count.
type PatternCount struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// ShadowReportStats holds monitor mode analysis.
type ShadowReportStats struct {
	Total         int `json:"total"`
	WouldBlock    int `json:"would_block"`
	WouldSanitize int `json:"would_sanitize"`
}

// LatencyStats holds latency percentiles.
type LatencyStats struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// AnalyticsResult holds all analytics aggregations.
type AnalyticsResult struct {
	Summary            SummaryStats       `json:"summary"`
	BlocksOverTime     []TimeSeriesBucket `json:"blocks_over_time"`
	TopDenyReasons     []ReasonCount      `json:"top_deny_reasons"`
	TopLeakPatterns    []PatternCount     `json:"top_leak_patterns"`
	ShadowReport       ShadowReportStats  `json:"shadow_report"`
	LatencyPercentiles LatencyStats       `json:"latency_percentiles"`
}

// GetAnalytics returns aggregated analytics for a tenant over the given number of days.
func (r *Reader) GetAnalytics(ctx context.Context, tenantID string, days int) (*AnalyticsResult, error) {
	now := time.Now().UTC()
	rangeStart := now.Add(-time.Duration(days) * 24 * time.Hour)
	dayStart := now.Add(-24 * time.Hour)

	baseArgs := []any{
		clickhouse.Named("tenant_id", tenantID),
		clickhouse.Named("range_start", rangeStart),
	}

	result := &AnalyticsResult{}

	// Summary counts
	var total, blocks, sanitizes, refusals, clarifications uint64
	err := r.conn.QueryRow(ctx,
		"SELECT count() as total, "+
			"countIf(filter_action = 'block') as blocks, "+
			"countIf(filter_action = 'sanitize') as sanitizes, "+
			"countIf(response_mode = 'safe_refusal') as refusals, "+
			"countIf(response_mode = 'safe_clarification') as clarifications "+
			"FROM decision_events "+
			"WHERE tenant_id = @tenant_id AND timestamp >= @range_start",
		baseArgs...,
	).Scan(&total, &blocks, &sanitizes, &refusals, &clarifications)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics summary: %w", err)
	}
	result.Summary = SummaryStats{
		TotalRequests: int(total),
		Blocks:        int(blocks),
		Sanitizes:     int(sanitizes),
		Refusals:      int(refusals),
		Clarification: int(clarifications),
	}

	// Blocks over time (hourly)
	botRows, err := r.conn.Query(ctx,
		"SELECT toStartOfHour(timestamp) as hour, count() as count "+
			"FROM decision_events "+
			"WHERE tenant_id = @tenant_id AND filter_action = 'block' "+
			"AND timestamp >= @range_start "+
			"GROUP BY hour ORDER BY hour",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics blocks_over_time: %w", err)
	}
	defer func() { _ = botRows.Close() }()
	for botRows.Next() {
		var hour time.Time
		var count uint64
		if err := botRows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics blocks_over_time scan: %w", err)
		}
		result.BlocksOverTime = append(result.BlocksOverTime, TimeSeriesBucket{
			Hour:  hour.Format(time.RFC3339),
			Count: int(count),
		})
	}

	// Top deny reasons
	reasonRows, err := r.conn.Query(ctx,
		"SELECT arrayJoin(deny_reasons) as reason, count() as count "+
			"FROM decision_events "+
			"WHERE tenant_id = @tenant_id AND timestamp >= @range_start "+
			"GROUP BY reason ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_deny_reasons: %w", err)
	}
	defer func() { _ = reasonRows.Close() }()
	for reasonRows.Next() {
		var reason string
		var count uint64
		if err := reasonRows.Scan(&reason, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_deny_reasons scan: %w", err)
		}
		result.TopDenyReasons = append(result.TopDenyReasons, ReasonCount{
			Reason: reason, Count: int(count),
		})
	}

	// Top leak patterns
	patRows, err := r.conn.Query(ctx,
		"SELECT arrayJoin(leak_patterns) as pattern, count() as count "+
			"FROM decision_events "+
			"WHERE tenant_id = @tenant_id AND filter_action IN ('block', 'sanitize') "+
			"AND timestamp >= @range_start "+
			"GROUP BY pattern ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_leak_patterns: %w", err)
	}
	defer func() { _ = patRows.Close() }()
	for patRows.Next() {
		var pattern string
		var count uint64
		if err := patRows.Scan(&pattern, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_leak_patterns scan: %w", err)
		}
		result.TopLeakPatterns = append(result.TopLeakPatterns, PatternCount{
			Pattern: pattern, Count: int(count),
		})
	}

	// Shadow report (monitor mode)
	var shadowTotal, wouldBlock, wouldSanitize uint64
	err = r.conn.QueryRow(ctx,
		"SELECT count() as total, "+
			"countIf(filter_action = 'block') as would_block, "+
			"countIf(filter_action = 'sanitize') as would_sanitize "+
			"FROM decision_events "+
			"WHERE tenant_id = @tenant_id AND is_shadow = 1 "+
			"AND timestamp >= @range_start",
		baseArgs...,
	).Scan(&shadowTotal, &wouldBlock, &wouldSanitize)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics shadow_report: %w", err)
	}
	result.ShadowReport = ShadowReportStats{
		Total: int(shadowTotal), WouldBlock: int(wouldBlock), WouldSanitize: int(wouldSanitize),
	}

	// Latency percentiles (last 24h)
	var p50, p95, p99 float64
	err = r.conn.QueryRow(ctx,
		"SELECT quantile(0.5)(latency_ms) as p50, "+
			"quantile(0.95)(latency_ms) as p95, "+
			"quantile(0.99)(latency_ms) as p99 "+
			"FROM decision_events "+
			"WHERE tenant_id = @tenant_id AND timestamp >= @day_start",
		clickhouse.Named("tenant_id", tenantID),
		clickhouse.Named("day_start", dayStart),
	).Scan(&p50, &p95, &p99)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics latency: %w", err)
	}
	result.LatencyPercentiles = LatencyStats{
		P50: safeFloat(p50), P95: safeFloat(p95), P99: safeFloat(p99),
	}

	// Ensure slices are non-nil for JSON serialization
	if result.BlocksOverTime == nil {
		result.BlocksOverTime = []TimeSeriesBucket{}
	}
	if result.TopDenyReasons == nil {
		result.TopDenyReasons = []ReasonCount{}
	}
	if result.TopLeakPatterns == nil {
		result.TopLeakPatterns = []PatternCount{}
	}

	return result, nil
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
