package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventWriter is the interface for persisting gateway decision events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *DecisionEvent)
	Close()
}

// Event kinds, one per gateway surface.
const (
	KindEvaluate    = "evaluate"
	KindReplyFilter = "reply_filter"
	KindClaims      = "claims"
)

// DecisionEvent is one gateway verdict to be persisted for the dashboard.
//
// Reply text is never stored: a blocked reply must not leak through
// telemetry, so events carry only a SHA-256 hash, the byte length and the
// matched pattern identifiers.
type DecisionEvent struct {
	RequestID string
	TenantID  string
	Timestamp time.Time
	Kind      string

	ConversationID    string
	TurnID            string
	Language          string
	VerificationState string

	// Gateway decision (kind = evaluate)
	RiskLevel     string
	ResponseMode  string
	AllowedFields []string
	DeniedFields  []string
	DenyReasons   []string

	// Reply filter (kind = reply_filter)
	FilterAction string
	LeakTypes    []string
	LeakPatterns []string
	ReplyHash    string
	ReplySize    uint32

	// Claim gates (kind = claims)
	GateTopic     string
	GateReason    string
	MissingFields []string

	IsShadow  bool
	LatencyMs float32
}

// HashText returns the hex SHA-256 of text for event storage.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
