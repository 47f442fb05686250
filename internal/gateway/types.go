// Package gateway implements the deterministic access-decision engine that
// sits between tool execution and the text shown to a customer. Every
// function here is pure: decisions are computed from caller-supplied inputs
// and nothing is cached across turns.
package gateway

// VerificationState is the customer's identity-proof status for the current
// turn. It is owned by the external dialogue manager and passed in read-only.
type VerificationState int

const (
	VerificationNone VerificationState = iota
	VerificationPending
	VerificationVerified
)

// String returns the wire name used by the HTTP API and telemetry.
func (s VerificationState) String() string {
	switch s {
	case VerificationPending:
		return "pending"
	case VerificationVerified:
		return "verified"
	default:
		return "none"
	}
}

// ParseVerificationState maps a wire string to a VerificationState.
// Unknown strings resolve to VerificationNone (the most restrictive state).
func ParseVerificationState(s string) VerificationState {
	switch s {
	case "pending":
		return VerificationPending
	case "verified":
		return VerificationVerified
	default:
		return VerificationNone
	}
}

// RiskLevel is the aggregate severity of a decision.
type RiskLevel int

const (
	RiskLow RiskLevel = iota + 1
	RiskMedium
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "low"
	}
}

// ResponseMode tells the reply-generation loop how to shape this turn.
type ResponseMode int

const (
	ModeNormal ResponseMode = iota + 1
	ModeSafeClarification
	ModeSafeRefusal
)

func (m ResponseMode) String() string {
	switch m {
	case ModeSafeClarification:
		return "safe_clarification"
	case ModeSafeRefusal:
		return "safe_refusal"
	default:
		return "normal"
	}
}

// DenyReason is the semantic reason a field was withheld. Reasons are
// telemetry codes and must never appear in customer-facing text.
type DenyReason string

const (
	ReasonNeverExpose          DenyReason = "NEVER_EXPOSE"
	ReasonVerificationRequired DenyReason = "VERIFICATION_REQUIRED"
	ReasonIdentityMismatch     DenyReason = "IDENTITY_MISMATCH"
)

// Identity is the attribute tuple used on both sides of an identity match:
// what the customer has proven control over, and who owns the record the
// assistant is about to discuss. All attributes are optional.
type Identity struct {
	Phone      string
	Email      string
	OrderID    string
	CustomerID string
}

// IsEmpty reports whether no attribute is set.
func (id Identity) IsEmpty() bool {
	return id.Phone == "" && id.Email == "" && id.OrderID == "" && id.CustomerID == ""
}

// DeniedField pairs a withheld field with its reason code.
type DeniedField struct {
	Field  string
	Reason DenyReason
}

// AllowedActions are the high-level moves the assistant may make this turn.
type AllowedActions struct {
	AnswerPolicyQuestions bool
	RequestVerification   bool
	CallTools             bool
	ShareVerifiedData     bool
}

// Decision is the gateway's verdict for one turn.
// AllowedFields and DeniedFields never share a field, and a never-expose
// field can never appear in AllowedFields.
type Decision struct {
	RiskLevel            RiskLevel
	ResponseMode         ResponseMode
	AllowedFields        []string
	DeniedFields         []DeniedField
	AllowedActions       AllowedActions
	RequiresVerification bool
	HasIdentityMismatch  bool
	HasNeverExpose       bool
}
