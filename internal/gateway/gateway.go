package gateway

import "github.com/vocalia-ai/secgate/internal/registry"

// Gateway is the per-field access-decision engine. It holds only the
// immutable field registry, so a single Gateway is safe for concurrent use
// across conversations.
type Gateway struct {
	fields *registry.FieldRegistry
}

// New creates a Gateway over the given field classification registry.
func New(fields *registry.FieldRegistry) *Gateway {
	return &Gateway{fields: fields}
}

// Evaluate decides, field by field, whether the assistant may disclose the
// requested fields this turn.
//
// Per field, in order:
//  1. never_expose: denied unconditionally — the only class immune to every
//     other rule.
//  2. account_verified without a verified session: denied, risk at least
//     medium.
//  3. account_verified with a verified session: the verified identity must
//     match the record owner. Proving *some* identity is not enough; it must
//     be the identity that owns *this* record. No match denies at high risk.
//  4. public: allowed.
//
// The identity match runs at most once per call; its verdict applies to
// every account_verified field in the request.
func (g *Gateway) Evaluate(state VerificationState, verified, record Identity, fields []string) Decision {
	d := Decision{RiskLevel: RiskLow}

	var matchRes *MatchResult
	identityMatch := func() MatchResult {
		if matchRes == nil {
			r := Match(verified, record)
			matchRes = &r
		}
		return *matchRes
	}

	for _, field := range fields {
		name := registry.CanonicalFieldName(field)
		if name == "" {
			continue
		}
		switch g.fields.Classify(name) {
		case registry.ClassNeverExpose:
			d.DeniedFields = append(d.DeniedFields, DeniedField{Field: name, Reason: ReasonNeverExpose})
			d.HasNeverExpose = true
			d.RiskLevel = maxRisk(d.RiskLevel, RiskHigh)

		case registry.ClassAccountVerified:
			if state != VerificationVerified {
				d.DeniedFields = append(d.DeniedFields, DeniedField{Field: name, Reason: ReasonVerificationRequired})
				d.RequiresVerification = true
				d.RiskLevel = maxRisk(d.RiskLevel, RiskMedium)
				continue
			}
			if !identityMatch().Matches {
				d.DeniedFields = append(d.DeniedFields, DeniedField{Field: name, Reason: ReasonIdentityMismatch})
				d.HasIdentityMismatch = true
				d.RiskLevel = maxRisk(d.RiskLevel, RiskHigh)
				continue
			}
			d.AllowedFields = append(d.AllowedFields, name)

		default:
			d.AllowedFields = append(d.AllowedFields, name)
		}
	}

	d.ResponseMode = responseModeFor(d.RiskLevel)
	d.AllowedActions = actionsFor(state, d.RiskLevel)
	return d
}

// responseModeFor derives the response mode deterministically from risk.
func responseModeFor(risk RiskLevel) ResponseMode {
	switch risk {
	case RiskHigh:
		return ModeSafeRefusal
	case RiskMedium:
		return ModeSafeClarification
	default:
		return ModeNormal
	}
}

// actionsFor computes the permitted high-level actions.
// Policy answers and verification requests are always safe. Tool calls
// open up once the customer has engaged verification at all. High risk
// forces data sharing and tool calls off regardless of per-field allowances.
func actionsFor(state VerificationState, risk RiskLevel) AllowedActions {
	a := AllowedActions{
		AnswerPolicyQuestions: true,
		RequestVerification:   true,
		CallTools:             state != VerificationNone,
		ShareVerifiedData:     state == VerificationVerified,
	}
	if risk == RiskHigh {
		a.CallTools = false
		a.ShareVerifiedData = false
	}
	return a
}

func maxRisk(a, b RiskLevel) RiskLevel {
	if b > a {
		return b
	}
	return a
}
