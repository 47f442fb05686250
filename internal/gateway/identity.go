package gateway

import "strings"

// MatchReason explains a match verdict. Like deny reasons, these are
// telemetry codes only.
type MatchReason string

const (
	MatchReasonAttributeMatch   MatchReason = "ATTRIBUTE_MATCH"
	MatchReasonNoMatch          MatchReason = "NO_MATCH"
	MatchReasonNoMatchingFields MatchReason = "NO_MATCHING_FIELDS"
)

// AttributeCheck records the outcome of comparing one attribute present on
// both sides of a match.
type AttributeCheck struct {
	Attribute string
	Matched   bool
}

// MatchResult is the identity matcher's verdict.
type MatchResult struct {
	Matches bool
	Reason  MatchReason
	Checks  []AttributeCheck
}

// Match compares a verified identity against a record-owner tuple.
//
// Only attributes present on both sides are comparable. Zero comparable
// attributes is NO_MATCHING_FIELDS and not a match: absence of evidence is
// absence of proof. Otherwise the match is disjunctive — any single
// attribute equality confirms the identity, since a customer who proves
// control of one identifier on the record owns the record.
func Match(verified, record Identity) MatchResult {
	var checks []AttributeCheck

	if verified.Phone != "" && record.Phone != "" {
		checks = append(checks, AttributeCheck{
			Attribute: "phone",
			Matched:   PhoneEqual(verified.Phone, record.Phone),
		})
	}
	if verified.Email != "" && record.Email != "" {
		checks = append(checks, AttributeCheck{
			Attribute: "email",
			Matched:   strings.EqualFold(strings.TrimSpace(verified.Email), strings.TrimSpace(record.Email)),
		})
	}
	if verified.OrderID != "" && record.OrderID != "" {
		checks = append(checks, AttributeCheck{
			Attribute: "order_id",
			Matched:   strings.TrimSpace(verified.OrderID) == strings.TrimSpace(record.OrderID),
		})
	}
	if verified.CustomerID != "" && record.CustomerID != "" {
		checks = append(checks, AttributeCheck{
			Attribute: "customer_id",
			Matched:   strings.TrimSpace(verified.CustomerID) == strings.TrimSpace(record.CustomerID),
		})
	}

	if len(checks) == 0 {
		return MatchResult{Matches: false, Reason: MatchReasonNoMatchingFields}
	}
	for _, c := range checks {
		if c.Matched {
			return MatchResult{Matches: true, Reason: MatchReasonAttributeMatch, Checks: checks}
		}
	}
	return MatchResult{Matches: false, Reason: MatchReasonNoMatch, Checks: checks}
}

// PhoneEqual compares two phone numbers tolerating formatting and country
// prefixes: "+90 555 111 22 33", "05551112233" and "5551112233" are all the
// same subscriber. Comparison is over the trailing digits of the national
// significant number.
func PhoneEqual(a, b string) bool {
	na, nb := normalizePhone(a), normalizePhone(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb
}

// normalizePhone reduces a phone string to its trailing 10 significant
// digits, dropping separators, a leading country code and a trunk zero.
// Returns "" when fewer than 7 digits remain (not a comparable number).
func normalizePhone(s string) string {
	var digits []byte
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	// Trunk prefix: a single leading zero before a full national number.
	if len(digits) == 11 && digits[0] == '0' {
		digits = digits[1:]
	}
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	if len(digits) < 7 {
		return ""
	}
	return string(digits)
}
