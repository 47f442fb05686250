package claimgate

// ToolOutcome is the gate's view of one tool invocation this turn, as
// normalized by the extractors.
type ToolOutcome struct {
	Tool     string
	NotFound bool
}

// NotFoundResult converts "the record doesn't exist" into "ask for a better
// identifier" instead of letting the reply loop improvise details.
type NotFoundResult struct {
	NeedsClarification bool
	Reason             string
	Topic              Topic
	MissingFields      []string
}

// EvaluateNotFound scans the turn's tool outcomes for a NOT_FOUND result and
// derives a topic-appropriate clarification. userMessage is the customer's
// original message; for order lookups its shape disambiguates what to ask
// for next.
func EvaluateNotFound(userMessage string, outcomes []ToolOutcome) NotFoundResult {
	for _, out := range outcomes {
		if !out.NotFound {
			continue
		}

		spec := specForTool(out.Tool)
		if spec == nil {
			return NotFoundResult{
				NeedsClarification: true,
				Reason:             ReasonNotFound,
				MissingFields:      []string{"record_identifier"},
			}
		}

		missing := append([]string(nil), spec.missingFields...)
		if spec.topic == TopicOrderStatus {
			missing = orderMissingFields(userMessage)
		}
		return NotFoundResult{
			NeedsClarification: true,
			Reason:             ReasonNotFound,
			Topic:              spec.topic,
			MissingFields:      missing,
		}
	}
	return NotFoundResult{}
}

// orderMissingFields resolves the order-number-vs-phone ambiguity from the
// shape of a numeric-only message. A bare 10-11 digit message is almost
// certainly a phone number the lookup rejected, so the clarification asks
// for the order number; any other shape asks for the registered phone.
func orderMissingFields(userMessage string) []string {
	digits, other := 0, false
	for _, r := range userMessage {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '-' || r == '+' || r == '(' || r == ')':
			// separators don't break numeric-only shape
		default:
			other = true
		}
	}
	if !other && (digits == 10 || digits == 11) {
		return []string{"order_number"}
	}
	return []string{"phone"}
}
