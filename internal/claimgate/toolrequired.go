package claimgate

// Reason codes emitted by the gates. Telemetry only, never customer-facing.
const (
	ReasonToolRequiredNotCalled = "TOOL_REQUIRED_NOT_CALLED"
	ReasonNotFound              = "NOT_FOUND"
)

// ToolRequiredInput is everything the tool-required gate sees for one turn.
type ToolRequiredInput struct {
	UserMessage string
	Intent      string   // declared intent from the dialogue manager, if any
	ActiveFlow  string   // active flow name, if any
	ToolsCalled []string // tools actually invoked this turn
}

// ToolRequiredResult directs the reply loop to collect minimum information
// before asserting a domain fact.
type ToolRequiredResult struct {
	NeedsMinInfo  bool
	Reason        string
	Topic         Topic
	MissingFields []string
}

// EvaluateToolRequired fires when the turn discusses a lookup-shaped topic
// but none of that topic's qualifying tools ran. Without tool evidence the
// assistant would be answering from memory, which for order status, debt,
// tickets and stock means hallucinating business records.
func EvaluateToolRequired(in ToolRequiredInput) ToolRequiredResult {
	spec := detectTopic(in.UserMessage, in.Intent, in.ActiveFlow)
	if spec == nil {
		return ToolRequiredResult{}
	}

	for _, tool := range in.ToolsCalled {
		if containsFold(spec.tools, tool) {
			// Evidence exists; the claim may stand.
			return ToolRequiredResult{Topic: spec.topic}
		}
	}

	return ToolRequiredResult{
		NeedsMinInfo:  true,
		Reason:        ReasonToolRequiredNotCalled,
		Topic:         spec.topic,
		MissingFields: append([]string(nil), spec.missingFields...),
	}
}
