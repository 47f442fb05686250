package claimgate

import (
	"reflect"
	"testing"
)

func TestNotFoundTicketLookup(t *testing.T) {
	res := EvaluateNotFound("what happened to my ticket?", []ToolOutcome{
		{Tool: "ticket_lookup", NotFound: true},
	})
	if !res.NeedsClarification {
		t.Fatal("expected clarification for NOT_FOUND ticket lookup")
	}
	if res.Reason != ReasonNotFound {
		t.Errorf("reason = %s, want NOT_FOUND", res.Reason)
	}
	if res.Topic != TopicTicket {
		t.Errorf("topic = %s, want ticket_status", res.Topic)
	}
	if !reflect.DeepEqual(res.MissingFields, []string{"ticket_number"}) {
		t.Errorf("missing = %v, want [ticket_number]", res.MissingFields)
	}
}

func TestNotFoundDebtLookup(t *testing.T) {
	res := EvaluateNotFound("borcum ne kadar", []ToolOutcome{
		{Tool: "debt_lookup", NotFound: true},
	})
	if !res.NeedsClarification || res.Topic != TopicDebt {
		t.Fatalf("unexpected result %+v", res)
	}
	if !reflect.DeepEqual(res.MissingFields, []string{"tax_number", "phone"}) {
		t.Errorf("missing = %v, want [tax_number phone]", res.MissingFields)
	}
}

func TestNotFoundOrderAmbiguity(t *testing.T) {
	tests := []struct {
		name        string
		userMessage string
		wantMissing []string
	}{
		// A bare phone-length number failed the order lookup: the customer
		// probably gave a phone, so ask for the order number.
		{"numeric phone-length", "0555 111 22 33", []string{"order_number"}},
		{"numeric ten digits", "5551112233", []string{"order_number"}},
		// Anything else: ask for the registered phone instead.
		{"short numeric", "84521", []string{"phone"}},
		{"free text", "where is my order", []string{"phone"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := EvaluateNotFound(tt.userMessage, []ToolOutcome{
				{Tool: "order_lookup", NotFound: true},
			})
			if !res.NeedsClarification || res.Topic != TopicOrderStatus {
				t.Fatalf("unexpected result %+v", res)
			}
			if !reflect.DeepEqual(res.MissingFields, tt.wantMissing) {
				t.Errorf("missing = %v, want %v", res.MissingFields, tt.wantMissing)
			}
		})
	}
}

func TestNotFoundUnknownTool(t *testing.T) {
	res := EvaluateNotFound("hm", []ToolOutcome{{Tool: "mystery_tool", NotFound: true}})
	if !res.NeedsClarification {
		t.Fatal("unknown tool with NOT_FOUND still needs clarification")
	}
	if !reflect.DeepEqual(res.MissingFields, []string{"record_identifier"}) {
		t.Errorf("missing = %v, want [record_identifier]", res.MissingFields)
	}
}

func TestNotFoundNoOutcome(t *testing.T) {
	res := EvaluateNotFound("where is my order", []ToolOutcome{
		{Tool: "order_lookup", NotFound: false},
	})
	if res.NeedsClarification {
		t.Errorf("no NOT_FOUND outcome, no clarification: %+v", res)
	}

	if EvaluateNotFound("hi", nil).NeedsClarification {
		t.Error("empty outcomes must not clarify")
	}
}
