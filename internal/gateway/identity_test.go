package gateway

import "testing"

func TestMatchDisjunctive(t *testing.T) {
	// One matching attribute and one mismatching attribute: still a match.
	verified := Identity{Phone: "+905551112233", Email: "alice@example.com"}
	record := Identity{Phone: "05551112233", Email: "bob@example.com"}

	res := Match(verified, record)
	if !res.Matches {
		t.Fatalf("expected match, got %+v", res)
	}
	if res.Reason != MatchReasonAttributeMatch {
		t.Errorf("reason = %s, want ATTRIBUTE_MATCH", res.Reason)
	}
}

func TestMatchNoSharedAttributes(t *testing.T) {
	tests := []struct {
		name     string
		verified Identity
		record   Identity
	}{
		{"both empty", Identity{}, Identity{}},
		{"verified empty", Identity{}, Identity{Phone: "05551112233"}},
		{"record empty", Identity{Email: "a@b.com"}, Identity{}},
		{"disjoint attributes", Identity{Phone: "05551112233"}, Identity{Email: "a@b.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Match(tt.verified, tt.record)
			if res.Matches {
				t.Errorf("expected no match for %+v vs %+v", tt.verified, tt.record)
			}
			if res.Reason != MatchReasonNoMatchingFields {
				t.Errorf("reason = %s, want NO_MATCHING_FIELDS", res.Reason)
			}
		})
	}
}

func TestMatchAllMismatch(t *testing.T) {
	res := Match(
		Identity{Phone: "05551112233", OrderID: "ORD-1"},
		Identity{Phone: "05559998877", OrderID: "ORD-2"},
	)
	if res.Matches {
		t.Fatal("expected mismatch")
	}
	if res.Reason != MatchReasonNoMatch {
		t.Errorf("reason = %s, want NO_MATCH", res.Reason)
	}
	if len(res.Checks) != 2 {
		t.Errorf("checks = %d, want 2", len(res.Checks))
	}
}

func TestMatchEmailCaseInsensitive(t *testing.T) {
	res := Match(
		Identity{Email: "Alice@Example.COM"},
		Identity{Email: "alice@example.com "},
	)
	if !res.Matches {
		t.Error("email comparison should be case-insensitive and trim whitespace")
	}
}

func TestMatchIDsExact(t *testing.T) {
	if Match(Identity{OrderID: "1234"}, Identity{OrderID: "12345"}).Matches {
		t.Error("order id comparison must be exact")
	}
	if !Match(Identity{CustomerID: "C-42"}, Identity{CustomerID: "C-42"}).Matches {
		t.Error("equal customer ids should match")
	}
}

func TestPhoneEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"country prefix vs trunk zero", "+905551112233", "05551112233", true},
		{"trunk zero vs bare", "05551112233", "5551112233", true},
		{"formatted vs compact", "+90 555 111 22 33", "05551112233", true},
		{"dashes and spaces", "0555-111-22-33", "0555 111 22 33", true},
		{"different subscribers", "05551112233", "05551112234", false},
		{"empty side", "", "05551112233", false},
		{"too short to compare", "12345", "12345", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PhoneEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("PhoneEqual(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
