package leakfilter

import (
	"strings"
	"testing"

	"github.com/vocalia-ai/secgate/internal/gateway"
	"github.com/vocalia-ai/secgate/internal/registry"
)

func newTestFilter(t testing.TB) *Filter {
	t.Helper()
	set, err := registry.DefaultPatternSet()
	if err != nil {
		t.Fatalf("pattern set: %v", err)
	}
	return New(set, DefaultOptions())
}

func TestApplyCleanTextPasses(t *testing.T) {
	f := newTestFilter(t)

	replies := []string{
		"Your order has shipped and should arrive on Thursday.",
		"Our store is open from 9 to 6 on weekdays.",
		"",
		"   ",
	}
	for _, reply := range replies {
		res := f.Apply(reply, gateway.VerificationNone, "en", Collected{})
		if res.Action != ActionPass || !res.Safe {
			t.Errorf("clean reply %q: action=%s safe=%v, want pass/true", reply, res.Action, res.Safe)
		}
		if res.Sanitized != reply {
			t.Errorf("pass must leave text unchanged: %q -> %q", reply, res.Sanitized)
		}
	}
}

func TestApplyInternalTermBlocks(t *testing.T) {
	f := newTestFilter(t)

	res := f.Apply("I used customer_data_lookup to check that.", gateway.VerificationVerified, "en", Collected{})
	if res.Action != ActionBlock {
		t.Fatalf("action = %s, want block", res.Action)
	}
	if res.Safe {
		t.Error("blocked reply must be safe=false")
	}
	if res.BlockedMessage == "" || res.Sanitized != res.BlockedMessage {
		t.Error("sanitized must carry the refusal, not the original text")
	}
	if strings.Contains(res.Sanitized, "customer_data_lookup") {
		t.Error("blocked output still contains the leaked term")
	}
	if len(res.Leaks) == 0 || res.Leaks[0].Type != LeakInternalTerm {
		t.Errorf("leaks = %+v, want internal_term", res.Leaks)
	}
}

func TestApplyPolicyPhrasingIsNotALeak(t *testing.T) {
	f := newTestFilter(t)

	// "database" is internal vocabulary, but the reply is ordinary policy
	// talk about return windows: allowance phrasing wins.
	res := f.Apply("According to our database, returns are accepted within 14 days.", gateway.VerificationNone, "en", Collected{})
	if res.Action != ActionPass {
		t.Fatalf("action = %s, want pass (policy allowance)", res.Action)
	}
}

func TestApplyPhoneSanitized(t *testing.T) {
	f := newTestFilter(t)

	res := f.Apply("You can reach the courier at 5551234567.", gateway.VerificationVerified, "en", Collected{})
	if res.Action != ActionSanitize {
		t.Fatalf("action = %s, want sanitize", res.Action)
	}
	if !res.Safe {
		t.Error("sanitized output is safe to deliver")
	}
	if !strings.Contains(res.Sanitized, "555*****67") {
		t.Errorf("sanitized = %q, want first 3 and last 2 digits visible", res.Sanitized)
	}
	if strings.Contains(res.Sanitized, "5551234567") {
		t.Error("original number survived sanitization")
	}
}

func TestApplyPhoneWithInternalTermBlocks(t *testing.T) {
	f := newTestFilter(t)

	// Masking the number would still deliver "webhook" to the customer, so
	// the term forces the block path even though a phone matched too.
	res := f.Apply("The webhook shows 05551112233 as the contact.", gateway.VerificationVerified, "en", Collected{})
	if res.Action != ActionBlock {
		t.Fatalf("action = %s, want block (internal term outranks phone masking)", res.Action)
	}
	if res.Safe {
		t.Error("blocked reply must be safe=false")
	}
	if strings.Contains(res.Sanitized, "webhook") || strings.Contains(res.Sanitized, "1112233") {
		t.Errorf("blocked output still carries leaked content: %q", res.Sanitized)
	}
	var hasPhone, hasTerm bool
	for _, l := range res.Leaks {
		switch l.Type {
		case LeakPhoneNumber:
			hasPhone = true
		case LeakInternalTerm:
			hasTerm = true
		}
	}
	if !hasPhone || !hasTerm {
		t.Errorf("leaks = %+v, want both phone and internal term recorded", res.Leaks)
	}

	// Re-applying the filter to the delivered text yields pass.
	second := f.Apply(res.Sanitized, gateway.VerificationVerified, "en", Collected{})
	if second.Action != ActionPass {
		t.Errorf("re-apply on blocked output: action = %s, want pass", second.Action)
	}
}

func TestApplyPhoneWithAllowedTermSanitizes(t *testing.T) {
	f := newTestFilter(t)

	// "database" is internal vocabulary but the allowance phrasing excuses it;
	// the phone still gets masked.
	res := f.Apply("Our database shows a 14 day return window; call 05551112233.", gateway.VerificationNone, "en", Collected{})
	if res.Action != ActionSanitize {
		t.Fatalf("action = %s, want sanitize", res.Action)
	}
	if strings.Contains(res.Sanitized, "05551112233") {
		t.Errorf("phone survived sanitization: %q", res.Sanitized)
	}
	for _, l := range res.Leaks {
		if l.Type == LeakInternalTerm {
			t.Errorf("excused term recorded as a leak: %+v", res.Leaks)
		}
	}
}

func TestApplyCountryCodeWithoutPlusSanitized(t *testing.T) {
	f := newTestFilter(t)

	// "+90..." written without the plus is still a dialable number.
	res := f.Apply("Your registered number is 905551112233.", gateway.VerificationNone, "en", Collected{})
	if res.Action != ActionSanitize {
		t.Fatalf("action = %s, want sanitize", res.Action)
	}
	if strings.Contains(res.Sanitized, "905551112233") {
		t.Errorf("12-digit number survived sanitization: %q", res.Sanitized)
	}
	if !strings.Contains(res.Sanitized, "905") || !strings.Contains(res.Sanitized, "33") {
		t.Errorf("sanitized = %q, want first 3 and last 2 digits visible", res.Sanitized)
	}
}

func TestApplyMultiFormatNumbersMaskConsistently(t *testing.T) {
	f := newTestFilter(t)

	res := f.Apply("Call +905551112233 or 0555 999 88 77.", gateway.VerificationNone, "en", Collected{})
	if res.Action != ActionSanitize {
		t.Fatalf("action = %s, want sanitize", res.Action)
	}
	if strings.Contains(res.Sanitized, "1112233") || strings.Contains(res.Sanitized, "999 88") {
		t.Errorf("middle digits leaked: %q", res.Sanitized)
	}
}

func TestApplyIdempotentOnSanitizedOutput(t *testing.T) {
	f := newTestFilter(t)

	first := f.Apply("Your registered number is 05551112233.", gateway.VerificationNone, "en", Collected{})
	if first.Action != ActionSanitize {
		t.Fatalf("first pass action = %s, want sanitize", first.Action)
	}

	second := f.Apply(first.Sanitized, gateway.VerificationNone, "en", Collected{})
	if second.Action != ActionPass {
		t.Errorf("second pass action = %s, want pass", second.Action)
	}
	if second.Sanitized != first.Sanitized {
		t.Errorf("sanitized text changed on re-apply: %q -> %q", first.Sanitized, second.Sanitized)
	}
}

func TestApplyOwnPhoneNotALeak(t *testing.T) {
	f := newTestFilter(t)
	collected := Collected{Phones: []string{"+905551112233"}}

	// Verified customer hearing back the number they supplied themselves.
	res := f.Apply("We will call you on 05551112233.", gateway.VerificationVerified, "en", collected)
	if res.Action != ActionPass {
		t.Errorf("own number for verified customer: action = %s, want pass", res.Action)
	}

	// Same reply without verification still masks.
	res = f.Apply("We will call you on 05551112233.", gateway.VerificationNone, "en", collected)
	if res.Action != ActionSanitize {
		t.Errorf("own number while unverified: action = %s, want sanitize", res.Action)
	}
}

func TestBlockedMessageLanguages(t *testing.T) {
	f := newTestFilter(t)

	res := f.Apply("The system_prompt forbids that.", gateway.VerificationNone, "tr", Collected{})
	if res.Action != ActionBlock {
		t.Fatalf("action = %s, want block", res.Action)
	}
	if !strings.Contains(res.BlockedMessage, "Üzgünüm") {
		t.Errorf("turkish refusal expected, got %q", res.BlockedMessage)
	}

	res = f.Apply("The system_prompt forbids that.", gateway.VerificationNone, "xx", Collected{})
	if res.BlockedMessage != BlockedMessage("en") {
		t.Errorf("unknown language should fall back to english, got %q", res.BlockedMessage)
	}
}

func TestBlockedMessagesThemselvesPass(t *testing.T) {
	f := newTestFilter(t)
	for lang, msg := range blockedMessages {
		res := f.Apply(msg, gateway.VerificationNone, lang, Collected{})
		if res.Action != ActionPass {
			t.Errorf("refusal for %q re-triggers the filter: %+v", lang, res.Leaks)
		}
	}
}

func BenchmarkApplyClean(b *testing.B) {
	f := newTestFilter(b)
	reply := "Your order shipped yesterday and should arrive within 3 business days. Let us know if anything else comes up."
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		f.Apply(reply, gateway.VerificationVerified, "en", Collected{})
	}
}
