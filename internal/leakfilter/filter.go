// Package leakfilter is the last line of defense over assistant-generated
// text. It runs after reply generation, independent of whatever reasoning
// shaped the reply, and decides whether the rendered text passes, is
// sanitized, or is replaced wholesale with a refusal.
package leakfilter

import (
	"sort"
	"strings"

	"github.com/vocalia-ai/secgate/internal/gateway"
	"github.com/vocalia-ai/secgate/internal/registry"
)

// Action is the filter's verdict over a rendered reply.
type Action int

const (
	ActionPass Action = iota + 1
	ActionSanitize
	ActionBlock
)

func (a Action) String() string {
	switch a {
	case ActionSanitize:
		return "sanitize"
	case ActionBlock:
		return "block"
	default:
		return "pass"
	}
}

// LeakType distinguishes the two scan kinds.
type LeakType string

const (
	LeakInternalTerm LeakType = "internal_term"
	LeakPhoneNumber  LeakType = "phone_number"
)

// Leak identifies one matched rule. It carries the pattern identifier only —
// never the matched text, so a blocked reply cannot leak through telemetry.
type Leak struct {
	Type    LeakType
	Pattern string
}

// Result is the filter outcome. Sanitized always holds the text to deliver,
// whatever the action. Safe is false only on block.
type Result struct {
	Safe           bool
	Action         Action
	Leaks          []Leak
	Sanitized      string
	BlockedMessage string
}

// Collected is conversation data the customer supplied themselves this
// session. A verified customer's own phone number echoed back is not a leak.
type Collected struct {
	Phones []string
}

// Options tune the masking widths.
type Options struct {
	KeepLeadingDigits  int
	KeepTrailingDigits int
	MaskByte           byte
}

// DefaultOptions keeps the first 3 and last 2 digits visible.
func DefaultOptions() Options {
	return Options{KeepLeadingDigits: 3, KeepTrailingDigits: 2, MaskByte: '*'}
}

// blockedMessages are the language-appropriate refusal sentences substituted
// for a blocked reply. They are deliberately non-technical: reason codes stay
// in telemetry.
var blockedMessages = map[string]string{
	"en": "I'm sorry, I can't share that information. Is there anything else I can help you with?",
	"tr": "Üzgünüm, bu bilgiyi paylaşamıyorum. Başka bir konuda yardımcı olabilir miyim?",
}

// BlockedMessage returns the refusal sentence for a language code,
// falling back to English.
func BlockedMessage(lang string) string {
	if msg, ok := blockedMessages[strings.ToLower(lang)]; ok {
		return msg
	}
	return blockedMessages["en"]
}

// Filter scans rendered replies against a compiled pattern set.
// Stateless apart from the immutable set and options; safe for concurrent use.
type Filter struct {
	set  *registry.PatternSet
	opts Options
}

// New creates a Filter. A zero MaskByte falls back to '*'.
func New(set *registry.PatternSet, opts Options) *Filter {
	if opts.MaskByte == 0 {
		opts.MaskByte = '*'
	}
	return &Filter{set: set, opts: opts}
}

// Apply scans the rendered reply and decides pass, sanitize or block.
//
// Decision table:
//   - no internal-term and no phone match: pass, text unchanged.
//   - internal-term match not excused by benign policy-style phrasing
//     (day/week counts, warranty terms): block, with or without phone
//     matches. Masking cannot repair internal vocabulary, so the original
//     text is discarded entirely and replaced with a refusal. A blocked
//     reply is never patched.
//   - phone match and no surviving internal-term match: sanitize. Masked
//     PII is safe to deliver, so the result stays safe=true.
//
// A phone span matching one the verified customer supplied earlier in the
// conversation is their own data and is not treated as a leak.
func (f *Filter) Apply(reply string, state gateway.VerificationState, lang string, collected Collected) Result {
	if strings.TrimSpace(reply) == "" {
		return Result{Safe: true, Action: ActionPass, Sanitized: reply}
	}

	terms := f.set.MatchInternalTerms(reply)
	if len(terms) > 0 && f.set.MatchesPolicyAllowance(reply) {
		// Benign policy phrasing; the term hits are false positives.
		terms = nil
	}

	phones := f.set.FindPhones(reply)
	if state == gateway.VerificationVerified && len(collected.Phones) > 0 {
		phones = dropOwnPhones(reply, phones, collected.Phones)
	}

	if len(terms) > 0 {
		msg := BlockedMessage(lang)
		res := Result{
			Safe:           false,
			Action:         ActionBlock,
			Sanitized:      msg,
			BlockedMessage: msg,
		}
		for _, t := range terms {
			res.Leaks = append(res.Leaks, Leak{Type: LeakInternalTerm, Pattern: t})
		}
		for _, m := range phones {
			res.Leaks = append(res.Leaks, Leak{Type: LeakPhoneNumber, Pattern: m.Rule})
		}
		return res
	}

	if len(phones) > 0 {
		res := Result{
			Safe:      true,
			Action:    ActionSanitize,
			Sanitized: f.maskSpans(reply, phones),
		}
		for _, m := range phones {
			res.Leaks = append(res.Leaks, Leak{Type: LeakPhoneNumber, Pattern: m.Rule})
		}
		return res
	}

	return Result{Safe: true, Action: ActionPass, Sanitized: reply}
}

// maskSpans rebuilds the reply with every phone span masked.
func (f *Filter) maskSpans(reply string, matches []registry.PhoneMatch) string {
	sorted := append([]registry.PhoneMatch(nil), matches...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var b strings.Builder
	b.Grow(len(reply))
	prev := 0
	for _, m := range sorted {
		b.WriteString(reply[prev:m.Start])
		b.WriteString(MaskDigits(reply[m.Start:m.End], f.opts.KeepLeadingDigits, f.opts.KeepTrailingDigits, f.opts.MaskByte))
		prev = m.End
	}
	b.WriteString(reply[prev:])
	return b.String()
}

// dropOwnPhones removes spans whose number equals one the customer supplied.
func dropOwnPhones(reply string, matches []registry.PhoneMatch, own []string) []registry.PhoneMatch {
	kept := matches[:0:0]
	for _, m := range matches {
		span := reply[m.Start:m.End]
		isOwn := false
		for _, p := range own {
			if gateway.PhoneEqual(span, p) {
				isOwn = true
				break
			}
		}
		if !isOwn {
			kept = append(kept, m)
		}
	}
	return kept
}
