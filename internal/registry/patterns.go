package registry

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vocalia-ai/secgate/patterns"
)

// PackFile is the top-level YAML structure of a leak-pattern pack.
type PackFile struct {
	Version         int           `yaml:"version"`
	InternalTerms   []string      `yaml:"internal_terms"`
	PhonePatterns   []RuleConfig  `yaml:"phone_patterns"`
	PolicyAllowance []RuleConfig  `yaml:"policy_allowance"`
	NotFoundPhrases []string      `yaml:"not_found_phrases"`
}

// RuleConfig is a single named regex rule within a pack.
type RuleConfig struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`
}

// ParsePackFile parses pattern-pack YAML bytes.
func ParsePackFile(data []byte) (*PackFile, error) {
	var pf PackFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing pattern pack YAML: %w", err)
	}
	return &pf, nil
}

// LoadPackFile reads and parses a pattern-pack YAML file from disk.
func LoadPackFile(path string) (*PackFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pattern pack %s: %w", path, err)
	}
	return ParsePackFile(data)
}

// PhoneRule is a compiled phone-shape rule.
type PhoneRule struct {
	Name string
	Re   *regexp.Regexp
}

// TermRule is a compiled internal-vocabulary rule.
type TermRule struct {
	Term string
	Re   *regexp.Regexp
}

// PatternSet is the compiled, immutable form of a pattern pack. It is built
// once at startup and shared by the leak filter, the claim gates and tests.
type PatternSet struct {
	Version         int
	internalTerms   []TermRule
	phoneRules      []PhoneRule
	policyAllowance []PhoneRule
	notFoundPhrases []string
}

// Compile turns a parsed pack into a PatternSet. Regexes that fail to compile
// abort the whole compile: a silently dropped rule is a silent hole in the
// last line of defense.
func Compile(pf *PackFile) (*PatternSet, error) {
	set := &PatternSet{Version: pf.Version}

	for _, term := range pf.InternalTerms {
		re, err := compileTerm(term)
		if err != nil {
			return nil, fmt.Errorf("internal term %q: %w", term, err)
		}
		set.internalTerms = append(set.internalTerms, TermRule{Term: term, Re: re})
	}
	for _, rule := range pf.PhonePatterns {
		re, err := regexp.Compile(rule.Regex)
		if err != nil {
			return nil, fmt.Errorf("phone pattern %q: %w", rule.Name, err)
		}
		set.phoneRules = append(set.phoneRules, PhoneRule{Name: rule.Name, Re: re})
	}
	for _, rule := range pf.PolicyAllowance {
		re, err := regexp.Compile(rule.Regex)
		if err != nil {
			return nil, fmt.Errorf("policy allowance %q: %w", rule.Name, err)
		}
		set.policyAllowance = append(set.policyAllowance, PhoneRule{Name: rule.Name, Re: re})
	}
	for _, phrase := range pf.NotFoundPhrases {
		set.notFoundPhrases = append(set.notFoundPhrases, strings.ToLower(phrase))
	}
	return set, nil
}

// DefaultPatternSet compiles the embedded default pack.
func DefaultPatternSet() (*PatternSet, error) {
	pf, err := ParsePackFile(patterns.DefaultPackYAML())
	if err != nil {
		return nil, err
	}
	return Compile(pf)
}

// MustDefaultPatternSet is DefaultPatternSet for wiring code; the embedded
// pack is covered by tests, so a failure here is a build defect.
func MustDefaultPatternSet() *PatternSet {
	set, err := DefaultPatternSet()
	if err != nil {
		panic(fmt.Sprintf("compiling embedded pattern pack: %v", err))
	}
	return set
}

// WithExtraTerms returns a new PatternSet sharing the compiled rules of the
// receiver plus additional internal terms (per-tenant policy extension).
// The receiver is not modified.
func (s *PatternSet) WithExtraTerms(terms []string) (*PatternSet, error) {
	if len(terms) == 0 {
		return s, nil
	}
	clone := &PatternSet{
		Version:         s.Version,
		internalTerms:   append([]TermRule(nil), s.internalTerms...),
		phoneRules:      s.phoneRules,
		policyAllowance: s.policyAllowance,
		notFoundPhrases: s.notFoundPhrases,
	}
	for _, term := range terms {
		re, err := compileTerm(term)
		if err != nil {
			return nil, fmt.Errorf("extra internal term %q: %w", term, err)
		}
		clone.internalTerms = append(clone.internalTerms, TermRule{Term: term, Re: re})
	}
	return clone, nil
}

// MatchInternalTerms returns the internal-vocabulary terms present in text.
func (s *PatternSet) MatchInternalTerms(text string) []string {
	var matched []string
	for _, rule := range s.internalTerms {
		if rule.Re.MatchString(text) {
			matched = append(matched, rule.Term)
		}
	}
	return matched
}

// PhoneMatch locates a phone-shaped substring in scanned text.
type PhoneMatch struct {
	Rule  string
	Start int
	End   int
}

// FindPhones returns all non-overlapping phone-shaped substrings in text.
// Matches from later rules that overlap an earlier match are dropped so the
// masker never double-processes a span.
func (s *PatternSet) FindPhones(text string) []PhoneMatch {
	var matches []PhoneMatch
	for _, rule := range s.phoneRules {
		for _, loc := range rule.Re.FindAllStringIndex(text, -1) {
			if overlapsAny(matches, loc[0], loc[1]) {
				continue
			}
			matches = append(matches, PhoneMatch{Rule: rule.Name, Start: loc[0], End: loc[1]})
		}
	}
	return matches
}

// MatchesPolicyAllowance reports whether text matches benign policy-style
// phrasing (durations, warranty terms) that excuses an internal-term hit.
func (s *PatternSet) MatchesPolicyAllowance(text string) bool {
	for _, rule := range s.policyAllowance {
		if rule.Re.MatchString(text) {
			return true
		}
	}
	return false
}

// ContainsNotFoundPhrase reports whether text contains a known
// "no record found" phrasing (case-insensitive substring match).
func (s *PatternSet) ContainsNotFoundPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range s.notFoundPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func overlapsAny(matches []PhoneMatch, start, end int) bool {
	for _, m := range matches {
		if start < m.End && end > m.Start {
			return true
		}
	}
	return false
}

// compileTerm builds a case-insensitive word-boundary matcher for a literal
// term. Multi-word terms collapse whitespace so "system  prompt" still hits.
func compileTerm(term string) (*regexp.Regexp, error) {
	parts := strings.Fields(strings.TrimSpace(term))
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty term")
	}
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile(`(?i)\b` + strings.Join(quoted, `\s+`) + `\b`)
}
