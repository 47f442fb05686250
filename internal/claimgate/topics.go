// Package claimgate blocks unsupported factual assertions: the assistant may
// only state order, debt, ticket or stock facts when a qualifying tool ran
// this turn, and a tool's "no record found" outcome forces a clarification
// question instead of silent continuation. Both gates are stateless pure
// functions over caller-supplied turn data.
package claimgate

import (
	"regexp"
	"strings"
)

// Topic is a lookup-shaped conversation subject covered by the claim gates.
type Topic string

const (
	TopicNone        Topic = ""
	TopicOrderStatus Topic = "order_status"
	TopicDebt        Topic = "debt_inquiry"
	TopicTicket      Topic = "ticket_status"
	TopicProduct     Topic = "product_info"
)

// topicSpec binds a topic to its dialogue signals, its qualifying tools and
// the fields a clarification must ask for.
type topicSpec struct {
	topic         Topic
	intents       []string
	flows         []string
	textPattern   *regexp.Regexp
	tools         []string
	missingFields []string
}

// topicSpecs is evaluated in a single fixed priority order: declared
// intent/flow signals across all topics first, free-text fallback second,
// and within each tier topics are checked in this slice order. The order is
// part of the contract — topic detection is deterministic regardless of how
// many signals are present.
var topicSpecs = []topicSpec{
	{
		topic:   TopicOrderStatus,
		intents: []string{"order_status", "order_tracking", "where_is_my_order"},
		flows:   []string{"order_status_flow", "order_tracking_flow"},
		textPattern: regexp.MustCompile(
			`(?i)(where\s+is\s+my\s+order|order\s+status|track(ing)?\s+(my\s+)?(order|package|shipment)|has\s+my\s+order\s+shipped|kargom|kargo\s+nerede|siparişim)`),
		tools:         []string{"order_lookup", "order_status_lookup", "customer_data_lookup"},
		missingFields: []string{"order_number"},
	},
	{
		topic:   TopicDebt,
		intents: []string{"debt_inquiry", "balance_inquiry"},
		flows:   []string{"debt_inquiry_flow"},
		textPattern: regexp.MustCompile(
			`(?i)(how\s+much\s+do\s+i\s+owe|outstanding\s+(balance|debt)|my\s+debt|my\s+balance|borcum|borç\s+sorgula)`),
		tools:         []string{"debt_lookup", "customer_data_lookup"},
		missingFields: []string{"tax_number", "phone"},
	},
	{
		topic:   TopicTicket,
		intents: []string{"ticket_status", "support_status"},
		flows:   []string{"ticket_status_flow"},
		textPattern: regexp.MustCompile(
			`(?i)(my\s+ticket|support\s+(request|ticket)|service\s+request|repair\s+status|arıza\s+kaydı|destek\s+talebim|talebim\s+ne\s+durumda)`),
		tools:         []string{"ticket_lookup", "ticket_status_lookup"},
		missingFields: []string{"ticket_number"},
	},
	{
		topic:   TopicProduct,
		intents: []string{"product_info", "stock_inquiry", "price_inquiry"},
		flows:   []string{"product_info_flow"},
		textPattern: regexp.MustCompile(
			`(?i)(in\s+stock|do\s+you\s+have|how\s+much\s+is|price\s+of|stokta\s+var|fiyatı\s+ne)`),
		tools:         []string{"product_lookup", "stock_check", "stock_lookup"},
		missingFields: []string{"product_name"},
	},
}

// detectTopic classifies the turn into a topic, intent/flow signals first,
// text fallback second.
func detectTopic(userMessage, intent, activeFlow string) *topicSpec {
	intent = strings.ToLower(strings.TrimSpace(intent))
	activeFlow = strings.ToLower(strings.TrimSpace(activeFlow))

	for i := range topicSpecs {
		spec := &topicSpecs[i]
		if containsFold(spec.intents, intent) || containsFold(spec.flows, activeFlow) {
			return spec
		}
	}
	for i := range topicSpecs {
		spec := &topicSpecs[i]
		if spec.textPattern.MatchString(userMessage) {
			return spec
		}
	}
	return nil
}

// specForTool returns the topic spec owning a qualifying tool name.
func specForTool(tool string) *topicSpec {
	tool = strings.ToLower(strings.TrimSpace(tool))
	for i := range topicSpecs {
		if containsFold(topicSpecs[i].tools, tool) {
			return &topicSpecs[i]
		}
	}
	return nil
}

func containsFold(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
