// Package extract adapts heterogeneous tool-output shapes into the canonical
// inputs the gateway and identity matcher consume. Two historical shapes are
// in the wild: a wrapped {"output": {...}} envelope and a flat legacy object,
// with the record itself under "truth", "data", or the bare object. All
// ambiguity stops at this boundary.
package extract

import (
	"sort"
	"strconv"
	"strings"

	"github.com/vocalia-ai/secgate/internal/gateway"
	"github.com/vocalia-ai/secgate/internal/registry"
)

// metaKeys are envelope/bookkeeping keys, never disclosable data fields.
var metaKeys = map[string]bool{
	"status":  true,
	"success": true,
	"found":   true,
	"error":   true,
	"message": true,
	"code":    true,
	"output":  true,
	"truth":   true,
	"data":    true,
}

// ownerAliases maps record keys to identity attributes.
var ownerAliases = map[string]string{
	"phone":           "phone",
	"phone_number":    "phone",
	"gsm":             "phone",
	"msisdn":          "phone",
	"mobile":          "phone",
	"email":           "email",
	"email_address":   "email",
	"e_mail":          "email",
	"order_id":        "order_id",
	"order_number":    "order_id",
	"order_no":        "order_id",
	"customer_id":     "customer_id",
	"customer_no":     "customer_id",
	"customer_number": "customer_id",
}

// ToolResult is the normalized view of one tool invocation.
type ToolResult struct {
	Tool     string
	Fields   []string
	Owner    gateway.Identity
	NotFound bool
}

// Normalize adapts one raw tool output into a ToolResult. The pattern set
// supplies the "not found" phrasings scanned in error/message text.
func Normalize(tool string, output map[string]any, set *registry.PatternSet) ToolResult {
	return ToolResult{
		Tool:     tool,
		Fields:   Fields(output),
		Owner:    RecordOwner(output),
		NotFound: IsNotFound(output, set),
	}
}

// Fields derives the canonical list of data fields the tool output would
// disclose: the record's keys in lower_snake form, envelope keys excluded,
// sorted for determinism.
func Fields(output map[string]any) []string {
	record := recordOf(output)
	if record == nil {
		return nil
	}
	fields := make([]string, 0, len(record))
	for key := range record {
		name := registry.CanonicalFieldName(key)
		if name == "" || metaKeys[name] {
			continue
		}
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

// RecordOwner extracts the owner tuple of the record the output describes.
func RecordOwner(output map[string]any) gateway.Identity {
	record := recordOf(output)
	var id gateway.Identity
	for key, value := range record {
		attr, ok := ownerAliases[registry.CanonicalFieldName(key)]
		if !ok {
			continue
		}
		s := stringValue(value)
		if s == "" {
			continue
		}
		switch attr {
		case "phone":
			if id.Phone == "" {
				id.Phone = s
			}
		case "email":
			if id.Email == "" {
				id.Email = s
			}
		case "order_id":
			if id.OrderID == "" {
				id.OrderID = s
			}
		case "customer_id":
			if id.CustomerID == "" {
				id.CustomerID = s
			}
		}
	}
	return id
}

// IsNotFound reports whether the output signals a NOT_FOUND outcome: an
// explicit status code, a negative found flag, or error/message text matching
// a known not-found phrasing. A bare success=false with unrecognized text is
// a tool failure, not a missing record, and does not count.
func IsNotFound(output map[string]any, set *registry.PatternSet) bool {
	if output == nil {
		return false
	}
	envelope := unwrap(output)

	if status, ok := envelope["status"].(string); ok {
		switch strings.ToUpper(strings.TrimSpace(status)) {
		case "NOT_FOUND", "NOTFOUND", "NO_RECORD":
			return true
		}
	}
	if found, ok := envelope["found"].(bool); ok && !found {
		return true
	}

	var text string
	if msg, ok := envelope["message"].(string); ok {
		text += msg + " "
	}
	if errMsg, ok := envelope["error"].(string); ok {
		text += errMsg
	}
	if text != "" && set != nil && set.ContainsNotFoundPhrase(text) {
		return true
	}
	return false
}

// unwrap descends through the wrapped {"output": {...}} envelope, if present.
func unwrap(output map[string]any) map[string]any {
	if inner, ok := output["output"].(map[string]any); ok {
		return inner
	}
	return output
}

// recordOf locates the record payload: under "truth", then "data", then the
// bare (unwrapped) object itself.
func recordOf(output map[string]any) map[string]any {
	if output == nil {
		return nil
	}
	envelope := unwrap(output)
	if truth, ok := envelope["truth"].(map[string]any); ok {
		return truth
	}
	if data, ok := envelope["data"].(map[string]any); ok {
		return data
	}
	return envelope
}

// stringValue renders a scalar record value for identity comparison.
// JSON numbers arrive as float64; integral ones print without a fraction.
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
