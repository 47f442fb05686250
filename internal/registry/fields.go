package registry

import "strings"

// DataClass is the sensitivity tier assigned to a named data field.
type DataClass int

const (
	// ClassPublic fields are safe for any caller in any state.
	ClassPublic DataClass = iota + 1
	// ClassAccountVerified fields require a verified session whose identity
	// owns the record being discussed.
	ClassAccountVerified
	// ClassNeverExpose fields never reach a human, verified or not.
	ClassNeverExpose
)

// String returns the lowercase class name used in policies and telemetry.
func (c DataClass) String() string {
	switch c {
	case ClassPublic:
		return "public"
	case ClassAccountVerified:
		return "account_verified"
	case ClassNeverExpose:
		return "never_expose"
	default:
		return "unspecified"
	}
}

// ParseDataClass maps a policy string to a DataClass.
// Unknown strings resolve to ClassAccountVerified, the fail-closed default.
func ParseDataClass(s string) DataClass {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public":
		return ClassPublic
	case "account_verified":
		return ClassAccountVerified
	case "never_expose":
		return ClassNeverExpose
	default:
		return ClassAccountVerified
	}
}

// defaultFieldClasses is the built-in field -> class table.
// Keys are canonical lower_snake field names as produced by the extractors.
var defaultFieldClasses = map[string]DataClass{
	// Public product / policy facts
	"product_name":      ClassPublic,
	"product_price":     ClassPublic,
	"product_category":  ClassPublic,
	"stock_status":      ClassPublic,
	"stock_quantity":    ClassPublic,
	"store_hours":       ClassPublic,
	"store_address":     ClassPublic,
	"return_policy":     ClassPublic,
	"warranty_duration": ClassPublic,
	"company_name":      ClassPublic,
	"currency":          ClassPublic,

	// Account-bound records: only for the verified owner
	"order_number":     ClassAccountVerified,
	"order_status":     ClassAccountVerified,
	"order_date":       ClassAccountVerified,
	"order_total":      ClassAccountVerified,
	"tracking_number":  ClassAccountVerified,
	"carrier":          ClassAccountVerified,
	"delivery_address": ClassAccountVerified,
	"delivery_date":    ClassAccountVerified,
	"ticket_number":    ClassAccountVerified,
	"ticket_status":    ClassAccountVerified,
	"ticket_subject":   ClassAccountVerified,
	"debt_amount":      ClassAccountVerified,
	"due_date":         ClassAccountVerified,
	"invoice_number":   ClassAccountVerified,
	"invoice_total":    ClassAccountVerified,
	"customer_name":    ClassAccountVerified,
	"customer_id":      ClassAccountVerified,
	"phone":            ClassAccountVerified,
	"email":            ClassAccountVerified,
	"tax_number":       ClassAccountVerified,

	// Internal-only: no verification level unlocks these
	"system_prompt":      ClassNeverExpose,
	"api_key":            ClassNeverExpose,
	"access_token":       ClassNeverExpose,
	"internal_notes":     ClassNeverExpose,
	"agent_instructions": ClassNeverExpose,
	"tool_schema":        ClassNeverExpose,
	"customer_list":      ClassNeverExpose,
	"credit_card_number": ClassNeverExpose,
	"password_hash":      ClassNeverExpose,
	"database_dsn":       ClassNeverExpose,
	"webhook_secret":     ClassNeverExpose,
}

// FieldRegistry maps field names to their sensitivity class. Built once at
// startup and read-only afterwards, so it is safe to share across goroutines.
type FieldRegistry struct {
	classes map[string]DataClass
}

// NewFieldRegistry returns a registry with the built-in classification table.
func NewFieldRegistry() *FieldRegistry {
	return NewFieldRegistryWith(nil)
}

// NewFieldRegistryWith returns a registry with the built-in table plus
// per-tenant overrides applied on top. The override map is copied; the
// registry never aliases caller-owned state.
func NewFieldRegistryWith(overrides map[string]DataClass) *FieldRegistry {
	classes := make(map[string]DataClass, len(defaultFieldClasses)+len(overrides))
	for name, class := range defaultFieldClasses {
		classes[name] = class
	}
	for name, class := range overrides {
		classes[CanonicalFieldName(name)] = class
	}
	return &FieldRegistry{classes: classes}
}

// Classify returns the data class for a field name.
// Unknown fields classify as ClassAccountVerified: an unrecognized field is
// treated as account data, never as public.
func (r *FieldRegistry) Classify(field string) DataClass {
	if class, ok := r.classes[CanonicalFieldName(field)]; ok {
		return class
	}
	return ClassAccountVerified
}

// CanonicalFieldName normalizes a field name to lower_snake form so that
// "orderStatus", "Order_Status" and "order_status" classify identically.
func CanonicalFieldName(field string) string {
	field = strings.TrimSpace(field)
	var b strings.Builder
	b.Grow(len(field) + 4)
	var prevLower bool
	for _, r := range field {
		switch {
		case r >= 'A' && r <= 'Z':
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			prevLower = false
		case r == ' ' || r == '-' || r == '.':
			b.WriteByte('_')
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = r >= 'a' && r <= 'z' || r >= '0' && r <= '9'
		}
	}
	return b.String()
}
