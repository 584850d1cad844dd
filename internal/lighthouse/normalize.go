package lighthouse

// Keys the provider uses for the audit result in its various response shapes.
const (
	keyLighthouseResult = "lighthouse_result"
	keyAnalysisResult   = "analysis_result"
	keyCategories       = "categories"
	keyAudits           = "audits"
	keyItems            = "items"
)

// Shape is the closed set of raw result layouts the provider returns.
type Shape int

const (
	// ShapeDirect already carries lighthouse_result (or a canonical
	// analysis_result).
	ShapeDirect Shape = iota
	// ShapeCategoriesAudits is a bare Lighthouse report.
	ShapeCategoriesAudits
	// ShapeItemsWrapped nests one of the above in items[0].
	ShapeItemsWrapped
	// ShapeUnknown is anything else.
	ShapeUnknown
)

func (s Shape) String() string {
	switch s {
	case ShapeDirect:
		return "direct"
	case ShapeCategoriesAudits:
		return "categories_audits"
	case ShapeItemsWrapped:
		return "items_wrapped"
	default:
		return "unknown"
	}
}

// Payload is the canonical nesting handed to callers.
type Payload struct {
	AnalysisResult map[string]any `json:"analysis_result"`
}

// Classify returns the first shape, in precedence order, that raw matches.
func Classify(raw map[string]any) Shape {
	switch {
	case isDirect(raw):
		return ShapeDirect
	case hasCategoriesAudits(raw):
		return ShapeCategoriesAudits
	}
	if item := firstItem(raw); item != nil && (isDirect(item) || hasCategoriesAudits(item)) {
		return ShapeItemsWrapped
	}
	return ShapeUnknown
}

// Normalize coerces a raw provider result into the canonical payload. It
// never fails: unrecognized input is wrapped as-is.
func Normalize(raw map[string]any) Payload {
	if raw == nil {
		raw = map[string]any{}
	}

	switch Classify(raw) {
	case ShapeDirect:
		return normalizeDirect(raw)
	case ShapeCategoriesAudits:
		return wrap(raw)
	case ShapeItemsWrapped:
		item := firstItem(raw)
		if isDirect(item) {
			return normalizeDirect(item)
		}
		return wrap(item)
	default:
		return wrap(raw)
	}
}

func normalizeDirect(raw map[string]any) Payload {
	if v, ok := raw[keyLighthouseResult]; ok && v != nil {
		return Payload{AnalysisResult: raw}
	}
	if canonical, ok := raw[keyAnalysisResult].(map[string]any); ok {
		return Payload{AnalysisResult: canonical}
	}
	return Payload{AnalysisResult: raw}
}

func wrap(raw map[string]any) Payload {
	return Payload{AnalysisResult: map[string]any{keyLighthouseResult: raw}}
}

func isDirect(raw map[string]any) bool {
	if raw == nil {
		return false
	}
	if v, ok := raw[keyLighthouseResult]; ok && v != nil {
		return true
	}
	_, ok := raw[keyAnalysisResult].(map[string]any)
	return ok
}

func hasCategoriesAudits(raw map[string]any) bool {
	if raw == nil {
		return false
	}
	return raw[keyCategories] != nil && raw[keyAudits] != nil
}

func firstItem(raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}
	items, ok := raw[keyItems].([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	item, _ := items[0].(map[string]any)
	return item
}
