package model

// Status is the overall result of one entity.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// ErrorCategory classifies why an entity did not fully succeed.
type ErrorCategory string

const (
	CategoryNone          ErrorCategory = ""
	CategoryTransient     ErrorCategory = "transient"
	CategoryQuotaExceeded ErrorCategory = "quota_exceeded"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryNoResults     ErrorCategory = "no_results"
	CategoryTemplate      ErrorCategory = "template"
	CategoryExtraction    ErrorCategory = "extraction"
	CategoryNoData        ErrorCategory = "no_data"
	CategoryInternal      ErrorCategory = "internal"
)

// ExtractionOutcome is the per-entity result of the pipeline. A nil entry in
// Fields means the field was requested but not found.
type ExtractionOutcome struct {
	EntityID      int                `json:"entity_id"`
	Entity        string             `json:"entity"`
	Fields        map[string]any     `json:"fields"`
	Confidence    map[string]float64 `json:"confidence"`
	RawResponse   string             `json:"raw_response,omitempty"`
	Status        Status             `json:"status"`
	ErrorCategory ErrorCategory      `json:"error_category,omitempty"`
	Error         string             `json:"error,omitempty"`
	Queries       []string           `json:"queries,omitempty"`
	Sources       []string           `json:"sources,omitempty"`
}

// NewOutcome returns an outcome for rec with every field in names set to
// null and zero confidence.
func NewOutcome(rec EntityRecord, names []string) ExtractionOutcome {
	o := ExtractionOutcome{
		EntityID:   rec.ID,
		Entity:     rec.Value,
		Fields:     make(map[string]any, len(names)),
		Confidence: make(map[string]float64, len(names)),
		Status:     StatusFailed,
	}
	for _, n := range names {
		o.Fields[n] = nil
		o.Confidence[n] = 0
	}
	return o
}

// FailedOutcome records a failure for rec with the category derived from err.
func FailedOutcome(rec EntityRecord, names []string, err error) ExtractionOutcome {
	o := NewOutcome(rec, names)
	o.ErrorCategory = CategoryOf(err)
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// Populated counts the requested fields that carry a non-empty value.
func (o ExtractionOutcome) Populated() int {
	n := 0
	for _, v := range o.Fields {
		if !IsEmptyValue(v) {
			n++
		}
	}
	return n
}

// ResolveStatus sets Status from how many of the requested fields are
// populated: all is ok, some is partial, none is failed.
func (o *ExtractionOutcome) ResolveStatus() {
	populated := o.Populated()
	switch {
	case len(o.Fields) > 0 && populated == len(o.Fields):
		o.Status = StatusOK
	case populated > 0:
		o.Status = StatusPartial
	default:
		o.Status = StatusFailed
		if o.ErrorCategory == CategoryNone {
			o.ErrorCategory = CategoryNoData
			o.Error = "no requested field could be extracted"
		}
	}
}

// IsEmptyValue reports whether an extracted value counts as missing.
func IsEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
