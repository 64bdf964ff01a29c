package model

import (
	"context"
	"errors"
	"fmt"
)

// SourceError reports an unusable input table: a missing file, a missing
// or empty column, or an unreachable spreadsheet.
type SourceError struct {
	Location string
	Reason   string
	Err      error
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("source %s: %s", e.Location, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SourceError) Unwrap() error { return e.Err }

// TemplateError reports a malformed query template or a placeholder with no
// binding.
type TemplateError struct {
	Template    string
	Placeholder string
	Reason      string
}

func (e *TemplateError) Error() string {
	if e.Placeholder != "" {
		return fmt.Sprintf("template %q: %s {%s}", e.Template, e.Reason, e.Placeholder)
	}
	return fmt.Sprintf("template %q: %s", e.Template, e.Reason)
}

// SearchErrorKind classifies a search failure after retries.
type SearchErrorKind string

const (
	SearchTransient     SearchErrorKind = "transient"
	SearchQuotaExceeded SearchErrorKind = "quota_exceeded"
	SearchNotFound      SearchErrorKind = "not_found"
)

// SearchError is returned by the search client once its retry budget is spent.
type SearchError struct {
	Kind  SearchErrorKind
	Query string
	Err   error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %q: %s: %v", e.Query, e.Kind, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// LLMError is a model call that failed after retries. Kind is transient or
// quota_exceeded.
type LLMError struct {
	Kind ErrorCategory
	Err  error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm: %s: %v", e.Kind, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// ExtractionError reports an LLM response that could not be parsed even
// after the reformatting retry.
type ExtractionError struct {
	Reason string
	Raw    string
}

func (e *ExtractionError) Error() string {
	return "extraction: unparseable response: " + e.Reason
}

// ExportErrorKind classifies a failure writing results.
type ExportErrorKind string

const (
	ExportPermissionDenied ExportErrorKind = "permission_denied"
	ExportQuotaExceeded    ExportErrorKind = "quota_exceeded"
	ExportNetwork          ExportErrorKind = "network"
	ExportIO               ExportErrorKind = "io"
)

// ExportError is returned by the result sink.
type ExportError struct {
	Kind        ExportErrorKind
	Destination string
	Err         error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %s: %v", e.Destination, e.Kind, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// CategoryOf maps an error from the per-entity pipeline to the category
// recorded on the failed outcome.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return CategoryNone
	}
	var se *SearchError
	if errors.As(err, &se) {
		return ErrorCategory(se.Kind)
	}
	var le *LLMError
	if errors.As(err, &le) {
		return le.Kind
	}
	var xe *ExtractionError
	if errors.As(err, &xe) {
		return CategoryExtraction
	}
	var te *TemplateError
	if errors.As(err, &te) {
		return CategoryTemplate
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}
	return CategoryInternal
}
