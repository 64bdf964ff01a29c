package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/sells-group/enrich-cli/internal/model"
)

// TransientError marks an error as safe to retry.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// statusCoder is implemented by provider API errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatusCode() int
}

// StatusCode returns the HTTP status carried anywhere in err's chain, or 0.
func StatusCode(err error) int {
	var te *TransientError
	if errors.As(err, &te) && te.StatusCode != 0 {
		return te.StatusCode
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode()
	}
	return 0
}

// IsTransient reports whether err is worth retrying: an explicit
// TransientError, a provider error with a retryable status, or a network
// timeout, reset or DNS failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return IsTransientHTTPStatus(sc.HTTPStatusCode())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
		"unexpected eof",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Classify maps a provider failure that survived retries to an outcome
// category. Refusals tied to the account (401, 402, 403, 429) are
// quota_exceeded, 404 is not_found, and everything else is transient.
func Classify(err error) model.ErrorCategory {
	if err == nil {
		return model.CategoryNone
	}
	switch StatusCode(err) {
	case 401, 402, 403, 429:
		return model.CategoryQuotaExceeded
	case 404:
		return model.CategoryNotFound
	default:
		return model.CategoryTransient
	}
}
