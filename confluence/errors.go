package confluence

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is a stable, machine-readable error classification. Kinds are
// part of the proxy's public API: clients use them to drive retry logic,
// so the strings must never change.
type ErrorKind string

const (
	// KindValidation — malformed page ID or filename; the request can
	// never succeed as written.
	KindValidation ErrorKind = "ValidationError"
	// KindUpstreamNotFound — Confluence returned 404 for the resource.
	KindUpstreamNotFound ErrorKind = "UpstreamNotFound"
	// KindUpstreamAuth — Confluence rejected the proxy's credential
	// (401/403). Details are redacted before reaching clients.
	KindUpstreamAuth ErrorKind = "UpstreamAuthError"
	// KindUpstreamTransient — timeout or connection failure; retryable.
	KindUpstreamTransient ErrorKind = "UpstreamTransient"
	// KindUpstream — any other non-2xx upstream status.
	KindUpstream ErrorKind = "UpstreamError"
	// KindInternal — unexpected failure inside the proxy.
	KindInternal ErrorKind = "InternalError"
)

// Error is the typed error returned by the resolver and the upstream
// client. Status holds the upstream HTTP status when one was received.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewValidationError builds a KindValidation error.
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// errFromStatus classifies a non-2xx upstream response.
func errFromStatus(status int, url string) *Error {
	switch {
	case status == http.StatusNotFound:
		return &Error{Kind: KindUpstreamNotFound, Status: status, Message: "resource not found upstream"}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindUpstreamAuth, Status: status, Message: "upstream rejected proxy credentials"}
	default:
		return &Error{Kind: KindUpstream, Status: status, Message: fmt.Sprintf("upstream returned status %d for %s", status, url)}
	}
}

// KindOf extracts the ErrorKind from any error in err's chain. Errors
// that carry no kind classify as KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
