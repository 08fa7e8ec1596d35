package provider

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// ErrorCategory classifies cloud-API failures so callers can decide
// between local retry, chunking, and giving up.
type ErrorCategory int

const (
	// CategoryOther everything not otherwise classified; not retried locally.
	CategoryOther ErrorCategory = iota
	// CategoryConnection timeout, refused, reset, DNS failure, or a
	// transport error with no HTTP status; retried with backoff.
	CategoryConnection
	// CategoryAuth invalid or missing credentials.
	CategoryAuth
	// CategoryRateLimit provider throttling.
	CategoryRateLimit
	// CategoryPayloadTooLarge input over the provider's size ceiling;
	// triggers the chunking path.
	CategoryPayloadTooLarge
)

// APIError is a classified cloud-API failure.
type APIError struct {
	Category ErrorCategory
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider API error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("provider API error: %s", e.Message)
}

// CategoryOf extracts the category; unclassified errors are
// CategoryOther.
func CategoryOf(err error) ErrorCategory {
	var api *APIError
	if errors.As(err, &api) {
		return api.Category
	}
	return CategoryOther
}

// classifyTransportError wraps an error returned by http.Client.Do,
// which by definition carries no HTTP status: connection-class failure.
func classifyTransportError(err error) *APIError {
	return &APIError{Category: CategoryConnection, Message: err.Error()}
}

// classifyStatus maps an HTTP status to an error category.
func classifyStatus(status int, body string) *APIError {
	cat := CategoryOther
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		cat = CategoryAuth
	case status == http.StatusTooManyRequests:
		cat = CategoryRateLimit
	case status == http.StatusRequestEntityTooLarge:
		cat = CategoryPayloadTooLarge
	}
	return &APIError{Category: cat, Status: status, Message: body}
}

// isConnectionError reports whether err looks like a network-level
// failure worth a local retry.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if CategoryOf(err) == CategoryConnection {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
