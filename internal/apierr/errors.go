package apierr

import (
	"errors"
	"fmt"
)

// Default messages used when the gateway omits them
const (
	DefaultAPIMessage   = "The payment api returned an error!"
	NullResponseMessage = "The Request returned a null response!"
)

// UsageError reports a violated local precondition. It is never retried.
type UsageError struct {
	Op  string
	Msg string
}

func (e *UsageError) Error() string {
	if e.Op == "" {
		return e.Msg
	}
	return e.Op + ": " + e.Msg
}

// Usage builds a UsageError for the given operation
func Usage(op, format string, args ...interface{}) error {
	return &UsageError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// APIError is a rejection returned by the remote gateway.
type APIError struct {
	Code            string
	Symbol          Symbol
	MerchantMessage string
	CustomerMessage string
	StatusCode      int
}

func (e *APIError) Error() string {
	return e.MerchantMessage
}

// TransportError wraps failures that carry no information about remote state:
// network errors, open circuits, empty or malformed responses.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AsAPIError returns the APIError in err's chain, if any
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsUsage reports whether err is a UsageError
func IsUsage(err error) bool {
	var usageErr *UsageError
	return errors.As(err, &usageErr)
}

// IsTransport reports whether err is a TransportError
func IsTransport(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// HasSymbol reports whether err is an APIError carrying one of the given symbols.
func HasSymbol(err error, symbols ...Symbol) bool {
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Symbol == "" {
		return false
	}
	for _, s := range symbols {
		if apiErr.Symbol == s {
			return true
		}
	}
	return false
}
