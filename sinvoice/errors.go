package sinvoice

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind identifies which part of the client produced an Error
type ErrorKind int

const (
	// KindUnknown is never produced by the client
	KindUnknown ErrorKind = iota
	// KindConfiguration indicates invalid constructor input
	KindConfiguration
	// KindValidation indicates invalid operation input, rejected before any request
	KindValidation
	// KindAuthentication indicates the login exchange failed
	KindAuthentication
	// KindPreviewDraftInvoice is returned by PreviewDraftInvoice
	KindPreviewDraftInvoice
	// KindCreateInvoice is returned by CreateInvoice
	KindCreateInvoice
	// KindGetInvoice is returned by GetInvoiceByTransactionUUID
	KindGetInvoice
	// KindGetInvoices is returned by GetInvoicesByDateRange
	KindGetInvoices
	// KindGetInvoiceFile is returned by GetInvoiceFile
	KindGetInvoiceFile
	// KindGetTemplates is returned by GetInvoiceTemplates
	KindGetTemplates
)

// String returns the stable name of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindValidation:
		return "ValidationError"
	case KindAuthentication:
		return "AuthenticationError"
	case KindPreviewDraftInvoice:
		return "PreviewDraftInvoiceError"
	case KindCreateInvoice:
		return "CreateInvoiceError"
	case KindGetInvoice:
		return "GetInvoiceError"
	case KindGetInvoices:
		return "GetInvoicesError"
	case KindGetInvoiceFile:
		return "GetInvoiceFileError"
	case KindGetTemplates:
		return "GetTemplatesError"
	default:
		return "UnknownError"
	}
}

// Sentinels for errors.Is. Matching is by kind only.
var (
	ErrConfiguration       = &Error{Kind: KindConfiguration}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrAuthentication      = &Error{Kind: KindAuthentication}
	ErrPreviewDraftInvoice = &Error{Kind: KindPreviewDraftInvoice}
	ErrCreateInvoice       = &Error{Kind: KindCreateInvoice}
	ErrGetInvoice          = &Error{Kind: KindGetInvoice}
	ErrGetInvoices         = &Error{Kind: KindGetInvoices}
	ErrGetInvoiceFile      = &Error{Kind: KindGetInvoiceFile}
	ErrGetTemplates        = &Error{Kind: KindGetTemplates}
)

// Error is the single error type returned by Client operations.
// Cause holds the failure that triggered it and is reachable through errors.Unwrap.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sinvoice: %s", e.Kind)
	}
	return fmt.Sprintf("sinvoice: %s: %s", e.Kind, e.Message)
}

// Unwrap returns the original failure
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// TransportError describes a failed HTTP exchange.
// Body is set when the remote answered, Err when the request or decoding failed.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && len(e.Body) > 0:
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("%s %s: unexpected error", e.Method, e.URL)
	}
}

// Unwrap returns the underlying transport or decode failure
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsUnauthorized checks if the remote rejected the credentials or token
func (e *TransportError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound checks if the remote answered 404
func (e *TransportError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// remoteBody returns the response body in compact form when it is valid JSON
func (e *TransportError) remoteBody() (string, bool) {
	if len(e.Body) == 0 || !json.Valid(e.Body) {
		return "", false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, e.Body); err != nil {
		return "", false
	}
	return buf.String(), true
}

// transportMessage returns the transport-level description of the failure, if any
func (e *TransportError) transportMessage() (string, bool) {
	if e.Err != nil {
		return e.Err.Error(), true
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("unexpected status code %d", e.StatusCode), true
	}
	return "", false
}

func newConfigurationError(message string, cause error) *Error {
	return &Error{Kind: KindConfiguration, Message: message, Cause: cause}
}

func newValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Cause: errors.New(message)}
}

// translate converts err into an *Error of the given kind.
// Message precedence: remote body, then transport message, then a generic text.
func translate(kind ErrorKind, err error) *Error {
	if err == nil {
		return nil
	}

	var authErr *Error
	if errors.As(err, &authErr) && authErr.Kind == KindAuthentication && kind != KindAuthentication {
		return &Error{Kind: kind, Message: "Login failed: " + authErr.Message, Cause: err}
	}

	var te *TransportError
	if errors.As(err, &te) {
		if body, ok := te.remoteBody(); ok {
			return &Error{Kind: kind, Message: "Response error: " + body, Cause: err}
		}
		if msg, ok := te.transportMessage(); ok {
			return &Error{Kind: kind, Message: "Request error: " + msg, Cause: err}
		}
		return &Error{Kind: kind, Message: "Unexpected error", Cause: err}
	}

	return &Error{Kind: kind, Message: "Unexpected error: " + err.Error(), Cause: err}
}
