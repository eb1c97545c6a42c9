package sinvoice

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		expected string
	}{
		{KindConfiguration, "ConfigurationError"},
		{KindValidation, "ValidationError"},
		{KindAuthentication, "AuthenticationError"},
		{KindPreviewDraftInvoice, "PreviewDraftInvoiceError"},
		{KindCreateInvoice, "CreateInvoiceError"},
		{KindGetInvoice, "GetInvoiceError"},
		{KindGetInvoices, "GetInvoicesError"},
		{KindGetInvoiceFile, "GetInvoiceFileError"},
		{KindGetTemplates, "GetTemplatesError"},
		{KindUnknown, "UnknownError"},
		{ErrorKind(99), "UnknownError"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.String())
		})
	}
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindCreateInvoice, Message: "failed", Cause: cause})

	assert.True(t, errors.Is(err, ErrCreateInvoice))
	assert.False(t, errors.Is(err, ErrGetInvoice))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "wrapped: sinvoice: CreateInvoiceError: failed", err.Error())
	assert.Equal(t, "sinvoice: ValidationError", ErrValidation.Error())
}

func TestTransportError(t *testing.T) {
	t.Run("Error message", func(t *testing.T) {
		err := &TransportError{Method: "POST", URL: "https://x/y", StatusCode: 404, Body: []byte("nope")}
		assert.Equal(t, "POST https://x/y: status 404: nope", err.Error())
		assert.True(t, err.IsNotFound())
		assert.False(t, err.IsUnauthorized())
	})

	t.Run("IsUnauthorized", func(t *testing.T) {
		tests := []struct {
			code     int
			expected bool
		}{
			{http.StatusUnauthorized, true},
			{http.StatusForbidden, true},
			{http.StatusNotFound, false},
			{http.StatusInternalServerError, false},
		}

		for _, tt := range tests {
			err := &TransportError{StatusCode: tt.code}
			assert.Equal(t, tt.expected, err.IsUnauthorized())
		}
	})

	t.Run("no status no cause", func(t *testing.T) {
		err := &TransportError{Method: "POST", URL: "https://x"}
		assert.Equal(t, "POST https://x: unexpected error", err.Error())
		assert.Nil(t, err.Unwrap())
	})
}

func TestTranslate(t *testing.T) {
	netErr := errors.New("connection refused")

	tests := []struct {
		name    string
		err     error
		message string
	}{
		{
			name:    "remote body wins",
			err:     &TransportError{StatusCode: 500, Body: []byte(`{ "message" : "Error creating invoice" }`), Err: netErr},
			message: `Response error: {"message":"Error creating invoice"}`,
		},
		{
			name:    "undecodable body falls back to transport message",
			err:     &TransportError{StatusCode: 502, Body: []byte("<html>")},
			message: "Request error: unexpected status code 502",
		},
		{
			name:    "transport failure",
			err:     &TransportError{Err: netErr},
			message: "Request error: connection refused",
		},
		{
			name:    "nothing known",
			err:     &TransportError{},
			message: "Unexpected error",
		},
		{
			name:    "foreign error",
			err:     netErr,
			message: "Unexpected error: connection refused",
		},
		{
			name:    "authentication failure",
			err:     &Error{Kind: KindAuthentication, Message: "Request error: timeout", Cause: netErr},
			message: "Login failed: Request error: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(KindGetInvoices, tt.err)
			require.NotNil(t, got)
			assert.Equal(t, KindGetInvoices, got.Kind)
			assert.Equal(t, tt.message, got.Message)
			assert.Same(t, tt.err, got.Cause)
		})
	}

	assert.Nil(t, translate(KindGetInvoices, nil))
}
