package sinvoice

import (
	"net/http"
	"time"
)

// DefaultTimeout bounds each HTTP exchange unless overridden
const DefaultTimeout = 30 * time.Second

// Option configures a Client.
type Option func(*clientOptions)

// clientOptions holds configuration options for the Client.
type clientOptions struct {
	timeout    time.Duration
	httpClient *http.Client
	userAgent  string
	tokenCache *TokenCache
}

func defaultOptions() clientOptions {
	return clientOptions{
		timeout:   DefaultTimeout,
		userAgent: "sinvoice-go",
	}
}

// WithTimeout sets the HTTP client timeout.
// It is ignored when WithHTTPClient is also given.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithHTTPClient replaces the HTTP client used for every request.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = client
	}
}

// WithUserAgent sets a custom user agent string.
func WithUserAgent(userAgent string) Option {
	return func(o *clientOptions) {
		if userAgent != "" {
			o.userAgent = userAgent
		}
	}
}

// WithTokenCache lets the client reuse session tokens until they expire.
// Without it every operation logs in again.
func WithTokenCache(cache *TokenCache) Option {
	return func(o *clientOptions) {
		o.tokenCache = cache
	}
}
