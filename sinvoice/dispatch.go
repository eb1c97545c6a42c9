package sinvoice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-querystring/query"
)

// Encoding selects how a request body is serialized
type Encoding int

const (
	// EncodingJSON sends the body as a JSON document
	EncodingJSON Encoding = iota
	// EncodingForm sends the body as form-url-encoded fields
	EncodingForm
)

// ContentType returns the Content-Type header value for the encoding
func (e Encoding) ContentType() string {
	if e == EncodingForm {
		return "application/x-www-form-urlencoded;charset=UTF-8"
	}
	return "application/json"
}

// String returns a short name for logging
func (e Encoding) String() string {
	if e == EncodingForm {
		return "form"
	}
	return "json"
}

// encodeBody serializes body without modifying it
func encodeBody(body any, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingJSON:
		if raw, ok := body.(json.RawMessage); ok {
			return raw, nil
		}
		return json.Marshal(body)
	case EncodingForm:
		if values, ok := body.(url.Values); ok {
			return []byte(values.Encode()), nil
		}
		values, err := query.Values(body)
		if err != nil {
			return nil, err
		}
		return []byte(values.Encode()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %d", enc)
	}
}

// send performs one POST to path and decodes a successful response into out.
// An empty token sends no Authorization header. Failures are *TransportError.
func (c *Client) send(ctx context.Context, path string, body any, enc Encoding, token string, out any) error {
	requestURL := c.baseURL + path

	payload, err := encodeBody(body, enc)
	if err != nil {
		return &TransportError{
			Method: http.MethodPost,
			URL:    requestURL,
			Err:    fmt.Errorf("failed to encode %s body: %w", enc, err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(payload))
	if err != nil {
		return &TransportError{
			Method: http.MethodPost,
			URL:    requestURL,
			Err:    fmt.Errorf("failed to create request: %w", err),
		}
	}

	req.Header.Set("Content-Type", enc.ContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().
			Err(err).
			Str("path", path).
			Dur("duration", time.Since(start)).
			Msg("S-Invoice request failed")
		return &TransportError{Method: http.MethodPost, URL: requestURL, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{
			Method:     http.MethodPost,
			URL:        requestURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to read response body: %w", err),
		}
	}

	c.logger.Debug().
		Str("path", path).
		Str("encoding", enc.String()).
		Int("status", resp.StatusCode).
		Int("bytes", len(respBody)).
		Dur("duration", time.Since(start)).
		Msg("S-Invoice request completed")

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &TransportError{
			Method:     http.MethodPost,
			URL:        requestURL,
			StatusCode: resp.StatusCode,
			Body:       respBody,
		}
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return &TransportError{
			Method:     http.MethodPost,
			URL:        requestURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("empty response body"),
		}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &TransportError{
			Method:     http.MethodPost,
			URL:        requestURL,
			StatusCode: resp.StatusCode,
			Body:       respBody,
			Err:        fmt.Errorf("failed to decode response: %w", err),
		}
	}

	return nil
}

// escapePath escapes a value templated into a URL path segment
func escapePath(segment string) string {
	return url.PathEscape(segment)
}
