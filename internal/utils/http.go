package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/leofalp/mammochat/providers/observability"
)

// maxResponseBodySize caps how much of a response body is read (10 MB).
const maxResponseBodySize int64 = 10 * 1024 * 1024

// HeaderOption sets one extra request header. It is applied after the defaults,
// so it can override Authorization.
type HeaderOption struct {
	Key   string
	Value string
}

// WithHeader builds a HeaderOption.
func WithHeader(key, value string) HeaderOption {
	return HeaderOption{Key: key, Value: value}
}

// StatusError is returned when the server answers with a non-2xx status.
// Body holds at most maxResponseBodySize bytes of the response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-2xx status %d: %s", e.StatusCode, TruncateString(e.Body, DefaultMaxStringLength))
}

// IsAuth reports whether the status is 401 or 403.
func (e *StatusError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// DecodeError is returned when a 2xx body cannot be decoded into the target type.
type DecodeError struct {
	StatusCode int
	Preview    string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("error unmarshaling response body (status %d): %v; preview: %s", e.StatusCode, e.Err, e.Preview)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DoPostSync POSTs body as JSON and decodes a 2xx response into OutputStruct.
// Network failures are returned wrapped, non-2xx answers as *StatusError,
// undecodable bodies as *DecodeError. The response body is always closed.
func DoPostSync[OutputStruct any](ctx context.Context, client *http.Client, url string, apiKey string, body any, headers ...HeaderOption) (*http.Response, *OutputStruct, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("error marshaling body: %w", err)
	}
	return doSync[OutputStruct](ctx, client, http.MethodPost, url, apiKey, jsonBody, headers)
}

// DoGetSync performs a GET and decodes a 2xx response into OutputStruct, with
// the same error contract as DoPostSync.
func DoGetSync[OutputStruct any](ctx context.Context, client *http.Client, url string, apiKey string, headers ...HeaderOption) (*http.Response, *OutputStruct, error) {
	return doSync[OutputStruct](ctx, client, http.MethodGet, url, apiKey, nil, headers)
}

func doSync[OutputStruct any](ctx context.Context, client *http.Client, method, url, apiKey string, jsonBody []byte, headers []HeaderOption) (*http.Response, *OutputStruct, error) {
	res, err := send(ctx, client, method, url, apiKey, jsonBody, "application/json", headers)
	if err != nil {
		return res, nil, err
	}
	defer CloseWithLog(res.Body)

	respBody, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBodySize))
	if err != nil {
		return res, nil, fmt.Errorf("error reading response body: %w", err)
	}

	observability.AddSpanEvent(ctx, observability.EventHTTPResponse,
		observability.Int(observability.AttrHTTPStatusCode, res.StatusCode),
		observability.Int(observability.AttrHTTPResponseBodySize, len(respBody)),
	)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return res, nil, &StatusError{StatusCode: res.StatusCode, Body: string(respBody)}
	}

	var out OutputStruct
	if err := json.Unmarshal(respBody, &out); err != nil {
		return res, nil, &DecodeError{StatusCode: res.StatusCode, Preview: TruncateString(string(respBody), 200), Err: err}
	}
	return res, &out, nil
}

// send builds and executes the request. It returns the raw response without
// touching the body.
func send(ctx context.Context, client *http.Client, method, url, apiKey string, jsonBody []byte, accept string, headers []HeaderOption) (*http.Response, error) {
	httpClient := client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var bodyReader io.Reader
	if jsonBody != nil {
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if jsonBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	for _, header := range headers {
		req.Header.Set(header.Key, header.Value)
	}

	observability.AddSpanEvent(ctx, observability.EventHTTPRequestPrepared,
		observability.String(observability.AttrHTTPMethod, method),
		observability.String(observability.AttrHTTPURL, url),
		observability.Int(observability.AttrHTTPRequestBodySize, len(jsonBody)),
	)

	start := time.Now()
	res, err := httpClient.Do(req)
	if err != nil {
		observability.AddSpanEvent(ctx, observability.EventHTTPRequestError,
			observability.Error(err),
			observability.Duration(observability.AttrHTTPDuration, time.Since(start)),
		)
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	return res, nil
}

// CloseWithLog closes c and logs, rather than returns, a close failure.
func CloseWithLog(c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		slog.Warn("failed to close response body", "error", err.Error())
	}
}
