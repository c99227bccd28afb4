package utils

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/leofalp/mammochat/providers/observability"
)

// maxSSELineSize is the longest single SSE line accepted (1 MB). Longer lines
// surface from Next as a wrapped bufio.ErrTooLong.
const maxSSELineSize = 1 * 1024 * 1024

// DoPostStream POSTs body as JSON and returns the response with its body left
// open for SSE reading. The caller closes the body. Non-2xx answers are read,
// closed, and returned as *StatusError.
func DoPostStream(ctx context.Context, client *http.Client, url string, apiKey string, body any, headers ...HeaderOption) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling body: %w", err)
	}

	res, err := send(ctx, client, http.MethodPost, url, apiKey, jsonBody, "text/event-stream", headers)
	if err != nil {
		return res, err
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer CloseWithLog(res.Body)
		errorBody, readErr := io.ReadAll(io.LimitReader(res.Body, maxResponseBodySize))
		if readErr != nil {
			return res, &StatusError{StatusCode: res.StatusCode, Body: "failed to read body: " + readErr.Error()}
		}
		return res, &StatusError{StatusCode: res.StatusCode, Body: string(errorBody)}
	}

	observability.AddSpanEvent(ctx, observability.EventHTTPStreamStarted,
		observability.Int(observability.AttrHTTPStatusCode, res.StatusCode),
	)
	return res, nil
}

// SSEScanner reads Server-Sent Events from an io.Reader. Consecutive data
// lines are joined with newlines; comments and non-data fields are skipped.
type SSEScanner struct {
	scanner *bufio.Scanner
}

func NewSSEScanner(reader io.Reader) *SSEScanner {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &SSEScanner{scanner: scanner}
}

// Next returns the next event payload. It returns io.EOF at the end of input
// and on the [DONE] sentinel.
func (s *SSEScanner) Next() (string, error) {
	var dataLines []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if len(dataLines) > 0 {
				return strings.Join(dataLines, "\n"), nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		if data, ok := strings.CutPrefix(line, "data:"); ok {
			data = strings.TrimSpace(data)
			if data == "[DONE]" {
				return "", io.EOF
			}
			dataLines = append(dataLines, data)
		}
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("SSE scanner error: %w", err)
	}

	if len(dataLines) > 0 {
		return strings.Join(dataLines, "\n"), nil
	}
	return "", io.EOF
}
