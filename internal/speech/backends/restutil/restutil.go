// Package restutil is the shared HTTP plumbing for the REST speech
// backends: one pooled client, context-bound requests, and typed status
// errors the failover layer can classify for retry decisions.
package restutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var client = &http.Client{Timeout: 30 * time.Second}

// HTTPError is returned for non-2xx responses. The failover layer reads
// the status through HTTPStatus to decide whether a retry is worthwhile.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// HTTPStatus returns the response status code.
func (e *HTTPError) HTTPStatus() int { return e.Status }

// Post sends a POST bound to ctx and returns the response body. Cancelling
// ctx aborts the request and invalidates the returned body. Non-2xx
// responses become an *HTTPError carrying up to 4KB of the response.
func Post(ctx context.Context, url string, headers map[string]string, body io.Reader) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	return resp.Body, nil
}
