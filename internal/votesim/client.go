package votesim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

const sessionHeader = "X-Session-ID"

// errStatus reports a non-2xx response.
type errStatus struct {
	Code int
	Body errorResponse
}

func (e *errStatus) Error() string {
	return fmt.Sprintf("status %d: %s: %s", e.Code, e.Body.Code, e.Body.Message)
}

func retryable(err error) bool {
	var se *errStatus
	return errors.As(err, &se) && (se.Code == http.StatusTooManyRequests || se.Code == http.StatusServiceUnavailable)
}

// client wraps http.Client with the service's JSON conventions.
type client struct {
	http    *http.Client
	baseURL string
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{http: &http.Client{Timeout: timeout}, baseURL: baseURL}
}

// do sends a request and decodes a JSON response into out. The session
// header is sent when non-empty and the echoed value is returned.
func (c *client) do(ctx context.Context, method, path, session string, in, out any) (string, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	echoed := resp.Header.Get(sessionHeader)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &errStatus{Code: resp.StatusCode}
		_ = json.Unmarshal(data, &se.Body)
		return echoed, se
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return echoed, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return echoed, nil
}
