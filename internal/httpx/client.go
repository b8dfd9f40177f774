// Package httpx is the small JSON-over-HTTP client shared by the remote
// provider and vector store adapters.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"repochat/internal/domain"
)

// StatusCodeError carries the HTTP status of a failed request.
type StatusCodeError struct {
	Code int
	Err  error
}

func (e *StatusCodeError) Error() string { return e.Err.Error() }
func (e *StatusCodeError) Unwrap() error { return e.Err }

// IsStatus reports whether err came from a response with the given status.
func IsStatus(err error, code int) bool {
	var se *StatusCodeError
	return errors.As(err, &se) && se.Code == code
}

func statusError(name string, code int, detail string) error {
	return &StatusCodeError{Code: code, Err: domain.StatusError(name, code, detail)}
}

// Client sends JSON requests with retry on 429 and 5xx responses.
type Client struct {
	name       string
	client     *http.Client
	timeout    time.Duration
	header     http.Header
	maxRetries int
}

// New creates a client. name prefixes error messages; header is sent with
// every request. timeout bounds each JSON request and, for streams, the
// wait for response headers.
func New(name string, timeout time.Duration, maxRetries int, header http.Header) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if header == nil {
		header = http.Header{}
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &Client{
		name:       name,
		client:     &http.Client{Transport: transport},
		timeout:    timeout,
		header:     header,
		maxRetries: maxRetries,
	}
}

// PostJSON posts body and decodes the response into out when out is non-nil.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	return c.Do(ctx, http.MethodPost, url, body, out)
}

// PutJSON puts body and decodes the response into out when out is non-nil.
func (c *Client) PutJSON(ctx context.Context, url string, body, out any) error {
	return c.Do(ctx, http.MethodPut, url, body, out)
}

// Do sends one JSON request, retrying transient failures.
func (c *Client) Do(ctx context.Context, method, url string, body, out any) error {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.name, err)
		}
	}

	for n := 0; ; n++ {
		retry, wait, err := c.attempt(ctx, method, url, data, out, n)
		if err == nil || !retry || n >= c.maxRetries {
			return err
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// attempt sends one request bounded by the client timeout. retry marks a
// failure worth another attempt after wait.
func (c *Client) attempt(ctx context.Context, method, url string, data []byte, out any, n int) (retry bool, wait time.Duration, err error) {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.send(actx, method, url, data)
	if err != nil {
		if ctx.Err() != nil {
			return false, 0, ctx.Err()
		}
		return true, retryDelay(n), c.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		detail := readDetail(resp.Body)
		return true, retryAfter(resp.Header.Get("Retry-After"), n), statusError(c.name, resp.StatusCode, detail)
	}
	if resp.StatusCode >= 300 {
		return false, 0, statusError(c.name, resp.StatusCode, readDetail(resp.Body))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, 0, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return false, 0, ctx.Err()
		}
		if actx.Err() != nil {
			return true, retryDelay(n), c.transportError(actx.Err())
		}
		return false, 0, fmt.Errorf("%s: %w: decode response: %w", c.name, domain.ErrProvider, err)
	}
	return false, 0, nil
}

// Stream posts body and returns the response body of a 2xx answer for the
// caller to consume and close. Streams are not retried, and only the wait
// for response headers is bounded by the client timeout; reading the body
// is bounded by ctx alone.
func (c *Client) Stream(ctx context.Context, url string, body any) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", c.name, err)
	}
	resp, err := c.send(ctx, http.MethodPost, url, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, c.transportError(err)
	}
	if resp.StatusCode >= 300 {
		detail := readDetail(resp.Body)
		_ = resp.Body.Close()
		return nil, statusError(c.name, resp.StatusCode, detail)
	}
	return resp.Body, nil
}

// transportError classifies a failure to get a response. A request that
// ran out of time is reported as unreachable, not as a cancellation.
func (c *Client) transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: no response within %s: %w", c.name, domain.ErrProviderUnreachable, c.timeout, err)
	}
	return domain.TransportError(c.name, err)
}

func (c *Client) send(ctx context.Context, method, url string, data []byte) (*http.Response, error) {
	var r io.Reader
	if data != nil {
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.client.Do(req)
}

func readDetail(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

func retryAfter(header string, attempt int) time.Duration {
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return retryDelay(attempt)
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// exponential backoff capped at 5s
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
