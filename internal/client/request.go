package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sodular/sodular-go/internal/middleware"
)

// maxResponseBody caps JSON response bodies.
const maxResponseBody = 8 << 20

// ErrBodyTooLarge is returned when a JSON response exceeds maxResponseBody.
var ErrBodyTooLarge = errors.New("response body too large")

// newRequest builds a request for path relative to the base URL.
// The client's database scope is added unless params already carry one.
func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL.JoinPath(path)

	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if c.databaseID != "" && q.Get("database_id") == "" {
		q.Set("database_id", c.databaseID)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

// call sends a JSON request and decodes the envelope's data into out (when non-nil).
func (c *Client) call(ctx context.Context, method, path string, params url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := c.newRequest(ctx, method, path, params, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(c.api, req, out)
}

// send executes req and decodes its envelope.
func (c *Client) send(hc *http.Client, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := readLimited(resp.Body, maxResponseBody)
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", req.Method, req.URL.Path, err)
	}
	return decodeEnvelope(resp, data, out)
}

type rawEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error json.RawMessage `json:"error"`
}

// decodeEnvelope turns a {error?, data?} body into out or an *APIError.
func decodeEnvelope(resp *http.Response, data []byte, out any) error {
	var env rawEnvelope
	jsonErr := json.Unmarshal(data, &env)

	msg := errorMessage(env.Error)
	if resp.StatusCode >= http.StatusBadRequest || msg != "" {
		if jsonErr != nil {
			msg = strings.TrimSpace(string(data))
			if len(msg) > 200 {
				msg = msg[:200]
			}
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    msg,
			RequestID:  requestID(resp),
		}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if jsonErr != nil {
		return fmt.Errorf("decode response: %w", jsonErr)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// errorMessage accepts both "error": "text" and "error": {"message": "text"}.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

func requestID(resp *http.Response) string {
	if id := resp.Header.Get(middleware.RequestIDHeader); id != "" {
		return id
	}
	if resp.Request != nil {
		return resp.Request.Header.Get(middleware.RequestIDHeader)
	}
	return ""
}

// readLimited reads at most limit bytes from body.
func readLimited(body io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, ErrBodyTooLarge
	}
	return b, nil
}
