// Package api talks to the Node1 device's REST endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elijahnyp/node1_dashboard/state"
)

// StatusError is returned for any non-2xx reply.
type StatusError struct {
	Method string
	Path   string
	Body   string
	Code   int
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: non-2xx code received: %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: non-2xx code received: %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type Client struct {
	http *http.Client
	base string
}

// NewClient talks to the device at base, e.g. http://localhost:5000. A nil
// hc gets a client with a 10 second timeout.
func NewClient(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: hc,
	}
}

func (c *Client) Base() string {
	return c.base
}

type led1Command struct {
	State state.LedBinary `json:"state"`
}

type led2Command struct {
	Level state.LedLevel `json:"level"`
}

// Status fetches {motion, led1, led2}.
func (c *Client) Status(ctx context.Context) (state.Snapshot, error) {
	var snap state.Snapshot
	body, err := c.do(ctx, http.MethodGet, "/api/status", nil)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		return snap, fmt.Errorf("decoding status: %w", err)
	}
	return snap, nil
}

func (c *Client) SetLed1(ctx context.Context, l state.LedBinary) error {
	_, err := c.do(ctx, http.MethodPost, "/api/led1", led1Command{State: l})
	return err
}

func (c *Client) SetLed2(ctx context.Context, l state.LedLevel) error {
	_, err := c.do(ctx, http.MethodPost, "/api/led2", led2Command{Level: l})
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s body: %w", path, err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck // nothing useful to do with it
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", path, err)
	}
	if resp.StatusCode > 299 || resp.StatusCode < 200 {
		return nil, &StatusError{
			Method: method,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}
