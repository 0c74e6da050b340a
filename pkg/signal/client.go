// Package signal talks to the capture proxy's control endpoints: marking a
// user action, querying recent activity and rotating the capture session.
package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devicelab-dev/tagscout/pkg/core"
	"github.com/devicelab-dev/tagscout/pkg/traffic"
)

// DefaultTimeout bounds every side-channel call.
const DefaultTimeout = 1500 * time.Millisecond

// Activity is the capture proxy's view of recent traffic, in unix ms.
type Activity struct {
	Now          int64 `json:"now"`
	LastRequest  int64 `json:"last_request_ts"`
	LastBusiness int64 `json:"last_business_ts"`
}

// Client handles HTTP communication with the capture proxy.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the proxy at baseURL. A non-positive
// timeout selects DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// MarkAction tells the proxy a user action just happened.
func (c *Client) MarkAction(ctx context.Context) error {
	return c.request(ctx, http.MethodPost, "/mark_action", nil)
}

// Activity returns the latest request timestamps seen by the proxy.
func (c *Client) Activity(ctx context.Context) (Activity, error) {
	var a Activity
	err := c.request(ctx, http.MethodGet, "/activity", &a)
	return a, err
}

// StartSession rotates the proxy to a new log file and returns its descriptor.
func (c *Client) StartSession(ctx context.Context) (traffic.SessionDescriptor, error) {
	var d traffic.SessionDescriptor
	err := c.request(ctx, http.MethodPost, "/start_session", &d)
	return d, err
}

// WaitIdle polls Activity until no request has arrived for idle, max
// elapses, or ctx is done. It reports whether idle was observed; a failed
// poll counts as no signal.
func (c *Client) WaitIdle(ctx context.Context, idle, max time.Duration) bool {
	deadline := time.Now().Add(max)
	poll := idle / 5
	if poll < 50*time.Millisecond {
		poll = 50 * time.Millisecond
	}

	for {
		a, err := c.Activity(ctx)
		if err != nil {
			return false
		}
		if a.LastRequest == 0 || a.Now-a.LastRequest >= idle.Milliseconds() {
			return true
		}
		if time.Now().Add(poll).After(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(poll):
		}
	}
}

func (c *Client) request(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return core.ErrSignalUnavailable.WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.ErrSignalUnavailable.WithCause(err)
	}
	if resp.StatusCode >= 300 {
		return core.ErrSignalUnavailable.WithCause(fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode))
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
