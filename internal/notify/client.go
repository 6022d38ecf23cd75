// Package notify forwards risk events and write audits to the PaaS log
// endpoint. Delivery is best effort everywhere it is used.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	loginPath = "/api/v1/auth/login"
	logsPath  = "/api/v1/logs"

	// A session this close to expiry is renewed before use.
	renewBefore = 2 * time.Minute
)

var errUnauthorized = errors.New("notify: session rejected")

// Client holds one API-key session against the log endpoint.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client

	mu      sync.Mutex
	session session
}

type session struct {
	token     string
	expiresAt time.Time
}

func (s session) usable(now time.Time) bool {
	if s.token == "" {
		return false
	}
	return s.expiresAt.IsZero() || s.expiresAt.Sub(now) > renewBefore
}

// entry is one record in the endpoint's log stream.
type entry struct {
	Agent    string         `json:"agent"`
	Action   string         `json:"action"`
	Level    string         `json:"level"`
	Details  map[string]any `json:"details"`
	Metadata map[string]any `json:"metadata"`
}

// Enabled reports whether both the endpoint and the key are configured.
func (c *Client) Enabled() bool {
	return c != nil && c.base() != "" && strings.TrimSpace(c.APIKey) != ""
}

// Login exchanges the API key for a session. Response bodies are never put
// into errors because they may echo the key.
func (c *Client) Login(ctx context.Context) error {
	if !c.Enabled() {
		return errors.New("notify: base url or api key not configured")
	}
	var out struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	status, _, err := c.post(ctx, loginPath, "", map[string]string{"api_key": strings.TrimSpace(c.APIKey)}, &out)
	if err != nil {
		return fmt.Errorf("notify: login: %w", err)
	}
	if status/100 != 2 {
		return fmt.Errorf("notify: login http %d", status)
	}
	token := strings.TrimSpace(out.Token)
	if token == "" {
		return errors.New("notify: login returned no token")
	}
	exp, _ := time.Parse(time.RFC3339, strings.TrimSpace(out.ExpiresAt))

	c.mu.Lock()
	c.session = session{token: token, expiresAt: exp}
	c.mu.Unlock()
	return nil
}

// send posts one entry. A rejected session is renewed and the post retried
// once.
func (c *Client) send(ctx context.Context, e entry) error {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	err := c.sendOnce(ctx, e)
	if errors.Is(err, errUnauthorized) {
		c.mu.Lock()
		c.session = session{}
		c.mu.Unlock()
		err = c.sendOnce(ctx, e)
	}
	return err
}

func (c *Client) sendOnce(ctx context.Context, e entry) error {
	token, err := c.bearer(ctx)
	if err != nil {
		return err
	}
	status, body, err := c.post(ctx, logsPath, token, e, nil)
	if err != nil {
		return fmt.Errorf("notify: post %s: %w", e.Action, err)
	}
	switch {
	case status == http.StatusUnauthorized:
		return errUnauthorized
	case status/100 != 2:
		return fmt.Errorf("notify: post %s http %d: %s", e.Action, status, strings.TrimSpace(string(body)))
	}
	return nil
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s.usable(time.Now()) {
		return s.token, nil
	}
	if err := c.Login(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.token, nil
}

// post sends a JSON body and decodes a 2xx reply into out when given. The
// raw body comes back for error reporting.
func (c *Client) post(ctx context.Context, path, token string, in, out any) (int, []byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if out != nil && resp.StatusCode/100 == 2 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, body, fmt.Errorf("decode reply: %w", err)
		}
	}
	return resp.StatusCode, body, nil
}

func (c *Client) base() string {
	return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}
