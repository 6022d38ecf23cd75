package venue

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradegate/internal/config"
)

const defaultHost = "https://clob.polymarket.com"

// Client talks to the order book venue. Reads are public; order placement
// carries L2 API credentials when they are configured.
type Client struct {
	host       string
	orderPath  string
	httpClient *http.Client
	auth       Auth
	now        func() time.Time
}

// Auth holds the venue API credentials. Secret and Passphrase are never
// logged and have no JSON form.
type Auth struct {
	APIKey       string `json:"-"`
	APISecret    string `json:"-"`
	Passphrase   string `json:"-"`
	Address      string `json:"-"`
	SignRequests bool   `json:"-"`
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("venue API error (%d): %s", e.Status, e.Body)
}

// Temporary reports whether the same request may succeed later.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// RejectedError is a well-formed response in which the venue refused the order.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "venue rejected order: " + e.Reason
}

func NewClient(httpClient *http.Client, cfg config.VenueConfig) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	host := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if host == "" {
		host = defaultHost
	}
	return &Client{
		host:       host,
		orderPath:  normalizePath(cfg.OrderPath, "/order"),
		httpClient: httpClient,
		auth: Auth{
			APIKey:       strings.TrimSpace(cfg.APIKey),
			APISecret:    strings.TrimSpace(cfg.APISecret),
			Passphrase:   strings.TrimSpace(cfg.Passphrase),
			SignRequests: cfg.SignRequests,
		},
		now: time.Now,
	}
}

// WithAddress sets the wallet address sent with authenticated requests.
func (c *Client) WithAddress(address string) *Client {
	c.auth.Address = strings.TrimSpace(address)
	return c
}

// GetPrice returns the best price for tokenID on side (BUY or SELL).
func (c *Client) GetPrice(ctx context.Context, tokenID, side string) (decimal.Decimal, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return decimal.Zero, fmt.Errorf("token_id is required")
	}
	query := url.Values{}
	query.Set("token_id", tokenID)
	if side = strings.ToUpper(strings.TrimSpace(side)); side != "" {
		query.Set("side", side)
	}
	body, err := c.do(ctx, http.MethodGet, "/price", query, nil, false)
	if err != nil {
		return decimal.Zero, err
	}
	return parsePrice(body)
}

func (c *Client) GetPriceHistory(ctx context.Context, tokenID, interval string, startTs, endTs *int64) ([]PricePoint, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil, fmt.Errorf("token_id is required")
	}
	query := url.Values{}
	query.Set("market", tokenID)
	if interval != "" {
		query.Set("interval", interval)
	}
	if startTs != nil {
		query.Set("startTs", strconv.FormatInt(*startTs, 10))
	}
	if endTs != nil {
		query.Set("endTs", strconv.FormatInt(*endTs, 10))
	}
	body, err := c.do(ctx, http.MethodGet, "/prices-history", query, nil, false)
	if err != nil {
		return nil, err
	}
	return parsePriceHistory(body)
}

type PlaceOrderRequest struct {
	Order     any    `json:"order"`
	Owner     string `json:"owner,omitempty"`
	OrderType string `json:"orderType,omitempty"`
}

type OrderResult struct {
	OrderID  string   `json:"orderId"`
	Status   string   `json:"status"`
	TxHashes []string `json:"txHashes"`
}

// TxHash is the first settlement transaction, empty when the order rests.
func (r *OrderResult) TxHash() string {
	if r == nil || len(r.TxHashes) == 0 {
		return ""
	}
	return r.TxHashes[0]
}

// PlaceOrder submits a signed order. A response with success=false comes
// back as *RejectedError.
func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error) {
	if req.Order == nil {
		return nil, fmt.Errorf("order is required")
	}
	if req.OrderType == "" {
		req.OrderType = "FOK"
	}
	if req.Owner == "" {
		req.Owner = c.auth.APIKey
	}
	body, err := c.do(ctx, http.MethodPost, c.orderPath, nil, req, true)
	if err != nil {
		return nil, err
	}
	return parseOrderResult(body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, authed bool) ([]byte, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("client is nil")
	}
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	var body io.Reader
	var raw []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		c.authenticate(req, method, path, raw)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

func (c *Client) authenticate(req *http.Request, method, path string, body []byte) {
	if c.auth.APIKey != "" {
		req.Header.Set("POLY_API_KEY", c.auth.APIKey)
	}
	if c.auth.Passphrase != "" {
		req.Header.Set("POLY_PASSPHRASE", c.auth.Passphrase)
	}
	if c.auth.Address != "" {
		req.Header.Set("POLY_ADDRESS", c.auth.Address)
	}
	if !c.auth.SignRequests || c.auth.APISecret == "" {
		return
	}
	ts := strconv.FormatInt(c.now().UTC().Unix(), 10)
	req.Header.Set("POLY_TIMESTAMP", ts)
	req.Header.Set("POLY_SIGNATURE", signRequest(c.auth.APISecret, ts, method, path, body))
}

// signRequest is HMAC-SHA256 over timestamp, method, path and body. The
// secret is url-safe base64; a secret that does not decode is used raw.
func signRequest(secret, ts, method, path string, body []byte) string {
	key, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		key = []byte(secret)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(ts + strings.ToUpper(method) + path))
	mac.Write(body)
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

func normalizePath(path, fallback string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = fallback
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
