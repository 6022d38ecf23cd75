package venue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegate/internal/config"
)

func TestGetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/price", r.URL.Path)
		assert.Equal(t, "123", r.URL.Query().Get("token_id"))
		assert.Equal(t, "BUY", r.URL.Query().Get("side"))
		_, _ = w.Write([]byte(`{"price":"0.52"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), config.VenueConfig{BaseURL: srv.URL})
	p, err := c.GetPrice(context.Background(), "123", "buy")
	require.NoError(t, err)
	assert.Equal(t, "0.52", p.String())

	_, err = c.GetPrice(context.Background(), " ", "BUY")
	assert.Error(t, err)
}

func TestGetPriceHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prices-history", r.URL.Path)
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(`{"history":[{"t":1700000000,"p":0.41},{"t":1700003600,"p":"0.43"},{"bad":true},[1700007200,0.45]]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), config.VenueConfig{BaseURL: srv.URL})
	points, err := c.GetPriceHistory(context.Background(), "123", "1h", nil, nil)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), points[0].TS)
	assert.Equal(t, "0.43", points[1].Price.String())
	assert.Equal(t, "0.45", points[2].Price.String())
}

func TestPlaceOrder_SignsRequest(t *testing.T) {
	type captured struct {
		sig, ts string
		body    []byte
	}
	seen := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("POLY_API_KEY"))
		assert.Equal(t, "pass", r.Header.Get("POLY_PASSPHRASE"))
		assert.Equal(t, "0xabc", r.Header.Get("POLY_ADDRESS"))
		body, _ := io.ReadAll(r.Body)
		seen <- captured{sig: r.Header.Get("POLY_SIGNATURE"), ts: r.Header.Get("POLY_TIMESTAMP"), body: body}
		_, _ = w.Write([]byte(`{"success":true,"orderID":"0xorder","status":"matched","transactionsHashes":["0xtx"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), config.VenueConfig{BaseURL: srv.URL, APIKey: "key-1", APISecret: "c2VjcmV0", Passphrase: "pass", SignRequests: true}).WithAddress("0xabc")
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	res, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{Order: map[string]string{"salt": "1"}})
	require.NoError(t, err)
	assert.Equal(t, "0xorder", res.OrderID)
	assert.Equal(t, "0xtx", res.TxHash())
	got := <-seen
	assert.Equal(t, "1700000000", got.ts)
	assert.Equal(t, signRequest("c2VjcmV0", got.ts, http.MethodPost, "/order", got.body), got.sig)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(got.body, &sent))
	assert.Equal(t, "FOK", sent["orderType"])
	assert.Equal(t, "key-1", sent["owner"])
}

func TestPlaceOrder_Errors(t *testing.T) {
	replies := []struct {
		status int
		body   string
	}{
		{http.StatusOK, `{"success":false,"errorMsg":"not enough balance"}`},
		{http.StatusBadGateway, "upstream"},
		{http.StatusBadRequest, "bad order"},
	}
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply := replies[int(calls.Add(1))-1]
		w.WriteHeader(reply.status)
		_, _ = w.Write([]byte(reply.body))
	}))
	defer srv.Close()
	c := NewClient(srv.Client(), config.VenueConfig{BaseURL: srv.URL})

	_, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{Order: map[string]string{}})
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "not enough balance", rejected.Reason)

	_, err = c.PlaceOrder(context.Background(), PlaceOrderRequest{Order: map[string]string{}})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Temporary())

	_, err = c.PlaceOrder(context.Background(), PlaceOrderRequest{Order: map[string]string{}})
	require.True(t, errors.As(err, &apiErr))
	assert.False(t, apiErr.Temporary())
}
