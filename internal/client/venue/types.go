package venue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Decimal accepts both quoted and bare JSON numbers.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		d.Decimal = decimal.Zero
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		val, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		d.Decimal = val
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		val, err := decimal.NewFromString(n.String())
		if err != nil {
			return err
		}
		d.Decimal = val
		return nil
	}
	return fmt.Errorf("invalid decimal: %s", string(b))
}

type PricePoint struct {
	TS    time.Time       `json:"ts"`
	Price decimal.Decimal `json:"price"`
}

func parsePrice(body []byte) (decimal.Decimal, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, err
	}
	priceRaw, ok := raw["price"]
	if !ok {
		return decimal.Zero, fmt.Errorf("price not found in response")
	}
	var d Decimal
	if err := json.Unmarshal(priceRaw, &d); err != nil {
		return decimal.Zero, err
	}
	return d.Decimal, nil
}

func parsePriceHistory(body []byte) ([]PricePoint, error) {
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapped); err == nil {
		for _, key := range []string{"history", "prices", "data"} {
			if items, ok := wrapped[key]; ok {
				var list []json.RawMessage
				if err := json.Unmarshal(items, &list); err != nil {
					return nil, err
				}
				return parsePricePoints(list), nil
			}
		}
		return nil, fmt.Errorf("unknown price history format")
	}
	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("unknown price history format")
	}
	return parsePricePoints(list), nil
}

// parsePricePoints accepts [ts, price] pairs and {t, p} objects; anything
// else is skipped.
func parsePricePoints(items []json.RawMessage) []PricePoint {
	points := make([]PricePoint, 0, len(items))
	for _, item := range items {
		var tsRaw, priceRaw json.RawMessage
		var arr []json.RawMessage
		if err := json.Unmarshal(item, &arr); err == nil {
			if len(arr) < 2 {
				continue
			}
			tsRaw, priceRaw = arr[0], arr[1]
		} else {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(item, &obj); err != nil {
				continue
			}
			tsRaw = firstRaw(obj, "t", "ts", "timestamp")
			priceRaw = firstRaw(obj, "p", "price")
		}
		ts, err := parseTimeRaw(tsRaw)
		if err != nil {
			continue
		}
		var price Decimal
		if err := json.Unmarshal(priceRaw, &price); err != nil {
			continue
		}
		points = append(points, PricePoint{TS: ts, Price: price.Decimal})
	}
	return points
}

func parseOrderResult(body []byte) (*OrderResult, error) {
	var resp struct {
		Success  *bool    `json:"success"`
		ErrorMsg string   `json:"errorMsg"`
		OrderID  string   `json:"orderID"`
		ID       string   `json:"id"`
		Status   string   `json:"status"`
		TxHashes []string `json:"transactionsHashes"`
		TxHash   string   `json:"transactionHash"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	if resp.Success != nil && !*resp.Success {
		reason := strings.TrimSpace(resp.ErrorMsg)
		if reason == "" {
			reason = "unspecified"
		}
		return nil, &RejectedError{Reason: reason}
	}
	out := &OrderResult{
		OrderID:  firstNonEmpty(resp.OrderID, resp.ID),
		Status:   strings.ToLower(strings.TrimSpace(resp.Status)),
		TxHashes: resp.TxHashes,
	}
	if len(out.TxHashes) == 0 && resp.TxHash != "" {
		out.TxHashes = []string{resp.TxHash}
	}
	if out.OrderID == "" {
		return nil, fmt.Errorf("order id missing in response")
	}
	return out, nil
}

func parseTimeRaw(b json.RawMessage) (time.Time, error) {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return unixToTime(i), nil
		}
		if f, err := n.Float64(); err == nil {
			return unixToTime(int64(f)), nil
		}
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil && s != "" {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time: %s", string(b))
}

func unixToTime(v int64) time.Time {
	if v > 1_000_000_000_000 {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}

func firstRaw(m map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
