// Package dhan is a minimal Dhan v2 REST client: index LTP for the market feed and
// order placement for live trading.
package dhan

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

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"supertrend-core/internal/market"
	"supertrend-core/internal/order"
)

const DefaultBaseURL = "https://api.dhan.co/v2"

// Index security ids on the IDX_I segment.
var indexSecurityIDs = map[string]int{
	"NIFTY":      13,
	"BANKNIFTY":  25,
	"FINNIFTY":   27,
	"MIDCPNIFTY": 442,
	"SENSEX":     51,
}

// Config holds Dhan credentials and transport settings.
type Config struct {
	ClientID    string
	AccessToken string
	BaseURL     string
	RateLimit   float64 // requests per second
	Timeout     time.Duration
}

// Client implements market.MarketDataSource and order.OrderBroker.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("dhan: status %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("dhan: status %d: %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c.cfg.AccessToken == "" {
		return nil, fmt.Errorf("%w: access token not configured", market.ErrUnauthorized)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access-token", c.cfg.AccessToken)
	req.Header.Set("client-id", c.cfg.ClientID)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("dhan: read %s response (status %d): %w", path, res.StatusCode, err)
	}
	if res.StatusCode >= 300 {
		apiErr := &APIError{Status: res.StatusCode, Message: strings.TrimSpace(string(data))}
		if gjson.ValidBytes(data) {
			parsed := gjson.ParseBytes(data)
			apiErr.Code = parsed.Get("errorCode").String()
			if msg := parsed.Get("errorMessage").String(); msg != "" {
				apiErr.Message = msg
			}
		}
		if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("%w: %v", market.ErrUnauthorized, apiErr)
		}
		return nil, apiErr
	}
	return data, nil
}

// LTP returns the last traded price of an index.
func (c *Client) LTP(ctx context.Context, instrument string) (market.Quote, error) {
	id, ok := indexSecurityIDs[strings.ToUpper(instrument)]
	if !ok {
		return market.Quote{}, fmt.Errorf("dhan: unknown index %q", instrument)
	}
	data, err := c.do(ctx, http.MethodPost, "/marketfeed/ltp", map[string][]int{"IDX_I": {id}})
	if err != nil {
		return market.Quote{}, err
	}
	price := gjson.GetBytes(data, "data.IDX_I."+strconv.Itoa(id)+".last_price")
	if !price.Exists() {
		return market.Quote{}, fmt.Errorf("dhan: no last_price for %s in %s", instrument, truncate(data))
	}
	return market.Quote{Price: price.Float(), At: time.Now()}, nil
}

type placeOrderRequest struct {
	DhanClientID    string  `json:"dhanClientId"`
	CorrelationID   string  `json:"correlationId,omitempty"`
	TransactionType string  `json:"transactionType"`
	ExchangeSegment string  `json:"exchangeSegment"`
	ProductType     string  `json:"productType"`
	OrderType       string  `json:"orderType"`
	Validity        string  `json:"validity"`
	SecurityID      string  `json:"securityId"`
	Quantity        int     `json:"quantity"`
	Price           float64 `json:"price"`
}

// PlaceOrder sends an intraday market order on NSE_FNO.
func (c *Client) PlaceOrder(ctx context.Context, req order.Request) (order.BrokerOrder, error) {
	if req.SecurityID == "" {
		return order.BrokerOrder{}, errors.New("dhan: security id required")
	}
	data, err := c.do(ctx, http.MethodPost, "/orders", placeOrderRequest{
		DhanClientID:    c.cfg.ClientID,
		CorrelationID:   correlationID(req.ClientID),
		TransactionType: strings.ToUpper(req.Side),
		ExchangeSegment: "NSE_FNO",
		ProductType:     "INTRADAY",
		OrderType:       "MARKET",
		Validity:        "DAY",
		SecurityID:      req.SecurityID,
		Quantity:        req.Qty,
	})
	if err != nil {
		return order.BrokerOrder{}, err
	}
	return parseOrder(gjson.ParseBytes(data)), nil
}

// OrderStatus fetches the current state of an order.
func (c *Client) OrderStatus(ctx context.Context, id string) (order.BrokerOrder, error) {
	data, err := c.do(ctx, http.MethodGet, "/orders/"+id, nil)
	if err != nil {
		return order.BrokerOrder{}, err
	}
	parsed := gjson.ParseBytes(data)
	if parsed.IsArray() {
		parsed = parsed.Get("0")
	}
	bo := parseOrder(parsed)
	if bo.ID == "" {
		bo.ID = id
	}
	return bo, nil
}

func (c *Client) CancelOrder(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/orders/"+id, nil)
	return err
}

func parseOrder(r gjson.Result) order.BrokerOrder {
	msg := r.Get("omsErrorDescription").String()
	if msg == "" {
		msg = r.Get("remarks").String()
	}
	return order.BrokerOrder{
		ID:        r.Get("orderId").String(),
		Status:    mapStatus(r.Get("orderStatus").String()),
		FillPrice: r.Get("averageTradedPrice").Float(),
		Message:   msg,
	}
}

func mapStatus(s string) order.Status {
	switch strings.ToUpper(s) {
	case "TRADED":
		return order.StatusFilled
	case "PART_TRADED":
		return order.StatusOpen
	case "REJECTED":
		return order.StatusRejected
	case "CANCELLED", "EXPIRED":
		return order.StatusCancelled
	default: // TRANSIT, PENDING
		return order.StatusPending
	}
}

// Dhan caps correlation ids at 25 characters.
func correlationID(clientID string) string {
	id := strings.ReplaceAll(clientID, "-", "")
	if len(id) > 25 {
		id = id[:25]
	}
	return id
}

func truncate(b []byte) string {
	if len(b) > 200 {
		return string(b[:200]) + "..."
	}
	return string(b)
}
