package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/polyarb/internal/coerce"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/metrics"
)

// ClobClient is a read-only REST client for the Polymarket CLOB (Central
// Limit Order Book) API. It covers the public market-data endpoints used for
// pricing legs: last trade price, order book and spread.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
}

// ClobOption customizes a ClobClient.
type ClobOption func(*ClobClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClobOption {
	return func(c *ClobClient) { c.httpClient = hc }
}

// WithRateLimit sets the sustained request rate and burst.
func WithRateLimit(rps float64, burst int) ClobOption {
	return func(c *ClobClient) {
		if rps > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithMetrics counts failed calls per endpoint.
func WithMetrics(m *metrics.Metrics) ClobOption {
	return func(c *ClobClient) { c.metrics = m }
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
func NewClobClient(baseURL string, opts ...ClobOption) *ClobClient {
	c := &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(10), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetLastTradePrice returns the last traded price for a token.
func (c *ClobClient) GetLastTradePrice(ctx context.Context, tokenID string) (float64, error) {
	body, err := c.doGet(ctx, "/last-trade-price", tokenID)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: last trade price %s: %w", tokenID, err)
	}

	var resp APILastTradePrice
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode last trade price: %w: %v", domain.ErrUnavailable, err)
	}
	if !resp.Price.Present() {
		return 0, fmt.Errorf("polymarket/clob: last trade price %s: %w: missing price", tokenID, domain.ErrUnavailable)
	}
	price, err := coerce.Float(resp.Price.Value())
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: last trade price %s: %w", tokenID, err)
	}
	return price, nil
}

// GetOrderBook returns the current order book for a token.
func (c *ClobClient) GetOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	body, err := c.doGet(ctx, "/book", tokenID)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}

	var resp APIBook
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: decode book: %w: %v", domain.ErrUnavailable, err)
	}
	book, err := resp.ToDomainBook()
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}
	if book.AssetID == "" {
		book.AssetID = tokenID
	}
	return book, nil
}

// GetSpread returns the exchange-computed bid/ask spread for a token.
func (c *ClobClient) GetSpread(ctx context.Context, tokenID string) (domain.Spread, error) {
	body, err := c.doGet(ctx, "/spread", tokenID)
	if err != nil {
		return domain.Spread{}, fmt.Errorf("polymarket/clob: get spread %s: %w", tokenID, err)
	}

	var resp APISpread
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Spread{}, fmt.Errorf("polymarket/clob: decode spread: %w: %v", domain.ErrUnavailable, err)
	}
	if !resp.Spread.Present() {
		return domain.Spread{}, fmt.Errorf("polymarket/clob: get spread %s: %w: missing spread", tokenID, domain.ErrUnavailable)
	}
	v, err := coerce.Float(resp.Spread.Value())
	if err != nil {
		return domain.Spread{}, fmt.Errorf("polymarket/clob: get spread %s: %w", tokenID, err)
	}
	return domain.Spread{AssetID: tokenID, Spread: v}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet waits for the rate limiter, issues a GET with a token_id query and
// returns the body of a 2xx response.
func (c *ClobClient) doGet(ctx context.Context, path, tokenID string) ([]byte, error) {
	body, err := c.get(ctx, path, tokenID)
	if err != nil && ctx.Err() == nil {
		c.metrics.RecordUpstreamError(path)
	}
	return body, err
}

func (c *ClobClient) get(ctx context.Context, path, tokenID string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("token_id", tokenID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrUnavailable, err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUnavailable, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
