package streamone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/railzwaylabs/subsync/internal/config"
	usagedomain "github.com/railzwaylabs/subsync/internal/usage/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 10 << 20

var errNotFound = errors.New("streamone_not_found")

// Client talks to the StreamOne cloud marketplace API. Calls are rate
// limited and each one carries its own timeout.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	timeout := cfg.StreamOne.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if rps := cfg.StreamOne.RequestsPerSecond; rps > 0 {
		limit = rate.Limit(rps)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.StreamOne.BaseURL, "/"),
		token:   cfg.StreamOne.Token,
		timeout: timeout,
		http:    &http.Client{},
		limiter: rate.NewLimiter(limit, 1),
		log:     log.Named("usage.streamone"),
	}
}

// Product is the catalog view of a SKU.
type Product struct {
	SKU         string `json:"sku"`
	SKUName     string `json:"skuName"`
	Description string `json:"description"`
	BillingType string `json:"billingType"`
	QtyMin      int    `json:"qtyMin"`
}

type Pricing struct {
	SKU      string          `json:"sku"`
	Quantity int             `json:"quantity"`
	MSRP     decimal.Decimal `json:"msrp"`
}

// SubscriptionsByCustomer returns the raw subscription lines of a tenant.
func (c *Client) SubscriptionsByCustomer(ctx context.Context, tenantID string) ([]json.RawMessage, error) {
	var lines []json.RawMessage
	path := "/customers/" + url.PathEscape(tenantID) + "/subscriptions"
	if err := c.getJSON(ctx, path, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// ProductBySKU returns nil when the catalog does not know the SKU.
func (c *Client) ProductBySKU(ctx context.Context, sku string) (*Product, error) {
	var product Product
	err := c.getJSON(ctx, "/products/"+url.PathEscape(sku), &product)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (c *Client) PricingBySKU(ctx context.Context, sku string, quantity int) (*Pricing, error) {
	var pricing Pricing
	path := "/products/" + url.PathEscape(sku) + "/pricing?quantity=" + strconv.Itoa(quantity)
	if err := c.getJSON(ctx, path, &pricing); err != nil {
		return nil, err
	}
	return &pricing, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: streamone base url not configured", usagedomain.ErrSourceUnavailable)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", usagedomain.ErrSourceUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", usagedomain.ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", usagedomain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", usagedomain.ErrSourceUnavailable, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", usagedomain.ErrSourceUnavailable, errNotFound)
	}
	if resp.StatusCode >= 400 {
		c.log.Warn("streamone request failed", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: status=%d", usagedomain.ErrSourceUnavailable, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", usagedomain.ErrSourceUnavailable, path, err)
	}
	return nil
}
