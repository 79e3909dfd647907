package streamone

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/railzwaylabs/subsync/internal/config"
	usagedomain "github.com/railzwaylabs/subsync/internal/usage/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(baseURL string, timeout time.Duration) *Client {
	cfg := config.Config{StreamOne: config.StreamOneConfig{
		BaseURL: baseURL,
		Token:   "secret",
		Timeout: timeout,
	}}
	return NewClient(cfg, zap.NewNop())
}

func TestSource_ListQuantities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/customers/tenant-1/subscriptions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"sku": "X", "quantity": 3, "lineStatus": "active"}, {"w": {"sku": "X", "quantity": 2}}]`))
	}))
	defer srv.Close()

	src := NewSource(newTestClient(srv.URL, time.Second))
	qs, err := src.ListQuantities(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.True(t, decimal.NewFromInt(5).Equal(qs[0].Quantity))
	assert.Equal(t, usagedomain.SourceStreamOne, src.Kind())
}

func TestClient_ErrorsMapToSourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/customers/broken/subscriptions":
			w.WriteHeader(http.StatusBadGateway)
		case "/customers/garbage/subscriptions":
			_, _ = w.Write([]byte(`{not json`))
		case "/customers/slow/subscriptions":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := NewSource(newTestClient(srv.URL, 50*time.Millisecond))
	for _, tenant := range []string{"broken", "garbage", "slow", "missing"} {
		_, err := src.ListQuantities(context.Background(), tenant)
		assert.ErrorIs(t, err, usagedomain.ErrSourceUnavailable, tenant)
	}

	_, err := NewSource(newTestClient("", time.Second)).ListQuantities(context.Background(), "x")
	assert.ErrorIs(t, err, usagedomain.ErrSourceUnavailable)
}

func TestClient_ProductAndPricing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/products/AZ-001":
			_, _ = w.Write([]byte(`{"sku": "AZ-001", "skuName": "Azure Plan", "billingType": "Monthly", "qtyMin": 1}`))
		case "/products/AZ-001/pricing":
			assert.Equal(t, "5", r.URL.Query().Get("quantity"))
			_, _ = w.Write([]byte(`{"sku": "AZ-001", "quantity": 5, "msrp": "99.95"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, time.Second)
	ctx := context.Background()

	product, err := client.ProductBySKU(ctx, "AZ-001")
	require.NoError(t, err)
	require.NotNil(t, product)
	assert.Equal(t, "Monthly", product.BillingType)
	assert.Equal(t, 1, product.QtyMin)

	missing, err := client.ProductBySKU(ctx, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)

	pricing, err := client.PricingBySKU(ctx, "AZ-001", 5)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("99.95").Equal(pricing.MSRP))
}
