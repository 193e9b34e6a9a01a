package adapters

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"returns-desk/internal/core/config"
	"returns-desk/internal/core/httpclient"
	"returns-desk/internal/features/orders/domain"
)

// unmanagedStock is reported for products that do not track inventory but are in stock.
const unmanagedStock = math.MaxInt32

// WooCommerceCatalog implements ports.Catalog using the WooCommerce REST API.
type WooCommerceCatalog struct {
	// client is the HTTP client used for API requests.
	client *http.Client
	// config holds the WooCommerce connection details.
	config config.WooCommerceConfig
}

// NewWooCommerceCatalog creates a new instance of WooCommerceCatalog.
func NewWooCommerceCatalog(cfg config.WooCommerceConfig) *WooCommerceCatalog {
	return &WooCommerceCatalog{
		client: httpclient.NewClient(10*time.Second, httpclient.WithComponent("woocommerce")),
		config: cfg,
	}
}

// StockQuote fetches the current price and stock of a product or one of its variations.
func (a *WooCommerceCatalog) StockQuote(ctx context.Context, ref domain.ProductRef) (*domain.StockQuote, error) {
	if ref.ProductID == "" {
		return nil, fmt.Errorf("%w: empty product id", domain.ErrProductNotFound)
	}

	path := "/wp-json/wc/v3/products/" + url.PathEscape(ref.ProductID)
	if ref.VariantID != "" {
		path += "/variations/" + url.PathEscape(ref.VariantID)
	}

	var product wcProduct
	if err := a.get(ctx, path, &product); err != nil {
		return nil, err
	}

	price, err := parsePrice(product.Price, a.config.PriceDecimals)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q for product %s: %w", product.Price, ref.ProductID, err)
	}

	return &domain.StockQuote{
		Ref:       ref,
		UnitPrice: price,
		Available: product.available(),
	}, nil
}

// HealthCheck verifies that the WooCommerce API is reachable and credentials are valid.
func (a *WooCommerceCatalog) HealthCheck(ctx context.Context) error {
	var products []wcProduct
	if err := a.get(ctx, "/wp-json/wc/v3/products?per_page=1", &products); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (a *WooCommerceCatalog) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(a.config.URL, "/")+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	authVal := make([]byte, 0, len(a.config.ConsumerKey)+len(a.config.ConsumerSecret)+1)
	authVal = fmt.Appendf(authVal, "%s:%s", a.config.ConsumerKey, a.config.ConsumerSecret)
	req.Header.Add("Authorization", "Basic "+base64.StdEncoding.EncodeToString(authVal))

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, path)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("woocommerce API returned status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parsePrice converts a WooCommerce decimal price string to minor units.
func parsePrice(raw string, decimals int) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty price")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f * math.Pow10(decimals))), nil
}

// wcProduct is the subset of a product or variation the catalog needs.
type wcProduct struct {
	ID            int    `json:"id"`
	Price         string `json:"price"`
	ManageStock   bool   `json:"manage_stock"`
	StockQuantity *int   `json:"stock_quantity"`
	// StockStatus is instock, outofstock or onbackorder.
	StockStatus string `json:"stock_status"`
}

func (p wcProduct) available() int {
	if p.ManageStock {
		if p.StockQuantity == nil || *p.StockQuantity < 0 {
			return 0
		}
		return *p.StockQuantity
	}
	if p.StockStatus == "instock" {
		return unmanagedStock
	}
	return 0
}
