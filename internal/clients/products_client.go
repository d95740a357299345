// Package clients provides HTTP clients for service-to-service communication.
package clients

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ovs-innovation/farmcy-kart-sub001/internal/models"
)

// ProductsClient fetches product records from the products service for
// pricing and reconciliation. Responses are cached briefly; price and
// stock accuracy matter more than hit rate.
type ProductsClient struct {
	baseURL    string
	cache      map[string]*productCacheEntry
	cacheTTL   time.Duration
	mu         sync.RWMutex
	httpClient *http.Client
}

type productCacheEntry struct {
	product   *models.Product
	expiresAt time.Time
}

// productPayload is the wire shape of a product from the products service.
type productPayload struct {
	ID                   uuid.UUID `json:"id"`
	Name                 string    `json:"name"`
	SKU                  string    `json:"sku"`
	Status               string    `json:"status"`
	RetailPrice          float64   `json:"retailPrice"`
	MRP                  *float64  `json:"mrp,omitempty"`
	DiscountPercent      *float64  `json:"discountPercent,omitempty"`
	WholesalePrice       *float64  `json:"wholesalePrice,omitempty"`
	MinWholesaleQuantity *int      `json:"minWholesaleQuantity,omitempty"`
	IsWholesaleEligible  bool      `json:"isWholesaleEligible"`
	TaxRatePercent       float64   `json:"taxRatePercent"`
	StockQuantity        *int      `json:"stockQuantity,omitempty"`
	Image                string    `json:"image,omitempty"`
	Variants             []struct {
		ID             uuid.UUID `json:"id"`
		Descriptor     string    `json:"descriptor"`
		SKU            string    `json:"sku"`
		RetailPrice    *float64  `json:"retailPrice,omitempty"`
		WholesalePrice *float64  `json:"wholesalePrice,omitempty"`
		StockQuantity  *int      `json:"stockQuantity,omitempty"`
	} `json:"variants,omitempty"`
}

type productResponse struct {
	Success bool            `json:"success"`
	Data    *productPayload `json:"data"`
}

// NewProductsClient creates a new products client with caching. baseURL
// comes from config; empty falls back to the in-cluster default.
func NewProductsClient(baseURL string) *ProductsClient {
	if baseURL == "" {
		baseURL = "http://products-service.devtest.svc.cluster.local:8083"
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	return &ProductsClient{
		baseURL:  baseURL,
		cache:    make(map[string]*productCacheEntry),
		cacheTTL: 1 * time.Minute, // Short TTL for price/stock accuracy
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
	}
}

// GetProduct fetches a single product by ID. A 404 yields (nil, nil): an
// unresolvable reference is not a transport failure.
func (c *ProductsClient) GetProduct(ctx context.Context, tenantID, productID string) (*models.Product, error) {
	cacheKey := tenantID + ":" + productID

	c.mu.RLock()
	if entry, ok := c.cache[cacheKey]; ok && time.Now().Before(entry.expiresAt) {
		product := entry.product
		c.mu.RUnlock()
		return product, nil
	}
	c.mu.RUnlock()

	url := fmt.Sprintf("%s/api/v1/products/%s", c.baseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Tenant-ID", tenantID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("products service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.store(cacheKey, nil)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("products service returned status %d", resp.StatusCode)
	}

	var payload productResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode product response: %w", err)
	}
	if payload.Data == nil {
		c.store(cacheKey, nil)
		return nil, nil
	}

	product := payload.Data.toModel(tenantID)
	c.store(cacheKey, product)
	return product, nil
}

// Invalidate drops a cached product (called when a product event arrives).
func (c *ProductsClient) Invalidate(tenantID, productID string) {
	c.mu.Lock()
	delete(c.cache, tenantID+":"+productID)
	c.mu.Unlock()
}

func (c *ProductsClient) store(key string, product *models.Product) {
	c.mu.Lock()
	c.cache[key] = &productCacheEntry{
		product:   product,
		expiresAt: time.Now().Add(c.cacheTTL),
	}
	c.mu.Unlock()
}

func (p *productPayload) toModel(tenantID string) *models.Product {
	product := &models.Product{
		ID:                   p.ID,
		TenantID:             tenantID,
		Name:                 p.Name,
		SKU:                  p.SKU,
		Status:               models.ProductStatus(p.Status),
		RetailPrice:          p.RetailPrice,
		MRP:                  p.MRP,
		DiscountPercent:      p.DiscountPercent,
		WholesalePrice:       p.WholesalePrice,
		MinWholesaleQuantity: p.MinWholesaleQuantity,
		IsWholesaleEligible:  p.IsWholesaleEligible,
		TaxRatePercent:       p.TaxRatePercent,
		StockQuantity:        p.StockQuantity,
		Image:                p.Image,
	}
	for _, v := range p.Variants {
		product.Variants = append(product.Variants, models.ProductVariant{
			ID:             v.ID,
			ProductID:      p.ID,
			TenantID:       tenantID,
			Descriptor:     v.Descriptor,
			SKU:            v.SKU,
			RetailPrice:    v.RetailPrice,
			WholesalePrice: v.WholesalePrice,
			StockQuantity:  v.StockQuantity,
		})
	}
	return product
}
