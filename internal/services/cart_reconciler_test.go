package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ovs-innovation/farmcy-kart-sub001/internal/models"
)

// MockProductGetter is a mock implementation of ProductGetter
type MockProductGetter struct {
	mock.Mock
}

var _ ProductGetter = (*MockProductGetter)(nil)

func (m *MockProductGetter) GetProduct(ctx context.Context, tenantID, productID string) (*models.Product, error) {
	args := m.Called(ctx, tenantID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func newTestReconciler(products ProductGetter) *CartReconciler {
	return NewCartReconciler(products, NewPriceResolver(), nil)
}

func item(productID string, qty int) models.CartItem {
	return models.CartItem{
		ID:        productID + "-line",
		ProductID: productID,
		Quantity:  qty,
		Price:     10,
		Status:    models.CartItemStatusAvailable,
	}
}

func keys(items []models.CartItem) map[string]int {
	out := make(map[string]int, len(items))
	for _, i := range items {
		out[i.Key()] = i.Quantity
	}
	return out
}

// ===========================================
// Merge Policy Tests
// ===========================================

func TestReconcile_LocalOnlyLineEmitsCreate(t *testing.T) {
	ctx := context.Background()
	products := new(MockProductGetter)
	reconciler := newTestReconciler(products)

	local := []models.CartItem{item("p1", 2)}

	result, err := reconciler.Reconcile(ctx, "tenant-1", "cust-1", nil, local, models.BuyerClassRetail)

	assert.NoError(t, err)
	assert.Len(t, result.Merged, 1)
	assert.Len(t, result.PendingOps, 1)
	assert.Equal(t, models.CartOpCreate, result.PendingOps[0].Type)
	assert.Equal(t, "p1", result.PendingOps[0].ProductID)
	assert.Equal(t, 2, result.PendingOps[0].Quantity)
	products.AssertNotCalled(t, "GetProduct")
}

func TestReconcile_ServerNeverLowersLocalQuantity(t *testing.T) {
	ctx := context.Background()
	products := new(MockProductGetter)
	reconciler := newTestReconciler(products)

	server := []models.CartItem{item("p1", 1)}
	local := []models.CartItem{item("p1", 5)}

	result, err := reconciler.Reconcile(ctx, "tenant-1", "cust-1", server, local, models.BuyerClassRetail)

	assert.NoError(t, err)
	assert.Equal(t, 5, keys(result.Merged)["p1"])
	assert.Len(t, result.PendingOps, 1, "stale server quantity needs a write-back")
	assert.Equal(t, models.CartOpSetQuantity, result.PendingOps[0].Type)
	assert.Equal(t, "p1", result.PendingOps[0].ProductID)
	assert.Equal(t, 5, result.PendingOps[0].Quantity)
}

func TestReconcile_HigherServerQuantityAdopted(t *testing.T) {
	ctx := context.Background()
	products := new(MockProductGetter)
	reconciler := newTestReconciler(products)

	server := []models.CartItem{item("p1", 8)}
	local := []models.CartItem{item("p1", 3)}

	result, err := reconciler.Reconcile(ctx, "tenant-1", "cust-1", server, local, models.BuyerClassRetail)

	assert.NoError(t, err)
	assert.Equal(t, 8, keys(result.Merged)["p1"])
	assert.Empty(t, result.PendingOps)
}

func TestReconcile_EqualQuantitiesUntouched(t *testing.T) {
	ctx := context.Background()
	products := new(MockProductGetter)
	reconciler := newTestReconciler(products)

	server := []models.CartItem{item("p1", 3)}
	local := []models.CartItem{item("p1", 3)}

	result, err := reconciler.Reconcile(ctx, "tenant-1", "cust-1", server, local, models.BuyerClassRetail)

	assert.NoError(t, err)
	assert.Equal(t, 3, keys(result.Merged)["p1"])
	assert.Empty(t, result.PendingOps)
	assert.Zero(t, result.SkippedServerLines)
}

func TestReconcile_ServerOnlyLineMaterializedWithResolvedPrice(t *testing.T) {
	ctx := context.Background()
	products := new(MockProductGetter)
	reconciler := newTestReconciler(products)

	products.On("GetProduct", mock.Anything, "tenant-1", "p2").
		Return(&models.Product{Name: "Vitamin C", RetailPrice: 25, TaxRatePercent: 5}, nil)

	server := []models.CartItem{item("p1", 2), item("p2", 4)}
	local := []models.CartItem{item("p1", 2)}

	result, err := reconciler.Reconcile(ctx, "tenant-1", "cust-1", server, local, models.BuyerClassRetail)

	assert.NoError(t, err)
	assert.Len(t, result.Merged, 2)
	merged := keys(result.Merged)
	assert.Equal(t, 4, merged["p2"])
	for _, line := range result.Merged {
		if line.ProductID == "p2" {
			assert.Equal(t, 25.0, line.Price)
			assert.NotNil(t, line.LastValidatedAt)
		}
	}
	assert.Empty(t, result.PendingOps, "server-only lines need no write-back")
	products.AssertExpectations(t)
}

func TestReconcile_ServerVariantLineMaterializedAtVariantPrice(t *testing.T) {
	ctx := context.Background()
	products := new(MockProductGetter)
	reconciler := newTestReconciler(products)

	product := &models.Product{Name: "Cough Syrup", RetailPrice: 100, TaxRatePercent: 5}
	product.Variants = []models.ProductVariant{
		{Descriptor: "250ml", RetailPrice: floatPtr(60)},
	}
	products.On("GetProduct", mock.Anything, "tenant-1", "p1").Return(product, nil)

	server := []models.CartItem{{ID: "s1", ProductID: "p1", VariantID: "250ml", Quantity: 2}}

	result, err := reconciler.Reconcile(ctx, "tenant-1", "cust-1", server, nil, models.BuyerClassRetail)

	assert.NoError(t, err)
	assert.Len(t, result.Merged, 1)
	assert.Equal(t, 60.0, result.Merged[0].Price, "variant's own price, not the base product's")
	products.AssertExpectations(t)
}

func TestReconcile_UnresolvableServerLineSkipped(t *testing.T) {
	ctx := context.Background()
	products := new(MockProductGetter)
	reconciler := newTestReconciler(products)

	products.On("GetProduct", mock.Anything, "tenant-1", "ghost").
		Return(nil, errors.New("products service returned status 500"))

	server := []models.CartItem{item("ghost", 1)}

	result, err := reconciler.Reconcile(ctx, "tenant-1", "cust-1", server, nil, models.BuyerClassRetail)

	assert.NoError(t, err)
	assert.Empty(t, result.Merged)
	assert.Equal(t, 1, result.SkippedServerLines)
}

func TestReconcile_DeletedProductOnServerSkipped(t *testing.T) {
	ctx := context.Background()
	products := new(MockProductGetter)
	reconciler := newTestReconciler(products)

	products.On("GetProduct", mock.Anything, "tenant-1", "gone").
		Return(nil, nil)

	server := []models.CartItem{item("gone", 1)}

	result, err := reconciler.Reconcile(ctx, "tenant-1", "cust-1", server, nil, models.BuyerClassRetail)

	assert.NoError(t, err)
	assert.Empty(t, result.Merged)
	assert.Equal(t, 1, result.SkippedServerLines)
}

// ===========================================
// Variant Collision Tests
// ===========================================

func TestReconcile_LocalVariantSupersedesServerBaseLine(t *testing.T) {
	ctx := context.Background()
	products := new(MockProductGetter)
	reconciler := newTestReconciler(products)

	server := []models.CartItem{item("p1", 2)}
	local := []models.CartItem{item("p1-red", 1)}

	result, err := reconciler.Reconcile(ctx, "tenant-1", "cust-1", server, local, models.BuyerClassRetail)

	assert.NoError(t, err)
	assert.Len(t, result.Merged, 1)
	assert.Equal(t, "p1-red", result.Merged[0].ProductID)
	assert.Equal(t, 1, result.SkippedServerLines)
	products.AssertNotCalled(t, "GetProduct")
}

func TestReconcile_ExplicitVariantIDAlsoSuppressesBaseLine(t *testing.T) {
	ctx := context.Background()
	products := new(MockProductGetter)
	reconciler := newTestReconciler(products)

	server := []models.CartItem{item("p1", 2)}
	local := []models.CartItem{{ID: "l1", ProductID: "p1", VariantID: "red", Quantity: 1}}

	result, err := reconciler.Reconcile(ctx, "tenant-1", "cust-1", server, local, models.BuyerClassRetail)

	assert.NoError(t, err)
	assert.Len(t, result.Merged, 1)
	assert.Equal(t, "p1-red", result.Merged[0].Key())
	assert.Equal(t, 1, result.SkippedServerLines)
}

func TestReconcile_DifferentBaseProductNotSuppressed(t *testing.T) {
	ctx := context.Background()
	products := new(MockProductGetter)
	reconciler := newTestReconciler(products)

	products.On("GetProduct", mock.Anything, "tenant-1", "p2").
		Return(&models.Product{Name: "Other", RetailPrice: 5}, nil)

	server := []models.CartItem{item("p2", 2)}
	local := []models.CartItem{item("p1-red", 1)}

	result, err := reconciler.Reconcile(ctx, "tenant-1", "cust-1", server, local, models.BuyerClassRetail)

	assert.NoError(t, err)
	assert.Len(t, result.Merged, 2)
	assert.Zero(t, result.SkippedServerLines)
}

// ===========================================
// Idempotence Tests
// ===========================================

func TestReconcile_Idempotent(t *testing.T) {
	ctx := context.Background()
	products := new(MockProductGetter)
	reconciler := newTestReconciler(products)

	products.On("GetProduct", mock.Anything, "tenant-1", "p3").
		Return(&models.Product{Name: "Zinc", RetailPrice: 12}, nil)

	server := []models.CartItem{item("p1", 8), item("p3", 2)}
	local := []models.CartItem{item("p1", 3), item("p2", 1)}

	first, err := reconciler.Reconcile(ctx, "tenant-1", "cust-1", server, local, models.BuyerClassRetail)
	assert.NoError(t, err)

	second, err := reconciler.Reconcile(ctx, "tenant-1", "cust-2", server, first.Merged, models.BuyerClassRetail)
	assert.NoError(t, err)

	assert.Equal(t, keys(first.Merged), keys(second.Merged))
	assert.Zero(t, second.SkippedServerLines)
}
