package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ovs-innovation/farmcy-kart-sub001/internal/models"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

// Helper to build a dual-priced product
func createDualPricedProduct() *models.Product {
	return &models.Product{
		Name:                 "Paracetamol 500mg",
		RetailPrice:          100,
		MRP:                  floatPtr(150),
		WholesalePrice:       floatPtr(80),
		MinWholesaleQuantity: intPtr(1),
		IsWholesaleEligible:  true,
		TaxRatePercent:       5,
		StockQuantity:        intPtr(50),
	}
}

// ===========================================
// Unit Price Selection Tests
// ===========================================

func TestResolve_RetailBuyer(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()

	result := resolver.Resolve(product, "", 3, models.BuyerClassRetail)

	assert.Equal(t, 100.0, result.UnitPrice)
	assert.Equal(t, 150.0, result.ReferencePrice)
	assert.Equal(t, 50.0, result.DiscountPerUnit)
	assert.Equal(t, 15.0, result.TaxAmount) // 100 * 3 * 5%
	assert.Equal(t, 315.0, result.LineTotal)
}

func TestResolve_WholesaleBuyer(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()

	result := resolver.Resolve(product, "", 3, models.BuyerClassWholesale)

	assert.Equal(t, 80.0, result.UnitPrice)
	assert.Equal(t, 80.0, result.ReferencePrice, "wholesale reference price equals selling price")
	assert.Equal(t, 0.0, result.DiscountPerUnit, "wholesale lines never report a discount")
	assert.Equal(t, 12.0, result.TaxAmount) // 80 * 3 * 5%
	assert.Equal(t, 252.0, result.LineTotal)
}

func TestUnitPrice_WholesaleBuyerIneligibleProduct(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()
	product.IsWholesaleEligible = false
	product.WholesalePrice = nil

	price := resolver.UnitPrice(product, "", models.BuyerClassWholesale)

	assert.Equal(t, 100.0, price, "ineligible products sell at retail for everyone")
}

func TestUnitPrice_EligibilityFlagWithoutPrice(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()
	product.WholesalePrice = nil

	price := resolver.UnitPrice(product, "", models.BuyerClassWholesale)

	assert.Equal(t, 100.0, price, "flag alone without a positive wholesale price falls back to retail")
}

func TestUnitPrice_WholesalePriceNeverLeaksToRetail(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()

	price := resolver.UnitPrice(product, "", models.BuyerClassRetail)

	assert.Equal(t, 100.0, price)
}

func TestUnitPrice_MRPFallback(t *testing.T) {
	resolver := NewPriceResolver()
	product := &models.Product{
		RetailPrice: 0,
		MRP:         floatPtr(40),
	}

	price := resolver.UnitPrice(product, "", models.BuyerClassRetail)

	assert.Equal(t, 40.0, price)
}

func TestUnitPrice_VariantOwnPricesPreferred(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()
	product.Variants = []models.ProductVariant{
		{Descriptor: "250ml", RetailPrice: floatPtr(60), WholesalePrice: floatPtr(50)},
	}

	assert.Equal(t, 60.0, resolver.UnitPrice(product, "250ml", models.BuyerClassRetail))
	assert.Equal(t, 50.0, resolver.UnitPrice(product, "250ml", models.BuyerClassWholesale))
	assert.Equal(t, 100.0, resolver.UnitPrice(product, "", models.BuyerClassRetail), "base line keeps the parent price")
}

func TestUnitPrice_VariantWithoutOwnPriceFallsBackToParent(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()
	product.Variants = []models.ProductVariant{
		{Descriptor: "500ml", StockQuantity: intPtr(5)},
	}

	assert.Equal(t, 100.0, resolver.UnitPrice(product, "500ml", models.BuyerClassRetail))
	assert.Equal(t, 80.0, resolver.UnitPrice(product, "500ml", models.BuyerClassWholesale))
}

func TestResolve_VariantPriceDrivesDiscountAndTax(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()
	product.Variants = []models.ProductVariant{
		{Descriptor: "250ml", RetailPrice: floatPtr(60)},
	}

	result := resolver.Resolve(product, "250ml", 2, models.BuyerClassRetail)

	assert.Equal(t, 60.0, result.UnitPrice)
	assert.Equal(t, 150.0, result.ReferencePrice)
	assert.Equal(t, 90.0, result.DiscountPerUnit)
	assert.Equal(t, 6.0, result.TaxAmount) // 60 * 2 * 5%
	assert.Equal(t, 126.0, result.LineTotal)
}

func TestResolve_NilProduct(t *testing.T) {
	resolver := NewPriceResolver()

	result := resolver.Resolve(nil, "", 5, models.BuyerClassRetail)

	assert.Equal(t, models.PricingResult{}, result)
}

// ===========================================
// Reference Price and Discount Tests
// ===========================================

func TestResolve_PercentDiscountHintWithoutMRP(t *testing.T) {
	resolver := NewPriceResolver()
	product := &models.Product{
		RetailPrice:     100,
		DiscountPercent: floatPtr(20),
		TaxRatePercent:  0,
	}

	result := resolver.Resolve(product, "", 1, models.BuyerClassRetail)

	assert.Equal(t, 100.0, result.UnitPrice)
	assert.Equal(t, 120.0, result.ReferencePrice)
	assert.Equal(t, 20.0, result.DiscountPerUnit)
}

func TestResolve_NoDiscountData(t *testing.T) {
	resolver := NewPriceResolver()
	product := &models.Product{
		RetailPrice:    100,
		TaxRatePercent: 0,
	}

	result := resolver.Resolve(product, "", 1, models.BuyerClassRetail)

	assert.Equal(t, 100.0, result.ReferencePrice)
	assert.Equal(t, 0.0, result.DiscountPerUnit)
}

func TestResolve_MRPBelowRetailClampsDiscount(t *testing.T) {
	resolver := NewPriceResolver()
	product := &models.Product{
		RetailPrice:    100,
		MRP:            floatPtr(90),
		TaxRatePercent: 0,
	}

	result := resolver.Resolve(product, "", 1, models.BuyerClassRetail)

	assert.Equal(t, 0.0, result.DiscountPerUnit, "discount is clamped at zero, never negative")
}

// ===========================================
// Tax and Malformed Data Tests
// ===========================================

func TestResolve_TaxScalesWithQuantity(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()

	one := resolver.Resolve(product, "", 1, models.BuyerClassRetail)
	four := resolver.Resolve(product, "", 4, models.BuyerClassRetail)

	assert.Equal(t, one.TaxAmount*4, four.TaxAmount)
	assert.Greater(t, four.LineTotal, one.LineTotal)
}

func TestResolve_NegativeTaxRateYieldsNonNegativeTax(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()
	product.TaxRatePercent = -5

	result := resolver.Resolve(product, "", 2, models.BuyerClassRetail)

	assert.GreaterOrEqual(t, result.TaxAmount, 0.0)
}

func TestResolve_MalformedNumericFields(t *testing.T) {
	resolver := NewPriceResolver()
	product := &models.Product{
		RetailPrice:    math.NaN(),
		MRP:            floatPtr(math.Inf(1)),
		TaxRatePercent: math.NaN(),
	}

	result := resolver.Resolve(product, "", 2, models.BuyerClassRetail)

	assert.Equal(t, 0.0, result.UnitPrice)
	assert.Equal(t, 0.0, result.TaxAmount)
	assert.Equal(t, 0.0, result.LineTotal)
	assert.False(t, math.IsNaN(result.ReferencePrice))
}

func TestResolveWithTotal_FinalizedTotalWins(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()

	result := resolver.ResolveWithTotal(product, "", 3, models.BuyerClassRetail, floatPtr(299.99))

	assert.Equal(t, 299.99, result.LineTotal)
	assert.Equal(t, 100.0, result.UnitPrice, "unit price still computed for display")
}

func TestResolveWithTotal_InvalidFinalizedTotalIgnored(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()

	result := resolver.ResolveWithTotal(product, "", 3, models.BuyerClassRetail, floatPtr(-10))

	assert.Equal(t, 315.0, result.LineTotal)
}

// ===========================================
// Quantity Constraint Tests
// ===========================================

func TestCheckQuantity_WholesaleMinimum(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()
	product.MinWholesaleQuantity = intPtr(10)

	err := resolver.CheckQuantity(product, "", 5, models.BuyerClassWholesale)
	assert.ErrorIs(t, err, ErrBelowMinimumQuantity)

	err = resolver.CheckQuantity(product, "", 10, models.BuyerClassWholesale)
	assert.NoError(t, err)
}

func TestCheckQuantity_MinimumDoesNotBindRetail(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()
	product.MinWholesaleQuantity = intPtr(10)

	err := resolver.CheckQuantity(product, "", 1, models.BuyerClassRetail)

	assert.NoError(t, err)
}

func TestCheckQuantity_RetailStockCap(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()
	product.StockQuantity = intPtr(3)

	err := resolver.CheckQuantity(product, "", 4, models.BuyerClassRetail)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	err = resolver.CheckQuantity(product, "", 3, models.BuyerClassRetail)
	assert.NoError(t, err)
}

func TestCheckQuantity_WholesaleExemptFromStockCap(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()
	product.StockQuantity = intPtr(3)

	err := resolver.CheckQuantity(product, "", 500, models.BuyerClassWholesale)

	assert.NoError(t, err)
}

func TestAvailableStock_VariantStockUsedWhenSelected(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()
	product.Variants = []models.ProductVariant{
		{Descriptor: "250mg", StockQuantity: intPtr(2)},
	}

	stock, capped := resolver.AvailableStock(product, "250mg", models.BuyerClassRetail)

	assert.True(t, capped)
	assert.Equal(t, 2, stock)
}

func TestAvailableStock_NilStockMeansUnbounded(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()
	product.StockQuantity = nil

	_, capped := resolver.AvailableStock(product, "", models.BuyerClassRetail)

	assert.False(t, capped)
}

func TestResolve_Deterministic(t *testing.T) {
	resolver := NewPriceResolver()
	product := createDualPricedProduct()

	first := resolver.Resolve(product, "", 7, models.BuyerClassWholesale)
	second := resolver.Resolve(product, "", 7, models.BuyerClassWholesale)

	assert.Equal(t, first, second)
}
