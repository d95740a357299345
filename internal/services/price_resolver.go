package services

import (
	"errors"
	"math"

	"github.com/ovs-innovation/farmcy-kart-sub001/internal/models"
)

// Sentinel errors surfaced to callers on rejected cart mutations. The
// resolver itself never returns errors; these come from CheckQuantity.
var (
	ErrBelowMinimumQuantity = errors.New("quantity is below the minimum order quantity")
	ErrInsufficientStock    = errors.New("requested quantity exceeds available stock")
)

// PriceResolver computes the authoritative per-line price, discount, tax
// and total for a product and buyer class. It is stateless, pure and
// side-effect free: the same inputs always produce the same result, and
// malformed numeric fields degrade to zero instead of propagating.
type PriceResolver struct{}

// NewPriceResolver creates a new price resolver.
func NewPriceResolver() *PriceResolver {
	return &PriceResolver{}
}

// Resolve computes the pricing for quantity units of the product for the
// given buyer class. variantID selects a variant's own prices when it
// carries them; empty means the base product. A nil product yields an
// all-zero result (the caller drops the line). Out-of-range quantities are
// still computed consistently; rejecting them is the mutation path's job
// (see CheckQuantity).
func (r *PriceResolver) Resolve(product *models.Product, variantID string, quantity int, buyer models.BuyerClass) models.PricingResult {
	return r.ResolveWithTotal(product, variantID, quantity, buyer, nil)
}

// ResolveWithTotal is Resolve with an optional upstream authoritative line
// total. Finalized order lines carry their recorded total, which is ground
// truth and overrides the computed unitPrice*qty+tax.
func (r *PriceResolver) ResolveWithTotal(product *models.Product, variantID string, quantity int, buyer models.BuyerClass, finalizedTotal *float64) models.PricingResult {
	if product == nil {
		return models.PricingResult{}
	}

	unitPrice := r.UnitPrice(product, variantID, buyer)
	referencePrice := r.referencePrice(product, variantID, unitPrice, buyer)

	// Wholesale lines never show a strike-through: reference price equals
	// the selling price and discount is reported as zero.
	var discountPerUnit float64
	if !buyer.IsWholesale() {
		if unitPrice > 0 {
			discountPerUnit = math.Max(0, referencePrice-unitPrice)
		} else if pct := sanitize(ptr(product.DiscountPercent)); pct > 0 {
			// Percent fallback: no absolute price delta is computable.
			discountPerUnit = referencePrice * pct / 100
		}
	}

	// Tax is computed on the selling price, never on MRP, and is never
	// negative regardless of sign anomalies in upstream data.
	taxRate := sanitize(product.TaxRatePercent)
	taxAmount := math.Abs(unitPrice * float64(quantity) * taxRate / 100)

	lineTotal := unitPrice*float64(quantity) + taxAmount
	if finalizedTotal != nil {
		if v := sanitize(*finalizedTotal); v > 0 {
			lineTotal = v
		}
	}

	// Clamp and round at the boundary only, to avoid compounding rounding
	// error across intermediate steps.
	return models.PricingResult{
		UnitPrice:       Round2(clamp(unitPrice)),
		ReferencePrice:  Round2(clamp(referencePrice)),
		DiscountPerUnit: Round2(clamp(discountPerUnit)),
		TaxAmount:       Round2(clamp(taxAmount)),
		LineTotal:       Round2(clamp(lineTotal)),
	}
}

// UnitPrice selects the selling price tier for the buyer class. Wholesale
// buyers get the wholesale price when the product carries a positive one;
// everyone else gets the retail price with an MRP fallback. A selected
// variant's own prices take precedence over the parent product's, falling
// back per tier when the variant leaves one unset. The wholesale price is
// never blended into retail pricing.
func (r *PriceResolver) UnitPrice(product *models.Product, variantID string, buyer models.BuyerClass) float64 {
	if product == nil {
		return 0
	}

	if buyer.IsWholesale() && product.WholesaleEligible() {
		if wp := wholesaleUnit(product, variantID); wp > 0 {
			return wp
		}
	}

	if rp := retailUnit(product, variantID); rp > 0 {
		return rp
	}
	if mrp := sanitize(ptr(product.MRP)); mrp > 0 {
		return mrp
	}
	return 0
}

// referencePrice is the MRP strike-through value. Retail path: MRP when
// present and positive, else retail price plus the stored percent-discount
// hint, else the retail price. Wholesale path: the selling price itself.
func (r *PriceResolver) referencePrice(product *models.Product, variantID string, unitPrice float64, buyer models.BuyerClass) float64 {
	if buyer.IsWholesale() {
		return unitPrice
	}

	if mrp := sanitize(ptr(product.MRP)); mrp > 0 {
		return mrp
	}

	retail := retailUnit(product, variantID)
	if pct := sanitize(ptr(product.DiscountPercent)); pct > 0 && retail > 0 {
		return retail + retail*pct/100
	}
	if retail > 0 {
		return retail
	}
	return unitPrice
}

// retailUnit is the retail selling price, preferring the selected variant's
// own price over the parent product's.
func retailUnit(product *models.Product, variantID string) float64 {
	if variant := product.VariantByDescriptor(variantID); variant != nil {
		if rp := sanitize(ptr(variant.RetailPrice)); rp > 0 {
			return rp
		}
	}
	return sanitize(product.RetailPrice)
}

// wholesaleUnit is the wholesale tier price, preferring the selected
// variant's own price over the parent product's.
func wholesaleUnit(product *models.Product, variantID string) float64 {
	if variant := product.VariantByDescriptor(variantID); variant != nil {
		if wp := sanitize(ptr(variant.WholesalePrice)); wp > 0 {
			return wp
		}
	}
	return sanitize(ptr(product.WholesalePrice))
}

// EffectiveMinQuantity is the smallest quantity a mutation may set for the
// buyer class. Minimum wholesale quantities bind wholesale buyers only.
func (r *PriceResolver) EffectiveMinQuantity(product *models.Product, buyer models.BuyerClass) int {
	if product == nil || !buyer.IsWholesale() {
		return 1
	}
	if product.MinWholesaleQuantity != nil && *product.MinWholesaleQuantity > 1 {
		return *product.MinWholesaleQuantity
	}
	return 1
}

// AvailableStock returns the stock cap for the buyer class and whether one
// applies. Wholesale buyers are never stock-limited. When a variant is
// selected its nested stock is used; a nil quantity means unbounded.
func (r *PriceResolver) AvailableStock(product *models.Product, variantID string, buyer models.BuyerClass) (int, bool) {
	if product == nil || buyer.IsWholesale() {
		return 0, false
	}

	if variant := product.VariantByDescriptor(variantID); variant != nil {
		if variant.StockQuantity == nil {
			return 0, false
		}
		return *variant.StockQuantity, true
	}

	if product.StockQuantity == nil {
		return 0, false
	}
	return *product.StockQuantity, true
}

// CheckQuantity validates a requested quantity against the minimum order
// quantity and the stock cap for the buyer class. Mutations that fail this
// check are rejected by the caller; the quantity is never clamped silently.
func (r *PriceResolver) CheckQuantity(product *models.Product, variantID string, quantity int, buyer models.BuyerClass) error {
	if quantity < r.EffectiveMinQuantity(product, buyer) {
		return ErrBelowMinimumQuantity
	}
	if stock, capped := r.AvailableStock(product, variantID, buyer); capped && quantity > stock {
		return ErrInsufficientStock
	}
	return nil
}

// sanitize maps malformed numeric fields (NaN, infinities, negatives) to
// zero so they fall through the fallback chains instead of propagating.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func ptr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// Round2 rounds a monetary value to 2 decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
