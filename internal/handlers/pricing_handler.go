package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ovs-innovation/farmcy-kart-sub001/internal/models"
	"github.com/ovs-innovation/farmcy-kart-sub001/internal/services"
)

// PricingHandler exposes the price resolver over HTTP for order preview,
// checkout and back-office callers.
type PricingHandler struct {
	products services.ProductGetter
	resolver *services.PriceResolver
}

// NewPricingHandler creates a new pricing handler.
func NewPricingHandler(products services.ProductGetter, resolver *services.PriceResolver) *PricingHandler {
	return &PricingHandler{products: products, resolver: resolver}
}

// Quote handles POST /pricing/quote. Lines whose product does not resolve
// come back with found=false and zero pricing rather than failing the whole
// quote.
func (h *PricingHandler) Quote(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		tenantID = c.GetHeader("X-Tenant-ID")
	}
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Tenant-ID header is required"})
		return
	}

	var req models.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	buyer := req.BuyerClass
	if buyer != models.BuyerClassWholesale {
		buyer = models.BuyerClassRetail
	}

	resp := models.QuoteResponse{
		BuyerClass: buyer,
		Lines:      make([]models.QuotedLine, 0, len(req.Lines)),
	}

	for _, line := range req.Lines {
		quoted := models.QuotedLine{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		}

		// Composite product ids ("P1-red") carry the variant in the key,
		// the same way cart lines do.
		ref := models.CartItem{ProductID: line.ProductID, VariantID: line.VariantID}
		product, err := h.products.GetProduct(c.Request.Context(), tenantID, ref.BaseProductID())
		if err == nil && product != nil {
			quoted.Found = true
			quoted.Name = product.Name
			quoted.Pricing = h.resolver.ResolveWithTotal(product, ref.VariantDescriptor(), line.Quantity, buyer, line.FinalizedTotal)
		}

		resp.Subtotal += quoted.Pricing.UnitPrice * float64(quoted.Quantity)
		resp.TaxTotal += quoted.Pricing.TaxAmount
		resp.Total += quoted.Pricing.LineTotal
		resp.Lines = append(resp.Lines, quoted)
	}

	resp.Subtotal = services.Round2(resp.Subtotal)
	resp.TaxTotal = services.Round2(resp.TaxTotal)
	resp.Total = services.Round2(resp.Total)

	c.JSON(http.StatusOK, gin.H{"success": true, "data": resp})
}
