package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ovs-innovation/farmcy-kart-sub001/internal/models"
	"github.com/ovs-innovation/farmcy-kart-sub001/internal/services"
)

// CartHandler handles customer cart endpoints. All pricing and merge logic
// lives in the service layer; handlers only translate HTTP.
type CartHandler struct {
	cartService *services.CartService
}

// NewCartHandler creates a new cart handler.
func NewCartHandler(cartService *services.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

// buyerClass resolves the buyer classification for the request. The auth
// middleware sets it from the customer token; the BFF may also forward it
// in the X-Buyer-Class header. Absent or unknown values default to retail.
func buyerClass(c *gin.Context) models.BuyerClass {
	if models.BuyerClass(c.GetString("buyer_class")) == models.BuyerClassWholesale {
		return models.BuyerClassWholesale
	}
	if models.BuyerClass(c.GetHeader("X-Buyer-Class")) == models.BuyerClassWholesale {
		return models.BuyerClassWholesale
	}
	return models.BuyerClassRetail
}

func requestScope(c *gin.Context) (string, uuid.UUID, bool) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		tenantID = c.GetHeader("X-Tenant-ID")
	}
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Tenant-ID header is required"})
		return "", uuid.Nil, false
	}

	customerUUID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer ID"})
		return "", uuid.Nil, false
	}
	return tenantID, customerUUID, true
}

// GetCart handles GET /customers/:id/cart
func (h *CartHandler) GetCart(c *gin.Context) {
	tenantID, customerID, ok := requestScope(c)
	if !ok {
		return
	}

	view, err := h.cartService.GetCart(c.Request.Context(), tenantID, customerID, buyerClass(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cart"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// AddToCart handles POST /customers/:id/cart/items
func (h *CartHandler) AddToCart(c *gin.Context) {
	tenantID, customerID, ok := requestScope(c)
	if !ok {
		return
	}

	var item models.CartItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if item.ProductID == "" || item.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "productId and a positive quantity are required"})
		return
	}

	view, err := h.cartService.AddItem(c.Request.Context(), tenantID, customerID, item, buyerClass(c))
	if err != nil {
		h.writeMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item added to cart", "cart": view})
}

// UpdateCartItem handles PUT /customers/:id/cart/items/:itemId
func (h *CartHandler) UpdateCartItem(c *gin.Context) {
	tenantID, customerID, ok := requestScope(c)
	if !ok {
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.cartService.UpdateItemQuantity(c.Request.Context(), tenantID, customerID, c.Param("itemId"), req.Quantity, buyerClass(c))
	if err != nil {
		h.writeMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart updated", "cart": view})
}

// RemoveFromCart handles DELETE /customers/:id/cart/items/:itemId
func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	tenantID, customerID, ok := requestScope(c)
	if !ok {
		return
	}

	view, err := h.cartService.RemoveItem(c.Request.Context(), tenantID, customerID, c.Param("itemId"), buyerClass(c))
	if err != nil {
		h.writeMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart", "cart": view})
}

// ClearCart handles DELETE /customers/:id/cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	tenantID, customerID, ok := requestScope(c)
	if !ok {
		return
	}

	if err := h.cartService.ClearCart(c.Request.Context(), tenantID, customerID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear cart"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}

// MergeCart handles POST /customers/:id/cart/merge, the once-per-login
// reconciliation of the client-side cart against the server snapshot.
func (h *CartHandler) MergeCart(c *gin.Context) {
	tenantID, customerID, ok := requestScope(c)
	if !ok {
		return
	}

	var req models.MergeCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	buyer := req.BuyerClass
	if buyer != models.BuyerClassWholesale {
		buyer = buyerClass(c)
	}

	result, err := h.cartService.MergeLocalCart(c.Request.Context(), tenantID, customerID, req.LocalItems, buyer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to merge cart"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Cart merged",
		"items":        result.Merged,
		"pendingOps":   result.PendingOps,
		"skippedLines": result.SkippedServerLines,
	})
}

func (h *CartHandler) writeMutationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrBelowMinimumQuantity):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Quantity is below the minimum order quantity", "code": "BELOW_MINIMUM_QUANTITY"})
	case errors.Is(err, services.ErrInsufficientStock):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Requested quantity exceeds available stock", "code": "INSUFFICIENT_STOCK"})
	case errors.Is(err, services.ErrCartNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Cart not found"})
	case errors.Is(err, services.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found in cart"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
