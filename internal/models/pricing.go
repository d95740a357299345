package models

// PricingResult is the authoritative per-line computation for display and
// totals. All monetary fields are >= 0 and rounded to 2 decimal places;
// negative intermediates are clamped, never surfaced.
type PricingResult struct {
	UnitPrice       float64 `json:"unitPrice"`
	ReferencePrice  float64 `json:"referencePrice"` // MRP strike-through value
	DiscountPerUnit float64 `json:"discountPerUnit"`
	TaxAmount       float64 `json:"taxAmount"`
	LineTotal       float64 `json:"lineTotal"`
}

// QuoteLineRequest asks for pricing of one cart/order line.
type QuoteLineRequest struct {
	ProductID string `json:"productId" binding:"required"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`

	// FinalizedTotal carries an upstream authoritative line total for
	// already-finalized orders; when set it is treated as ground truth.
	FinalizedTotal *float64 `json:"finalizedTotal,omitempty"`
}

// QuoteRequest prices a set of lines for one buyer class.
type QuoteRequest struct {
	BuyerClass BuyerClass         `json:"buyerClass" binding:"required"`
	Lines      []QuoteLineRequest `json:"lines" binding:"required,min=1"`
}

// QuotedLine is one priced line in a quote response.
type QuotedLine struct {
	ProductID string        `json:"productId"`
	VariantID string        `json:"variantId,omitempty"`
	Name      string        `json:"name,omitempty"`
	Quantity  int           `json:"quantity"`
	Found     bool          `json:"found"`
	Pricing   PricingResult `json:"pricing"`
}

// QuoteResponse is the priced quote for all requested lines.
type QuoteResponse struct {
	BuyerClass BuyerClass   `json:"buyerClass"`
	Lines      []QuotedLine `json:"lines"`
	Subtotal   float64      `json:"subtotal"`
	TaxTotal   float64      `json:"taxTotal"`
	Total      float64      `json:"total"`
}

// MergeCartRequest carries the client-side local cart for reconciliation
// on login.
type MergeCartRequest struct {
	BuyerClass BuyerClass `json:"buyerClass"`
	LocalItems []CartItem `json:"localItems"`
}
