package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// BuyerClass classifies the buyer for price tier selection.
// It is always passed in explicitly by the caller, resolved from the
// authenticated customer record; this service never looks up identity.
type BuyerClass string

const (
	BuyerClassRetail    BuyerClass = "RETAIL"
	BuyerClassWholesale BuyerClass = "WHOLESALE"
)

// IsWholesale reports whether the buyer gets wholesale pricing.
func (b BuyerClass) IsWholesale() bool {
	return b == BuyerClassWholesale
}

// ProductStatus represents product lifecycle status
type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "ACTIVE"
	ProductStatusDraft    ProductStatus = "DRAFT"
	ProductStatusArchived ProductStatus = "ARCHIVED"
)

// Product is the catalog record this service prices against. The catalog is
// owned by the products service; this is a read-only projection of the
// fields the pricing core needs.
type Product struct {
	ID       uuid.UUID     `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID string        `json:"tenantId" gorm:"type:varchar(255);not null;index:idx_products_tenant"`
	Name     string        `json:"name" gorm:"type:varchar(255);not null"`
	SKU      string        `json:"sku" gorm:"type:varchar(100)"`
	Status   ProductStatus `json:"status" gorm:"type:varchar(20);default:'ACTIVE'"`

	// Pricing. RetailPrice is the standard selling price. MRP is the
	// pre-discount reference shown struck-through to retail buyers; when
	// absent it is derived from RetailPrice and DiscountPercent.
	RetailPrice     float64  `json:"retailPrice" gorm:"type:decimal(12,2);not null;default:0"`
	MRP             *float64 `json:"mrp,omitempty" gorm:"type:decimal(12,2)"`
	DiscountPercent *float64 `json:"discountPercent,omitempty" gorm:"type:decimal(5,2)"`

	// Wholesale tier. A product is wholesale-eligible when the flag is set
	// OR it carries a positive wholesale price (either signal qualifies).
	WholesalePrice       *float64 `json:"wholesalePrice,omitempty" gorm:"type:decimal(12,2)"`
	MinWholesaleQuantity *int     `json:"minWholesaleQuantity,omitempty"`
	IsWholesaleEligible  bool     `json:"isWholesaleEligible" gorm:"default:false"`

	// GST/VAT percent applied to the selling price (never to MRP).
	TaxRatePercent float64 `json:"taxRatePercent" gorm:"type:decimal(5,2);default:0"`

	// Stock. Nil means unbounded. Wholesale buyers are never stock-capped.
	StockQuantity *int `json:"stockQuantity,omitempty"`

	Tags  pq.StringArray `json:"tags" gorm:"type:text[]"`
	Image string         `json:"image,omitempty" gorm:"type:text"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Variants []ProductVariant `json:"variants,omitempty" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

// ProductVariant is a sellable variation of a product (pack size, strength).
// Variants carry their own stock; pricing fields fall back to the parent
// product when unset.
type ProductVariant struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ProductID uuid.UUID `json:"productId" gorm:"type:uuid;not null;index"`
	TenantID  string    `json:"tenantId" gorm:"type:varchar(255);not null"`

	// Descriptor is the variant suffix used in composite cart keys,
	// e.g. "red" in "P1-red".
	Descriptor string `json:"descriptor" gorm:"type:varchar(100);not null"`
	SKU        string `json:"sku" gorm:"type:varchar(100)"`

	RetailPrice    *float64 `json:"retailPrice,omitempty" gorm:"type:decimal(12,2)"`
	WholesalePrice *float64 `json:"wholesalePrice,omitempty" gorm:"type:decimal(12,2)"`
	StockQuantity  *int     `json:"stockQuantity,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WholesaleEligible reports whether wholesale buyers get the wholesale
// price for this product. OR semantics: the explicit flag or a positive
// wholesale price qualifies.
func (p *Product) WholesaleEligible() bool {
	if p == nil {
		return false
	}
	if p.IsWholesaleEligible {
		return true
	}
	return p.WholesalePrice != nil && *p.WholesalePrice > 0
}

// VariantByDescriptor returns the variant matching the descriptor, or nil.
func (p *Product) VariantByDescriptor(descriptor string) *ProductVariant {
	if p == nil || descriptor == "" {
		return nil
	}
	for i := range p.Variants {
		if p.Variants[i].Descriptor == descriptor {
			return &p.Variants[i]
		}
	}
	return nil
}
