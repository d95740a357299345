package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VariantKeySeparator joins a base product id and a variant descriptor into
// a composite cart key ("P1" + "red" -> "P1-red"). Legacy clients send the
// composite embedded in productId; newer clients send variantId separately.
const VariantKeySeparator = "-"

// JSONB is a custom type for PostgreSQL JSONB fields
type JSONB json.RawMessage

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = JSONB(v)
		return nil
	case string:
		*j = JSONB([]byte(v))
		return nil
	default:
		return nil
	}
}

// CartItemStatus represents the availability status of a cart item
type CartItemStatus string

const (
	CartItemStatusAvailable    CartItemStatus = "AVAILABLE"
	CartItemStatusUnavailable  CartItemStatus = "UNAVAILABLE"   // Product deleted or unpublished
	CartItemStatusOutOfStock   CartItemStatus = "OUT_OF_STOCK"  // Product exists but no inventory
	CartItemStatusPriceChanged CartItemStatus = "PRICE_CHANGED" // Price has changed since added
)

// CartItem is one product+quantity line within a cart (stored as JSONB).
// Price is a display snapshot captured at add/merge time; it is recomputed
// on every read and never trusted for totals.
type CartItem struct {
	ID              string         `json:"id"`
	ProductID       string         `json:"productId"`
	VariantID       string         `json:"variantId,omitempty"`
	Name            string         `json:"name"`
	Price           float64        `json:"price"`
	PriceAtAdd      float64        `json:"priceAtAdd"`
	Quantity        int            `json:"quantity"`
	Image           string         `json:"image,omitempty"`
	Status          CartItemStatus `json:"status"`
	AvailableStock  int            `json:"availableStock"`
	AddedAt         *time.Time     `json:"addedAt"`
	LastValidatedAt *time.Time     `json:"lastValidatedAt"`
}

// Key returns the line identity: the bare product id, or the composite
// productId-variantId when a variant is selected.
func (i CartItem) Key() string {
	if i.VariantID == "" {
		return i.ProductID
	}
	return i.ProductID + VariantKeySeparator + i.VariantID
}

// BaseProductID returns the base product id of the line. For lines keyed by
// a legacy composite productId ("P1-red") this is the part before the first
// separator; for lines with an explicit variantId it is productId itself.
func (i CartItem) BaseProductID() string {
	if i.VariantID != "" {
		return i.ProductID
	}
	if idx := strings.Index(i.ProductID, VariantKeySeparator); idx > 0 {
		return i.ProductID[:idx]
	}
	return i.ProductID
}

// VariantDescriptor returns the selected variant's descriptor, from the
// explicit variantId or the legacy composite productId suffix. Empty for
// base product lines.
func (i CartItem) VariantDescriptor() string {
	if i.VariantID != "" {
		return i.VariantID
	}
	if idx := strings.Index(i.ProductID, VariantKeySeparator); idx > 0 {
		return i.ProductID[idx+1:]
	}
	return ""
}

// IsVariant reports whether the line refers to a specific variant, either
// via an explicit variantId or a composite productId.
func (i CartItem) IsVariant() bool {
	if i.VariantID != "" {
		return true
	}
	return strings.Index(i.ProductID, VariantKeySeparator) > 0
}

// CustomerCart is the server-persisted cart, one per customer per tenant.
// Created on first authenticated add-to-cart, cleared on checkout-complete
// or explicit clear.
type CustomerCart struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CustomerID     uuid.UUID  `json:"customerId" gorm:"type:uuid;not null;uniqueIndex:idx_customer_tenant_cart"`
	TenantID       string     `json:"tenantId" gorm:"type:varchar(255);not null;uniqueIndex:idx_customer_tenant_cart"`
	BuyerClass     BuyerClass `json:"buyerClass" gorm:"type:varchar(20);default:'RETAIL'"`
	Items          JSONB      `json:"items" gorm:"type:jsonb;default:'[]'"`
	Subtotal       float64    `json:"subtotal" gorm:"type:decimal(12,2);default:0"`
	TaxTotal       float64    `json:"taxTotal" gorm:"type:decimal(12,2);default:0"`
	ItemCount      int        `json:"itemCount" gorm:"default:0"`
	LastItemChange time.Time  `json:"lastItemChange" gorm:"default:CURRENT_TIMESTAMP"`
	ReconciledAt   *time.Time `json:"reconciledAt" gorm:"type:timestamp"` // Last local-cart merge on login
	ExpiresAt      *time.Time `json:"expiresAt" gorm:"type:timestamp"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// ParseItems decodes the JSONB items column.
func (c *CustomerCart) ParseItems() ([]CartItem, error) {
	if len(c.Items) == 0 {
		return nil, nil
	}
	var items []CartItem
	if err := json.Unmarshal(c.Items, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SetItems encodes items into the JSONB column.
func (c *CustomerCart) SetItems(items []CartItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	c.Items = JSONB(data)
	return nil
}

// CartOperationType identifies a persistence operation emitted by the
// reconciler.
type CartOperationType string

const (
	CartOpCreate      CartOperationType = "CREATE"       // insert line if absent
	CartOpSetQuantity CartOperationType = "SET_QUANTITY" // absolute quantity write
	CartOpRemove      CartOperationType = "REMOVE"
)

// CartOperation describes a single write the persistence layer must apply
// to bring the server cart in sync. Operations carry absolute values so
// re-applying one is always safe (at-least-once delivery).
type CartOperation struct {
	Type      CartOperationType `json:"type"`
	ProductID string            `json:"productId"`
	VariantID string            `json:"variantId,omitempty"`
	Quantity  int               `json:"quantity"`
	UnitPrice float64           `json:"unitPrice,omitempty"`
	Name      string            `json:"name,omitempty"`
}

// Key returns the cart line key the operation targets.
func (op CartOperation) Key() string {
	return CartItem{ProductID: op.ProductID, VariantID: op.VariantID}.Key()
}

// PendingCartOperation is a queued CartOperation awaiting application by
// the sync worker. Applied rows keep their timestamp for auditing.
type PendingCartOperation struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID   string     `json:"tenantId" gorm:"type:varchar(255);not null;index:idx_pending_ops_tenant"`
	CustomerID uuid.UUID  `json:"customerId" gorm:"type:uuid;not null;index"`
	Operation  JSONB      `json:"operation" gorm:"type:jsonb;not null"`
	Attempts   int        `json:"attempts" gorm:"default:0"`
	LastError  string     `json:"lastError,omitempty" gorm:"type:text"`
	CreatedAt  time.Time  `json:"createdAt"`
	AppliedAt  *time.Time `json:"appliedAt"`
}

// ParseOperation decodes the stored operation payload.
func (p *PendingCartOperation) ParseOperation() (CartOperation, error) {
	var op CartOperation
	err := json.Unmarshal(p.Operation, &op)
	return op, err
}

// BeforeCreate assigns an ID when the database default is not in play.
func (p *PendingCartOperation) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
