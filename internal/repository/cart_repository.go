// Package repository handles cart persistence and the reconciliation
// operation queue.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/Tesseract-Nexus/go-shared/cache"
	"gorm.io/gorm"

	"github.com/ovs-innovation/farmcy-kart-sub001/internal/models"
	"github.com/ovs-innovation/farmcy-kart-sub001/internal/services"
)

// Cache TTL constants for carts
const (
	CartCacheTTL = 2 * time.Minute // carts change frequently

	// MaxOperationAttempts is how many times the sync worker retries a
	// queued operation before parking it for inspection.
	MaxOperationAttempts = 5
)

// CartRepository handles server cart data operations with optional Redis
// read caching.
type CartRepository struct {
	db    *gorm.DB
	redis *redis.Client
	cache *cache.CacheLayer
}

// Ensure CartRepository implements the service-facing interface
var _ services.CartRepositoryInterface = (*CartRepository)(nil)

// NewCartRepository creates a new cart repository with optional Redis caching
func NewCartRepository(db *gorm.DB, redisClient *redis.Client) *CartRepository {
	repo := &CartRepository{
		db:    db,
		redis: redisClient,
	}

	if redisClient != nil {
		cacheConfig := cache.CacheConfig{
			L1Enabled:  true,
			L1MaxItems: 5000,
			L1TTL:      30 * time.Second,
			DefaultTTL: CartCacheTTL,
			KeyPrefix:  "farmcy:carts:",
		}
		repo.cache = cache.NewCacheLayerFromClient(redisClient, cacheConfig)
	}

	return repo
}

func cartCacheKey(tenantID string, customerID uuid.UUID) string {
	return fmt.Sprintf("cart:%s:%s", tenantID, customerID.String())
}

// GetCart fetches the cart for a customer, read-through cached.
func (r *CartRepository) GetCart(ctx context.Context, tenantID string, customerID uuid.UUID) (*models.CustomerCart, error) {
	if r.cache != nil {
		var cart models.CustomerCart
		err := r.cache.GetOrSetJSON(ctx, cartCacheKey(tenantID, customerID), &cart, CartCacheTTL, func() (any, error) {
			var c models.CustomerCart
			if err := r.db.WithContext(ctx).
				Where("customer_id = ? AND tenant_id = ?", customerID, tenantID).
				First(&c).Error; err != nil {
				return nil, err
			}
			return &c, nil
		})
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, services.ErrCartNotFound
			}
			return nil, fmt.Errorf("failed to fetch cart: %w", err)
		}
		return &cart, nil
	}

	var cart models.CustomerCart
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND tenant_id = ?", customerID, tenantID).
		First(&cart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to fetch cart: %w", err)
	}
	return &cart, nil
}

// SaveCart upserts the cart row and invalidates its cache entry.
func (r *CartRepository) SaveCart(ctx context.Context, cart *models.CustomerCart) error {
	var err error
	if cart.ID == uuid.Nil {
		err = r.db.WithContext(ctx).Create(cart).Error
	} else {
		err = r.db.WithContext(ctx).Save(cart).Error
	}
	if err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	r.invalidate(ctx, cart.TenantID, cart.CustomerID)
	return nil
}

// DeleteCart removes the cart row (checkout-complete or explicit clear).
func (r *CartRepository) DeleteCart(ctx context.Context, tenantID string, customerID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND tenant_id = ?", customerID, tenantID).
		Delete(&models.CustomerCart{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	r.invalidate(ctx, tenantID, customerID)
	return nil
}

// ApplyOperation applies one reconciliation op to the stored cart. Ops
// carry absolute values, so re-applying any of them is a no-op with the
// same outcome (at-least-once delivery safe):
//   - CREATE inserts the line only if its key is absent
//   - SET_QUANTITY writes an absolute quantity
//   - REMOVE deletes the line
func (r *CartRepository) ApplyOperation(ctx context.Context, tenantID string, customerID uuid.UUID, op models.CartOperation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cart models.CustomerCart
		err := tx.Where("customer_id = ? AND tenant_id = ?", customerID, tenantID).First(&cart).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if op.Type != models.CartOpCreate {
				return nil // nothing to update or remove
			}
			cart = models.CustomerCart{
				CustomerID: customerID,
				TenantID:   tenantID,
			}
		} else if err != nil {
			return fmt.Errorf("failed to fetch cart: %w", err)
		}

		items, parseErr := cart.ParseItems()
		if parseErr != nil {
			return fmt.Errorf("failed to parse cart items: %w", parseErr)
		}

		now := time.Now()
		switch op.Type {
		case models.CartOpCreate:
			for _, item := range items {
				if item.Key() == op.Key() {
					return nil // already present; re-apply must not double
				}
			}
			items = append(items, models.CartItem{
				ID:         uuid.New().String(),
				ProductID:  op.ProductID,
				VariantID:  op.VariantID,
				Name:       op.Name,
				Price:      op.UnitPrice,
				PriceAtAdd: op.UnitPrice,
				Quantity:   op.Quantity,
				Status:     models.CartItemStatusAvailable,
				AddedAt:    &now,
			})
		case models.CartOpSetQuantity:
			for i := range items {
				if items[i].Key() == op.Key() {
					items[i].Quantity = op.Quantity
					break
				}
			}
		case models.CartOpRemove:
			kept := items[:0]
			for _, item := range items {
				if item.Key() != op.Key() {
					kept = append(kept, item)
				}
			}
			items = kept
		default:
			return fmt.Errorf("unknown cart operation type: %s", op.Type)
		}

		var subtotal float64
		var itemCount int
		for _, item := range items {
			subtotal += item.Price * float64(item.Quantity)
			itemCount += item.Quantity
		}

		if err := cart.SetItems(items); err != nil {
			return fmt.Errorf("failed to serialize cart items: %w", err)
		}
		cart.Subtotal = subtotal
		cart.ItemCount = itemCount
		cart.LastItemChange = now

		if cart.ID == uuid.Nil {
			if err := tx.Create(&cart).Error; err != nil {
				return fmt.Errorf("failed to create cart: %w", err)
			}
		} else if err := tx.Save(&cart).Error; err != nil {
			return fmt.Errorf("failed to update cart: %w", err)
		}

		r.invalidate(ctx, tenantID, customerID)
		return nil
	})
}

// EnqueueOperations stores reconciliation ops for the sync worker.
func (r *CartRepository) EnqueueOperations(ctx context.Context, tenantID string, customerID uuid.UUID, ops []models.CartOperation) error {
	rows := make([]models.PendingCartOperation, 0, len(ops))
	for _, op := range ops {
		payload, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("failed to serialize operation: %w", err)
		}
		rows = append(rows, models.PendingCartOperation{
			TenantID:   tenantID,
			CustomerID: customerID,
			Operation:  models.JSONB(payload),
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to enqueue cart operations: %w", err)
	}
	return nil
}

// FetchPendingOperations returns unapplied ops that have not exhausted
// their retry budget, oldest first.
func (r *CartRepository) FetchPendingOperations(ctx context.Context, limit int) ([]models.PendingCartOperation, error) {
	var rows []models.PendingCartOperation
	err := r.db.WithContext(ctx).
		Where("applied_at IS NULL AND attempts < ?", MaxOperationAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending operations: %w", err)
	}
	return rows, nil
}

// MarkOperationApplied stamps a queued op as applied.
func (r *CartRepository) MarkOperationApplied(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.PendingCartOperation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"applied_at": now}).Error
}

// RecordOperationFailure increments the attempt counter and stores the
// last error for observability.
func (r *CartRepository) RecordOperationFailure(ctx context.Context, id uuid.UUID, cause error) error {
	return r.db.WithContext(ctx).
		Model(&models.PendingCartOperation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause.Error(),
		}).Error
}

// UpdateProductPrice updates the stored price snapshot of a product across
// all carts of a tenant (driven by product events). Snapshots are display
// hints; totals are recomputed on read regardless.
func (r *CartRepository) UpdateProductPrice(ctx context.Context, tenantID, productID string, newPrice float64) error {
	var carts []models.CustomerCart
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND items @> ?", tenantID, fmt.Sprintf(`[{"productId":"%s"}]`, productID)).
		Find(&carts).Error; err != nil {
		return fmt.Errorf("failed to find carts: %w", err)
	}

	now := time.Now()
	for _, cart := range carts {
		items, err := cart.ParseItems()
		if err != nil {
			continue
		}

		updated := false
		for i := range items {
			if items[i].ProductID == productID {
				if items[i].PriceAtAdd > 0 && items[i].PriceAtAdd != newPrice {
					items[i].Status = models.CartItemStatusPriceChanged
				}
				items[i].Price = newPrice
				items[i].LastValidatedAt = &now
				updated = true
			}
		}
		if !updated {
			continue
		}

		var subtotal float64
		for _, item := range items {
			subtotal += item.Price * float64(item.Quantity)
		}
		if err := cart.SetItems(items); err != nil {
			continue
		}
		r.db.WithContext(ctx).Model(&cart).Updates(map[string]interface{}{
			"items":            cart.Items,
			"subtotal":         subtotal,
			"last_item_change": now,
		})
		r.invalidate(ctx, tenantID, cart.CustomerID)
	}
	return nil
}

// MarkProductStatus flags a product's lines across all carts of a tenant
// (unavailable, out of stock) without touching quantities.
func (r *CartRepository) MarkProductStatus(ctx context.Context, tenantID, productID string, status models.CartItemStatus) error {
	var carts []models.CustomerCart
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND items @> ?", tenantID, fmt.Sprintf(`[{"productId":"%s"}]`, productID)).
		Find(&carts).Error; err != nil {
		return fmt.Errorf("failed to find carts: %w", err)
	}

	now := time.Now()
	for _, cart := range carts {
		items, err := cart.ParseItems()
		if err != nil {
			continue
		}
		updated := false
		for i := range items {
			if items[i].ProductID == productID {
				items[i].Status = status
				items[i].LastValidatedAt = &now
				updated = true
			}
		}
		if !updated {
			continue
		}
		if err := cart.SetItems(items); err != nil {
			continue
		}
		r.db.WithContext(ctx).Model(&cart).Updates(map[string]interface{}{
			"items": cart.Items,
		})
		r.invalidate(ctx, tenantID, cart.CustomerID)
	}
	return nil
}

// RemoveExpiredCarts deletes carts past their expiration.
func (r *CartRepository) RemoveExpiredCarts(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", time.Now()).
		Delete(&models.CustomerCart{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired carts: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RedisHealth returns the health status of the Redis connection.
func (r *CartRepository) RedisHealth(ctx context.Context) error {
	if r.redis == nil {
		return fmt.Errorf("redis not configured")
	}
	return r.redis.Ping(ctx).Err()
}

func (r *CartRepository) invalidate(ctx context.Context, tenantID string, customerID uuid.UUID) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, cartCacheKey(tenantID, customerID))
}
