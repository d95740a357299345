package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/ovs-innovation/farmcy-kart-sub001/internal/models"
)

// ProductGetter looks up a product record for a tenant. The catalog is an
// external collaborator; a nil product (or error) means the reference does
// not resolve.
type ProductGetter interface {
	GetProduct(ctx context.Context, tenantID, productID string) (*models.Product, error)
}

// ReconcileResult is the outcome of merging a local cart with the server
// snapshot: the merged cart plus the persistence operations required to
// bring the server in sync. The reconciler performs no I/O itself.
type ReconcileResult struct {
	Merged     []models.CartItem
	PendingOps []models.CartOperation

	// SkippedServerLines counts server lines dropped due to variant
	// collisions or unresolvable product references.
	SkippedServerLines int
}

// CartReconciler merges a client-side local cart against the server
// snapshot once per login transition. Merge policy: the server may only
// raise a quantity, never lower one ("never lose user intent"), and a local
// variant selection supersedes the server's bare base-product line.
type CartReconciler struct {
	products ProductGetter
	resolver *PriceResolver
	logger   *logrus.Entry

	// Concurrent reconciles for the same buyer are collapsed into one:
	// interleaved merges could double-count CREATE ops.
	group singleflight.Group
}

// NewCartReconciler creates a cart reconciler.
func NewCartReconciler(products ProductGetter, resolver *PriceResolver, logger *logrus.Logger) *CartReconciler {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	return &CartReconciler{
		products: products,
		resolver: resolver,
		logger:   logger.WithField("component", "cart-reconciler"),
	}
}

// Reconcile merges the server snapshot into the local cart for one buyer.
// Idempotent: feeding the merged cart back in with the same snapshot leaves
// it unchanged. Calls for the same tenant/customer key are single-flighted;
// a caller arriving while a merge is in flight receives that merge's result.
func (r *CartReconciler) Reconcile(ctx context.Context, tenantID, customerID string, server, local []models.CartItem, buyer models.BuyerClass) (*ReconcileResult, error) {
	key := tenantID + ":" + customerID
	v, err, shared := r.group.Do(key, func() (interface{}, error) {
		return r.merge(ctx, tenantID, server, local, buyer), nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.WithFields(logrus.Fields{
			"tenantId":   tenantID,
			"customerId": customerID,
		}).Info("Concurrent reconcile collapsed into in-flight merge")
	}
	return v.(*ReconcileResult), nil
}

func (r *CartReconciler) merge(ctx context.Context, tenantID string, server, local []models.CartItem, buyer models.BuyerClass) *ReconcileResult {
	result := &ReconcileResult{
		Merged: make([]models.CartItem, 0, len(local)+len(server)),
	}

	serverByKey := make(map[string]models.CartItem, len(server))
	for _, line := range server {
		serverByKey[line.Key()] = line
	}

	// Base product ids covered by a local variant selection. A server line
	// for the bare base product is presumed superseded by the more specific
	// local choice and must not be re-materialized.
	localVariantBases := make(map[string]bool)
	localKeys := make(map[string]bool, len(local))
	for _, line := range local {
		localKeys[line.Key()] = true
		if line.IsVariant() {
			localVariantBases[line.BaseProductID()] = true
		}
	}

	// Pass 1: local lines. The local cart is the primary source of user
	// intent; the server may only raise quantities.
	for _, line := range local {
		serverLine, onServer := serverByKey[line.Key()]
		switch {
		case !onServer:
			result.Merged = append(result.Merged, line)
			result.PendingOps = append(result.PendingOps, models.CartOperation{
				Type:      models.CartOpCreate,
				ProductID: line.ProductID,
				VariantID: line.VariantID,
				Quantity:  line.Quantity,
				UnitPrice: line.Price,
				Name:      line.Name,
			})
		case serverLine.Quantity > line.Quantity:
			// Another device or an admin increased the order; adopt it.
			r.logger.WithFields(logrus.Fields{
				"tenantId":  tenantID,
				"productId": line.ProductID,
				"localQty":  line.Quantity,
				"serverQty": serverLine.Quantity,
			}).Info("Adopting higher server quantity")
			line.Quantity = serverLine.Quantity
			result.Merged = append(result.Merged, line)
		default:
			// Server is a low-water-mark, not ground truth: it never
			// reduces what the user staged locally. The stale server
			// quantity still needs a write-back so the op list alone is
			// enough to bring the server in sync.
			if serverLine.Quantity < line.Quantity {
				r.logger.WithFields(logrus.Fields{
					"tenantId":  tenantID,
					"productId": line.ProductID,
					"localQty":  line.Quantity,
					"serverQty": serverLine.Quantity,
				}).Info("Keeping local quantity over lower server value")
				result.PendingOps = append(result.PendingOps, models.CartOperation{
					Type:      models.CartOpSetQuantity,
					ProductID: line.ProductID,
					VariantID: line.VariantID,
					Quantity:  line.Quantity,
				})
			}
			result.Merged = append(result.Merged, line)
		}
	}

	// Pass 2: server-only lines are materialized locally. The server is
	// already authoritative for these, so no op is emitted.
	for _, line := range server {
		if localKeys[line.Key()] {
			continue
		}
		if localVariantBases[line.BaseProductID()] {
			result.SkippedServerLines++
			r.logger.WithFields(logrus.Fields{
				"tenantId":  tenantID,
				"productId": line.ProductID,
				"reason":    "variant-collision",
			}).Info("Reconciliation skipped server line")
			continue
		}

		materialized, err := r.materialize(ctx, tenantID, line, buyer)
		if err != nil {
			result.SkippedServerLines++
			r.logger.WithFields(logrus.Fields{
				"tenantId":  tenantID,
				"productId": line.ProductID,
				"reason":    "invalid-product-reference",
			}).WithError(err).Warn("Reconciliation skipped server line")
			continue
		}
		result.Merged = append(result.Merged, materialized)
	}

	return result
}

// materialize turns a server-only line into a local cart line, resolving
// the effective unit price once at merge time so the display price does not
// flash while full product data loads.
func (r *CartReconciler) materialize(ctx context.Context, tenantID string, line models.CartItem, buyer models.BuyerClass) (models.CartItem, error) {
	product, err := r.products.GetProduct(ctx, tenantID, line.BaseProductID())
	if err != nil {
		return models.CartItem{}, fmt.Errorf("product lookup failed: %w", err)
	}
	if product == nil {
		return models.CartItem{}, fmt.Errorf("product not found: %s", line.ProductID)
	}

	now := time.Now()
	line.Price = r.resolver.UnitPrice(product, line.VariantDescriptor(), buyer)
	if line.PriceAtAdd == 0 {
		line.PriceAtAdd = line.Price
	}
	if line.Name == "" {
		line.Name = product.Name
	}
	if line.Status == "" {
		line.Status = models.CartItemStatusAvailable
	}
	line.LastValidatedAt = &now
	return line, nil
}
