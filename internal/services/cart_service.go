package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ovs-innovation/farmcy-kart-sub001/internal/models"
)

// Cart-level sentinel errors.
var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("item not found in cart")
)

// CartExpirationDays is how long an inactive cart is kept.
const CartExpirationDays = 90

// CartRepositoryInterface is the persistence collaborator for server carts.
type CartRepositoryInterface interface {
	GetCart(ctx context.Context, tenantID string, customerID uuid.UUID) (*models.CustomerCart, error)
	SaveCart(ctx context.Context, cart *models.CustomerCart) error
	DeleteCart(ctx context.Context, tenantID string, customerID uuid.UUID) error
	ApplyOperation(ctx context.Context, tenantID string, customerID uuid.UUID, op models.CartOperation) error
	EnqueueOperations(ctx context.Context, tenantID string, customerID uuid.UUID, ops []models.CartOperation) error
}

// CartEventPublisher publishes cart lifecycle events. Nil-safe collaborator.
type CartEventPublisher interface {
	PublishCartUpdated(ctx context.Context, tenantID string, customerID uuid.UUID, itemCount int, subtotal float64) error
	PublishCartReconciled(ctx context.Context, tenantID string, customerID uuid.UUID, mergedLines, pendingOps, skipped int) error
}

// CartView is a cart with freshly resolved prices. Stored price snapshots
// are for display continuity only; totals always come from the resolver.
type CartView struct {
	CartID     uuid.UUID         `json:"cartId"`
	BuyerClass models.BuyerClass `json:"buyerClass"`
	Items      []PricedItem      `json:"items"`
	Subtotal   float64           `json:"subtotal"`
	TaxTotal   float64           `json:"taxTotal"`
	Total      float64           `json:"total"`
	ExpiresAt  *time.Time        `json:"expiresAt"`
}

// PricedItem is a cart line with its current pricing computation.
type PricedItem struct {
	models.CartItem
	Pricing models.PricingResult `json:"pricing"`
}

// CartService owns authenticated cart mutations. It enforces minimum order
// quantities and retail stock caps at mutation time and recomputes prices
// through the resolver on every read.
type CartService struct {
	repo       CartRepositoryInterface
	products   ProductGetter
	resolver   *PriceResolver
	reconciler *CartReconciler
	publisher  CartEventPublisher
	logger     *logrus.Entry
}

// NewCartService creates a cart service.
func NewCartService(repo CartRepositoryInterface, products ProductGetter, resolver *PriceResolver, reconciler *CartReconciler, publisher CartEventPublisher, logger *logrus.Logger) *CartService {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	return &CartService{
		repo:       repo,
		products:   products,
		resolver:   resolver,
		reconciler: reconciler,
		publisher:  publisher,
		logger:     logger.WithField("component", "cart-service"),
	}
}

// GetCart returns the cart with prices recomputed for the buyer class.
// Lines whose product no longer resolves are priced at zero and marked
// unavailable; they are never a hard failure.
func (s *CartService) GetCart(ctx context.Context, tenantID string, customerID uuid.UUID, buyer models.BuyerClass) (*CartView, error) {
	cart, err := s.repo.GetCart(ctx, tenantID, customerID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return &CartView{BuyerClass: buyer, Items: []PricedItem{}}, nil
		}
		return nil, fmt.Errorf("failed to fetch cart: %w", err)
	}

	items, err := cart.ParseItems()
	if err != nil {
		return nil, fmt.Errorf("failed to parse cart items: %w", err)
	}

	view := &CartView{
		CartID:     cart.ID,
		BuyerClass: buyer,
		Items:      make([]PricedItem, 0, len(items)),
		ExpiresAt:  cart.ExpiresAt,
	}

	for _, item := range items {
		priced := PricedItem{CartItem: item}
		product, lookupErr := s.products.GetProduct(ctx, tenantID, item.BaseProductID())
		if lookupErr != nil || product == nil {
			priced.Status = models.CartItemStatusUnavailable
			s.logger.WithFields(logrus.Fields{
				"tenantId":  tenantID,
				"productId": item.ProductID,
			}).Warn("Cart line product did not resolve; pricing zeroed")
		} else {
			priced.Pricing = s.resolver.Resolve(product, item.VariantDescriptor(), item.Quantity, buyer)
			priced.Price = priced.Pricing.UnitPrice
			if stock, capped := s.resolver.AvailableStock(product, item.VariantDescriptor(), buyer); capped {
				priced.AvailableStock = stock
				if stock < item.Quantity {
					priced.Status = models.CartItemStatusOutOfStock
				}
			}
		}
		view.Subtotal += priced.Pricing.UnitPrice * float64(item.Quantity)
		view.TaxTotal += priced.Pricing.TaxAmount
		view.Items = append(view.Items, priced)
	}

	view.Subtotal = Round2(view.Subtotal)
	view.TaxTotal = Round2(view.TaxTotal)
	view.Total = Round2(view.Subtotal + view.TaxTotal)
	return view, nil
}

// AddItem adds quantity units of a product to the cart, rejecting additions
// below the wholesale minimum or above the retail stock cap.
func (s *CartService) AddItem(ctx context.Context, tenantID string, customerID uuid.UUID, newItem models.CartItem, buyer models.BuyerClass) (*CartView, error) {
	product, err := s.products.GetProduct(ctx, tenantID, newItem.BaseProductID())
	if err != nil || product == nil {
		return nil, fmt.Errorf("product not found: %s", newItem.ProductID)
	}

	cart, items, err := s.loadOrCreateCart(ctx, tenantID, customerID, buyer)
	if err != nil {
		return nil, err
	}

	// Merge with an existing line for the same product/variant.
	targetQty := newItem.Quantity
	for _, item := range items {
		if item.Key() == newItem.Key() {
			targetQty += item.Quantity
			break
		}
	}
	if err := s.resolver.CheckQuantity(product, newItem.VariantDescriptor(), targetQty, buyer); err != nil {
		return nil, err
	}

	now := time.Now()
	newItem.Price = s.resolver.UnitPrice(product, newItem.VariantDescriptor(), buyer)
	if newItem.PriceAtAdd == 0 {
		newItem.PriceAtAdd = newItem.Price
	}
	if newItem.Name == "" {
		newItem.Name = product.Name
	}
	if newItem.ID == "" {
		newItem.ID = uuid.New().String()
	}
	newItem.Status = models.CartItemStatusAvailable
	newItem.AddedAt = &now

	found := false
	for i := range items {
		if items[i].Key() == newItem.Key() {
			items[i].Quantity = targetQty
			items[i].Price = newItem.Price
			found = true
			break
		}
	}
	if !found {
		newItem.Quantity = targetQty
		items = append(items, newItem)
	}

	if err := s.persistItems(ctx, cart, items, buyer); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, tenantID, customerID, buyer)
}

// UpdateItemQuantity sets an absolute quantity for a cart line. Zero
// removes the line; values below the effective minimum or above the retail
// stock cap are rejected.
func (s *CartService) UpdateItemQuantity(ctx context.Context, tenantID string, customerID uuid.UUID, itemID string, quantity int, buyer models.BuyerClass) (*CartView, error) {
	cart, err := s.repo.GetCart(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	items, err := cart.ParseItems()
	if err != nil {
		return nil, fmt.Errorf("failed to parse cart items: %w", err)
	}

	found := false
	updated := make([]models.CartItem, 0, len(items))
	for _, item := range items {
		if item.ID != itemID {
			updated = append(updated, item)
			continue
		}
		found = true
		if quantity <= 0 {
			continue // removal
		}
		product, lookupErr := s.products.GetProduct(ctx, tenantID, item.BaseProductID())
		if lookupErr != nil || product == nil {
			return nil, fmt.Errorf("product not found: %s", item.ProductID)
		}
		if err := s.resolver.CheckQuantity(product, item.VariantDescriptor(), quantity, buyer); err != nil {
			return nil, err
		}
		item.Quantity = quantity
		item.Price = s.resolver.UnitPrice(product, item.VariantDescriptor(), buyer)
		updated = append(updated, item)
	}
	if !found {
		return nil, ErrItemNotFound
	}

	if err := s.persistItems(ctx, cart, updated, buyer); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, tenantID, customerID, buyer)
}

// RemoveItem removes a line from the cart.
func (s *CartService) RemoveItem(ctx context.Context, tenantID string, customerID uuid.UUID, itemID string, buyer models.BuyerClass) (*CartView, error) {
	return s.UpdateItemQuantity(ctx, tenantID, customerID, itemID, 0, buyer)
}

// ClearCart removes the cart entirely (checkout-complete or explicit clear).
func (s *CartService) ClearCart(ctx context.Context, tenantID string, customerID uuid.UUID) error {
	return s.repo.DeleteCart(ctx, tenantID, customerID)
}

// MergeLocalCart reconciles the client's local cart against the server
// snapshot on login, persists the merged cart and queues the emitted
// persistence operations for the sync worker.
func (s *CartService) MergeLocalCart(ctx context.Context, tenantID string, customerID uuid.UUID, localItems []models.CartItem, buyer models.BuyerClass) (*ReconcileResult, error) {
	var serverItems []models.CartItem

	cart, err := s.repo.GetCart(ctx, tenantID, customerID)
	if err != nil && !errors.Is(err, ErrCartNotFound) {
		return nil, fmt.Errorf("failed to fetch cart: %w", err)
	}
	if cart != nil {
		serverItems, err = cart.ParseItems()
		if err != nil {
			// A malformed server snapshot never blocks the merge.
			s.logger.WithFields(logrus.Fields{
				"tenantId":   tenantID,
				"customerId": customerID,
			}).WithError(err).Warn("Ignoring unparseable server cart items")
			serverItems = nil
		}
	}

	result, err := s.reconciler.Reconcile(ctx, tenantID, customerID.String(), serverItems, localItems, buyer)
	if err != nil {
		return nil, err
	}

	if cart == nil {
		cart = &models.CustomerCart{
			CustomerID: customerID,
			TenantID:   tenantID,
		}
	}
	now := time.Now()
	cart.BuyerClass = buyer
	cart.ReconciledAt = &now
	if err := s.persistItems(ctx, cart, result.Merged, buyer); err != nil {
		return nil, err
	}

	if len(result.PendingOps) > 0 {
		if err := s.repo.EnqueueOperations(ctx, tenantID, customerID, result.PendingOps); err != nil {
			return nil, fmt.Errorf("failed to queue cart operations: %w", err)
		}
	}

	if s.publisher != nil {
		_ = s.publisher.PublishCartReconciled(ctx, tenantID, customerID, len(result.Merged), len(result.PendingOps), result.SkippedServerLines)
	}
	return result, nil
}

func (s *CartService) loadOrCreateCart(ctx context.Context, tenantID string, customerID uuid.UUID, buyer models.BuyerClass) (*models.CustomerCart, []models.CartItem, error) {
	cart, err := s.repo.GetCart(ctx, tenantID, customerID)
	if errors.Is(err, ErrCartNotFound) {
		return &models.CustomerCart{
			CustomerID: customerID,
			TenantID:   tenantID,
			BuyerClass: buyer,
		}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch cart: %w", err)
	}
	items, err := cart.ParseItems()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse cart items: %w", err)
	}
	return cart, items, nil
}

// persistItems writes items and derived totals back to the cart row and
// extends its expiration.
func (s *CartService) persistItems(ctx context.Context, cart *models.CustomerCart, items []models.CartItem, buyer models.BuyerClass) error {
	now := time.Now()

	var subtotal float64
	var itemCount int
	for _, item := range items {
		subtotal += item.Price * float64(item.Quantity)
		itemCount += item.Quantity
	}

	if err := cart.SetItems(items); err != nil {
		return fmt.Errorf("failed to serialize cart items: %w", err)
	}
	cart.Subtotal = Round2(subtotal)
	cart.ItemCount = itemCount
	cart.LastItemChange = now
	expiresAt := now.Add(CartExpirationDays * 24 * time.Hour)
	cart.ExpiresAt = &expiresAt

	if err := s.repo.SaveCart(ctx, cart); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}

	if s.publisher != nil {
		_ = s.publisher.PublishCartUpdated(ctx, cart.TenantID, cart.CustomerID, itemCount, cart.Subtotal)
	}
	return nil
}
