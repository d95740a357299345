package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"

	"github.com/ovs-innovation/farmcy-kart-sub001/internal/clients"
	"github.com/ovs-innovation/farmcy-kart-sub001/internal/models"
	"github.com/ovs-innovation/farmcy-kart-sub001/internal/repository"
)

// ProductEventSubscriber listens for product and inventory changes and
// keeps stored carts and the product cache consistent with the catalog.
type ProductEventSubscriber struct {
	js           jetstream.JetStream
	carts        *repository.CartRepository
	products     *clients.ProductsClient
	consumerName string
	logger       *logrus.Entry
}

// ProductEvent represents a product change event.
type ProductEvent struct {
	EventType string    `json:"eventType"`
	TenantID  string    `json:"tenantId"`
	Timestamp time.Time `json:"timestamp"`
	ProductID string    `json:"productId"`
	Name      string    `json:"name,omitempty"`
	Price     float64   `json:"price,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// InventoryEvent represents an inventory change event.
type InventoryEvent struct {
	EventType string          `json:"eventType"`
	TenantID  string          `json:"tenantId"`
	Timestamp time.Time       `json:"timestamp"`
	Items     []InventoryItem `json:"items"`
}

// InventoryItem represents a product with stock info.
type InventoryItem struct {
	ProductID    string `json:"productId"`
	SKU          string `json:"sku"`
	CurrentStock int    `json:"currentStock"`
}

// NewProductEventSubscriber creates a new product event subscriber.
func NewProductEventSubscriber(carts *repository.CartRepository, products *clients.ProductsClient, logger *logrus.Logger) (*ProductEventSubscriber, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://nats.devtest.svc.cluster.local:4222"
	}

	entry := logger.WithField("component", "product-subscriber")

	nc, err := nats.Connect(natsURL,
		nats.Name("cart-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectBufSize(8*1024*1024),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			entry.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			entry.WithError(err).Warn("NATS disconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			entry.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			entry.WithError(err).Error("NATS error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	hostname, _ := os.Hostname()
	consumerName := fmt.Sprintf("cart-service-%s", hostname)

	return &ProductEventSubscriber{
		js:           js,
		carts:        carts,
		products:     products,
		consumerName: consumerName,
		logger:       entry,
	}, nil
}

// Start begins listening for product and inventory events.
func (s *ProductEventSubscriber) Start(ctx context.Context) error {
	if err := s.ensureStreams(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to ensure streams")
	}

	go s.consume(ctx, "PRODUCT_EVENTS", "product.>", s.consumerName+"-products", s.handleProductEvent)
	go s.consume(ctx, "INVENTORY_EVENTS", "inventory.>", s.consumerName+"-inventory", s.handleInventoryEvent)

	s.logger.Info("Product event subscriber started")
	return nil
}

// ensureStreams ensures the required streams exist.
func (s *ProductEventSubscriber) ensureStreams(ctx context.Context) error {
	for _, sc := range []jetstream.StreamConfig{
		{
			Name:      "PRODUCT_EVENTS",
			Subjects:  []string{"product.>"},
			Retention: jetstream.LimitsPolicy,
			MaxAge:    24 * time.Hour * 7,
			Storage:   jetstream.FileStorage,
			Replicas:  1,
		},
		{
			Name:      "INVENTORY_EVENTS",
			Subjects:  []string{"inventory.>"},
			Retention: jetstream.LimitsPolicy,
			MaxAge:    24 * time.Hour * 7,
			Storage:   jetstream.FileStorage,
			Replicas:  1,
		},
	} {
		if _, err := s.js.CreateOrUpdateStream(ctx, sc); err != nil {
			s.logger.WithError(err).WithField("stream", sc.Name).Warn("Could not create stream")
		}
	}
	return nil
}

// consume runs a durable pull consumer loop for one stream.
func (s *ProductEventSubscriber) consume(ctx context.Context, stream, subject, durable string, handle func(context.Context, jetstream.Msg) error) {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		s.logger.WithError(err).WithField("stream", stream).Warn("Failed to create consumer")
		return
	}

	msgs, err := consumer.Messages()
	if err != nil {
		s.logger.WithError(err).WithField("stream", stream).Warn("Failed to get messages iterator")
		return
	}

	for {
		select {
		case <-ctx.Done():
			msgs.Stop()
			return
		default:
			msg, err := msgs.Next()
			if err != nil {
				if err == context.Canceled {
					return
				}
				s.logger.WithError(err).WithField("stream", stream).Error("Error getting next message")
				time.Sleep(time.Second)
				continue
			}

			if err := handle(ctx, msg); err != nil {
				s.logger.WithError(err).WithField("stream", stream).Error("Error handling event")
				msg.Nak()
			} else {
				msg.Ack()
			}
		}
	}
}

// handleProductEvent processes a product event.
func (s *ProductEventSubscriber) handleProductEvent(ctx context.Context, msg jetstream.Msg) error {
	var event ProductEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		return fmt.Errorf("failed to unmarshal product event: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"eventType": event.EventType,
		"productId": event.ProductID,
		"tenantId":  event.TenantID,
	}).Info("Processing product event")

	// Cached catalog data for this product is stale either way.
	s.products.Invalidate(event.TenantID, event.ProductID)

	switch event.EventType {
	case "product.deleted", "product.archived":
		if err := s.carts.MarkProductStatus(ctx, event.TenantID, event.ProductID, models.CartItemStatusUnavailable); err != nil {
			return fmt.Errorf("failed to mark product unavailable: %w", err)
		}

	case "product.updated":
		if event.Price > 0 {
			if err := s.carts.UpdateProductPrice(ctx, event.TenantID, event.ProductID, event.Price); err != nil {
				return fmt.Errorf("failed to update product price: %w", err)
			}
		}
		if event.Status == "DRAFT" || event.Status == "ARCHIVED" {
			if err := s.carts.MarkProductStatus(ctx, event.TenantID, event.ProductID, models.CartItemStatusUnavailable); err != nil {
				return fmt.Errorf("failed to mark product unavailable: %w", err)
			}
		}
	}

	return nil
}

// handleInventoryEvent processes an inventory event.
func (s *ProductEventSubscriber) handleInventoryEvent(ctx context.Context, msg jetstream.Msg) error {
	var event InventoryEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		return fmt.Errorf("failed to unmarshal inventory event: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"eventType": event.EventType,
		"tenantId":  event.TenantID,
		"items":     len(event.Items),
	}).Info("Processing inventory event")

	switch event.EventType {
	case "inventory.out_of_stock":
		for _, item := range event.Items {
			s.products.Invalidate(event.TenantID, item.ProductID)
			if err := s.carts.MarkProductStatus(ctx, event.TenantID, item.ProductID, models.CartItemStatusOutOfStock); err != nil {
				s.logger.WithError(err).WithField("productId", item.ProductID).Warn("Failed to mark item out of stock")
			}
		}

	case "inventory.restocked":
		// Drop cached product data; prices and stock caps are re-resolved
		// on the next cart read.
		for _, item := range event.Items {
			s.products.Invalidate(event.TenantID, item.ProductID)
			if err := s.carts.MarkProductStatus(ctx, event.TenantID, item.ProductID, models.CartItemStatusAvailable); err != nil {
				s.logger.WithError(err).WithField("productId", item.ProductID).Warn("Failed to mark item available")
			}
		}
	}

	return nil
}
