package events

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StreamCarts is the JetStream stream holding cart lifecycle events.
const StreamCarts = "CART_EVENTS"

// Cart event types.
const (
	CartUpdated    = "cart.updated"
	CartReconciled = "cart.reconciled"
)

// Publisher wraps the go-shared events publisher for cart-specific events
type Publisher struct {
	publisher *events.Publisher
	logger    *logrus.Entry
}

// NewPublisher creates a new cart events publisher
func NewPublisher(logger *logrus.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://nats.nats.svc.cluster.local:4222"
	}

	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "cart-service"

	publisher, err := events.NewPublisher(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create events publisher: %w", err)
	}

	// Ensure the carts stream exists
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := publisher.EnsureStream(ctx, StreamCarts, []string{"cart.>"}); err != nil {
		logger.WithError(err).Warn("Failed to ensure carts stream (may already exist)")
	}

	return &Publisher{
		publisher: publisher,
		logger:    logger.WithField("component", "cart-events"),
	}, nil
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	if p.publisher != nil {
		p.publisher.Close()
	}
}

// PublishCartUpdated publishes a cart.updated event after any cart mutation.
func (p *Publisher) PublishCartUpdated(ctx context.Context, tenantID string, customerID uuid.UUID, itemCount int, subtotal float64) error {
	event := events.NewCustomerEvent(CartUpdated, tenantID)
	event.SourceID = uuid.New().String()
	event.CustomerID = customerID.String()
	event.Metadata = map[string]interface{}{
		"itemCount": itemCount,
		"subtotal":  subtotal,
	}
	return p.publish(ctx, event)
}

// PublishCartReconciled publishes a cart.reconciled event after a login merge.
func (p *Publisher) PublishCartReconciled(ctx context.Context, tenantID string, customerID uuid.UUID, mergedLines, pendingOps, skipped int) error {
	event := events.NewCustomerEvent(CartReconciled, tenantID)
	event.SourceID = uuid.New().String()
	event.CustomerID = customerID.String()
	event.Metadata = map[string]interface{}{
		"mergedLines": mergedLines,
		"pendingOps":  pendingOps,
		"skipped":     skipped,
	}
	return p.publish(ctx, event)
}

// publish is a helper that logs and publishes events asynchronously
func (p *Publisher) publish(ctx context.Context, event *events.CustomerEvent) error {
	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := p.publisher.Publish(pubCtx, event); err != nil {
			p.logger.WithFields(logrus.Fields{
				"eventType":  event.EventType,
				"customerID": event.CustomerID,
				"tenantID":   event.TenantID,
			}).WithError(err).Error("Failed to publish cart event")
		} else {
			p.logger.WithFields(logrus.Fields{
				"eventType":  event.EventType,
				"customerID": event.CustomerID,
				"tenantID":   event.TenantID,
			}).Info("Cart event published successfully")
		}
	}()

	return nil
}
