package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/LinhDev610/LilaShop/pkg/kafka"
)

const (
	// TopicProductDecided carries catalog approval decisions. A newly approved
	// product may fall inside an active promotion's scope, so its pricing is
	// reconciled on arrival.
	TopicProductDecided = "lilashop.product.decided"

	ConsumerGroup = "promotion-service"
)

// ProductDecidedData is the payload of a catalog approval event.
type ProductDecidedData struct {
	ProductID string `json:"product_id"`
	Status    string `json:"status"`
}

// PricingReconciler re-derives a single product's pricing from the currently
// active promotions.
type PricingReconciler interface {
	ReconcileProduct(ctx context.Context, productID string) error
}

// NewProductConsumer builds a Kafka consumer that reconciles product pricing
// whenever the catalog approves a product. Events are deduplicated through the
// idempotency store so redeliveries never recompute pricing twice.
func NewProductConsumer(
	brokers []string,
	store pkgkafka.IdempotencyStore,
	reconciler PricingReconciler,
	logger *slog.Logger,
) *pkgkafka.Consumer {
	handler := newProductDecidedHandler(reconciler, logger)

	return pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers: brokers,
		GroupID: ConsumerGroup,
		Topic:   TopicProductDecided,
	}, pkgkafka.IdempotentHandler(store, handler, logger), logger)
}

func newProductDecidedHandler(reconciler PricingReconciler, logger *slog.Logger) pkgkafka.Handler {
	return func(ctx context.Context, ev *pkgkafka.Event) error {
		var data ProductDecidedData
		if err := ev.UnmarshalData(&data); err != nil {
			return fmt.Errorf("unmarshal product event: %w", err)
		}
		if data.ProductID == "" {
			logger.WarnContext(ctx, "product event missing product id",
				slog.String("event_id", ev.EventID),
			)
			return nil
		}

		if err := reconciler.ReconcileProduct(ctx, data.ProductID); err != nil {
			return fmt.Errorf("reconcile product %s: %w", data.ProductID, err)
		}
		logger.InfoContext(ctx, "product pricing reconciled",
			slog.String("product_id", data.ProductID),
			slog.String("event_id", ev.EventID),
		)
		return nil
	}
}
