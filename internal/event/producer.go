package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/LinhDev610/LilaShop/pkg/kafka"

	"github.com/LinhDev610/LilaShop/internal/domain"
)

// Kafka topics for campaign domain events.
const (
	TopicPromotionCreated  = "lilashop.promotion.created"
	TopicPromotionDecided  = "lilashop.promotion.decided"
	TopicPromotionUpdated  = "lilashop.promotion.updated"
	TopicPromotionDeleted  = "lilashop.promotion.deleted"
	TopicPromotionActivity = "lilashop.promotion.activity"
	TopicVoucherRedeemed   = "lilashop.voucher.redeemed"
)

// Aggregate type constants.
const (
	AggregateTypePromotion = "promotion"
	AggregateTypeVoucher   = "voucher"
)

// SourceService identifies events originating from this service.
const SourceService = "promotion-service"

// PromotionData is the payload for promotion lifecycle events.
type PromotionData struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	ApplyScope string `json:"apply_scope"`
	IsActive   bool   `json:"is_active"`
}

// ActivityData is the payload for sweep activation/expiration events.
type ActivityData struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	IsActive bool   `json:"is_active"`
	Reason   string `json:"reason"` // "activated" or "expired"
}

// RedemptionData is the payload for voucher.redeemed events.
type RedemptionData struct {
	VoucherID       string  `json:"voucher_id"`
	Code            string  `json:"code"`
	UserID          string  `json:"user_id"`
	OrderID         string  `json:"order_id"`
	DiscountApplied float64 `json:"discount_applied"`
}

// Producer publishes campaign domain events to Kafka. Publishing is
// best-effort: callers log failures and never fail the triggering operation.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func (p *Producer) publishPromotion(ctx context.Context, topic string, promo *domain.Promotion) error {
	data := PromotionData{
		ID:         promo.ID,
		Code:       promo.Code,
		Name:       promo.Name,
		Status:     promo.Status,
		ApplyScope: promo.ApplyScope,
		IsActive:   promo.IsActive,
	}

	event, err := pkgkafka.NewEvent(topic, promo.ID, AggregateTypePromotion, SourceService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published promotion event",
		slog.String("topic", topic),
		slog.String("promotion_id", promo.ID),
	)
	return nil
}

// PublishPromotionCreated publishes a promotion.created event.
func (p *Producer) PublishPromotionCreated(ctx context.Context, promo *domain.Promotion) error {
	return p.publishPromotion(ctx, TopicPromotionCreated, promo)
}

// PublishPromotionDecided publishes a promotion.decided event after an
// approval or rejection.
func (p *Producer) PublishPromotionDecided(ctx context.Context, promo *domain.Promotion) error {
	return p.publishPromotion(ctx, TopicPromotionDecided, promo)
}

// PublishPromotionUpdated publishes a promotion.updated event.
func (p *Producer) PublishPromotionUpdated(ctx context.Context, promo *domain.Promotion) error {
	return p.publishPromotion(ctx, TopicPromotionUpdated, promo)
}

// PublishPromotionDeleted publishes a promotion.deleted event.
func (p *Producer) PublishPromotionDeleted(ctx context.Context, promo *domain.Promotion) error {
	return p.publishPromotion(ctx, TopicPromotionDeleted, promo)
}

// PublishPromotionActivity publishes a sweep activation or expiration.
func (p *Producer) PublishPromotionActivity(ctx context.Context, promo *domain.Promotion, reason string) error {
	data := ActivityData{
		ID:       promo.ID,
		Code:     promo.Code,
		IsActive: promo.IsActive,
		Reason:   reason,
	}

	event, err := pkgkafka.NewEvent(TopicPromotionActivity, promo.ID, AggregateTypePromotion, SourceService, data)
	if err != nil {
		return fmt.Errorf("create promotion.activity event: %w", err)
	}
	if err := p.kafka.Publish(ctx, TopicPromotionActivity, event); err != nil {
		return fmt.Errorf("publish promotion.activity event: %w", err)
	}
	return nil
}

// PublishVoucherRedeemed publishes a voucher.redeemed event.
func (p *Producer) PublishVoucherRedeemed(ctx context.Context, v *domain.Voucher, r *domain.VoucherRedemption) error {
	data := RedemptionData{
		VoucherID:       r.VoucherID,
		Code:            v.Code,
		UserID:          r.UserID,
		OrderID:         r.OrderID,
		DiscountApplied: r.DiscountApplied,
	}

	event, err := pkgkafka.NewEvent(TopicVoucherRedeemed, v.ID, AggregateTypeVoucher, SourceService, data)
	if err != nil {
		return fmt.Errorf("create voucher.redeemed event: %w", err)
	}
	if err := p.kafka.Publish(ctx, TopicVoucherRedeemed, event); err != nil {
		return fmt.Errorf("publish voucher.redeemed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published voucher.redeemed event",
		slog.String("voucher_id", v.ID),
		slog.String("order_id", r.OrderID),
	)
	return nil
}
