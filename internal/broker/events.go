package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events. Events are keyed by seller
// so each seller's ledger history is consumed in order.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func sellerKey(sellerID int64) string {
	return fmt.Sprintf("seller-%d", sellerID)
}

// PublishSaleRecorded publishes SaleRecorded event
func (ep *EventPublisher) PublishSaleRecorded(ctx context.Context, event *models.SaleRecordedEvent) error {
	return ep.producer.PublishEvent(ctx, sellerKey(event.SellerID), event)
}

// PublishOrderDelivered publishes OrderDelivered event
func (ep *EventPublisher) PublishOrderDelivered(ctx context.Context, event *models.OrderDeliveredEvent) error {
	return ep.producer.PublishEvent(ctx, sellerKey(event.SellerID), event)
}

// PublishOrderRefunded publishes OrderRefunded event
func (ep *EventPublisher) PublishOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error {
	return ep.producer.PublishEvent(ctx, sellerKey(event.SellerID), event)
}

// PublishOrderCanceled publishes OrderCanceled event
func (ep *EventPublisher) PublishOrderCanceled(ctx context.Context, event *models.OrderCanceledEvent) error {
	return ep.producer.PublishEvent(ctx, sellerKey(event.SellerID), event)
}

// PublishPayoutCompleted publishes PayoutCompleted event
func (ep *EventPublisher) PublishPayoutCompleted(ctx context.Context, event *models.PayoutCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, sellerKey(event.SellerID), event)
}

// PublishBadgeEvaluationRequested publishes BadgeEvaluationRequested event
func (ep *EventPublisher) PublishBadgeEvaluationRequested(ctx context.Context, event *models.BadgeEvaluationRequestedEvent) error {
	return ep.producer.PublishEvent(ctx, sellerKey(event.SellerID), event)
}

// PublishSalesMilestoneReached publishes SalesMilestoneReached event
func (ep *EventPublisher) PublishSalesMilestoneReached(ctx context.Context, event *models.SalesMilestoneReachedEvent) error {
	return ep.producer.PublishEvent(ctx, sellerKey(event.SellerID), event)
}

// PublishReconciliationAlert publishes ReconciliationAlert event
func (ep *EventPublisher) PublishReconciliationAlert(ctx context.Context, event *models.ReconciliationAlertEvent) error {
	return ep.producer.PublishEvent(ctx, sellerKey(event.SellerID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onBadgeEvaluationRequested func(context.Context, *models.BadgeEvaluationRequestedEvent) error
	onSalesMilestoneReached    func(context.Context, *models.SalesMilestoneReachedEvent) error
	logger                     *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnBadgeEvaluationRequested registers a handler for BadgeEvaluationRequested events
func (eh *EventHandler) OnBadgeEvaluationRequested(handler func(context.Context, *models.BadgeEvaluationRequestedEvent) error) {
	eh.onBadgeEvaluationRequested = handler
}

// OnSalesMilestoneReached registers a handler for SalesMilestoneReached events
func (eh *EventHandler) OnSalesMilestoneReached(handler func(context.Context, *models.SalesMilestoneReachedEvent) error) {
	eh.onSalesMilestoneReached = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	var err error
	switch baseEvent.EventType {
	case models.EventTypeBadgeEvaluationRequested:
		if eh.onBadgeEvaluationRequested == nil {
			return nil
		}
		var event models.BadgeEvaluationRequestedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal BadgeEvaluationRequested event: %w", err)
		}
		err = eh.onBadgeEvaluationRequested(ctx, &event)

	case models.EventTypeSalesMilestoneReached:
		if eh.onSalesMilestoneReached == nil {
			return nil
		}
		var event models.SalesMilestoneReachedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal SalesMilestoneReached event: %w", err)
		}
		err = eh.onSalesMilestoneReached(ctx, &event)

	default:
		// the ledger topic carries events other consumers care about
		return nil
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	util.EventsConsumedTotal.WithLabelValues(baseEvent.EventType, result).Inc()
	return err
}
