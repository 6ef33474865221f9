package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"

	"github.com/gozmanthefirst/ahianeo/kafka"
	"github.com/gozmanthefirst/ahianeo/models"
	"github.com/gozmanthefirst/ahianeo/repository"
)

const (
	webhookDedupKey = "webhook:processed:%s"
	webhookDedupTTL = 48 * time.Hour
)

// WebhookService reconciles asynchronous payment-provider events into
// terminal order states. Delivery is at-least-once, possibly concurrent;
// the repository's locked finalize makes re-application a no-op.
type WebhookService struct {
	orderRepo repository.OrderRepository
	stripe    StripeClient
	redis     *redis.Client
	producer  kafka.ProducerAPI
	logger    *zap.Logger
}

func NewWebhookService(
	orderRepo repository.OrderRepository,
	stripe StripeClient,
	redisClient *redis.Client,
	producer kafka.ProducerAPI,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		orderRepo: orderRepo,
		stripe:    stripe,
		redis:     redisClient,
		producer:  producer,
		logger:    logger,
	}
}

// HandleEvent verifies and dispatches one webhook delivery. A nil return
// acknowledges the event (200); a ServiceError with status 500 makes the
// provider redeliver later.
func (s *WebhookService) HandleEvent(ctx context.Context, payload []byte, sigHeader string) *ServiceError {
	event, err := s.stripe.ParseWebhook(payload, sigHeader)
	if err != nil {
		s.logger.Warn("Webhook signature verification failed", zap.Error(err))
		return &ServiceError{
			StatusCode: http.StatusBadRequest,
			Code:       CodeBadRequest,
			Message:    "Invalid webhook signature or payload",
		}
	}

	s.logger.Info("Processing Stripe webhook",
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID),
	)

	if s.alreadyProcessed(ctx, event.ID) {
		s.logger.Info("Skipping already-processed webhook event", zap.String("event_id", event.ID))
		return nil
	}

	var serviceErr *ServiceError
	switch event.Type {
	case "checkout.session.completed":
		serviceErr = s.handleCheckoutCompleted(ctx, event)
	case "checkout.session.expired":
		serviceErr = s.handleSessionFailure(ctx, s.sessionIDFromEvent(event))
	case "payment_intent.payment_failed", "payment_intent.canceled":
		serviceErr = s.handlePaymentIntentFailure(ctx, event)
	default:
		s.logger.Info("Unhandled webhook event type", zap.String("event_type", string(event.Type)))
	}

	if serviceErr == nil {
		s.markProcessed(ctx, event.ID)
	}
	return serviceErr
}

func (s *WebhookService) handleCheckoutCompleted(ctx context.Context, event stripe.Event) *ServiceError {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		s.logger.Error("Failed to unmarshal checkout session", zap.String("event_id", event.ID), zap.Error(err))
		return nil
	}

	paymentMethod := "card"
	if len(sess.PaymentMethodTypes) > 0 {
		paymentMethod = sess.PaymentMethodTypes[0]
	}

	return s.finalizeBySessionID(ctx, sess.ID, models.TransitionCompleted(paymentMethod), models.EventOrderCompleted)
}

func (s *WebhookService) handleSessionFailure(ctx context.Context, sessionID string) *ServiceError {
	if sessionID == "" {
		return nil
	}
	return s.finalizeBySessionID(ctx, sessionID, models.TransitionCancelled(), models.EventOrderCancelled)
}

func (s *WebhookService) handlePaymentIntentFailure(ctx context.Context, event stripe.Event) *ServiceError {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		s.logger.Error("Failed to unmarshal payment intent", zap.String("event_id", event.ID), zap.Error(err))
		return nil
	}
	// Legacy PaymentIntent-based orders store the intent id in the session
	// id column, so the same lookup applies.
	return s.finalizeBySessionID(ctx, pi.ID, models.TransitionCancelled(), models.EventOrderCancelled)
}

// finalizeBySessionID applies one terminal transition for the order linked to
// the session. Unknown sessions and already-finalized orders are acknowledged
// without mutation; only real failures bubble up as 500 so the provider
// retries the whole event.
func (s *WebhookService) finalizeBySessionID(ctx context.Context, sessionID string, t models.Transition, eventType string) *ServiceError {
	order, err := s.orderRepo.FindByCheckoutSessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			s.logger.Warn("Order not found for checkout session", zap.String("session_id", sessionID))
			return nil
		}
		s.logger.Error("Failed to look up order for session", zap.String("session_id", sessionID), zap.Error(err))
		return internalError("Failed to process webhook event")
	}

	finalized, err := s.orderRepo.Finalize(ctx, order.ID, t)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyFinalized) {
			s.logger.Info("Skipping duplicate webhook for finalized order",
				zap.String("order_id", order.ID.String()),
				zap.String("order_number", order.OrderNumber),
			)
			return nil
		}
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil
		}
		s.logger.Error("Failed to finalize order",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return internalError("Failed to process webhook event")
	}

	s.logger.Info("Order finalized",
		zap.String("order_id", finalized.ID.String()),
		zap.String("order_number", finalized.OrderNumber),
		zap.String("status", string(finalized.Status)),
		zap.String("payment_status", string(finalized.PaymentStatus)),
	)

	s.publishEvent(ctx, eventType, finalized)
	return nil
}

// alreadyProcessed is a best-effort fast path; the locked finalize remains
// the idempotency guarantee when redis is absent or lossy.
func (s *WebhookService) alreadyProcessed(ctx context.Context, eventID string) bool {
	if s.redis == nil {
		return false
	}
	n, err := s.redis.Exists(ctx, fmt.Sprintf(webhookDedupKey, eventID)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

func (s *WebhookService) markProcessed(ctx context.Context, eventID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, fmt.Sprintf(webhookDedupKey, eventID), "1", webhookDedupTTL).Err(); err != nil {
		s.logger.Debug("Failed to record processed webhook event", zap.String("event_id", eventID), zap.Error(err))
	}
}

func (s *WebhookService) publishEvent(ctx context.Context, eventType string, order *models.Order) {
	if s.producer == nil {
		return
	}
	evt := models.OrderEvent{
		Type:        eventType,
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		Email:       order.Email,
		TotalAmount: order.TotalAmount.StringFixed(2),
		Timestamp:   time.Now().UTC(),
	}
	if order.UserID != nil {
		evt.UserID = order.UserID.String()
	}
	if err := s.producer.PublishOrderEvent(ctx, evt); err != nil {
		s.logger.Warn("Failed to publish order event",
			zap.String("order_id", evt.OrderID),
			zap.String("type", eventType),
			zap.Error(err),
		)
	}
}

func (s *WebhookService) sessionIDFromEvent(event stripe.Event) string {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		s.logger.Error("Failed to unmarshal checkout session", zap.String("event_id", event.ID), zap.Error(err))
		return ""
	}
	return sess.ID
}
