package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"

	"github.com/gozmanthefirst/ahianeo/models"
	"github.com/gozmanthefirst/ahianeo/repository"
)

func newWebhookFixture(t *testing.T) (*WebhookService, *mockOrderRepo, *mockStripeClient, *mockProducer) {
	t.Helper()
	orderRepo := new(mockOrderRepo)
	stripeClient := new(mockStripeClient)
	producer := new(mockProducer)
	svc := NewWebhookService(orderRepo, stripeClient, nil, producer, zap.NewNop())
	return svc, orderRepo, stripeClient, producer
}

func stripeEvent(t *testing.T, eventType string, data interface{}) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return stripe.Event{
		ID:   "evt_" + uuid.NewString(),
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEvent_CheckoutCompleted(t *testing.T) {
	svc, orderRepo, stripeClient, producer := newWebhookFixture(t)

	event := stripeEvent(t, "checkout.session.completed", map[string]interface{}{
		"id":                   "cs_done",
		"payment_method_types": []string{"card"},
	})
	stripeClient.On("ParseWebhook", mock.Anything, "sig").Return(event, nil)

	userID := uuid.New()
	order := &models.Order{ID: uuid.New(), OrderNumber: "ORD-2026-000042", UserID: &userID}
	orderRepo.On("FindByCheckoutSessionID", mock.Anything, "cs_done").Return(order, nil)

	orderRepo.On("Finalize", mock.Anything, order.ID, models.TransitionCompleted("card")).
		Return(&models.Order{
			ID:            order.ID,
			OrderNumber:   order.OrderNumber,
			Status:        models.OrderStatusCompleted,
			PaymentStatus: models.PaymentStatusPaid,
		}, nil)
	producer.On("PublishOrderEvent", mock.Anything, mock.MatchedBy(func(evt models.OrderEvent) bool {
		return evt.Type == models.EventOrderCompleted
	})).Return(nil)

	svcErr := svc.HandleEvent(context.Background(), []byte("{}"), "sig")

	assert.Nil(t, svcErr)
	orderRepo.AssertExpectations(t)
	producer.AssertExpectations(t)
}

func TestHandleEvent_SessionExpiredRestoresStock(t *testing.T) {
	svc, orderRepo, stripeClient, producer := newWebhookFixture(t)

	event := stripeEvent(t, "checkout.session.expired", map[string]interface{}{"id": "cs_expired"})
	stripeClient.On("ParseWebhook", mock.Anything, "sig").Return(event, nil)

	order := &models.Order{ID: uuid.New(), OrderNumber: "ORD-2026-000043"}
	orderRepo.On("FindByCheckoutSessionID", mock.Anything, "cs_expired").Return(order, nil)

	// The cancelled transition carries the stock restore flag.
	orderRepo.On("Finalize", mock.Anything, order.ID, models.TransitionCancelled()).
		Return(&models.Order{
			ID:            order.ID,
			Status:        models.OrderStatusCancelled,
			PaymentStatus: models.PaymentStatusFailed,
		}, nil)
	producer.On("PublishOrderEvent", mock.Anything, mock.MatchedBy(func(evt models.OrderEvent) bool {
		return evt.Type == models.EventOrderCancelled
	})).Return(nil)

	svcErr := svc.HandleEvent(context.Background(), []byte("{}"), "sig")

	assert.Nil(t, svcErr)
	orderRepo.AssertExpectations(t)
}

func TestHandleEvent_DuplicateDeliveryIsNoOp(t *testing.T) {
	svc, orderRepo, stripeClient, producer := newWebhookFixture(t)

	event := stripeEvent(t, "checkout.session.completed", map[string]interface{}{
		"id":                   "cs_dup",
		"payment_method_types": []string{"card"},
	})
	stripeClient.On("ParseWebhook", mock.Anything, "sig").Return(event, nil)

	order := &models.Order{ID: uuid.New(), Status: models.OrderStatusCompleted}
	orderRepo.On("FindByCheckoutSessionID", mock.Anything, "cs_dup").Return(order, nil)
	orderRepo.On("Finalize", mock.Anything, order.ID, mock.Anything).
		Return(nil, repository.ErrAlreadyFinalized)

	svcErr := svc.HandleEvent(context.Background(), []byte("{}"), "sig")

	// Acknowledged without mutation and without a duplicate event.
	assert.Nil(t, svcErr)
	producer.AssertNotCalled(t, "PublishOrderEvent", mock.Anything, mock.Anything)
}

func TestHandleEvent_PaymentIntentFailed(t *testing.T) {
	svc, orderRepo, stripeClient, producer := newWebhookFixture(t)

	event := stripeEvent(t, "payment_intent.payment_failed", map[string]interface{}{"id": "pi_failed"})
	stripeClient.On("ParseWebhook", mock.Anything, "sig").Return(event, nil)

	order := &models.Order{ID: uuid.New()}
	orderRepo.On("FindByCheckoutSessionID", mock.Anything, "pi_failed").Return(order, nil)
	orderRepo.On("Finalize", mock.Anything, order.ID, models.TransitionCancelled()).
		Return(&models.Order{ID: order.ID, Status: models.OrderStatusCancelled}, nil)
	producer.On("PublishOrderEvent", mock.Anything, mock.Anything).Return(nil)

	svcErr := svc.HandleEvent(context.Background(), []byte("{}"), "sig")

	assert.Nil(t, svcErr)
	orderRepo.AssertExpectations(t)
}

func TestHandleEvent_UnknownTypeAcknowledged(t *testing.T) {
	svc, orderRepo, stripeClient, _ := newWebhookFixture(t)

	event := stripeEvent(t, "customer.created", map[string]interface{}{"id": "cus_1"})
	stripeClient.On("ParseWebhook", mock.Anything, "sig").Return(event, nil)

	svcErr := svc.HandleEvent(context.Background(), []byte("{}"), "sig")

	assert.Nil(t, svcErr)
	orderRepo.AssertNotCalled(t, "FindByCheckoutSessionID", mock.Anything, mock.Anything)
}

func TestHandleEvent_UnknownSessionAcknowledged(t *testing.T) {
	svc, orderRepo, stripeClient, _ := newWebhookFixture(t)

	event := stripeEvent(t, "checkout.session.expired", map[string]interface{}{"id": "cs_unknown"})
	stripeClient.On("ParseWebhook", mock.Anything, "sig").Return(event, nil)
	orderRepo.On("FindByCheckoutSessionID", mock.Anything, "cs_unknown").
		Return(nil, repository.ErrOrderNotFound)

	svcErr := svc.HandleEvent(context.Background(), []byte("{}"), "sig")

	assert.Nil(t, svcErr)
}

func TestHandleEvent_BadSignature(t *testing.T) {
	svc, orderRepo, stripeClient, _ := newWebhookFixture(t)

	stripeClient.On("ParseWebhook", mock.Anything, "bad-sig").
		Return(stripe.Event{}, errors.New("signature mismatch"))

	svcErr := svc.HandleEvent(context.Background(), []byte("{}"), "bad-sig")

	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusBadRequest, svcErr.StatusCode)
	assert.Equal(t, CodeBadRequest, svcErr.Code)
	orderRepo.AssertNotCalled(t, "FindByCheckoutSessionID", mock.Anything, mock.Anything)
}

func TestHandleEvent_RepoFailureTriggersRedelivery(t *testing.T) {
	svc, orderRepo, stripeClient, _ := newWebhookFixture(t)

	event := stripeEvent(t, "checkout.session.completed", map[string]interface{}{
		"id":                   "cs_err",
		"payment_method_types": []string{"card"},
	})
	stripeClient.On("ParseWebhook", mock.Anything, "sig").Return(event, nil)
	orderRepo.On("FindByCheckoutSessionID", mock.Anything, "cs_err").
		Return(nil, errors.New("connection reset"))

	svcErr := svc.HandleEvent(context.Background(), []byte("{}"), "sig")

	// A 500 makes the provider redeliver the whole event later.
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusInternalServerError, svcErr.StatusCode)
}

func TestHandleEvent_NonCardPaymentMethod(t *testing.T) {
	svc, orderRepo, stripeClient, producer := newWebhookFixture(t)

	event := stripeEvent(t, "checkout.session.completed", map[string]interface{}{
		"id":                   "cs_sepa",
		"payment_method_types": []string{"sepa_debit"},
	})
	stripeClient.On("ParseWebhook", mock.Anything, "sig").Return(event, nil)

	order := &models.Order{ID: uuid.New()}
	orderRepo.On("FindByCheckoutSessionID", mock.Anything, "cs_sepa").Return(order, nil)
	orderRepo.On("Finalize", mock.Anything, order.ID, models.TransitionCompleted("sepa_debit")).
		Return(&models.Order{ID: order.ID, Status: models.OrderStatusCompleted}, nil)
	producer.On("PublishOrderEvent", mock.Anything, mock.Anything).Return(nil)

	svcErr := svc.HandleEvent(context.Background(), []byte("{}"), "sig")

	assert.Nil(t, svcErr)
	orderRepo.AssertExpectations(t)
}
