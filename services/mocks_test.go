package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v80"

	"github.com/gozmanthefirst/ahianeo/models"
)

type mockOrderRepo struct {
	mock.Mock
}

func (m *mockOrderRepo) CreateWithReservation(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	args := m.Called(ctx, order, items)
	return args.Error(0)
}

func (m *mockOrderRepo) SetCheckoutSessionID(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	args := m.Called(ctx, orderID, sessionID)
	return args.Error(0)
}

func (m *mockOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderRepo) FindByIDAndUserID(ctx context.Context, id, userID uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderRepo) FindByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	args := m.Called(ctx, userID, page, limit)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.Order), args.Get(1).(int64), args.Error(2)
}

func (m *mockOrderRepo) FindByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderRepo) Finalize(ctx context.Context, orderID uuid.UUID, t models.Transition) (*models.Order, error) {
	args := m.Called(ctx, orderID, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrderRepo) FindStaleSessionless(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

type mockCartRepo struct {
	mock.Mock
}

func (m *mockCartRepo) GetUserCartWithItems(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Cart), args.Error(1)
}

func (m *mockCartRepo) ClearCartItemsByUserID(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type mockStripeClient struct {
	mock.Mock
}

func (m *mockStripeClient) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CheckoutSession), args.Error(1)
}

func (m *mockStripeClient) ParseWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	args := m.Called(payload, sigHeader)
	return args.Get(0).(stripe.Event), args.Error(1)
}

type mockProducer struct {
	mock.Mock
}

func (m *mockProducer) PublishOrderEvent(ctx context.Context, evt models.OrderEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *mockProducer) Close() error {
	args := m.Called()
	return args.Error(0)
}
