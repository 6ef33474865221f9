package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gozmanthefirst/ahianeo/kafka"
	"github.com/gozmanthefirst/ahianeo/models"
	"github.com/gozmanthefirst/ahianeo/repository"
)

const checkoutSessionTTL = 30 * time.Minute

// CheckoutService converts a cart into an order: validates the cart against
// current stock, reserves stock, freezes prices, opens the hosted payment
// session and links it to the order.
type CheckoutService struct {
	orderRepo      repository.OrderRepository
	cartRepo       repository.CartRepository
	stripe         StripeClient
	producer       kafka.ProducerAPI
	frontendURL    string
	publishableKey string
	logger         *zap.Logger
}

func NewCheckoutService(
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
	stripe StripeClient,
	producer kafka.ProducerAPI,
	frontendURL string,
	publishableKey string,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		orderRepo:      orderRepo,
		cartRepo:       cartRepo,
		stripe:         stripe,
		producer:       producer,
		frontendURL:    frontendURL,
		publishableKey: publishableKey,
		logger:         logger,
	}
}

type CheckoutResult struct {
	Order                *models.Order
	CheckoutURL          string
	CheckoutSessionID    string
	StripePublishableKey string
}

// CreateCheckout runs the checkout pipeline for the user's cart. The cart is
// read once and never mutated here; clearing happens only after confirmed
// payment, via the webhook reconciler.
func (s *CheckoutService) CreateCheckout(ctx context.Context, userID uuid.UUID, email string) (*CheckoutResult, *ServiceError) {
	cart, err := s.cartRepo.GetUserCartWithItems(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load cart", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, internalError("Failed to create order")
	}
	if cart == nil || len(cart.CartItems) == 0 {
		return nil, &ServiceError{
			StatusCode: http.StatusBadRequest,
			Code:       CodeEmptyCart,
			Message:    "Cart is empty. Add items to cart before creating order.",
		}
	}

	// Validate every line, accumulate failures, surface the first.
	var failures []*ServiceError
	totalAmount := decimal.Zero
	for _, cartItem := range cart.CartItems {
		if cartItem.Product == nil {
			failures = append(failures, &ServiceError{
				StatusCode: http.StatusUnprocessableEntity,
				Code:       CodeInvalidCartState,
				Message:    fmt.Sprintf("Product with ID %s no longer exists.", cartItem.ProductID),
			})
			continue
		}
		if cartItem.Quantity > cartItem.Product.StockQuantity {
			failures = append(failures, &ServiceError{
				StatusCode: http.StatusUnprocessableEntity,
				Code:       CodeInsufficientStock,
				Message: fmt.Sprintf("Not enough stock for %q. Requested: %d, Available: %d",
					cartItem.Product.Name, cartItem.Quantity, cartItem.Product.StockQuantity),
			})
			continue
		}

		// Round each line to 2 decimals, then sum. Never sum-then-round.
		line := cartItem.Product.Price.
			Mul(decimal.NewFromInt(int64(cartItem.Quantity))).
			Round(2)
		totalAmount = totalAmount.Add(line)
	}
	if len(failures) > 0 {
		for _, f := range failures {
			s.logger.Warn("Cart validation failed",
				zap.String("user_id", userID.String()),
				zap.String("code", f.Code),
				zap.String("detail", f.Message),
			)
		}
		return nil, failures[0]
	}

	order := &models.Order{
		OrderNumber:   generateOrderNumber(),
		UserID:        &userID,
		Email:         email,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		TotalAmount:   totalAmount,
	}

	items := make([]models.OrderItem, 0, len(cart.CartItems))
	for _, cartItem := range cart.CartItems {
		qty := decimal.NewFromInt(int64(cartItem.Quantity))
		items = append(items, models.OrderItem{
			ProductID: cartItem.ProductID,
			Quantity:  cartItem.Quantity,
			UnitPrice: cartItem.Product.Price,
			SubTotal:  cartItem.Product.Price.Mul(qty).Round(2),
		})
	}

	// Order, items and stock debit commit together; the reservation exists
	// before the payment session does.
	if err := s.orderRepo.CreateWithReservation(ctx, order, items); err != nil {
		if errors.Is(err, repository.ErrInsufficientStock) {
			return nil, &ServiceError{
				StatusCode: http.StatusUnprocessableEntity,
				Code:       CodeInsufficientStock,
				Message:    "Stock changed while creating the order. Refresh your cart and try again.",
			}
		}
		s.logger.Error("Failed to create order", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, internalError("Failed to create order")
	}

	sess, err := s.stripe.CreateCheckoutSession(ctx, s.buildSessionParams(order, cart, email))
	if err != nil {
		s.logReservationOrphan(order, items, "stripe session creation failed", err)
		return nil, internalError("Failed to create order")
	}

	if err := s.orderRepo.SetCheckoutSessionID(ctx, order.ID, sess.ID); err != nil {
		s.logReservationOrphan(order, items, "failed to link checkout session", err)
		return nil, internalError("Failed to create order")
	}

	orderWithItems, err := s.orderRepo.FindByID(ctx, order.ID)
	if err != nil {
		s.logger.Error("Failed to reload created order", zap.String("order_id", order.ID.String()), zap.Error(err))
		return nil, internalError("Failed to retrieve created order")
	}

	s.publishEvent(ctx, models.EventOrderCreated, orderWithItems)

	return &CheckoutResult{
		Order:                orderWithItems,
		CheckoutURL:          sess.URL,
		CheckoutSessionID:    sess.ID,
		StripePublishableKey: s.publishableKey,
	}, nil
}

func (s *CheckoutService) buildSessionParams(order *models.Order, cart *models.Cart, email string) CheckoutSessionParams {
	lineItems := make([]CheckoutLineItem, 0, len(cart.CartItems))
	for _, cartItem := range cart.CartItems {
		product := cartItem.Product
		imageURLs := make([]string, 0, len(product.Images))
		for _, img := range product.Images {
			if img.ImageURL != "" {
				imageURLs = append(imageURLs, img.ImageURL)
			}
		}
		description := ""
		if product.Description != nil {
			description = *product.Description
		}
		lineItems = append(lineItems, CheckoutLineItem{
			Name:        product.Name,
			Description: description,
			ImageURLs:   imageURLs,
			UnitAmount:  product.Price.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
			Quantity:    int64(cartItem.Quantity),
		})
	}

	return CheckoutSessionParams{
		LineItems:         lineItems,
		SuccessURL:        s.frontendURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         s.frontendURL + "/checkout/cancel",
		CustomerEmail:     email,
		ClientReferenceID: order.ID.String(),
		Metadata: map[string]string{
			"orderId":     order.ID.String(),
			"orderNumber": order.OrderNumber,
			"userId":      order.UserID.String(),
		},
		ExpiresAt: time.Now().Add(checkoutSessionTTL).Unix(),
	}
}

// SweepSessionlessOrders cancels pending orders older than the cutoff that
// never received a checkout session, restoring their stock. This is the
// operator-invoked reconciliation for reservations orphaned by a session
// creation failure; olderThan must exceed the lifetime of a checkout request
// so in-flight orders are never swept.
func (s *CheckoutService) SweepSessionlessOrders(ctx context.Context, olderThan time.Duration) (int, *ServiceError) {
	cutoff := time.Now().Add(-olderThan)
	orders, err := s.orderRepo.FindStaleSessionless(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to list stale orders", zap.Error(err))
		return 0, internalError("Failed to sweep orders")
	}

	swept := 0
	for _, order := range orders {
		finalized, err := s.orderRepo.Finalize(ctx, order.ID, models.TransitionCancelled())
		if err != nil {
			if errors.Is(err, repository.ErrAlreadyFinalized) || errors.Is(err, repository.ErrOrderNotFound) {
				continue
			}
			s.logger.Error("Failed to sweep order",
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
			return swept, internalError("Failed to sweep orders")
		}
		swept++
		s.logger.Info("Swept sessionless order",
			zap.String("order_id", finalized.ID.String()),
			zap.String("order_number", finalized.OrderNumber),
		)
		s.publishEvent(ctx, models.EventOrderCancelled, finalized)
	}
	return swept, nil
}

// logReservationOrphan records everything an operator needs to reconcile an
// order whose stock is debited but whose payment session never materialized.
func (s *CheckoutService) logReservationOrphan(order *models.Order, items []models.OrderItem, msg string, err error) {
	fields := []zap.Field{
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.Error(err),
	}
	for _, item := range items {
		fields = append(fields, zap.String(
			fmt.Sprintf("reserved_%s", item.ProductID),
			fmt.Sprintf("qty=%d", item.Quantity),
		))
	}
	s.logger.Error(msg+"; stock remains reserved, order has no session id", fields...)
}

func (s *CheckoutService) publishEvent(ctx context.Context, eventType string, order *models.Order) {
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

// generateOrderNumber builds a human-facing number: year plus a random
// six-digit suffix. Uniqueness is probabilistic, matching the stored format
// ORD-<year>-<digits>.
func generateOrderNumber() string {
	return fmt.Sprintf("ORD-%d-%06d", time.Now().Year(), rand.Intn(1_000_000))
}

func internalError(message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternalError,
		Message:    message,
	}
}
