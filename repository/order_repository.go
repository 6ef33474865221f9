package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gozmanthefirst/ahianeo/models"
)

var (
	// ErrInsufficientStock is returned when a stock debit would take a
	// product's quantity below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrOrderNotFound is returned when no order matches the lookup.
	ErrOrderNotFound = errors.New("order not found")

	// ErrAlreadyFinalized is returned when a finalize is attempted on an
	// order already in a terminal state. Callers treat it as a no-op.
	ErrAlreadyFinalized = errors.New("order already finalized")
)

// OrderRepository owns the order lifecycle and the stock ledger mutations
// that must be atomic with it.
type OrderRepository interface {
	// CreateWithReservation inserts the order and its items and debits each
	// product's stock, all in one transaction. The stock debit is a relative,
	// conditional update; if any product lacks stock the whole unit rolls
	// back and ErrInsufficientStock is returned.
	CreateWithReservation(ctx context.Context, order *models.Order, items []models.OrderItem) error

	// SetCheckoutSessionID links the external payment session to the order.
	SetCheckoutSessionID(ctx context.Context, orderID uuid.UUID, sessionID string) error

	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDAndUserID(ctx context.Context, id, userID uuid.UUID) (*models.Order, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error)
	FindByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Order, error)

	// Finalize applies a terminal transition under a row lock. The terminal
	// guard lives here, once, for every event type: a second finalize for the
	// same order returns ErrAlreadyFinalized without mutating anything.
	Finalize(ctx context.Context, orderID uuid.UUID, t models.Transition) (*models.Order, error)

	// FindStaleSessionless lists pending orders created before the cutoff
	// that never received a checkout session id (the reconciliation sweep
	// input).
	FindStaleSessionless(ctx context.Context, cutoff time.Time) ([]models.Order, error)
}

type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) CreateWithReservation(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}

		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}

		// Reservation: relative debit guarded against going negative. Two
		// concurrent checkouts for the same product both apply, but only as
		// long as stock remains; the loser rolls back here.
		for _, item := range items {
			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock_quantity >= ?", item.ProductID, item.Quantity).
				Update("stock_quantity", gorm.Expr("stock_quantity - ?", item.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("product %s: %w", item.ProductID, ErrInsufficientStock)
			}
		}

		order.OrderItems = items
		return nil
	})
}

func (r *GormOrderRepository) SetCheckoutSessionID(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("stripe_checkout_session_id", sessionID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("OrderItems").
		Preload("OrderItems.Product").
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *GormOrderRepository) FindByIDAndUserID(ctx context.Context, id, userID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("OrderItems").
		Preload("OrderItems.Product").
		Where("id = ? AND user_id = ?", id, userID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *GormOrderRepository) FindByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Preload("OrderItems").
		Offset(offset).
		Limit(limit).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *GormOrderRepository) FindByCheckoutSessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("OrderItems").
		Where("stripe_checkout_session_id = ?", sessionID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *GormOrderRepository) Finalize(ctx context.Context, orderID uuid.UUID, t models.Transition) (*models.Order, error) {
	var order models.Order

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Row lock so two concurrent deliveries of the same event serialize;
		// the second sees the terminal state and bails out below.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		if order.IsTerminal() {
			return ErrAlreadyFinalized
		}

		updates := map[string]interface{}{
			"status":         t.Status,
			"payment_status": t.PaymentStatus,
		}
		if t.PaymentMethod != nil {
			updates["payment_method"] = *t.PaymentMethod
		}
		if err := tx.Model(&order).Updates(updates).Error; err != nil {
			return err
		}

		if t.RestoreStock {
			var items []models.OrderItem
			if err := tx.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
				return err
			}
			for _, item := range items {
				if err := tx.Model(&models.Product{}).
					Where("id = ?", item.ProductID).
					Update("stock_quantity", gorm.Expr("stock_quantity + ?", item.Quantity)).Error; err != nil {
					return err
				}
			}
		}

		if t.ClearCart && order.UserID != nil {
			carts := tx.Model(&models.Cart{}).Select("id").Where("user_id = ?", *order.UserID)
			if err := tx.Where("cart_id IN (?)", carts).Delete(&models.CartItem{}).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	order.Status = t.Status
	order.PaymentStatus = t.PaymentStatus
	if t.PaymentMethod != nil {
		order.PaymentMethod = t.PaymentMethod
	}
	return &order, nil
}

func (r *GormOrderRepository) FindStaleSessionless(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND stripe_checkout_session_id IS NULL AND created_at < ?",
			models.OrderStatusPending, cutoff).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
