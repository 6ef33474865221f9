package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gozmanthefirst/ahianeo/models"
)

// CartRepository is the cart collaborator the checkout core consumes: a
// snapshot reader and a clearer. Cart line-item CRUD lives elsewhere.
type CartRepository interface {
	// GetUserCartWithItems returns the user's cart with items and their
	// current products, or nil when the user has no cart.
	GetUserCartWithItems(ctx context.Context, userID uuid.UUID) (*models.Cart, error)

	// ClearCartItemsByUserID deletes all items from the user's cart.
	// Clearing an already-empty cart is a no-op.
	ClearCartItemsByUserID(ctx context.Context, userID uuid.UUID) error
}

type GormCartRepository struct {
	db *gorm.DB
}

func NewGormCartRepository(db *gorm.DB) CartRepository {
	return &GormCartRepository{db: db}
}

func (r *GormCartRepository) GetUserCartWithItems(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("CartItems").
		Preload("CartItems.Product").
		Preload("CartItems.Product.Images").
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cart, nil
}

func (r *GormCartRepository) ClearCartItemsByUserID(ctx context.Context, userID uuid.UUID) error {
	carts := r.db.Model(&models.Cart{}).Select("id").Where("user_id = ?", userID)
	return r.db.WithContext(ctx).
		Where("cart_id IN (?)", carts).
		Delete(&models.CartItem{}).Error
}
