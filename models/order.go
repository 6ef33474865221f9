package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

type Order struct {
	ID                      uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderNumber             string          `gorm:"type:varchar(20);not null;index" json:"orderNumber"`
	UserID                  *uuid.UUID      `gorm:"type:uuid;index" json:"userId"`
	Email                   string          `gorm:"type:varchar(255);not null" json:"email"`
	Status                  OrderStatus     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	PaymentStatus           PaymentStatus   `gorm:"type:varchar(20);not null;default:'pending'" json:"paymentStatus"`
	TotalAmount             decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"totalAmount"`
	StripeCheckoutSessionID *string         `gorm:"type:varchar(255);index" json:"stripeCheckoutSessionId"`
	PaymentMethod           *string         `gorm:"type:varchar(50)" json:"paymentMethod"`
	OrderItems              []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"orderItems"`
	CreatedAt               time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt               time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

// IsTerminal reports whether the order has reached a state out of which no
// further transition is defined.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusCancelled
}

type OrderItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"orderId"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null" json:"productId"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unitPrice"`
	SubTotal  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"subTotal"`
	Product   *Product        `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"createdAt"`
}

// Transition describes a finalizing state change applied to an order. Exactly
// one transition is ever applied per order; the repository rejects any further
// attempt with ErrAlreadyFinalized.
type Transition struct {
	Status        OrderStatus
	PaymentStatus PaymentStatus
	PaymentMethod *string
	RestoreStock  bool
	ClearCart     bool
}

// TransitionCompleted moves an order to completed/paid, recording the payment
// method and clearing the owner's cart.
func TransitionCompleted(paymentMethod string) Transition {
	return Transition{
		Status:        OrderStatusCompleted,
		PaymentStatus: PaymentStatusPaid,
		PaymentMethod: &paymentMethod,
		ClearCart:     true,
	}
}

// TransitionCancelled moves an order to cancelled/failed and credits reserved
// stock back to its products.
func TransitionCancelled() Transition {
	return Transition{
		Status:        OrderStatusCancelled,
		PaymentStatus: PaymentStatusFailed,
		RestoreStock:  true,
	}
}
