package models

import "time"

const (
	EventOrderCreated   = "order.created"
	EventOrderCompleted = "order.completed"
	EventOrderCancelled = "order.cancelled"
)

// OrderEvent is the lifecycle event published to Kafka for downstream
// consumers (notifications, analytics). Publishing is best-effort.
type OrderEvent struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id,omitempty"`
	Email       string    `json:"email"`
	TotalAmount string    `json:"total_amount"`
	Timestamp   time.Time `json:"timestamp"`
}
