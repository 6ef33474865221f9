package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gozmanthefirst/ahianeo/models"
	"github.com/gozmanthefirst/ahianeo/repository"
)

// OrderService serves the read side of the order store.
type OrderService struct {
	orderRepo repository.OrderRepository
	logger    *zap.Logger
}

func NewOrderService(orderRepo repository.OrderRepository, logger *zap.Logger) *OrderService {
	return &OrderService{orderRepo: orderRepo, logger: logger}
}

type OrderListResult struct {
	Orders []models.Order
	Meta   MetaData
}

type MetaData struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalOrders int64 `json:"totalOrders"`
	TotalPages  int64 `json:"totalPages"`
	HasMore     bool  `json:"hasMore"`
}

// GetUserOrders retrieves paginated orders for a specific user.
func (s *OrderService) GetUserOrders(ctx context.Context, userID uuid.UUID, page, limit int) (*OrderListResult, *ServiceError) {
	orders, total, err := s.orderRepo.FindByUserID(ctx, userID, page, limit)
	if err != nil {
		s.logger.Error("Failed to fetch orders", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, internalError("Failed to fetch orders")
	}

	return &OrderListResult{
		Orders: orders,
		Meta: MetaData{
			Page:        page,
			Limit:       limit,
			TotalOrders: total,
			TotalPages:  calculateTotalPages(total, limit),
			HasMore:     total > int64(page*limit),
		},
	}, nil
}

// GetOrderByID retrieves a specific order owned by the user.
func (s *OrderService) GetOrderByID(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, *ServiceError) {
	order, err := s.orderRepo.FindByIDAndUserID(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, &ServiceError{
				StatusCode: http.StatusNotFound,
				Code:       CodeNotFound,
				Message:    "Order not found",
			}
		}
		s.logger.Error("Failed to fetch order",
			zap.String("order_id", orderID.String()),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return nil, internalError("Failed to fetch order")
	}
	return order, nil
}

func calculateTotalPages(total int64, limit int) int64 {
	if limit == 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
