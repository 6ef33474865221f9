package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gozmanthefirst/ahianeo/middleware"
	"github.com/gozmanthefirst/ahianeo/models"
	"github.com/gozmanthefirst/ahianeo/services"
)

const defaultSweepAge = time.Hour

type OrderController struct {
	checkoutService *services.CheckoutService
	orderService    *services.OrderService
	logger          *zap.Logger
}

func NewOrderController(
	checkoutService *services.CheckoutService,
	orderService *services.OrderService,
	logger *zap.Logger,
) *OrderController {
	return &OrderController{
		checkoutService: checkoutService,
		orderService:    orderService,
		logger:          logger,
	}
}

// orderResponse is the wire shape of an order. Money fields are fixed-point
// decimal strings, never floats.
type orderResponse struct {
	ID                      string              `json:"id"`
	OrderNumber             string              `json:"orderNumber"`
	UserID                  *string             `json:"userId"`
	Email                   string              `json:"email"`
	Status                  string              `json:"status"`
	PaymentStatus           string              `json:"paymentStatus"`
	TotalAmount             string              `json:"totalAmount"`
	StripeCheckoutSessionID *string             `json:"stripeCheckoutSessionId"`
	PaymentMethod           *string             `json:"paymentMethod"`
	OrderItems              []orderItemResponse `json:"orderItems"`
	CreatedAt               time.Time           `json:"createdAt"`
	UpdatedAt               time.Time           `json:"updatedAt"`
}

type orderItemResponse struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	SubTotal    string `json:"subTotal"`
}

func toOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		ID:                      order.ID.String(),
		OrderNumber:             order.OrderNumber,
		Email:                   order.Email,
		Status:                  string(order.Status),
		PaymentStatus:           string(order.PaymentStatus),
		TotalAmount:             order.TotalAmount.StringFixed(2),
		StripeCheckoutSessionID: order.StripeCheckoutSessionID,
		PaymentMethod:           order.PaymentMethod,
		OrderItems:              make([]orderItemResponse, 0, len(order.OrderItems)),
		CreatedAt:               order.CreatedAt,
		UpdatedAt:               order.UpdatedAt,
	}
	if order.UserID != nil {
		s := order.UserID.String()
		resp.UserID = &s
	}
	for _, item := range order.OrderItems {
		ir := orderItemResponse{
			ID:        item.ID.String(),
			ProductID: item.ProductID.String(),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
			SubTotal:  item.SubTotal.StringFixed(2),
		}
		if item.Product != nil {
			ir.ProductName = item.Product.Name
		}
		resp.OrderItems = append(resp.OrderItems, ir)
	}
	return resp
}

// CreateCheckout handles POST /api/orders/checkout.
func (ctrl *OrderController) CreateCheckout(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{
			"code":    services.CodeBadRequest,
			"message": "Invalid user identity",
		}})
		return
	}
	email := middleware.GetEmail(c)

	result, svcErr := ctrl.checkoutService.CreateCheckout(c.Request.Context(), userID, email)
	if svcErr != nil {
		respondServiceError(c, svcErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order created successfully",
		"data": gin.H{
			"order":                toOrderResponse(result.Order),
			"checkoutUrl":          result.CheckoutURL,
			"checkoutSessionId":    result.CheckoutSessionID,
			"stripePublishableKey": result.StripePublishableKey,
		},
	})
}

// GetOrders handles GET /api/orders with page and limit query params.
func (ctrl *OrderController) GetOrders(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{
			"code":    services.CodeBadRequest,
			"message": "Invalid user identity",
		}})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit < 1 || limit > 100 {
		limit = 10
	}

	result, svcErr := ctrl.orderService.GetUserOrders(c.Request.Context(), userID, page, limit)
	if svcErr != nil {
		respondServiceError(c, svcErr)
		return
	}

	orders := make([]orderResponse, 0, len(result.Orders))
	for i := range result.Orders {
		orders = append(orders, toOrderResponse(&result.Orders[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Orders retrieved successfully",
		"data":    orders,
		"meta":    result.Meta,
	})
}

// GetOrderByID handles GET /api/orders/:id.
func (ctrl *OrderController) GetOrderByID(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{
			"code":    services.CodeBadRequest,
			"message": "Invalid user identity",
		}})
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":    services.CodeBadRequest,
			"message": "Invalid order id",
		}})
		return
	}

	order, svcErr := ctrl.orderService.GetOrderByID(c.Request.Context(), userID, orderID)
	if svcErr != nil {
		respondServiceError(c, svcErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order retrieved successfully",
		"data":    toOrderResponse(order),
	})
}

// SweepSessionlessOrders handles POST /api/admin/orders/sweep. It cancels
// pending orders that never got a checkout session and restores their stock.
func (ctrl *OrderController) SweepSessionlessOrders(c *gin.Context) {
	olderThan := defaultSweepAge
	if raw := c.Query("older_than_minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
				"code":    services.CodeBadRequest,
				"message": "older_than_minutes must be a positive integer",
			}})
			return
		}
		olderThan = time.Duration(minutes) * time.Minute
	}

	swept, svcErr := ctrl.checkoutService.SweepSessionlessOrders(c.Request.Context(), olderThan)
	if svcErr != nil {
		respondServiceError(c, svcErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Sweep completed",
		"data":    gin.H{"sweptOrders": swept},
	})
}

func respondServiceError(c *gin.Context, svcErr *services.ServiceError) {
	c.JSON(svcErr.StatusCode, gin.H{"error": gin.H{
		"code":    svcErr.Code,
		"message": svcErr.Message,
	}})
}
