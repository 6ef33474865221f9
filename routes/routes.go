package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/gozmanthefirst/ahianeo/controllers"
	"github.com/gozmanthefirst/ahianeo/middleware"
)

// Register wires the API surface. Webhooks stay outside the auth group so
// Stripe can reach them; everything order-facing requires a bearer token.
func Register(
	r *gin.Engine,
	orderController *controllers.OrderController,
	webhookController *controllers.WebhookController,
	jwtSecret string,
) {
	api := r.Group("/api")

	api.POST("/webhooks/stripe", webhookController.HandleStripeWebhook)

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(jwtSecret))
	{
		authed.POST("/orders/checkout", orderController.CreateCheckout)
		authed.GET("/orders", orderController.GetOrders)
		authed.GET("/orders/:id", orderController.GetOrderByID)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(jwtSecret), middleware.AdminOnly())
	{
		admin.POST("/orders/sweep", orderController.SweepSessionlessOrders)
	}
}
