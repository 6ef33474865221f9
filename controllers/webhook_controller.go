package controllers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gozmanthefirst/ahianeo/services"
)

type WebhookController struct {
	webhookService *services.WebhookService
	logger         *zap.Logger
}

func NewWebhookController(webhookService *services.WebhookService, logger *zap.Logger) *WebhookController {
	return &WebhookController{webhookService: webhookService, logger: logger}
}

// HandleStripeWebhook handles POST /api/webhooks/stripe. Signature
// verification needs the raw body bytes, so the request is read directly
// rather than bound.
func (ctrl *WebhookController) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		ctrl.logger.Warn("Failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":    services.CodeBadRequest,
			"message": "Failed to read request body",
		}})
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	if sigHeader == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":    services.CodeBadRequest,
			"message": "Missing Stripe-Signature header",
		}})
		return
	}

	if svcErr := ctrl.webhookService.HandleEvent(c.Request.Context(), payload, sigHeader); svcErr != nil {
		respondServiceError(c, svcErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
