package services

import (
	"context"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/webhook"
)

// CheckoutLineItem carries one cart line into the hosted checkout page.
// UnitAmount is in minor currency units.
type CheckoutLineItem struct {
	Name        string
	Description string
	ImageURLs   []string
	UnitAmount  int64
	Quantity    int64
}

type CheckoutSessionParams struct {
	LineItems         []CheckoutLineItem
	SuccessURL        string
	CancelURL         string
	CustomerEmail     string
	ClientReferenceID string
	Metadata          map[string]string
	ExpiresAt         int64
}

// CheckoutSession is the slice of the provider session this system holds on
// to: its id and the redirect URL.
type CheckoutSession struct {
	ID  string
	URL string
}

// StripeClient abstracts the payment provider for the checkout and webhook
// services.
type StripeClient interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)
	ParseWebhook(payload []byte, sigHeader string) (stripe.Event, error)
}

type StripeService struct {
	SecretKey     string
	WebhookSecret string
}

func NewStripeService(secretKey, webhookSecret string) *StripeService {
	stripe.Key = secretKey
	return &StripeService{SecretKey: secretKey, WebhookSecret: webhookSecret}
}

func (s *StripeService) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (*CheckoutSession, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(p.LineItems))
	for _, item := range p.LineItems {
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Name),
		}
		if item.Description != "" {
			productData.Description = stripe.String(item.Description)
		}
		if len(item.ImageURLs) > 0 {
			productData.Images = stripe.StringSlice(item.ImageURLs)
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(string(stripe.CurrencyUSD)),
				ProductData: productData,
				UnitAmount:  stripe.Int64(item.UnitAmount),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:          lineItems,
		SuccessURL:         stripe.String(p.SuccessURL),
		CancelURL:          stripe.String(p.CancelURL),
		CustomerEmail:      stripe.String(p.CustomerEmail),
		ClientReferenceID:  stripe.String(p.ClientReferenceID),
		ExpiresAt:          stripe.Int64(p.ExpiresAt),
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// ParseWebhook verifies the signature against the raw body and decodes the
// event. The body must be the exact bytes Stripe sent.
func (s *StripeService) ParseWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, s.WebhookSecret)
}
