package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"returns-desk/internal/features/payments/domain"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeClients struct {
	refunds stripeRefundAPI
	intents stripePaymentIntentAPI
}

// StripeGateway refunds against the original payment intent and opens new
// payment intents for additional charges.
type StripeGateway struct {
	api      stripeClients
	currency string
}

// NewStripeGateway constructs a gateway from an API key.
func NewStripeGateway(apiKey, currency string) (*StripeGateway, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("stripe: api key is required")
	}
	sc := client.New(apiKey, nil)
	return newStripeGateway(stripeClients{refunds: sc.Refunds, intents: sc.PaymentIntents}, currency), nil
}

func newStripeGateway(clients stripeClients, currency string) *StripeGateway {
	return &StripeGateway{api: clients, currency: strings.ToLower(currency)}
}

// Name implements ports.Gateway.
func (g *StripeGateway) Name() string { return "stripe" }

// Settle implements ports.Gateway.
func (g *StripeGateway) Settle(ctx context.Context, o domain.Obligation) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	if o.Kind() == domain.KindRefund {
		return g.refund(ctx, o)
	}
	return g.charge(ctx, o)
}

func (g *StripeGateway) refund(ctx context.Context, o domain.Obligation) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(o.PaymentIntentID),
		Amount:        stripe.Int64(o.Magnitude()),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(o.IdempotencyKey())
	params.AddMetadata("return_request_id", o.RequestID)
	params.AddMetadata("order_id", o.OrderID)

	refund, err := g.api.refunds.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create refund: %w", err)
	}
	return refund.ID, nil
}

func (g *StripeGateway) charge(ctx context.Context, o domain.Obligation) (string, error) {
	currency := g.currency
	if o.Currency != "" {
		currency = strings.ToLower(o.Currency)
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(o.Magnitude()),
		Currency:    stripe.String(currency),
		Description: stripe.String("Exchange price difference for order " + o.OrderID),
	}
	params.Context = ctx
	params.SetIdempotencyKey(o.IdempotencyKey())
	params.AddMetadata("return_request_id", o.RequestID)
	params.AddMetadata("order_id", o.OrderID)

	intent, err := g.api.intents.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return intent.ID, nil
}
