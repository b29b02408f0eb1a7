package payment

import (
	"context"
	"fmt"
	"math"

	"guarantee-controlplane/pkg/config"
	"guarantee-controlplane/pkg/errutil"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/fx"
)

var Module = fx.Module("payment", fx.Provide(ProvideRefunder))

// Refunder issues refunds against a captured payment.
type Refunder interface {
	// Refund returns the provider's refund id. amount is in dollars.
	Refund(ctx context.Context, paymentIntentID string, amount float64) (string, error)
}

type stripeRefunder struct {
	api *client.API
}

func ProvideRefunder(cfg *config.Config) Refunder {
	if cfg.Stripe.SecretKey == "" {
		return disabled{}
	}
	return NewStripeRefunder(cfg.Stripe.SecretKey)
}

func NewStripeRefunder(secretKey string) Refunder {
	return &stripeRefunder{api: client.New(secretKey, nil)}
}

// ToCents converts a dollar amount to the smallest currency unit.
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// IdempotencyKey makes a retried refund of the same amount a no-op at Stripe.
func IdempotencyKey(paymentIntentID string, amount float64) string {
	return fmt.Sprintf("refund:%s:%d", paymentIntentID, ToCents(amount))
}

func (s *stripeRefunder) Refund(ctx context.Context, paymentIntentID string, amount float64) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        stripe.Int64(ToCents(amount)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(IdempotencyKey(paymentIntentID, amount))

	refund, err := s.api.Refunds.New(params)
	if err != nil {
		return "", errutil.BadGateway("Failed to create Stripe refund", err)
	}

	return refund.ID, nil
}

type disabled struct{}

func (disabled) Refund(context.Context, string, float64) (string, error) {
	return "", errutil.ServiceUnavailable("Failed to create Stripe refund. Is Stripe configured?", nil)
}
