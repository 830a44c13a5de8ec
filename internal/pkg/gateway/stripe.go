package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
)

type paymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeGateway confirms PaymentIntents synchronously.
type StripeGateway struct {
	intents  paymentIntentAPI
	currency string
}

func NewStripeGateway(cfg *Config) *StripeGateway {
	var api client.API
	api.Init(cfg.SecretKey, nil)
	return &StripeGateway{intents: api.PaymentIntents, currency: cfg.Currency}
}

func paymentMethodType(method string) string {
	if method == "ach" {
		return string(stripe.PaymentMethodTypeUSBankAccount)
	}
	return string(stripe.PaymentMethodTypeCard)
}

func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (*Transaction, error) {
	const op = "gateway.stripe"

	cents := req.Amount.Round(2).Shift(2).IntPart()
	if cents <= 0 {
		return nil, apperr.Validation(op, "amount must be positive")
	}
	currency := req.Currency
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.PaymentIntentParams{
		PaymentMethod:      stripe.String(req.Token),
		PaymentMethodTypes: stripe.StringSlice([]string{paymentMethodType(req.Method)}),
		Amount:             stripe.Int64(cents),
		Currency:           stripe.String(strings.ToLower(currency)),
		Confirm:            stripe.Bool(true),
		Description:        stripe.String(req.Description),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.AddMetadata("account_id", strconv.FormatUint(uint64(req.AccountID), 10))
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return nil, classifyStripeError(op, err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return &Transaction{ID: pi.ID, Status: StatusSucceeded, Amount: req.Amount}, nil
	case stripe.PaymentIntentStatusProcessing:
		return &Transaction{ID: pi.ID, Status: StatusProcessing, Amount: req.Amount}, nil
	default:
		log.Warnf("[Gateway] Payment intent %s ended in status %s", pi.ID, pi.Status)
		return nil, apperr.External(op, fmt.Errorf("%w: payment intent %s is %s", ErrDeclined, pi.ID, pi.Status), false)
	}
}

// classifyStripeError separates declines and bad requests from outages.
func classifyStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return apperr.External(op, err, true)
	}
	if stripeErr.Type == stripe.ErrorTypeCard {
		return apperr.External(op, fmt.Errorf("%w: %s (%s)", ErrDeclined, stripeErr.Msg, stripeErr.DeclineCode), false)
	}
	transient := stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
		stripeErr.HTTPStatusCode == http.StatusTooManyRequests ||
		stripeErr.Type == stripe.ErrorTypeAPI
	return apperr.External(op, err, transient)
}
