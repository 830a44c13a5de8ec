// Package gateway charges customers through the payment provider.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CollectFox/internal/pkg/env"
)

const (
	StatusSucceeded  = "succeeded"
	StatusProcessing = "processing"
)

// ErrDeclined marks a business rejection by the provider. It is never retried.
var ErrDeclined = errors.New("payment declined")

type ChargeRequest struct {
	AccountID      uint
	Amount         decimal.Decimal
	Currency       string
	Method         string
	Token          string
	IdempotencyKey string
	Description    string
	Metadata       map[string]string
}

type Transaction struct {
	ID     string
	Status string
	Amount decimal.Decimal
}

// Gateway charges a payment method.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*Transaction, error)
}

type Config struct {
	Provider  string
	SecretKey string
	Currency  string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Provider:  env.GetEnv("PAYMENT_GATEWAY", "fake"),
		SecretKey: env.GetEnv("STRIPE_SECRET_KEY", ""),
		Currency:  env.GetEnv("PAYMENT_CURRENCY", "usd"),
	}
	switch cfg.Provider {
	case "stripe":
		if cfg.SecretKey == "" {
			return nil, errors.New("STRIPE_SECRET_KEY is required when PAYMENT_GATEWAY=stripe")
		}
	case "fake":
		if !env.IsDev() {
			return nil, errors.New("the fake payment gateway is only available with APP_ENV=dev")
		}
	default:
		return nil, fmt.Errorf("unknown PAYMENT_GATEWAY %q", cfg.Provider)
	}
	return cfg, nil
}

// New returns the configured gateway.
func New(cfg *Config) Gateway {
	if cfg.Provider == "stripe" {
		return NewStripeGateway(cfg)
	}
	return NewFakeGateway()
}

// Tokens understood by FakeGateway.
const (
	FakeTokenDecline = "tok_decline"
	FakeTokenOutage  = "tok_outage"
)

// FakeGateway approves every charge except the fake decline and outage tokens.
type FakeGateway struct {
	mu    sync.Mutex
	seq   int
	seen  map[string]*Transaction
	calls []ChargeRequest
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{seen: map[string]*Transaction{}}
}

func (g *FakeGateway) Charge(ctx context.Context, req ChargeRequest) (*Transaction, error) {
	const op = "gateway.fake"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()

	switch req.Token {
	case FakeTokenDecline:
		return nil, apperr.External(op, fmt.Errorf("%w: card_declined", ErrDeclined), false)
	case FakeTokenOutage:
		return nil, apperr.External(op, errors.New("provider unavailable"), true)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if tx, ok := g.seen[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return tx, nil
	}
	g.seq++
	tx := &Transaction{ID: fmt.Sprintf("fake_%d", g.seq), Status: StatusSucceeded, Amount: req.Amount}
	if req.IdempotencyKey != "" {
		g.seen[req.IdempotencyKey] = tx
	}
	return tx, nil
}

// Charges returns every charge attempt, including rejected ones.
func (g *FakeGateway) Charges() []ChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ChargeRequest(nil), g.calls...)
}
