package paymentplan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/CollectFox/internal/pkg/env"
	"github.com/ManuelReschke/CollectFox/internal/pkg/risk"
)

// Tier bounds the plans offered to one risk level.
type Tier struct {
	DownPaymentRate decimal.Decimal
	MaxMonths       int
}

var tierLevels = []risk.Level{risk.LevelLow, risk.LevelMedium, risk.LevelHigh, risk.LevelSevere}

type Config struct {
	MinMonthly decimal.Decimal
	Tiers      map[risk.Level]Tier
}

func DefaultConfig() Config {
	return Config{
		MinMonthly: decimal.RequireFromString("50.00"),
		Tiers: map[risk.Level]Tier{
			risk.LevelLow:    {DownPaymentRate: decimal.Zero, MaxMonths: 12},
			risk.LevelMedium: {DownPaymentRate: decimal.RequireFromString("0.10"), MaxMonths: 9},
			risk.LevelHigh:   {DownPaymentRate: decimal.RequireFromString("0.20"), MaxMonths: 6},
			risk.LevelSevere: {DownPaymentRate: decimal.RequireFromString("0.30"), MaxMonths: 3},
		},
	}
}

// LoadConfig reads PLAN_MIN_MONTHLY and the per-tier month limits.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	cfg.MinMonthly = env.GetEnvDecimal("PLAN_MIN_MONTHLY", cfg.MinMonthly)
	for level, tier := range cfg.Tiers {
		tier.MaxMonths = env.GetEnvInt("PLAN_MAX_MONTHS_"+strings.ToUpper(string(level)), tier.MaxMonths)
		cfg.Tiers[level] = tier
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) Validate() error {
	if !c.MinMonthly.IsPositive() {
		return errors.New("PLAN_MIN_MONTHLY must be positive")
	}
	for _, level := range tierLevels {
		tier, ok := c.Tiers[level]
		if !ok {
			return fmt.Errorf("no plan tier for risk level %s", level)
		}
		if tier.MaxMonths < 1 {
			return fmt.Errorf("plan tier %s: max months must be at least 1", level)
		}
		if tier.DownPaymentRate.IsNegative() || tier.DownPaymentRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("plan tier %s: down payment rate must be in [0, 1)", level)
		}
	}
	return nil
}
