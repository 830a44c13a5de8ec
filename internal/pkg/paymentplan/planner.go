// Package paymentplan proposes and records installment plans for overdue balances.
package paymentplan

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CollectFox/internal/pkg/risk"
)

// Proposal is an offer; nothing is stored.
// DownPayment + MonthlyPayment*DurationMonths == TotalAmount.
type Proposal struct {
	AccountID      uint            `json:"account_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DownPayment    decimal.Decimal `json:"down_payment"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	DurationMonths int             `json:"duration_months"`
	RiskLevel      risk.Level      `json:"risk_level"`
}

// Schedule is the stored split of a plan. The last installment carries the
// rounding remainder, so DownPayment + Monthly*(n-1) + Final == total.
type Schedule struct {
	DownPayment decimal.Decimal
	Monthly     decimal.Decimal
	Final       decimal.Decimal
	DueDates    []time.Time
}

var hundred = decimal.NewFromInt(100)

// Propose returns the shortest plan the risk tier allows whose monthly
// payment stays affordable. Pure.
func Propose(total decimal.Decimal, level risk.Level, cfg Config) (Proposal, error) {
	const op = "paymentplan.propose"
	if !total.IsPositive() {
		return Proposal{}, apperr.Validation(op, "total amount must be positive")
	}
	if !total.Equal(total.Round(2)) {
		return Proposal{}, apperr.Validation(op, "total amount has sub-cent precision")
	}
	tier, ok := cfg.Tiers[level]
	if !ok {
		return Proposal{}, apperr.Validation(op, "no plan tier for risk level %q", level)
	}

	down := total.Mul(tier.DownPaymentRate).RoundFloor(2)
	financed := total.Sub(down)

	// Smallest n whose payment does not exceed the minimum monthly amount,
	// capped at the tier maximum. When capped the payment is financed/max,
	// which is the affordability ceiling of that tier.
	n := int(financed.Div(cfg.MinMonthly).Ceil().IntPart())
	if n < 1 {
		n = 1
	}
	if n > tier.MaxMonths {
		n = tier.MaxMonths
	}

	count := decimal.NewFromInt(int64(n))
	monthly := financed.Div(count).RoundFloor(2)
	down = down.Add(financed.Sub(monthly.Mul(count)))

	return Proposal{
		TotalAmount:    total,
		DownPayment:    down,
		MonthlyPayment: monthly,
		DurationMonths: n,
		RiskLevel:      level,
	}, nil
}

// BuildSchedule splits total into a down payment and n monthly installments,
// the first due one month after start.
func BuildSchedule(total, down decimal.Decimal, n int, start time.Time) (Schedule, error) {
	const op = "paymentplan.schedule"
	switch {
	case !total.IsPositive():
		return Schedule{}, apperr.Validation(op, "total amount must be positive")
	case n < 1:
		return Schedule{}, apperr.Validation(op, "duration must be at least one month")
	case down.IsNegative():
		return Schedule{}, apperr.Validation(op, "down payment must not be negative")
	case down.GreaterThanOrEqual(total):
		return Schedule{}, apperr.Validation(op, "down payment must be less than the total")
	case !down.Equal(down.Round(2)):
		return Schedule{}, apperr.Validation(op, "down payment has sub-cent precision")
	}

	financed := total.Sub(down)
	if financed.Mul(hundred).LessThan(decimal.NewFromInt(int64(n))) {
		return Schedule{}, apperr.Validation(op, "%s cannot be split into %d installments", financed.StringFixed(2), n)
	}
	monthly := financed.Div(decimal.NewFromInt(int64(n))).RoundFloor(2)
	final := financed.Sub(monthly.Mul(decimal.NewFromInt(int64(n - 1))))

	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = start.AddDate(0, i+1, 0)
	}
	return Schedule{DownPayment: down, Monthly: monthly, Final: final, DueDates: dates}, nil
}
