// Package risk scores how likely a customer account is to stay delinquent.
package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/app/repository"
	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CollectFox/internal/pkg/metrics"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"gorm.io/gorm"
)

type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
	LevelSevere Level = "severe"
)

var levelRank = map[Level]int{LevelLow: 0, LevelMedium: 1, LevelHigh: 2, LevelSevere: 3}

// AtLeast reports whether l is as risky as other or riskier.
func (l Level) AtLeast(other Level) bool {
	return levelRank[l] >= levelRank[other]
}

// ParseLevel accepts the lower-case level names.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if _, ok := levelRank[l]; !ok {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return l, nil
}

const (
	FactorAging            = "aging"
	FactorOverdueFrequency = "overdue_frequency"
	FactorPaymentHistory   = "payment_history"
	FactorTenure           = "tenure"
	FactorNoHistory        = "no_history"
)

// Factor is one weighted input of the score. Value is normalised to 0..1.
type Factor struct {
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	Weight       int     `json:"weight"`
	Contribution float64 `json:"contribution"`
	Detail       string  `json:"detail,omitempty"`
}

type Assessment struct {
	AccountID  uint      `json:"account_id"`
	Level      Level     `json:"risk_level"`
	Score      float64   `json:"risk_score"`
	Factors    []Factor  `json:"factors"`
	AssessedAt time.Time `json:"assessed_at"`
}

// Assess scores an account from its invoice history. It has no side effects
// and the same inputs always give the same assessment.
func Assess(account *models.Account, invoices []models.Invoice, now time.Time, cfg Config) Assessment {
	result := Assessment{AccountID: account.ID, AssessedAt: now}

	relevant := make([]models.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.Status != models.InvoiceStatusVoid {
			relevant = append(relevant, inv)
		}
	}
	if len(relevant) == 0 {
		result.Level = LevelLow
		result.Factors = []Factor{{Name: FactorNoHistory, Detail: "account has no invoice history"}}
		return result
	}

	factors := []Factor{
		agingFactor(relevant, now, cfg),
		frequencyFactor(relevant, now, cfg),
		historyFactor(relevant, cfg),
		tenureFactor(account, now, cfg),
	}

	var score float64
	for i := range factors {
		factors[i].Contribution = round2(factors[i].Value * float64(factors[i].Weight))
		score += factors[i].Value * float64(factors[i].Weight)
	}

	result.Score = round2(score)
	result.Level = cfg.levelFor(result.Score)
	result.Factors = factors
	return result
}

func agingFactor(invoices []models.Invoice, now time.Time, cfg Config) Factor {
	f := Factor{Name: FactorAging, Weight: cfg.WeightAging}
	oldest := 0
	for i := range invoices {
		if !invoices[i].IsUnpaid() {
			continue
		}
		if d := invoices[i].DaysOverdue(now); d > oldest {
			oldest = d
		}
	}
	f.Value = saturate(float64(oldest), float64(cfg.AgingSaturationDays))
	f.Detail = fmt.Sprintf("oldest unpaid invoice %d days past due", oldest)
	return f
}

// frequencyFactor counts invoices due inside the window that were paid late
// or are still unpaid past due.
func frequencyFactor(invoices []models.Invoice, now time.Time, cfg Config) Factor {
	f := Factor{Name: FactorOverdueFrequency, Weight: cfg.WeightFrequency}
	since := now.AddDate(0, -cfg.FrequencyWindowMonths, 0)
	count := 0
	for i := range invoices {
		inv := &invoices[i]
		if inv.DueDate.Before(since) || inv.DueDate.After(now) {
			continue
		}
		lateUnpaid := inv.IsUnpaid() && inv.DaysOverdue(now) > 0
		latePaid := inv.Status == models.InvoiceStatusPaid && inv.PaidAt != nil && inv.PaidAt.After(inv.DueDate)
		if lateUnpaid || latePaid {
			count++
		}
	}
	f.Value = saturate(float64(count), float64(cfg.FrequencySaturation))
	f.Detail = fmt.Sprintf("%d overdue invoices in the last %d months", count, cfg.FrequencyWindowMonths)
	return f
}

// historyFactor is the late share of settled invoices. Without settled
// invoices the ratio is unknown and scored as neutral.
func historyFactor(invoices []models.Invoice, cfg Config) Factor {
	f := Factor{Name: FactorPaymentHistory, Weight: cfg.WeightHistory}
	settled, onTime := 0, 0
	for i := range invoices {
		if invoices[i].Status != models.InvoiceStatusPaid || invoices[i].PaidAt == nil {
			continue
		}
		settled++
		if invoices[i].PaidOnTime() {
			onTime++
		}
	}
	if settled == 0 {
		f.Value = 0.5
		f.Detail = "no settled invoices"
		return f
	}
	f.Value = 1 - float64(onTime)/float64(settled)
	f.Detail = fmt.Sprintf("%d of %d invoices paid on time", onTime, settled)
	return f
}

func tenureFactor(account *models.Account, now time.Time, cfg Config) Factor {
	f := Factor{Name: FactorTenure, Weight: cfg.WeightTenure}
	months := account.TenureMonths(now)
	switch {
	case months < 6:
		f.Value = 1
	case months < 12:
		f.Value = 0.5
	}
	f.Detail = fmt.Sprintf("customer for %d months", months)
	return f
}

func (c Config) levelFor(score float64) Level {
	switch {
	case score >= c.SevereThreshold:
		return LevelSevere
	case score >= c.HighThreshold:
		return LevelHigh
	case score >= c.MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

func saturate(v, limit float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Min(v/limit, 1)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Engine loads ledger state and runs Assess on it.
type Engine struct {
	accounts repository.AccountRepository
	invoices repository.InvoiceRepository
	cfg      Config
	now      func() time.Time
	metrics  *metrics.CollectionMetrics
}

// NewEngine creates a risk engine. cfg must already be validated.
func NewEngine(accounts repository.AccountRepository, invoices repository.InvoiceRepository, cfg Config) *Engine {
	return &Engine{accounts: accounts, invoices: invoices, cfg: cfg, now: time.Now}
}

// WithClock replaces the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) WithMetrics(m *metrics.CollectionMetrics) *Engine {
	e.metrics = m
	return e
}

// AssessRisk scores an account of the scope's tenant.
func (e *Engine) AssessRisk(ctx context.Context, scope tenant.Scope, accountID uint) (*Assessment, error) {
	const op = "risk.assess"
	if err := scope.Validate(); err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	account, err := e.accounts.GetByID(scope, accountID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(op, "account %d not found", accountID)
	}
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return e.AssessAccount(ctx, scope, account)
}

// AssessAccount scores an already loaded account.
func (e *Engine) AssessAccount(ctx context.Context, scope tenant.Scope, account *models.Account) (*Assessment, error) {
	invoices, err := e.invoices.ListByAccount(scope, account.ID)
	if err != nil {
		return nil, apperr.Internal("risk.assess", err)
	}
	a := Assess(account, invoices, e.now(), e.cfg)
	e.metrics.RiskAssessed(string(a.Level))
	return &a, nil
}
