package paymentplan

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/app/repository"
	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CollectFox/internal/pkg/risk"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
)

// RiskAssessor scores an account.
type RiskAssessor interface {
	AssessRisk(ctx context.Context, scope tenant.Scope, accountID uint) (*risk.Assessment, error)
}

// DocumentGenerator produces the signed plan agreement.
type DocumentGenerator interface {
	GenerateDocument(ctx context.Context, scope tenant.Scope, accountID uint, docType string) (*models.ComplianceDocument, error)
}

type PlanTerms struct {
	DurationMonths int             `json:"duration_months" validate:"required,min=1,max=60"`
	DownPayment    decimal.Decimal `json:"down_payment"`
	StartDate      time.Time       `json:"start_date"`
}

type Generator struct {
	repos *repository.Repositories
	risk  RiskAssessor
	docs  DocumentGenerator
	cfg   Config
	now   func() time.Time
}

func NewGenerator(repos *repository.Repositories, assessor RiskAssessor, docs DocumentGenerator, cfg Config) *Generator {
	return &Generator{repos: repos, risk: assessor, docs: docs, cfg: cfg, now: time.Now}
}

func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// CreateOptimalPlan proposes a plan for total bounded by the account's risk tier.
func (g *Generator) CreateOptimalPlan(ctx context.Context, scope tenant.Scope, accountID uint, total decimal.Decimal) (*Proposal, error) {
	const op = "paymentplan.optimal"
	if err := scope.Validate(); err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}
	if !total.IsPositive() {
		return nil, apperr.Validation(op, "total amount must be positive")
	}

	assessment, err := g.risk.AssessRisk(ctx, scope, accountID)
	if err != nil {
		return nil, err
	}
	proposal, err := Propose(total, assessment.Level, g.cfg)
	if err != nil {
		return nil, err
	}
	proposal.AccountID = accountID
	return &proposal, nil
}

// CreatePlan stores a plan over exactly the given invoices. The plan, its
// installments and the invoice links are written in one transaction.
func (g *Generator) CreatePlan(ctx context.Context, scope tenant.Scope, accountID uint, invoiceIDs []uint, terms PlanTerms) (*models.PaymentPlan, error) {
	const op = "paymentplan.create"
	if err := scope.Validate(); err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}
	ids := uniqueIDs(invoiceIDs)
	if len(ids) == 0 {
		return nil, apperr.Validation(op, "at least one invoice is required")
	}
	if terms.DurationMonths < 1 {
		return nil, apperr.Validation(op, "duration must be at least one month")
	}
	if terms.DownPayment.IsNegative() {
		return nil, apperr.Validation(op, "down payment must not be negative")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := g.repos.Account.GetByID(scope, accountID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "account %d not found", accountID)
		}
		return nil, apperr.Internal(op, err)
	}

	start := terms.StartDate
	if start.IsZero() {
		y, m, d := g.now().UTC().Date()
		start = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	var planID uint
	err := g.repos.Transaction(func(tx *repository.Repositories) error {
		invoices, err := tx.Invoice.ListByIDs(scope, accountID, ids)
		if err != nil {
			return apperr.Internal(op, err)
		}
		if len(invoices) != len(ids) {
			return apperr.Validation(op, "%d of %d invoices do not belong to account %d",
				len(ids)-len(invoices), len(ids), accountID)
		}

		total := decimal.Zero
		for i := range invoices {
			inv := &invoices[i]
			if inv.PaymentPlanID != nil {
				return apperr.Conflict(op, "invoice %s is already covered by plan %d", inv.Number, *inv.PaymentPlanID)
			}
			if !inv.IsUnpaid() {
				return apperr.Validation(op, "invoice %s is %s and cannot be included", inv.Number, inv.Status)
			}
			total = total.Add(inv.Outstanding())
		}

		schedule, err := BuildSchedule(total, terms.DownPayment, terms.DurationMonths, start)
		if err != nil {
			return err
		}

		plan := &models.PaymentPlan{
			AccountID:      accountID,
			TotalAmount:    total,
			DownPayment:    schedule.DownPayment,
			MonthlyPayment: schedule.Monthly,
			FinalPayment:   schedule.Final,
			DurationMonths: terms.DurationMonths,
			StartDate:      start,
			Status:         models.PlanStatusActive,
		}
		for i, due := range schedule.DueDates {
			amount := schedule.Monthly
			if i == len(schedule.DueDates)-1 {
				amount = schedule.Final
			}
			plan.Installments = append(plan.Installments, models.PaymentPlanInstallment{
				Sequence: i + 1,
				DueDate:  due,
				Amount:   amount,
				Status:   models.InstallmentStatusScheduled,
			})
		}
		if err := tx.PaymentPlan.Create(scope, plan); err != nil {
			return apperr.Internal(op, err)
		}

		linked, err := tx.Invoice.AssignPlan(scope, accountID, ids, plan.ID)
		if err != nil {
			return apperr.Internal(op, err)
		}
		if linked != int64(len(ids)) {
			return apperr.Conflict(op, "linked %d of %d invoices, another plan claimed the rest", linked, len(ids))
		}
		planID = plan.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[PaymentPlan] Created plan %d for account %d (tenant %d)", planID, accountID, scope.TenantID)

	if g.docs != nil {
		if _, err := g.docs.GenerateDocument(ctx, scope, accountID, models.DocumentPaymentPlanAgreement); err != nil {
			log.Errorf("[PaymentPlan] Agreement for plan %d could not be generated: %v", planID, err)
		}
	}

	plan, err := g.repos.PaymentPlan.GetByID(scope, planID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return plan, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
