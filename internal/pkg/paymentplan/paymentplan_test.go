package paymentplan

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/app/repository"
	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CollectFox/internal/pkg/risk"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"github.com/ManuelReschke/CollectFox/internal/pkg/testdb"
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixedRisk risk.Level

func (f fixedRisk) AssessRisk(ctx context.Context, scope tenant.Scope, accountID uint) (*risk.Assessment, error) {
	return &risk.Assessment{AccountID: accountID, Level: risk.Level(f)}, nil
}

type recordingDocs struct{ types []string }

func (r *recordingDocs) GenerateDocument(ctx context.Context, scope tenant.Scope, accountID uint, docType string) (*models.ComplianceDocument, error) {
	r.types = append(r.types, docType)
	return &models.ComplianceDocument{AccountID: accountID, DocType: docType}, nil
}

func assertProposalSums(t *testing.T, p Proposal) {
	t.Helper()
	sum := p.DownPayment.Add(p.MonthlyPayment.Mul(decimal.NewFromInt(int64(p.DurationMonths))))
	assert.True(t, sum.Equal(p.TotalAmount), "down %s + %d x %s = %s, want %s",
		p.DownPayment, p.DurationMonths, p.MonthlyPayment, sum, p.TotalAmount)
}

func TestProposeMediumRiskFiveHundred(t *testing.T) {
	p, err := Propose(dec("500.00"), risk.LevelMedium, DefaultConfig())
	require.NoError(t, err)

	assert.True(t, p.MonthlyPayment.IsPositive())
	assert.GreaterOrEqual(t, p.DurationMonths, 1)
	assert.Equal(t, 9, p.DurationMonths)
	assert.Equal(t, "50.00", p.MonthlyPayment.StringFixed(2))
	assert.Equal(t, "50.00", p.DownPayment.StringFixed(2))
	assertProposalSums(t, p)
}

func TestProposeTiers(t *testing.T) {
	tests := []struct {
		total  string
		level  risk.Level
		months int
	}{
		{"120.00", risk.LevelLow, 3},
		{"40.00", risk.LevelLow, 1},
		{"10000.00", risk.LevelLow, 12},
		{"999.99", risk.LevelHigh, 6},
		{"1000.00", risk.LevelSevere, 3},
		{"0.01", risk.LevelSevere, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.level)+"/"+tt.total, func(t *testing.T) {
			p, err := Propose(dec(tt.total), tt.level, DefaultConfig())
			require.NoError(t, err)
			assert.Equal(t, tt.months, p.DurationMonths)
			assert.True(t, p.MonthlyPayment.IsPositive() || p.DownPayment.Equal(p.TotalAmount))
			assertProposalSums(t, p)
		})
	}
}

func TestProposeExactForAwkwardTotals(t *testing.T) {
	for _, total := range []string{"100.01", "333.33", "1234.57", "0.07", "7777.77"} {
		for _, level := range tierLevels {
			p, err := Propose(dec(total), level, DefaultConfig())
			require.NoError(t, err)
			assertProposalSums(t, p)
			assert.True(t, p.MonthlyPayment.Equal(p.MonthlyPayment.Round(2)))
		}
	}
}

func TestProposeRejectsInvalidTotal(t *testing.T) {
	for _, total := range []string{"0", "-10", "10.005"} {
		_, err := Propose(dec(total), risk.LevelLow, DefaultConfig())
		assert.True(t, apperr.Is(err, apperr.KindValidation), total)
	}
}

func TestBuildScheduleRemainderGoesToFinalInstallment(t *testing.T) {
	s, err := BuildSchedule(dec("100.00"), dec("0"), 3, now)
	require.NoError(t, err)
	assert.Equal(t, "33.33", s.Monthly.StringFixed(2))
	assert.Equal(t, "33.34", s.Final.StringFixed(2))
	require.Len(t, s.DueDates, 3)
	assert.Equal(t, now.AddDate(0, 1, 0), s.DueDates[0])
}

func TestBuildScheduleValidation(t *testing.T) {
	tests := []struct {
		name  string
		total string
		down  string
		n     int
	}{
		{"zero total", "0", "0", 3},
		{"zero duration", "100", "0", 0},
		{"negative down", "100", "-1", 3},
		{"down equals total", "100", "100", 3},
		{"too small to split", "0.05", "0", 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildSchedule(dec(tt.total), dec(tt.down), tt.n, now)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MinMonthly = decimal.Zero
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	delete(cfg.Tiers, risk.LevelHigh)
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Tiers[risk.LevelSevere] = Tier{DownPaymentRate: dec("1"), MaxMonths: 3}
	assert.Error(t, cfg.Validate())
}

type fixture struct {
	repos   *repository.Repositories
	scope   tenant.Scope
	account *models.Account
	docs    *recordingDocs
	gen     *Generator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := repository.NewRepositories(testdb.Open(t))
	scope := tenant.New(1)
	account := &models.Account{Name: "Acme Dental", Jurisdiction: "US", EmailOptIn: true}
	require.NoError(t, repos.Account.Create(scope, account))
	docs := &recordingDocs{}
	gen := NewGenerator(repos, fixedRisk(risk.LevelMedium), docs, DefaultConfig()).
		WithClock(func() time.Time { return now })
	return &fixture{repos: repos, scope: scope, account: account, docs: docs, gen: gen}
}

func (f *fixture) invoice(t *testing.T, number, amount string, status string) *models.Invoice {
	t.Helper()
	inv := &models.Invoice{
		AccountID: f.account.ID, Number: number, Amount: dec(amount),
		DueDate: now.AddDate(0, 0, -30), Status: status,
	}
	require.NoError(t, f.repos.Invoice.Create(f.scope, inv))
	return inv
}

func TestCreateOptimalPlanUsesRiskTier(t *testing.T) {
	f := newFixture(t)
	p, err := f.gen.CreateOptimalPlan(context.Background(), f.scope, f.account.ID, dec("500.00"))
	require.NoError(t, err)
	assert.Equal(t, risk.LevelMedium, p.RiskLevel)
	assert.Equal(t, f.account.ID, p.AccountID)
	assertProposalSums(t, *p)

	_, err = f.gen.CreateOptimalPlan(context.Background(), f.scope, f.account.ID, decimal.Zero)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCreatePlanLinksExactlyTheGivenInvoices(t *testing.T) {
	f := newFixture(t)
	a := f.invoice(t, "INV-1", "60.00", models.InvoiceStatusOverdue)
	b := f.invoice(t, "INV-2", "40.00", models.InvoiceStatusOverdue)
	other := f.invoice(t, "INV-3", "25.00", models.InvoiceStatusOverdue)

	plan, err := f.gen.CreatePlan(context.Background(), f.scope, f.account.ID,
		[]uint{a.ID, b.ID, a.ID}, PlanTerms{DurationMonths: 3, DownPayment: dec("10.00")})
	require.NoError(t, err)

	assert.Equal(t, "100.00", plan.TotalAmount.StringFixed(2))
	assert.Equal(t, "30.00", plan.MonthlyPayment.StringFixed(2))
	assert.Equal(t, "30.00", plan.FinalPayment.StringFixed(2))
	require.Len(t, plan.Installments, 3)
	assert.True(t, plan.ScheduledTotal().Equal(plan.TotalAmount))
	assert.Len(t, plan.Invoices, 2)
	assert.Equal(t, []string{models.DocumentPaymentPlanAgreement}, f.docs.types)

	invoices, err := f.repos.Invoice.ListByAccount(f.scope, f.account.ID)
	require.NoError(t, err)
	for _, inv := range invoices {
		if inv.ID == other.ID {
			assert.Nil(t, inv.PaymentPlanID)
		} else {
			require.NotNil(t, inv.PaymentPlanID)
			assert.Equal(t, plan.ID, *inv.PaymentPlanID)
		}
	}
}

func TestCreatePlanStoredInstallmentsSumExactly(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, "INV-1", "100.00", models.InvoiceStatusOverdue)

	plan, err := f.gen.CreatePlan(context.Background(), f.scope, f.account.ID,
		[]uint{inv.ID}, PlanTerms{DurationMonths: 3})
	require.NoError(t, err)
	assert.Equal(t, "33.33", plan.Installments[0].Amount.StringFixed(2))
	assert.Equal(t, "33.34", plan.Installments[2].Amount.StringFixed(2))
	assert.Equal(t, "100.00", plan.ScheduledTotal().StringFixed(2))
}

func TestCreatePlanRejectsAndRollsBack(t *testing.T) {
	f := newFixture(t)
	paid := f.invoice(t, "INV-PAID", "50.00", models.InvoiceStatusPaid)
	open := f.invoice(t, "INV-OPEN", "50.00", models.InvoiceStatusOverdue)

	foreignScope := tenant.New(2)
	foreignAcc := &models.Account{Name: "Other MSP client"}
	require.NoError(t, f.repos.Account.Create(foreignScope, foreignAcc))
	foreign := &models.Invoice{AccountID: foreignAcc.ID, Number: "F-1", Amount: dec("10"), DueDate: now, Status: models.InvoiceStatusOverdue}
	require.NoError(t, f.repos.Invoice.Create(foreignScope, foreign))

	tests := []struct {
		name  string
		ids   []uint
		terms PlanTerms
		kind  apperr.Kind
	}{
		{"empty set", nil, PlanTerms{DurationMonths: 3}, apperr.KindValidation},
		{"zero duration", []uint{open.ID}, PlanTerms{DurationMonths: 0}, apperr.KindValidation},
		{"paid invoice", []uint{open.ID, paid.ID}, PlanTerms{DurationMonths: 3}, apperr.KindValidation},
		{"foreign tenant invoice", []uint{open.ID, foreign.ID}, PlanTerms{DurationMonths: 3}, apperr.KindValidation},
		{"down payment covers total", []uint{open.ID}, PlanTerms{DurationMonths: 3, DownPayment: dec("50")}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.gen.CreatePlan(context.Background(), f.scope, f.account.ID, tt.ids, tt.terms)
			assert.True(t, apperr.Is(err, tt.kind), "got %v", err)
		})
	}

	plans, err := f.repos.PaymentPlan.ListByAccount(f.scope, f.account.ID)
	require.NoError(t, err)
	assert.Empty(t, plans)
	invoices, err := f.repos.Invoice.ListByIDs(f.scope, f.account.ID, []uint{open.ID})
	require.NoError(t, err)
	assert.Nil(t, invoices[0].PaymentPlanID)
	assert.Empty(t, f.docs.types)
}

func TestCreatePlanConflictsWithExistingPlan(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, "INV-1", "90.00", models.InvoiceStatusOverdue)

	_, err := f.gen.CreatePlan(context.Background(), f.scope, f.account.ID, []uint{inv.ID}, PlanTerms{DurationMonths: 2})
	require.NoError(t, err)
	_, err = f.gen.CreatePlan(context.Background(), f.scope, f.account.ID, []uint{inv.ID}, PlanTerms{DurationMonths: 2})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestCreatePlanUnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.gen.CreatePlan(context.Background(), tenant.New(9), f.account.ID, []uint{1}, PlanTerms{DurationMonths: 1})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
