package risk

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
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"github.com/ManuelReschke/CollectFox/internal/pkg/testdb"
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time { return now.AddDate(0, 0, -n) }

func paidInvoice(due time.Time, paid time.Time) models.Invoice {
	return models.Invoice{
		Amount: decimal.NewFromInt(100), AmountPaid: decimal.NewFromInt(100),
		DueDate: due, Status: models.InvoiceStatusPaid, PaidAt: &paid,
	}
}

func overdueInvoice(amount int64, due time.Time) models.Invoice {
	return models.Invoice{Amount: decimal.NewFromInt(amount), DueDate: due, Status: models.InvoiceStatusOverdue}
}

func TestAssessNoHistoryIsMinimalRisk(t *testing.T) {
	acc := &models.Account{ID: 1, CreatedAt: daysAgo(10)}

	for _, invoices := range [][]models.Invoice{nil, {{Status: models.InvoiceStatusVoid, Amount: decimal.NewFromInt(10)}}} {
		a := Assess(acc, invoices, now, DefaultConfig())
		assert.Equal(t, LevelLow, a.Level)
		assert.Zero(t, a.Score)
		require.Len(t, a.Factors, 1)
		assert.Equal(t, FactorNoHistory, a.Factors[0].Name)
	}
}

func TestAssessLevels(t *testing.T) {
	tests := []struct {
		name     string
		created  time.Time
		invoices []models.Invoice
		want     Level
		score    float64
	}{
		{
			name:    "long standing punctual payer",
			created: daysAgo(800),
			invoices: []models.Invoice{
				paidInvoice(daysAgo(60), daysAgo(62)),
				paidInvoice(daysAgo(30), daysAgo(31)),
			},
			want:  LevelLow,
			score: 0,
		},
		{
			// aging 45/90*40=20, frequency 1/5*25=5, history neutral 12.5, tenure 10
			name:     "new account with one invoice 45 days overdue",
			created:  daysAgo(60),
			invoices: []models.Invoice{overdueInvoice(500, daysAgo(45))},
			want:     LevelMedium,
			score:    47.5,
		},
		{
			// aging 40, frequency 4/5*25=20, history 2/2*25=25, tenure 0
			name:    "chronic late payer",
			created: daysAgo(900),
			invoices: []models.Invoice{
				paidInvoice(daysAgo(200), daysAgo(150)),
				paidInvoice(daysAgo(170), daysAgo(120)),
				overdueInvoice(300, daysAgo(120)),
				overdueInvoice(300, daysAgo(95)),
			},
			want:  LevelSevere,
			score: 85,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := &models.Account{ID: 7, CreatedAt: tt.created}
			a := Assess(acc, tt.invoices, now, DefaultConfig())
			assert.Equal(t, tt.want, a.Level)
			assert.InDelta(t, tt.score, a.Score, 0.001)
			assert.Len(t, a.Factors, 4)
		})
	}
}

func TestAssessIsDeterministic(t *testing.T) {
	acc := &models.Account{ID: 7, CreatedAt: daysAgo(200)}
	invoices := []models.Invoice{overdueInvoice(120, daysAgo(20)), paidInvoice(daysAgo(50), daysAgo(40))}

	first := Assess(acc, invoices, now, DefaultConfig())
	second := Assess(acc, invoices, now, DefaultConfig())
	assert.Equal(t, first, second)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.WeightTenure = 20
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.HighThreshold = bad.MediumThreshold
	assert.Error(t, bad.Validate())
}

func TestLevelAtLeast(t *testing.T) {
	assert.True(t, LevelSevere.AtLeast(LevelHigh))
	assert.True(t, LevelHigh.AtLeast(LevelHigh))
	assert.False(t, LevelMedium.AtLeast(LevelHigh))

	_, err := ParseLevel("extreme")
	assert.Error(t, err)
}

func TestEngineAssessRiskIsTenantScoped(t *testing.T) {
	repos := repository.NewRepositories(testdb.Open(t))
	scope := tenant.New(1)
	acc := &models.Account{Name: "Acme", CreatedAt: daysAgo(60)}
	require.NoError(t, repos.Account.Create(scope, acc))
	inv := overdueInvoice(500, daysAgo(45))
	inv.AccountID = acc.ID
	inv.Number = "INV-1"
	require.NoError(t, repos.Invoice.Create(scope, &inv))

	engine := NewEngine(repos.Account, repos.Invoice, DefaultConfig()).WithClock(func() time.Time { return now })

	a, err := engine.AssessRisk(context.Background(), scope, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, LevelMedium, a.Level)

	_, err = engine.AssessRisk(context.Background(), tenant.New(2), acc.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
