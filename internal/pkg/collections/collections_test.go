package collections

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/app/repository"
	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CollectFox/internal/pkg/gateway"
	"github.com/ManuelReschke/CollectFox/internal/pkg/retry"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"github.com/ManuelReschke/CollectFox/internal/pkg/testdb"
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingRestorer struct {
	holds   []uint
	reasons []string
}

func (r *recordingRestorer) Restore(_ context.Context, _ tenant.Scope, holdID uint, reason string) (bool, error) {
	r.holds = append(r.holds, holdID)
	r.reasons = append(r.reasons, reason)
	return true, nil
}

type memClaims struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memClaims) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memClaims) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type fixture struct {
	repos    *repository.Repositories
	claims   *memClaims
	scope    tenant.Scope
	account  *models.Account
	gw       *gateway.FakeGateway
	restorer *recordingRestorer
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := repository.NewRepositories(testdb.Open(t))
	claims := &memClaims{keys: map[string]bool{}}
	repos.Claim = claims
	scope := tenant.New(1)
	account := &models.Account{Name: "Pinecrest Dental", Email: "ap@pinecrest.example", Jurisdiction: "US"}
	require.NoError(t, repos.Account.Create(scope, account))

	gw := gateway.NewFakeGateway()
	restorer := &recordingRestorer{}
	svc := NewService(repos, gw, restorer).
		WithRetryPolicy(retry.Policy{Attempts: 2, BaseDelay: time.Millisecond}).
		WithClock(func() time.Time { return now })
	return &fixture{repos: repos, claims: claims, scope: scope, account: account, gw: gw, restorer: restorer, svc: svc}
}

func (f *fixture) invoice(t *testing.T, number, amount string, daysOverdue int) *models.Invoice {
	t.Helper()
	due := now.AddDate(0, 0, -daysOverdue)
	inv := &models.Invoice{AccountID: f.account.ID, Number: number, Amount: dec(amount),
		IssuedAt: due.AddDate(0, 0, -30), DueDate: due, Status: models.InvoiceStatusOverdue}
	require.NoError(t, f.repos.Invoice.Create(f.scope, inv))
	return inv
}

func (f *fixture) hold(t *testing.T) *models.AccountHold {
	t.Helper()
	h := &models.AccountHold{AccountID: f.account.ID, HoldType: models.HoldTypeVoIPSuspension,
		Reason: "overdue", Status: models.HoldStatusActive}
	require.NoError(t, f.repos.Hold.Create(f.scope, h))
	return h
}

func (f *fixture) invoices(t *testing.T) map[string]models.Invoice {
	t.Helper()
	list, err := f.repos.Invoice.ListByAccount(f.scope, f.account.ID)
	require.NoError(t, err)
	out := map[string]models.Invoice{}
	for _, inv := range list {
		out[inv.Number] = inv
	}
	return out
}

func TestProcessPaymentAppliesOldestFirst(t *testing.T) {
	f := newFixture(t)
	f.invoice(t, "INV-2", "80.00", 20)
	f.invoice(t, "INV-1", "100.00", 50)

	res, err := f.svc.ProcessPayment(context.Background(), f.scope, f.account.ID, PaymentRequest{
		Amount: dec("130.00"), Method: models.PaymentMethodCard, Token: "tok_visa",
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusCompleted, res.Payment.Status)
	assert.Contains(t, res.Payment.ProviderRef, "fake_")
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, "100.00", res.Allocations[0].Amount.StringFixed(2))
	assert.True(t, res.Allocations[0].Settled)
	assert.Equal(t, "30.00", res.Allocations[1].Amount.StringFixed(2))
	assert.False(t, res.Allocations[1].Settled)
	assert.Equal(t, "50.00", res.RemainingOverdue.StringFixed(2))
	assert.False(t, res.HoldRestored)

	stored := f.invoices(t)
	assert.Equal(t, models.InvoiceStatusPaid, stored["INV-1"].Status)
	require.NotNil(t, stored["INV-1"].PaidAt)
	assert.Equal(t, models.InvoiceStatusOverdue, stored["INV-2"].Status)
	assert.Equal(t, "30.00", stored["INV-2"].AmountPaid.StringFixed(2))

	notes, err := f.svc.ListNotes(context.Background(), f.scope, f.account.ID, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, res.Payment.ID, *notes[0].PaymentID)
}

func TestProcessPaymentSettlingBalanceRestoresHold(t *testing.T) {
	f := newFixture(t)
	f.invoice(t, "INV-1", "100.00", 40)
	hold := f.hold(t)

	res, err := f.svc.ProcessPayment(context.Background(), f.scope, f.account.ID, PaymentRequest{
		Amount: dec("100.00"), Method: models.PaymentMethodCheck, Reference: "chk-1042",
	})
	require.NoError(t, err)

	assert.True(t, res.RemainingOverdue.IsZero())
	assert.True(t, res.HoldRestored)
	assert.Equal(t, []uint{hold.ID}, f.restorer.holds)
	assert.Equal(t, "chk-1042", res.Payment.ProviderRef)
	assert.Empty(t, f.gw.Charges(), "manual payments never reach the gateway")
}

func TestProcessPaymentLimitedToRequestedInvoices(t *testing.T) {
	f := newFixture(t)
	f.invoice(t, "INV-1", "100.00", 50)
	second := f.invoice(t, "INV-2", "60.00", 10)

	res, err := f.svc.ProcessPayment(context.Background(), f.scope, f.account.ID, PaymentRequest{
		Amount: dec("60.00"), Method: models.PaymentMethodACH, Token: "tok_ach", InvoiceIDs: []uint{second.ID},
	})
	require.NoError(t, err)
	require.Len(t, res.Allocations, 1)
	assert.Equal(t, second.ID, res.Allocations[0].InvoiceID)

	stored := f.invoices(t)
	assert.Equal(t, models.InvoiceStatusPaid, stored["INV-2"].Status)
	assert.True(t, stored["INV-1"].AmountPaid.IsZero())
	assert.Empty(t, f.restorer.holds)
}

func TestProcessPaymentDeclined(t *testing.T) {
	f := newFixture(t)
	f.invoice(t, "INV-1", "100.00", 40)
	f.hold(t)

	res, err := f.svc.ProcessPayment(context.Background(), f.scope, f.account.ID, PaymentRequest{
		Amount: dec("100.00"), Method: models.PaymentMethodCard, Token: gateway.FakeTokenDecline,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrDeclined)
	require.NotNil(t, res)
	assert.Equal(t, models.PaymentStatusFailed, res.Payment.Status)

	payments, err := f.repos.Payment.ListByAccount(f.scope, f.account.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusFailed, payments[0].Status)
	assert.True(t, f.invoices(t)["INV-1"].AmountPaid.IsZero())
	assert.Empty(t, f.restorer.holds)
}

func TestProcessPaymentGatewayOutageIsRetriedThenReported(t *testing.T) {
	f := newFixture(t)
	f.invoice(t, "INV-1", "100.00", 40)

	_, err := f.svc.ProcessPayment(context.Background(), f.scope, f.account.ID, PaymentRequest{
		Amount: dec("100.00"), Method: models.PaymentMethodCard, Token: gateway.FakeTokenOutage,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindExternalService, apperr.KindOf(err))
	assert.True(t, apperr.IsTransient(err))
	assert.Len(t, f.gw.Charges(), 2)
}

func TestProcessPaymentRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t)
	f.invoice(t, "INV-1", "100.00", 40)
	paid := &models.Invoice{AccountID: f.account.ID, Number: "INV-0", Amount: dec("20.00"), AmountPaid: dec("20.00"),
		DueDate: now.AddDate(0, -3, 0), Status: models.InvoiceStatusPaid}
	require.NoError(t, f.repos.Invoice.Create(f.scope, paid))

	tests := []struct {
		name string
		req  PaymentRequest
		kind apperr.Kind
	}{
		{"zero amount", PaymentRequest{Amount: decimal.Zero, Method: "check"}, apperr.KindValidation},
		{"sub cent", PaymentRequest{Amount: dec("10.005"), Method: "check"}, apperr.KindValidation},
		{"unknown method", PaymentRequest{Amount: dec("10.00"), Method: "bitcoin"}, apperr.KindValidation},
		{"card without token", PaymentRequest{Amount: dec("10.00"), Method: "card"}, apperr.KindValidation},
		{"overpayment", PaymentRequest{Amount: dec("100.01"), Method: "check"}, apperr.KindValidation},
		{"paid invoice", PaymentRequest{Amount: dec("10.00"), Method: "check", InvoiceIDs: []uint{paid.ID}}, apperr.KindValidation},
		{"foreign invoice", PaymentRequest{Amount: dec("10.00"), Method: "check", InvoiceIDs: []uint{9999}}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ProcessPayment(context.Background(), f.scope, f.account.ID, tt.req)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	_, err := f.svc.ProcessPayment(context.Background(), f.scope, 4242, PaymentRequest{Amount: dec("1.00"), Method: "check"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.svc.ProcessPayment(context.Background(), tenant.New(2), f.account.ID, PaymentRequest{Amount: dec("1.00"), Method: "check"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	payments, err := f.repos.Payment.ListByAccount(f.scope, f.account.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestProcessPaymentConcurrentPaymentsCannotOverpay(t *testing.T) {
	f := newFixture(t)
	f.invoice(t, "INV-1", "500.00", 30)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ProcessPayment(context.Background(), f.scope, f.account.ID, PaymentRequest{
				Amount: dec("300.00"), Method: models.PaymentMethodCard, Token: "tok_visa",
			})
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperr.Is(err, apperr.KindValidation):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Len(t, f.gw.Charges(), 1)

	stored := f.invoices(t)
	assert.Equal(t, "300.00", stored["INV-1"].AmountPaid.StringFixed(2))
	assert.Equal(t, models.InvoiceStatusOverdue, stored["INV-1"].Status)

	payments, err := f.repos.Payment.ListByAccount(f.scope, f.account.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusCompleted, payments[0].Status)
}

func TestProcessPaymentConflictsWithPaymentOnAnotherInstance(t *testing.T) {
	f := newFixture(t)
	f.invoice(t, "INV-1", "500.00", 30)
	_, err := f.claims.Claim(context.Background(), fmt.Sprintf("collections:payment:%d:%d", f.scope.TenantID, f.account.ID), time.Minute)
	require.NoError(t, err)

	_, err = f.svc.ProcessPayment(context.Background(), f.scope, f.account.ID, PaymentRequest{
		Amount: dec("100.00"), Method: models.PaymentMethodCard, Token: "tok_visa",
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Empty(t, f.gw.Charges())
	assert.True(t, f.invoices(t)["INV-1"].AmountPaid.IsZero())
}

func TestAllocateStopsWhenAmountIsUsed(t *testing.T) {
	invoices := []models.Invoice{
		{ID: 1, Amount: dec("50.00"), AmountPaid: dec("50.00"), Status: models.InvoiceStatusOverdue},
		{ID: 2, Amount: dec("40.00"), Status: models.InvoiceStatusOverdue},
		{ID: 3, Amount: dec("40.00"), Status: models.InvoiceStatusOverdue},
	}
	allocs := allocate(invoices, dec("40.00"), now)
	require.Len(t, allocs, 1)
	assert.Equal(t, uint(2), allocs[0].InvoiceID)
	assert.Equal(t, models.InvoiceStatusPaid, invoices[1].Status)
	assert.True(t, invoices[2].AmountPaid.IsZero())
}

func TestNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddNote(ctx, f.scope, f.account.ID, NoteRequest{Body: "   "})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.AddNote(ctx, f.scope, 4242, NoteRequest{Body: "hello"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	first, err := f.svc.AddNote(ctx, f.scope, f.account.ID, NoteRequest{Body: "Called AP, promised payment Friday"})
	require.NoError(t, err)
	assert.Equal(t, "system", first.Author)

	second, err := f.svc.AddNote(ctx, f.scope, f.account.ID, NoteRequest{Author: "dana", Body: "Sent W-9"})
	require.NoError(t, err)

	notes, err := f.svc.ListNotes(ctx, f.scope, f.account.ID, 10)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, second.ID, notes[0].ID)

	others, err := f.svc.ListNotes(ctx, tenant.New(2), f.account.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, others)
}
