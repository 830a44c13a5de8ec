// Package collections records customer payments against overdue invoices and
// keeps the collection notes of an account.
package collections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/app/repository"
	"github.com/ManuelReschke/CollectFox/internal/pkg/accountlock"
	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CollectFox/internal/pkg/gateway"
	"github.com/ManuelReschke/CollectFox/internal/pkg/metrics"
	"github.com/ManuelReschke/CollectFox/internal/pkg/retry"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
)

// Restorer lifts a hold once the account is current again.
type Restorer interface {
	Restore(ctx context.Context, scope tenant.Scope, holdID uint, reason string) (bool, error)
}

type PaymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method" validate:"required,oneof=card ach bank_transfer check"`
	Token          string          `json:"token"`
	InvoiceIDs     []uint          `json:"invoice_ids"`
	IdempotencyKey string          `json:"idempotency_key"`
	Reference      string          `json:"reference"`
}

// Allocation is the part of a payment applied to one invoice.
type Allocation struct {
	InvoiceID uint            `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Settled   bool            `json:"settled"`
}

type PaymentResult struct {
	Payment          *models.Payment `json:"payment"`
	Allocations      []Allocation    `json:"allocations"`
	RemainingOverdue decimal.Decimal `json:"remaining_overdue"`
	HoldRestored     bool            `json:"hold_restored"`
}

// gatewayMethods are charged through the payment provider; the others are
// recorded as received.
var gatewayMethods = map[string]bool{
	models.PaymentMethodCard: true,
	models.PaymentMethodACH:  true,
}

var knownMethods = map[string]bool{
	models.PaymentMethodCard:         true,
	models.PaymentMethodACH:          true,
	models.PaymentMethodBankTransfer: true,
	models.PaymentMethodCheck:        true,
}

// paymentLockTTL outlives a charge with all its retries.
const paymentLockTTL = 2 * time.Minute

type Service struct {
	repos    *repository.Repositories
	gateway  gateway.Gateway
	restorer Restorer
	locks    *accountlock.Locker
	metrics  *metrics.CollectionMetrics
	policy   retry.Policy
	now      func() time.Time
}

func NewService(repos *repository.Repositories, gw gateway.Gateway, restorer Restorer) *Service {
	return &Service{
		repos:    repos,
		gateway:  gw,
		restorer: restorer,
		locks:    accountlock.New(repos.Claim, paymentLockTTL),
		policy:   retry.DefaultPolicy,
		now:      time.Now,
	}
}

func (s *Service) WithMetrics(m *metrics.CollectionMetrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) WithRetryPolicy(p retry.Policy) *Service {
	s.policy = p
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ProcessPayment charges the customer and applies the amount to the given
// invoices, or to every open invoice, oldest due first.
func (s *Service) ProcessPayment(ctx context.Context, scope tenant.Scope, accountID uint, req PaymentRequest) (*PaymentResult, error) {
	const op = "collections.payment"
	if err := scope.Validate(); err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, apperr.Validation(op, "amount must be a positive amount in cents precision")
	}
	if !knownMethods[req.Method] {
		return nil, apperr.Validation(op, "unknown payment method %q", req.Method)
	}
	if gatewayMethods[req.Method] && req.Token == "" {
		return nil, apperr.Validation(op, "a payment token is required for %s payments", req.Method)
	}

	if _, err := s.repos.Account.GetByID(scope, accountID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "account %d not found", accountID)
		}
		return nil, apperr.Internal(op, err)
	}

	// one payment per account at a time: balance check, charge and ledger
	// update must see each other's results
	release, err := s.locks.Acquire(ctx, fmt.Sprintf("collections:payment:%d:%d", scope.TenantID, accountID))
	if errors.Is(err, accountlock.ErrBusy) {
		return nil, apperr.Conflict(op, "another payment for account %d is in progress", accountID)
	}
	if err != nil {
		return nil, err
	}
	defer release()

	invoices, err := s.openInvoices(scope, accountID, req.InvoiceIDs)
	if err != nil {
		return nil, err
	}
	open := decimal.Zero
	for i := range invoices {
		open = open.Add(invoices[i].Outstanding())
	}
	if !open.IsPositive() {
		return nil, apperr.Validation(op, "account %d has nothing to pay", accountID)
	}
	if req.Amount.GreaterThan(open) {
		return nil, apperr.Validation(op, "amount %s exceeds the open balance %s", req.Amount.StringFixed(2), open.StringFixed(2))
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	payment := &models.Payment{
		AccountID: accountID,
		Amount:    req.Amount,
		Method:    req.Method,
		Status:    models.PaymentStatusCompleted,
	}

	if gatewayMethods[req.Method] {
		var tx *gateway.Transaction
		chargeErr := retry.Do(ctx, s.policy, func(ctx context.Context) error {
			var err error
			tx, err = s.gateway.Charge(ctx, gateway.ChargeRequest{
				AccountID:      accountID,
				Amount:         req.Amount,
				Method:         req.Method,
				Token:          req.Token,
				IdempotencyKey: req.IdempotencyKey,
				Description:    fmt.Sprintf("Overdue balance, account %d", accountID),
				Metadata:       map[string]string{"tenant_id": fmt.Sprintf("%d", scope.TenantID)},
			})
			return err
		})
		if chargeErr != nil {
			return s.recordFailure(scope, payment, chargeErr)
		}
		payment.ProviderRef = tx.ID
		if tx.Status == gateway.StatusProcessing {
			payment.Status = models.PaymentStatusPending
		}
	} else {
		payment.ProviderRef = req.Reference
	}

	processedAt := s.now()
	payment.ProcessedAt = &processedAt
	result := &PaymentResult{Payment: payment}

	err = s.repos.Transaction(func(tx *repository.Repositories) error {
		if payment.Status == models.PaymentStatusCompleted {
			fresh, err := tx.Invoice.LockUnpaid(scope, accountID, req.InvoiceIDs)
			if err != nil {
				return err
			}
			result.Allocations = allocate(fresh, req.Amount, processedAt)
			applied := decimal.Zero
			for _, a := range result.Allocations {
				inv := invoiceByID(fresh, a.InvoiceID)
				if err := tx.Invoice.ApplyPayment(scope, inv, a.Amount); err != nil {
					return err
				}
				payment.Invoices = append(payment.Invoices, *inv)
				applied = applied.Add(a.Amount)
			}
			if applied.LessThan(req.Amount) {
				log.Warnf("[Collections] Payment %s for account %d exceeds the open balance by %s",
					payment.ProviderRef, accountID, req.Amount.Sub(applied).StringFixed(2))
			}
		}
		if err := tx.Payment.Create(scope, payment); err != nil {
			return err
		}
		return tx.Note.Create(scope, &models.CollectionNote{
			AccountID: accountID,
			Body:      paymentNote(payment, result.Allocations),
			PaymentID: &payment.ID,
		})
	})
	if err != nil {
		// the charge went through; the ledger must be fixed by an operator
		log.Errorf("[Collections] Payment %s for account %d charged but not recorded: %v", payment.ProviderRef, accountID, err)
		return nil, apperr.Internal(op, err)
	}
	s.metrics.PaymentProcessed(payment.Status)
	log.Infof("[Collections] Payment %d of %s for account %d (%s)", payment.ID, payment.Amount.StringFixed(2), accountID, payment.Status)

	result.RemainingOverdue, err = s.overdueBalance(scope, accountID)
	if err != nil {
		return result, apperr.Internal(op, err)
	}
	if payment.Status == models.PaymentStatusCompleted && !result.RemainingOverdue.IsPositive() {
		result.HoldRestored = s.restoreHold(ctx, scope, accountID, payment)
	}
	return result, nil
}

func (s *Service) openInvoices(scope tenant.Scope, accountID uint, ids []uint) ([]models.Invoice, error) {
	const op = "collections.payment"
	if len(ids) == 0 {
		invoices, err := s.repos.Invoice.ListUnpaid(scope, accountID)
		if err != nil {
			return nil, apperr.Internal(op, err)
		}
		return invoices, nil
	}

	invoices, err := s.repos.Invoice.ListByIDs(scope, accountID, ids)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	if len(invoices) != len(uniq(ids)) {
		return nil, apperr.Validation(op, "some invoices do not belong to account %d", accountID)
	}
	for i := range invoices {
		if !invoices[i].IsUnpaid() {
			return nil, apperr.Validation(op, "invoice %s is %s", invoices[i].Number, invoices[i].Status)
		}
	}
	return invoices, nil
}

// recordFailure stores a failed payment and returns the gateway error.
func (s *Service) recordFailure(scope tenant.Scope, payment *models.Payment, chargeErr error) (*PaymentResult, error) {
	processedAt := s.now()
	payment.Status = models.PaymentStatusFailed
	payment.FailureReason = chargeErr.Error()
	payment.ProcessedAt = &processedAt

	err := s.repos.Transaction(func(tx *repository.Repositories) error {
		if err := tx.Payment.Create(scope, payment); err != nil {
			return err
		}
		return tx.Note.Create(scope, &models.CollectionNote{
			AccountID: payment.AccountID,
			Body:      fmt.Sprintf("%s payment of %s failed: %s", payment.Method, payment.Amount.StringFixed(2), payment.FailureReason),
			PaymentID: &payment.ID,
		})
	})
	if err != nil {
		log.Errorf("[Collections] Recording failed payment for account %d: %v", payment.AccountID, err)
	}
	s.metrics.PaymentProcessed(payment.Status)
	log.Warnf("[Collections] Payment for account %d failed: %v", payment.AccountID, chargeErr)
	return &PaymentResult{Payment: payment}, chargeErr
}

func (s *Service) overdueBalance(scope tenant.Scope, accountID uint) (decimal.Decimal, error) {
	invoices, err := s.repos.Invoice.ListUnpaid(scope, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	now := s.now()
	total := decimal.Zero
	for i := range invoices {
		if invoices[i].DaysOverdue(now) > 0 || invoices[i].Status == models.InvoiceStatusOverdue {
			total = total.Add(invoices[i].Outstanding())
		}
	}
	return total, nil
}

func (s *Service) restoreHold(ctx context.Context, scope tenant.Scope, accountID uint, payment *models.Payment) bool {
	if s.restorer == nil {
		return false
	}
	hold, err := s.repos.Hold.FindActive(scope, accountID)
	if err != nil || hold == nil {
		if err != nil {
			log.Errorf("[Collections] Looking up hold for account %d: %v", accountID, err)
		}
		return false
	}
	ok, err := s.restorer.Restore(ctx, scope, hold.ID, fmt.Sprintf("overdue balance settled by payment %d", payment.ID))
	if err != nil {
		log.Errorf("[Collections] Restoring hold %d after payment %d: %v", hold.ID, payment.ID, err)
		return false
	}
	return ok
}

// allocate spreads amount over invoices in the given (oldest due first)
// order and updates them in place.
func allocate(invoices []models.Invoice, amount decimal.Decimal, at time.Time) []Allocation {
	var out []Allocation
	remaining := amount
	for i := range invoices {
		if !remaining.IsPositive() {
			break
		}
		inv := &invoices[i]
		due := inv.Outstanding()
		if !due.IsPositive() {
			continue
		}
		pay := decimal.Min(due, remaining)
		inv.AmountPaid = inv.AmountPaid.Add(pay)
		remaining = remaining.Sub(pay)

		settled := !inv.Outstanding().IsPositive()
		if settled {
			paidAt := at
			inv.Status = models.InvoiceStatusPaid
			inv.PaidAt = &paidAt
		}
		out = append(out, Allocation{InvoiceID: inv.ID, Amount: pay, Settled: settled})
	}
	return out
}

func invoiceByID(invoices []models.Invoice, id uint) *models.Invoice {
	for i := range invoices {
		if invoices[i].ID == id {
			return &invoices[i]
		}
	}
	return nil
}

func paymentNote(p *models.Payment, allocs []Allocation) string {
	if p.Status != models.PaymentStatusCompleted {
		return fmt.Sprintf("%s payment of %s received, awaiting settlement (%s)", p.Method, p.Amount.StringFixed(2), p.ProviderRef)
	}
	return fmt.Sprintf("%s payment of %s applied to %d invoice(s) (%s)", p.Method, p.Amount.StringFixed(2), len(allocs), p.ProviderRef)
}

func uniq(ids []uint) []uint {
	seen := map[uint]bool{}
	var out []uint
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
