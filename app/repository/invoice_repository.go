package repository

import (
	"time"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var unpaidStatuses = []string{models.InvoiceStatusSent, models.InvoiceStatusOverdue}

// invoiceRepository implements the InvoiceRepository interface
type invoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new invoice repository instance
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// Create is used by the billing import and by tests.
func (r *invoiceRepository) Create(scope tenant.Scope, invoice *models.Invoice) error {
	invoice.TenantID = scope.TenantID
	return r.db.Create(invoice).Error
}

// ListByAccount returns the account's full invoice history, oldest due first.
func (r *invoiceRepository) ListByAccount(scope tenant.Scope, accountID uint) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := scope.Apply(r.db).Where("account_id = ?", accountID).
		Order("due_date ASC, id ASC").Find(&invoices).Error
	return invoices, err
}

// ListByIDs returns the requested invoices that belong to the account.
// Callers compare the result length to detect foreign IDs.
func (r *invoiceRepository) ListByIDs(scope tenant.Scope, accountID uint, ids []uint) ([]models.Invoice, error) {
	var invoices []models.Invoice
	if len(ids) == 0 {
		return invoices, nil
	}
	err := scope.Apply(r.db).Where("account_id = ? AND id IN ?", accountID, ids).
		Order("due_date ASC, id ASC").Find(&invoices).Error
	return invoices, err
}

// ListUnpaid returns open invoices of an account, oldest due first.
func (r *invoiceRepository) ListUnpaid(scope tenant.Scope, accountID uint) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := scope.Apply(r.db).Where("account_id = ? AND status IN ?", accountID, unpaidStatuses).
		Order("due_date ASC, id ASC").Find(&invoices).Error
	return invoices, err
}

// LockUnpaid re-reads open invoices of an account with a row lock. It must
// run inside a transaction; ids narrows the result when given.
func (r *invoiceRepository) LockUnpaid(scope tenant.Scope, accountID uint, ids []uint) ([]models.Invoice, error) {
	var invoices []models.Invoice
	q := scope.Apply(r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ? AND status IN ?", accountID, unpaidStatuses)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	err := q.Order("due_date ASC, id ASC").Find(&invoices).Error
	return invoices, err
}

// ListCollectible returns unpaid invoices due before dueBefore that are not
// covered by a payment plan. These are the candidates for dunning.
func (r *invoiceRepository) ListCollectible(scope tenant.Scope, dueBefore time.Time) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := scope.Apply(r.db).
		Where("status IN ? AND payment_plan_id IS NULL AND due_date < ?", unpaidStatuses, dueBefore).
		Order("account_id ASC, due_date ASC").Find(&invoices).Error
	return invoices, err
}

// ApplyPayment adds amount to amount_paid in the database and stores the
// invoice's status and paid_at.
func (r *invoiceRepository) ApplyPayment(scope tenant.Scope, invoice *models.Invoice, amount decimal.Decimal) error {
	return scope.Apply(r.db.Model(&models.Invoice{})).
		Where("id = ?", invoice.ID).
		Updates(map[string]interface{}{
			"amount_paid": gorm.Expr("amount_paid + ?", amount),
			"status":      invoice.Status,
			"paid_at":     invoice.PaidAt,
		}).Error
}

// AssignPlan links invoices that are not yet in a plan. The affected row count
// lets the caller reject partial association.
func (r *invoiceRepository) AssignPlan(scope tenant.Scope, accountID uint, ids []uint, planID uint) (int64, error) {
	res := scope.Apply(r.db.Model(&models.Invoice{})).
		Where("account_id = ? AND id IN ? AND payment_plan_id IS NULL AND status IN ?", accountID, ids, unpaidStatuses).
		Update("payment_plan_id", planID)
	return res.RowsAffected, res.Error
}

// MarkOverdue flips sent invoices past their due date to overdue.
func (r *invoiceRepository) MarkOverdue(scope tenant.Scope, now time.Time) (int64, error) {
	res := scope.Apply(r.db.Model(&models.Invoice{})).
		Where("status = ? AND due_date < ?", models.InvoiceStatusSent, now).
		Update("status", models.InvoiceStatusOverdue)
	return res.RowsAffected, res.Error
}
