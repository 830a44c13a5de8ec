package repository

import (
	"time"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"gorm.io/gorm"
)

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create stores a payment and its invoice links.
func (r *paymentRepository) Create(scope tenant.Scope, payment *models.Payment) error {
	payment.TenantID = scope.TenantID
	return r.db.Omit("Invoices.*").Create(payment).Error
}

func (r *paymentRepository) ListByAccount(scope tenant.Scope, accountID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := scope.Apply(r.db).Where("account_id = ?", accountID).
		Order("created_at ASC, id ASC").Find(&payments).Error
	return payments, err
}

// HasCompletedSince reports whether a completed payment was processed after since.
func (r *paymentRepository) HasCompletedSince(scope tenant.Scope, accountID uint, since time.Time) (bool, error) {
	var count int64
	err := scope.Apply(r.db.Model(&models.Payment{})).
		Where("account_id = ? AND status = ? AND processed_at > ?", accountID, models.PaymentStatusCompleted, since).
		Count(&count).Error
	return count > 0, err
}
