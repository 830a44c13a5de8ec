package repository

import (
	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"gorm.io/gorm"
)

type paymentPlanRepository struct {
	db *gorm.DB
}

// NewPaymentPlanRepository creates a new payment plan repository instance
func NewPaymentPlanRepository(db *gorm.DB) PaymentPlanRepository {
	return &paymentPlanRepository{db: db}
}

// Create stores the plan and its installments. Invoices are linked separately
// through InvoiceRepository.AssignPlan.
func (r *paymentPlanRepository) Create(scope tenant.Scope, plan *models.PaymentPlan) error {
	plan.TenantID = scope.TenantID
	return r.db.Omit("Invoices").Create(plan).Error
}

func (r *paymentPlanRepository) GetByID(scope tenant.Scope, id uint) (*models.PaymentPlan, error) {
	var plan models.PaymentPlan
	err := scope.Apply(r.db).
		Preload("Installments", func(db *gorm.DB) *gorm.DB { return db.Order("sequence ASC") }).
		Preload("Invoices").
		First(&plan, id).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *paymentPlanRepository) ListByAccount(scope tenant.Scope, accountID uint) ([]models.PaymentPlan, error) {
	var plans []models.PaymentPlan
	err := scope.Apply(r.db).Where("account_id = ?", accountID).Order("id ASC").Find(&plans).Error
	return plans, err
}
