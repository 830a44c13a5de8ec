package repository

import (
	"errors"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"gorm.io/gorm"
)

type holdRepository struct {
	db *gorm.DB
}

// NewHoldRepository creates a new account hold repository instance
func NewHoldRepository(db *gorm.DB) HoldRepository {
	return &holdRepository{db: db}
}

func (r *holdRepository) Create(scope tenant.Scope, hold *models.AccountHold) error {
	hold.TenantID = scope.TenantID
	return r.db.Create(hold).Error
}

func (r *holdRepository) GetByID(scope tenant.Scope, id uint) (*models.AccountHold, error) {
	var hold models.AccountHold
	if err := scope.Apply(r.db).First(&hold, id).Error; err != nil {
		return nil, err
	}
	return &hold, nil
}

// FindActive returns the account's active hold, nil when there is none.
func (r *holdRepository) FindActive(scope tenant.Scope, accountID uint) (*models.AccountHold, error) {
	var hold models.AccountHold
	err := scope.Apply(r.db).Where("account_id = ? AND status = ?", accountID, models.HoldStatusActive).
		Order("id DESC").First(&hold).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

// Update saves a hold; rows of another tenant are never touched.
func (r *holdRepository) Update(scope tenant.Scope, hold *models.AccountHold) error {
	if !scope.Owns(hold.TenantID) {
		return gorm.ErrRecordNotFound
	}
	return r.db.Save(hold).Error
}

// Delete removes a hold whose suspension was rolled back before taking effect.
func (r *holdRepository) Delete(scope tenant.Scope, id uint) error {
	return scope.Apply(r.db).Delete(&models.AccountHold{}, id).Error
}
