package repository

import (
	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"gorm.io/gorm"
)

// accountRepository implements the AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create stores an account under the scope's tenant.
func (r *accountRepository) Create(scope tenant.Scope, account *models.Account) error {
	account.TenantID = scope.TenantID
	return r.db.Create(account).Error
}

// GetByID retrieves an account by its ID within the tenant
func (r *accountRepository) GetByID(scope tenant.Scope, id uint) (*models.Account, error) {
	var account models.Account
	if err := scope.Apply(r.db).First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// List retrieves accounts with pagination
func (r *accountRepository) List(scope tenant.Scope, offset, limit int) ([]models.Account, error) {
	var accounts []models.Account
	err := scope.Apply(r.db).Order("id ASC").Offset(offset).Limit(limit).Find(&accounts).Error
	return accounts, err
}
