package repository

import (
	"github.com/ManuelReschke/CollectFox/app/models"
	"gorm.io/gorm"
)

type tenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new tenant repository instance
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) Create(t *models.Tenant) error {
	return r.db.Create(t).Error
}

func (r *tenantRepository) GetByID(id uint) (*models.Tenant, error) {
	var t models.Tenant
	if err := r.db.First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByAPIKeyHash returns the tenant owning the hashed API key, whatever its status.
func (r *tenantRepository) GetByAPIKeyHash(hash string) (*models.Tenant, error) {
	var t models.Tenant
	err := r.db.Where("api_key_hash = ?", hash).First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}
