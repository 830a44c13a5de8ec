package repository

import (
	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"gorm.io/gorm"
)

type serviceLineRepository struct {
	db *gorm.DB
}

// NewServiceLineRepository creates a new service line repository instance
func NewServiceLineRepository(db *gorm.DB) ServiceLineRepository {
	return &serviceLineRepository{db: db}
}

func (r *serviceLineRepository) Create(scope tenant.Scope, line *models.ServiceLine) error {
	line.TenantID = scope.TenantID
	return r.db.Create(line).Error
}

func (r *serviceLineRepository) ListByAccount(scope tenant.Scope, accountID uint) ([]models.ServiceLine, error) {
	var lines []models.ServiceLine
	err := scope.Apply(r.db).Where("account_id = ?", accountID).Order("id ASC").Find(&lines).Error
	return lines, err
}

func (r *serviceLineRepository) UpdateStatus(scope tenant.Scope, id uint, status string) error {
	res := scope.Apply(r.db.Model(&models.ServiceLine{})).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
