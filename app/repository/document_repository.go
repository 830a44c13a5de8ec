package repository

import (
	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"gorm.io/gorm"
)

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new compliance document repository instance
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(scope tenant.Scope, doc *models.ComplianceDocument) error {
	doc.TenantID = scope.TenantID
	return r.db.Create(doc).Error
}

func (r *documentRepository) ListByAccount(scope tenant.Scope, accountID uint) ([]models.ComplianceDocument, error) {
	var docs []models.ComplianceDocument
	err := scope.Apply(r.db).Where("account_id = ?", accountID).Order("generated_at ASC, id ASC").Find(&docs).Error
	return docs, err
}

// DocTypes lists the distinct document types already generated for an account.
func (r *documentRepository) DocTypes(scope tenant.Scope, accountID uint) ([]string, error) {
	var types []string
	err := scope.Apply(r.db.Model(&models.ComplianceDocument{})).
		Where("account_id = ?", accountID).
		Distinct("doc_type").Order("doc_type ASC").Pluck("doc_type", &types).Error
	return types, err
}
