package repository

import (
	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"gorm.io/gorm"
)

type campaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository creates a new campaign repository instance
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

func orderedSteps(db *gorm.DB) *gorm.DB {
	return db.Order("path ASC, step_number ASC")
}

// Create stores a campaign together with its steps.
func (r *campaignRepository) Create(scope tenant.Scope, campaign *models.DunningCampaign) error {
	campaign.TenantID = scope.TenantID
	return r.db.Create(campaign).Error
}

// GetByID retrieves a campaign with its steps ordered by path and number.
func (r *campaignRepository) GetByID(scope tenant.Scope, id uint) (*models.DunningCampaign, error) {
	var campaign models.DunningCampaign
	err := scope.Apply(r.db).Preload("Steps", orderedSteps).First(&campaign, id).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *campaignRepository) ListActive(scope tenant.Scope) ([]models.DunningCampaign, error) {
	var campaigns []models.DunningCampaign
	err := scope.Apply(r.db).Preload("Steps", orderedSteps).
		Where("active = ?", true).Order("id ASC").Find(&campaigns).Error
	return campaigns, err
}

func (r *campaignRepository) ListAllActive() ([]models.DunningCampaign, error) {
	var campaigns []models.DunningCampaign
	err := r.db.Where("active = ?", true).Order("tenant_id ASC, id ASC").Find(&campaigns).Error
	return campaigns, err
}
