package repository

import (
	"errors"
	"time"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"gorm.io/gorm"
)

type actionRepository struct {
	db *gorm.DB
}

// NewActionRepository creates a new dunning action repository instance
func NewActionRepository(db *gorm.DB) ActionRepository {
	return &actionRepository{db: db}
}

// Create appends an action. Actions are never updated.
func (r *actionRepository) Create(scope tenant.Scope, action *models.DunningAction) error {
	action.TenantID = scope.TenantID
	return r.db.Create(action).Error
}

func (r *actionRepository) ListByAccount(scope tenant.Scope, accountID uint) ([]models.DunningAction, error) {
	var actions []models.DunningAction
	err := scope.Apply(r.db).Where("account_id = ?", accountID).
		Order("created_at ASC, id ASC").Find(&actions).Error
	return actions, err
}

// LastSentForStep returns the newest sent action for a step, nil when none.
func (r *actionRepository) LastSentForStep(scope tenant.Scope, accountID, campaignID, stepID uint) (*models.DunningAction, error) {
	return r.last(scope.Apply(r.db).
		Where("account_id = ? AND campaign_id = ? AND step_id = ? AND status = ?",
			accountID, campaignID, stepID, models.ActionStatusSent))
}

// LastSentForCampaign returns the newest sent action of a campaign, nil when none.
func (r *actionRepository) LastSentForCampaign(scope tenant.Scope, accountID, campaignID uint) (*models.DunningAction, error) {
	return r.last(scope.Apply(r.db).
		Where("account_id = ? AND campaign_id = ? AND status = ?", accountID, campaignID, models.ActionStatusSent))
}

func (r *actionRepository) last(q *gorm.DB) (*models.DunningAction, error) {
	var action models.DunningAction
	err := q.Order("created_at DESC, id DESC").First(&action).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}

// ListSentSince returns actions actually sent since a point in time.
func (r *actionRepository) ListSentSince(scope tenant.Scope, accountID uint, since time.Time) ([]models.DunningAction, error) {
	var actions []models.DunningAction
	err := scope.Apply(r.db).
		Where("account_id = ? AND status = ? AND created_at >= ?", accountID, models.ActionStatusSent, since).
		Order("created_at ASC, id ASC").Find(&actions).Error
	return actions, err
}
