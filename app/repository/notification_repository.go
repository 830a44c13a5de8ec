package repository

import (
	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"gorm.io/gorm"
)

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository instance
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(scope tenant.Scope, n *models.Notification) error {
	n.TenantID = scope.TenantID
	return r.db.Create(n).Error
}

func (r *notificationRepository) ListByAccount(scope tenant.Scope, accountID uint) ([]models.Notification, error) {
	var notifications []models.Notification
	err := scope.Apply(r.db).Where("account_id = ?", accountID).Order("created_at DESC").Find(&notifications).Error
	return notifications, err
}
