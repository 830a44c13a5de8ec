package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	NotificationTypePortal = "portal"
	NotificationTypeLetter = "letter"
	NotificationTypeSystem = "system"
)

// Notification is a portal message shown to the customer. Letters are queued
// here too, with type letter, for the print run.
type Notification struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	TenantID    uint           `gorm:"not null;index" json:"tenant_id"`
	AccountID   uint           `gorm:"not null;index" json:"account_id"`
	Type        string         `gorm:"type:varchar(50)" json:"type" validate:"oneof=portal letter system"`
	Subject     string         `gorm:"type:varchar(200)" json:"subject"`
	Content     string         `gorm:"type:text" json:"content"`
	IsRead      bool           `gorm:"default:false" json:"is_read"`
	ReferenceID uint           `json:"reference_id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
