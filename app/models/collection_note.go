package models

import "time"

// CollectionNote is a free-text audit annotation on an account.
type CollectionNote struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	TenantID        uint      `gorm:"not null;index:idx_collection_notes_tenant_account,priority:1" json:"tenant_id"`
	AccountID       uint      `gorm:"not null;index:idx_collection_notes_tenant_account,priority:2" json:"account_id"`
	Author          string    `gorm:"type:varchar(150);not null;default:'system'" json:"author"`
	Body            string    `gorm:"type:text;not null" json:"body" validate:"required,max=5000"`
	PaymentID       *uint     `gorm:"default:null" json:"payment_id,omitempty"`
	DunningActionID *uint     `gorm:"default:null" json:"dunning_action_id,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}
