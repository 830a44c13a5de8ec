package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const (
	TenantStatusActive   = "active"
	TenantStatusDisabled = "disabled"
)

// Tenant is an MSP using the platform. Every other row is owned by exactly one tenant.
type Tenant struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	APIKeyHash string    `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	Status     string    `gorm:"type:varchar(20);not null;default:'active'" json:"status" validate:"oneof=active disabled"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HashAPIKey returns the lookup hash stored for a raw tenant API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
