package models

import "time"

// Account is a customer account of a tenant. Jurisdiction drives compliance
// rule selection; the opt-in flags gate channel-specific contact.
type Account struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TenantID     uint      `gorm:"not null;index" json:"tenant_id"`
	Name         string    `gorm:"type:varchar(200);not null" json:"name"`
	Email        string    `gorm:"type:varchar(200)" json:"email"`
	Phone        string    `gorm:"type:varchar(32)" json:"phone"`
	AddressLine1 string    `gorm:"type:varchar(200)" json:"address_line1"`
	AddressLine2 string    `gorm:"type:varchar(200)" json:"address_line2"`
	City         string    `gorm:"type:varchar(100)" json:"city"`
	Region       string    `gorm:"type:varchar(100)" json:"region"`
	PostalCode   string    `gorm:"type:varchar(20)" json:"postal_code"`
	Country      string    `gorm:"type:varchar(2)" json:"country"`
	Jurisdiction string    `gorm:"type:varchar(16);not null;default:''" json:"jurisdiction"`
	Timezone     string    `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`
	SMSOptIn     bool      `gorm:"default:false" json:"sms_opt_in"`
	EmailOptIn   bool      `gorm:"not null" json:"email_opt_in"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TenureMonths returns the number of whole months between account creation and now.
func (a *Account) TenureMonths(now time.Time) int {
	if a.CreatedAt.IsZero() || now.Before(a.CreatedAt) {
		return 0
	}
	months := (now.Year()-a.CreatedAt.Year())*12 + int(now.Month()) - int(a.CreatedAt.Month())
	if now.Day() < a.CreatedAt.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// Location resolves the account timezone, falling back to UTC.
func (a *Account) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(a.Timezone)
}
