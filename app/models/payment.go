package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

const (
	PaymentMethodCard         = "card"
	PaymentMethodACH          = "ach"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCheck        = "check"
)

// Payment is created by payment processing and is terminal once completed.
type Payment struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	TenantID      uint            `gorm:"not null;index:idx_payments_tenant_account,priority:1" json:"tenant_id"`
	AccountID     uint            `gorm:"not null;index:idx_payments_tenant_account,priority:2" json:"account_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Method        string          `gorm:"type:varchar(20);not null" json:"method"`
	Status        string          `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ProviderRef   string          `gorm:"type:varchar(191)" json:"provider_ref"`
	FailureReason string          `gorm:"type:text" json:"failure_reason,omitempty"`
	ProcessedAt   *time.Time      `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	Invoices      []Invoice       `gorm:"many2many:payment_invoices" json:"invoices,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
