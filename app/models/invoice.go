package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	InvoiceStatusSent    = "sent"
	InvoiceStatusPaid    = "paid"
	InvoiceStatusOverdue = "overdue"
	InvoiceStatusVoid    = "void"
)

// Invoice is issued by the billing pipeline. Only status, amount_paid, paid_at
// and payment_plan_id change after issue.
type Invoice struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	TenantID      uint            `gorm:"not null;index:idx_invoices_tenant_account,priority:1" json:"tenant_id"`
	AccountID     uint            `gorm:"not null;index:idx_invoices_tenant_account,priority:2" json:"account_id"`
	Number        string          `gorm:"type:varchar(50);not null" json:"number"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`
	TaxAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"tax_amount"`
	AmountPaid    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount_paid"`
	IssuedAt      time.Time       `gorm:"type:timestamp" json:"issued_at"`
	DueDate       time.Time       `gorm:"type:timestamp;index" json:"due_date"`
	Status        string          `gorm:"type:varchar(16);not null;default:'sent';index" json:"status"`
	PaidAt        *time.Time      `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	PaymentPlanID *uint           `gorm:"index;default:null" json:"payment_plan_id,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Outstanding is the unpaid remainder, never negative.
func (i *Invoice) Outstanding() decimal.Decimal {
	rest := i.Amount.Sub(i.AmountPaid)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// IsUnpaid reports whether the invoice still carries a collectible balance.
func (i *Invoice) IsUnpaid() bool {
	switch i.Status {
	case InvoiceStatusSent, InvoiceStatusOverdue:
		return i.Outstanding().IsPositive()
	default:
		return false
	}
}

// DaysOverdue returns whole days past the due date, 0 when not yet due.
func (i *Invoice) DaysOverdue(now time.Time) int {
	if !now.After(i.DueDate) {
		return 0
	}
	return int(now.Sub(i.DueDate).Hours() / 24)
}

// PaidOnTime reports whether a settled invoice was paid by its due date.
func (i *Invoice) PaidOnTime() bool {
	if i.Status != InvoiceStatusPaid || i.PaidAt == nil {
		return false
	}
	return !i.PaidAt.After(i.DueDate)
}
