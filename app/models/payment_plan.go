package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PlanStatusActive    = "active"
	PlanStatusCompleted = "completed"
	PlanStatusDefaulted = "defaulted"
	PlanStatusCancelled = "cancelled"
)

const (
	InstallmentStatusScheduled = "scheduled"
	InstallmentStatusPaid      = "paid"
	InstallmentStatusMissed    = "missed"
)

// PaymentPlan replaces a lump-sum overdue balance with installments.
// DownPayment + MonthlyPayment*(DurationMonths-1) + FinalPayment == TotalAmount.
type PaymentPlan struct {
	ID             uint                     `gorm:"primaryKey" json:"id"`
	TenantID       uint                     `gorm:"not null;index:idx_payment_plans_tenant_account,priority:1" json:"tenant_id"`
	AccountID      uint                     `gorm:"not null;index:idx_payment_plans_tenant_account,priority:2" json:"account_id"`
	TotalAmount    decimal.Decimal          `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	DownPayment    decimal.Decimal          `gorm:"type:decimal(12,2);not null;default:0" json:"down_payment"`
	MonthlyPayment decimal.Decimal          `gorm:"type:decimal(12,2);not null" json:"monthly_payment"`
	FinalPayment   decimal.Decimal          `gorm:"type:decimal(12,2);not null" json:"final_payment"`
	DurationMonths int                      `gorm:"not null" json:"duration_months"`
	StartDate      time.Time                `gorm:"type:timestamp" json:"start_date"`
	Status         string                   `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	Installments   []PaymentPlanInstallment `gorm:"foreignKey:PaymentPlanID" json:"installments,omitempty"`
	Invoices       []Invoice                `gorm:"foreignKey:PaymentPlanID" json:"invoices,omitempty"`
	CreatedAt      time.Time                `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time                `gorm:"autoUpdateTime" json:"updated_at"`
}

type PaymentPlanInstallment struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	PaymentPlanID uint            `gorm:"not null;index" json:"payment_plan_id"`
	Sequence      int             `gorm:"not null" json:"sequence"`
	DueDate       time.Time       `gorm:"type:timestamp" json:"due_date"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status        string          `gorm:"type:varchar(16);not null;default:'scheduled'" json:"status"`
}

// ScheduledTotal sums down payment and installments.
func (p *PaymentPlan) ScheduledTotal() decimal.Decimal {
	sum := p.DownPayment
	for _, in := range p.Installments {
		sum = sum.Add(in.Amount)
	}
	return sum
}
