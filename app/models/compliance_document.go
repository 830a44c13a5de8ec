package models

import "time"

const (
	DocumentValidationNotice     = "validation_notice"
	DocumentPaymentPlanAgreement = "payment_plan_agreement"
	DocumentSuspensionNotice     = "suspension_notice"
	DocumentFinalDemand          = "final_demand"
)

// ComplianceDocument is a generated disclosure or agreement sent to an account.
type ComplianceDocument struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TenantID     uint      `gorm:"not null;index:idx_compliance_documents_lookup,priority:1" json:"tenant_id"`
	AccountID    uint      `gorm:"not null;index:idx_compliance_documents_lookup,priority:2" json:"account_id"`
	DocType      string    `gorm:"type:varchar(40);not null;index:idx_compliance_documents_lookup,priority:3" json:"doc_type"`
	Jurisdiction string    `gorm:"type:varchar(16)" json:"jurisdiction"`
	Body         string    `gorm:"type:longtext" json:"body"`
	Checksum     string    `gorm:"type:varchar(64)" json:"checksum"`
	StorageKey   string    `gorm:"type:varchar(255)" json:"storage_key,omitempty"`
	GeneratedAt  time.Time `gorm:"type:timestamp" json:"generated_at"`
}
