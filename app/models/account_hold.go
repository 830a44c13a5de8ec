package models

import "time"

const (
	HoldTypeVoIPSuspension = "voip_suspension"
	HoldTypeFullSuspension = "full_suspension"
	HoldTypeCreditHold     = "credit_hold"
)

const (
	HoldStatusActive   = "active"
	HoldStatusResolved = "resolved"
)

const (
	ServiceClassVoIP     = "voip"
	ServiceClassInternet = "internet"
	ServiceClassHosting  = "hosting"
	ServiceClassEmail    = "email"
	ServiceClassE911     = "e911"
)

const (
	LineStatusActive     = "active"
	LineStatusSuspended  = "suspended"
	LineStatusRestricted = "restricted"
)

// LifeSafetyClasses can never be suspended, whatever the configuration says.
var LifeSafetyClasses = []string{ServiceClassE911}

// IsLifeSafety reports whether a service class is regulated life-safety.
func IsLifeSafety(class string) bool {
	for _, c := range LifeSafetyClasses {
		if c == class {
			return true
		}
	}
	return false
}

// AccountHold records one suspension. A resolved hold is never reopened.
// ChangedLineIDs lists the lines the hold suspended or restricted; only
// those are reactivated on restore.
type AccountHold struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	TenantID          uint       `gorm:"not null;index:idx_account_holds_tenant_account,priority:1" json:"tenant_id"`
	AccountID         uint       `gorm:"not null;index:idx_account_holds_tenant_account,priority:2" json:"account_id"`
	HoldType          string     `gorm:"type:varchar(32);not null" json:"hold_type"`
	Reason            string     `gorm:"type:text" json:"reason"`
	Status            string     `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
	SuspendedServices []string   `gorm:"serializer:json;type:text" json:"suspended_services"`
	PreservedServices []string   `gorm:"serializer:json;type:text" json:"preserved_services"`
	ChangedLineIDs    []uint     `gorm:"serializer:json;type:text" json:"changed_line_ids,omitempty"`
	ResolvedAt        *time.Time `gorm:"type:timestamp;default:null" json:"resolved_at,omitempty"`
	ResolutionReason  string     `gorm:"type:text" json:"resolution_reason,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Preserves reports whether a service entry is on the preserved list.
func (h *AccountHold) Preserves(service string) bool {
	for _, s := range h.PreservedServices {
		if s == service {
			return true
		}
	}
	return false
}

// Changed reports whether the hold suspended or restricted the line.
func (h *AccountHold) Changed(lineID uint) bool {
	for _, id := range h.ChangedLineIDs {
		if id == lineID {
			return true
		}
	}
	return false
}

// ServiceLine is a provisioned service of an account, e.g. a VoIP number.
type ServiceLine struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TenantID       uint      `gorm:"not null;index:idx_service_lines_tenant_account,priority:1" json:"tenant_id"`
	AccountID      uint      `gorm:"not null;index:idx_service_lines_tenant_account,priority:2" json:"account_id"`
	ServiceClass   string    `gorm:"type:varchar(16);not null" json:"service_class"`
	Identifier     string    `gorm:"type:varchar(64);not null" json:"identifier"`
	E911Registered bool      `gorm:"default:false" json:"e911_registered"`
	Status         string    `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PreservedKey is the entry recorded in a hold for a preserved E911 line.
func (l *ServiceLine) PreservedKey() string {
	return ServiceClassE911 + ":" + l.Identifier
}
