package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	RiskStrategyStandard    = "standard"
	RiskStrategyAccelerated = "accelerated"
	RiskStrategyRiskBased   = "risk_based"
)

const (
	SequencePathStandard    = "standard"
	SequencePathAccelerated = "accelerated"
)

const (
	ChannelEmail  = "email"
	ChannelSMS    = "sms"
	ChannelPortal = "portal"
	ChannelLetter = "letter"
)

const (
	ActionStatusSent    = "sent"
	ActionStatusFailed  = "failed"
	ActionStatusBlocked = "blocked"
)

// DunningCampaign is configured by an operator and read-only while executing.
type DunningCampaign struct {
	ID                 uint                  `gorm:"primaryKey" json:"id"`
	TenantID           uint                  `gorm:"not null;index" json:"tenant_id"`
	Name               string                `gorm:"type:varchar(150);not null" json:"name" validate:"required,max=150"`
	TriggerDaysOverdue int                   `gorm:"not null;default:30" json:"trigger_days_overdue" validate:"gte=0"`
	MinimumAmount      decimal.Decimal       `gorm:"type:decimal(12,2);not null;default:0" json:"minimum_amount"`
	RiskStrategy       string                `gorm:"type:varchar(20);not null;default:'standard'" json:"risk_strategy" validate:"oneof=standard accelerated risk_based"`
	CooldownHours      int                   `gorm:"not null;default:0" json:"cooldown_hours" validate:"gte=0"`
	Active             bool                  `gorm:"not null;index" json:"active"`
	Steps              []DunningSequenceStep `gorm:"foreignKey:CampaignID" json:"steps" validate:"dive"`
	CreatedAt          time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

// Validate checks the campaign definition before it is stored or executed.
func (c *DunningCampaign) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	if c.MinimumAmount.IsNegative() {
		return fmt.Errorf("minimum amount must not be negative")
	}
	seen := make(map[string]bool, len(c.Steps))
	for _, step := range c.Steps {
		key := fmt.Sprintf("%s/%d", step.Path, step.StepNumber)
		if seen[key] {
			return fmt.Errorf("duplicate step %s", key)
		}
		seen[key] = true
	}
	return nil
}

// StepsFor returns the steps of one path in step order.
func (c *DunningCampaign) StepsFor(path string) []DunningSequenceStep {
	var out []DunningSequenceStep
	for _, step := range c.Steps {
		if step.Path == path {
			out = append(out, step)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })
	return out
}

// DunningSequenceStep is one contact in a campaign path.
type DunningSequenceStep struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	CampaignID       uint      `gorm:"not null;index" json:"campaign_id"`
	Path             string    `gorm:"type:varchar(20);not null;default:'standard'" json:"path" validate:"oneof=standard accelerated"`
	StepNumber       int       `gorm:"not null" json:"step_number" validate:"gte=1"`
	Channel          string    `gorm:"type:varchar(16);not null" json:"channel" validate:"oneof=email sms portal letter"`
	Template         string    `gorm:"type:varchar(100);not null" json:"template" validate:"required"`
	DaysAfterTrigger int       `gorm:"not null;default:0" json:"days_after_trigger" validate:"gte=0"`
	Escalate         bool      `gorm:"default:false" json:"escalate"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// DunningAction is the append-only audit record of one contact attempt.
type DunningAction struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TenantID    uint      `gorm:"not null;index:idx_dunning_actions_lookup,priority:1" json:"tenant_id"`
	AccountID   uint      `gorm:"not null;index:idx_dunning_actions_lookup,priority:2" json:"account_id"`
	CampaignID  uint      `gorm:"not null;index:idx_dunning_actions_lookup,priority:3" json:"campaign_id"`
	StepID      uint      `gorm:"not null;index:idx_dunning_actions_lookup,priority:4" json:"step_id"`
	StepNumber  int       `gorm:"not null" json:"step_number"`
	Path        string    `gorm:"type:varchar(20);not null" json:"path"`
	Channel     string    `gorm:"type:varchar(16);not null" json:"channel"`
	Template    string    `gorm:"type:varchar(100);not null" json:"template"`
	Status      string    `gorm:"type:varchar(16);not null;index" json:"status"`
	RiskLevel   string    `gorm:"type:varchar(16)" json:"risk_level"`
	DeliveryRef string    `gorm:"type:varchar(191)" json:"delivery_ref,omitempty"`
	Detail      string    `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}
