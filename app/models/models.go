package models

// All lists every model for AutoMigrate, in dependency order.
func All() []interface{} {
	return []interface{}{
		&Tenant{},
		&Account{},
		&PaymentPlan{},
		&PaymentPlanInstallment{},
		&Invoice{},
		&Payment{},
		&DunningCampaign{},
		&DunningSequenceStep{},
		&DunningAction{},
		&ServiceLine{},
		&AccountHold{},
		&CollectionNote{},
		&ComplianceDocument{},
		&Notification{},
	}
}
