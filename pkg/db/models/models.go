package models

// All lists every persisted model in dependency order for AutoMigrate.
func All() []any {
	return []any{
		&Material{},
		&Order{},
		&OrderLine{},
		&ProductionTask{},
		&TaskNumberSequence{},
		&StockMovement{},
		&AuditEvent{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
