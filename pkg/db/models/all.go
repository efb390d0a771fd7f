package models

// All lists every persisted model in dependency order. It feeds AutoMigrate
// for sqlite dev databases and tests.
func All() []any {
	return []any{
		&Building{},
		&Room{},
		&Bed{},
		&Student{},
		&RoomApplication{},
		&OccupancyRecord{},
		&AuditLog{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
