// Package storage содержит миграции SQLite базы данных.
package storage

// migrations содержит SQL-миграции в порядке выполнения.
var migrations = []string{
	// Миграция 1: Таблица записей дедупликации
	`CREATE TABLE IF NOT EXISTS dedup (
		key TEXT PRIMARY KEY,
		inserted_at INTEGER NOT NULL
	);`,

	// Миграция 2: Индекс для очистки по возрасту
	`CREATE INDEX IF NOT EXISTS ix_dedup_inserted_at ON dedup (inserted_at);`,

	// Миграция 3: Журнал доставки участников
	`CREATE TABLE IF NOT EXISTS deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		member_id INTEGER NOT NULL,
		group_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		transformed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		finished_at INTEGER NOT NULL
	);`,

	// Миграция 4: Индексы журнала
	`CREATE INDEX IF NOT EXISTS ix_deliveries_status ON deliveries (status);`,
	`CREATE INDEX IF NOT EXISTS ix_deliveries_finished_at ON deliveries (finished_at);`,

	// Миграция 5: Таблица метаданных для версионирования схемы
	`CREATE TABLE IF NOT EXISTS schema_info (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,

	// Миграция 6: Запись версии схемы
	`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', '1');`,
}

// GetMigrations возвращает список SQL-миграций.
func GetMigrations() []string {
	return migrations
}
