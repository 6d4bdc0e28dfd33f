package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schemaStatements holds the DDL for the content tables, applied in order.
// Scope/order indexes are deliberately non-unique: concurrent appends may collide.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS subjects (
	id    TEXT PRIMARY KEY,
	title VARCHAR(200) NOT NULL,
	slug  VARCHAR(200) NOT NULL UNIQUE
)`,
	`CREATE INDEX IF NOT EXISTS idx_subjects_title ON subjects (title)`,
	`CREATE TABLE IF NOT EXISTS courses (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	subject_id TEXT NOT NULL REFERENCES subjects (id) ON DELETE CASCADE,
	title      VARCHAR(200) NOT NULL,
	slug       VARCHAR(200) NOT NULL UNIQUE,
	overview   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_courses_created ON courses (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_courses_owner ON courses (owner_id)`,
	`CREATE TABLE IF NOT EXISTS modules (
	id          TEXT PRIMARY KEY,
	course_id   TEXT NOT NULL REFERENCES courses (id) ON DELETE CASCADE,
	title       VARCHAR(200) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	"order"     INTEGER NOT NULL CHECK ("order" >= 0)
)`,
	`CREATE INDEX IF NOT EXISTS idx_modules_course_order ON modules (course_id, "order")`,
	`CREATE TABLE IF NOT EXISTS contents (
	id        TEXT PRIMARY KEY,
	module_id TEXT NOT NULL REFERENCES modules (id) ON DELETE CASCADE,
	item_kind VARCHAR(16) NOT NULL CHECK (item_kind IN ('text', 'file', 'image', 'video')),
	item_id   TEXT NOT NULL,
	"order"   INTEGER NOT NULL CHECK ("order" >= 0)
)`,
	`CREATE INDEX IF NOT EXISTS idx_contents_module_order ON contents (module_id, "order")`,
	`CREATE INDEX IF NOT EXISTS idx_contents_item ON contents (item_kind, item_id)`,
	itemTable("texts", `content TEXT NOT NULL`),
	itemTable("files", `file VARCHAR(512) NOT NULL`),
	itemTable("images", `file VARCHAR(512) NOT NULL`),
	itemTable("videos", `url VARCHAR(2048) NOT NULL`),
}

func itemTable(name, payload string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	title      VARCHAR(250) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	%s
)`, name, payload)
}

// EnsureSchema creates any missing tables and indexes.
func EnsureSchema(ctx context.Context, db sqlx.ExecerContext) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
