package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported DatabaseConfig.Driver values.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type dialect struct {
	name        string
	sqlDriver   string
	placeholder sq.PlaceholderFormat
	schema      []string
	// syncSequences realigns id generators after rows are inserted with explicit ids.
	syncSequences []string
}

var sqliteDialect = dialect{
	name:        DriverSQLite,
	sqlDriver:   "sqlite",
	placeholder: sq.Question,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			published_at DATETIME NOT NULL,
			source TEXT NOT NULL,
			fetched_at DATETIME NOT NULL,
			raw_content TEXT,
			summary TEXT,
			embedding TEXT,
			processed_at DATETIME,
			cluster_id INTEGER,
			impact_score INTEGER,
			image_url TEXT,
			profile TEXT NOT NULL DEFAULT 'default'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_profile ON articles (profile)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_processed_at ON articles (processed_at)`,
		`CREATE TABLE IF NOT EXISTS briefs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			generated_at DATETIME NOT NULL,
			markdown TEXT NOT NULL,
			article_ids TEXT NOT NULL,
			profile TEXT NOT NULL DEFAULT 'default'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_briefs_profile ON briefs (profile)`,
	},
}

var postgresDialect = dialect{
	name:        DriverPostgres,
	sqlDriver:   "postgres",
	placeholder: sq.Dollar,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id BIGSERIAL PRIMARY KEY,
			url TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			published_at TIMESTAMPTZ NOT NULL,
			source TEXT NOT NULL,
			fetched_at TIMESTAMPTZ NOT NULL,
			raw_content TEXT,
			summary TEXT,
			embedding TEXT,
			processed_at TIMESTAMPTZ,
			cluster_id INTEGER,
			impact_score INTEGER,
			image_url TEXT,
			profile TEXT NOT NULL DEFAULT 'default'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_profile ON articles (profile)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_processed_at ON articles (processed_at)`,
		`CREATE TABLE IF NOT EXISTS briefs (
			id BIGSERIAL PRIMARY KEY,
			generated_at TIMESTAMPTZ NOT NULL,
			markdown TEXT NOT NULL,
			article_ids TEXT NOT NULL,
			profile TEXT NOT NULL DEFAULT 'default'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_briefs_profile ON briefs (profile)`,
	},
	syncSequences: []string{
		`SELECT setval(pg_get_serial_sequence('articles', 'id'), COALESCE(MAX(id), 0) + 1, false) FROM articles`,
		`SELECT setval(pg_get_serial_sequence('briefs', 'id'), COALESCE(MAX(id), 0) + 1, false) FROM briefs`,
	},
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite, "sqlite3", "":
		return sqliteDialect, nil
	case DriverPostgres, "postgresql", "pg":
		return postgresDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (d dialect) migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %s schema: %w", d.name, err)
		}
	}
	return nil
}
