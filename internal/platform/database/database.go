package database

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"crmcore/internal/platform/config"
)

// New opens the shared primary store. All tenants share one database;
// callers scope queries by organization_id.
func New(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}
