// Package database is the durable video store: feeds, videos, and their
// lifecycle state, in sqlite. Every mutating operation runs in a single
// transaction; readers see consistent snapshots.
package database

import (
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type Database struct {
	db  *sqlx.DB
	log *zap.SugaredLogger
}

func NewDatabase(path string) (*Database, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite rejects concurrent writers; serialize them here instead of
	// surfacing SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)
	return &Database{db: db, log: zap.S().Named("database")}, nil
}

func (d *Database) Migrate() error {
	fs, err := iofs.New(embedMigrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(d.db.DB, &sqlite3.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", fs, "sqlite3", driver)
	if err != nil {
		return err
	}
	err = m.Up()
	switch err {
	case nil:
		d.log.Info("database migration complete")
	case migrate.ErrNoChange:
		d.log.Debug("no database migration required")
	default:
		return err
	}
	return nil
}

func (d *Database) Close() {
	_ = d.db.Close()
}

// inTx runs f inside a transaction, committing on nil and rolling back on
// error or panic.
func (d *Database) inTx(f func(tx *sqlx.Tx) error) error {
	tx, err := d.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := f(tx); err != nil {
		return err
	}
	return tx.Commit()
}
