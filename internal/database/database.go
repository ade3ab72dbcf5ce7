package database

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/driftwatch/deltasync/internal/domain"
	"github.com/driftwatch/deltasync/internal/logger"
	"github.com/driftwatch/deltasync/pkg/errors"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

type DB struct {
	log     zerolog.Logger
	handler *sql.DB
	lock    sync.RWMutex

	Driver   string
	DSN      string
	squirrel sq.StatementBuilderType
}

func NewDB(cfg *domain.Config, log logger.Logger) (*DB, error) {
	db := &DB{
		log: log.With().Str("module", "database").Logger(),
	}

	switch cfg.Database.Type {
	case "sqlite":
		db.Driver = "sqlite"
		db.DSN = dataSourceName(cfg.ConfigPath, "deltasync.db")
		db.squirrel = sq.StatementBuilder.PlaceholderFormat(sq.Question)
	case "postgres", "postgresql":
		if cfg.Database.Postgres.Host == "" || cfg.Database.Postgres.Port == 0 || cfg.Database.Postgres.Database == "" {
			return nil, errors.New("postgres configuration is incomplete")
		}
		db.DSN = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Database.Postgres.Host, cfg.Database.Postgres.Port, cfg.Database.Postgres.User,
			cfg.Database.Postgres.Pass, cfg.Database.Postgres.Database, cfg.Database.Postgres.SslMode)
		db.Driver = "postgres"
		db.squirrel = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	default:
		return nil, errors.New("unsupported database type: %v", cfg.Database.Type)
	}

	return db, nil
}

func (db *DB) Open() error {
	if db.DSN == "" {
		return errors.New("database DSN is required but not configured")
	}

	handler, err := sql.Open(db.Driver, db.DSN)
	if err != nil {
		db.log.Error().Err(err).Str("driver", db.Driver).Msg("could not open database")
		return errors.Wrap(err, "could not open database")
	}
	db.handler = handler

	if db.Driver == "sqlite" {
		// concurrent pulls share one writer connection
		db.handler.SetMaxOpenConns(1)
		if _, err := db.handler.Exec("PRAGMA journal_mode = WAL;"); err != nil {
			return errors.Wrap(err, "could not enable WAL mode")
		}
	}

	if err := db.handler.Ping(); err != nil {
		return errors.Wrap(err, "could not ping database")
	}

	if err := db.migrate(); err != nil {
		return errors.Wrap(err, "could not migrate database")
	}

	db.log.Info().Msgf("database connection established: %s", db.Driver)

	return nil
}

func (db *DB) Close() error {
	if db.handler == nil {
		return nil
	}
	return db.handler.Close()
}

func (db *DB) Ping() error {
	if db.handler == nil {
		return errors.New("database not opened")
	}
	return db.handler.Ping()
}

const schema = `
CREATE TABLE IF NOT EXISTS sync_entity
(
    entity_type      TEXT      NOT NULL,
    entity_id        TEXT      NOT NULL,
    payload          TEXT      NOT NULL DEFAULT '{}',
    etag             TEXT      NOT NULL,
    row_version      BIGINT    NOT NULL DEFAULT 1,
    sync_status      TEXT      NOT NULL DEFAULT 'synced',
    conflict_data    TEXT,
    is_deleted       BOOLEAN   NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMP NOT NULL,
    last_modified_at TIMESTAMP NOT NULL,
    last_modified_by TEXT      NOT NULL DEFAULT '',
    PRIMARY KEY (entity_type, entity_id)
);

CREATE INDEX IF NOT EXISTS sync_entity_modified_idx
    ON sync_entity (entity_type, last_modified_at, entity_id);

CREATE INDEX IF NOT EXISTS sync_entity_status_idx
    ON sync_entity (sync_status);
`

func (db *DB) migrate() error {
	if _, err := db.handler.Exec(schema); err != nil {
		return errors.Wrap(err, "could not create schema")
	}
	return nil
}
