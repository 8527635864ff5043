package audit

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/kouweizhong/eventcore/pkg/domain"
	"github.com/kouweizhong/eventcore/pkg/sqlstore"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteLog is the durable Log backing the rebuilder's "fresh audit log"
// requirement (spec §4.9 step 3): one connection, one table, unique
// partial indexes doing the duplicate-detection work the in-memory map
// does for MemoryLog.
//
// Grounded on the teacher's pkg/store/sqlite migration layout, reused in
// generalized form as pkg/sqlstore here.
type SQLiteLog struct {
	db *sql.DB
}

// OpenSQLiteLog opens (and migrates) a SQLite-backed audit log.
func OpenSQLiteLog(opts sqlstore.Options) (*SQLiteLog, error) {
	db, err := sqlstore.Open(opts)
	if err != nil {
		return nil, err
	}

	migrator := sqlstore.NewMigrator(db, "audit_schema_migrations")
	if err := migrator.LoadFS(migrations, "migrations"); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventcore: migrate audit log schema: %w", err)
	}

	return &SQLiteLog{db: db}, nil
}

// Close releases the underlying database handle.
func (l *SQLiteLog) Close() error { return l.db.Close() }

func (l *SQLiteLog) IsDuplicate(message domain.Message) (bool, error) {
	k, err := keyFor(message)
	if err != nil {
		return false, err
	}
	return l.isDuplicateKey(l.db, k)
}

func (l *SQLiteLog) isDuplicateKey(q querier, k key) (bool, error) {
	var query string
	var args []any
	if k.kind == "command" {
		query = `SELECT 1 FROM processed_messages WHERE kind = 'command' AND command_id = ?`
		args = []any{k.commandID}
	} else {
		query = `SELECT 1 FROM processed_messages WHERE kind = 'event' AND source_type = ? AND source_id = ? AND version = ?`
		args = []any{k.sourceType, k.sourceID, k.version}
	}

	var exists int
	err := q.QueryRow(query, args...).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("eventcore: check audit duplicate: %w", err)
	default:
		return true, nil
	}
}

func (l *SQLiteLog) Save(message domain.Message, metadata Metadata) error {
	k, err := keyFor(message)
	if err != nil {
		return err
	}

	processedAt := metadata.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}

	_, err = l.db.Exec(
		`INSERT OR IGNORE INTO processed_messages
		   (kind, command_id, source_type, source_id, version, correlation_id, trace_id, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		k.kind, nullableString(k.commandID), nullableString(k.sourceType), nullableString(k.sourceID),
		nullableVersion(k), metadata.CorrelationID, metadata.TraceID, processedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("eventcore: save audit entry: %w", err)
	}
	return nil
}

// Truncate implements spec §4.9 step 7's "truncate the source audit table
// and reseed its identity".
func (l *SQLiteLog) Truncate() error {
	if _, err := l.db.Exec(`DELETE FROM processed_messages`); err != nil {
		return fmt.Errorf("eventcore: truncate audit log: %w", err)
	}
	if _, err := l.db.Exec(`DELETE FROM sqlite_sequence WHERE name = 'processed_messages'`); err != nil {
		return fmt.Errorf("eventcore: reseed audit log identity: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx, for call sites that
// may want to run the duplicate check inside the rebuilder's audit
// transaction.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableVersion(k key) any {
	if k.kind != "event" {
		return nil
	}
	return k.version
}
