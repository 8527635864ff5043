package sqlstore

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Step is one numbered migration: an up script, and an optional down
// script for rollback.
type Step struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Migrator applies Steps in order, tracking the applied version in its
// own table so it's safe to call Up repeatedly (e.g. on every process
// start).
type Migrator struct {
	db        *sql.DB
	tableName string
	steps     []Step
}

// NewMigrator constructs a migrator that records progress in tableName.
func NewMigrator(db *sql.DB, tableName string) *Migrator {
	return &Migrator{db: db, tableName: tableName}
}

// LoadFS reads migration files named "000001_description.up.sql" /
// "000001_description.down.sql" out of dir within fsys and appends them
// to the migrator's step list, sorted by version.
func (m *Migrator) LoadFS(fsys embed.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("eventcore: read migration directory %q: %w", dir, err)
	}

	byVersion := make(map[int]*Step)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		parts := strings.SplitN(entry.Name(), "_", 2)
		if len(parts) != 2 {
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		content, err := fs.ReadFile(fsys, filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("eventcore: read migration file %q: %w", entry.Name(), err)
		}

		step, ok := byVersion[version]
		if !ok {
			step = &Step{Version: version}
			byVersion[version] = step
		}
		switch {
		case strings.HasSuffix(parts[1], ".up.sql"):
			step.Name = strings.TrimSuffix(parts[1], ".up.sql")
			step.Up = string(content)
		case strings.HasSuffix(parts[1], ".down.sql"):
			step.Down = string(content)
		}
	}

	for _, step := range byVersion {
		m.steps = append(m.steps, *step)
	}
	sort.Slice(m.steps, func(i, j int) bool { return m.steps[i].Version < m.steps[j].Version })
	return nil
}

func (m *Migrator) ensureTrackingTable() error {
	_, err := m.db.Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (version INTEGER PRIMARY KEY, name TEXT NOT NULL, applied_at INTEGER NOT NULL)`,
		m.tableName,
	))
	if err != nil {
		return fmt.Errorf("eventcore: create migration tracking table %s: %w", m.tableName, err)
	}
	return nil
}

// Version returns the highest applied migration version, 0 if none.
func (m *Migrator) Version() (int, error) {
	if err := m.ensureTrackingTable(); err != nil {
		return 0, err
	}
	var version int
	err := m.db.QueryRow(fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", m.tableName)).Scan(&version)
	return version, err
}

// Up applies every step whose version is greater than the current one,
// each in its own transaction, in ascending order.
func (m *Migrator) Up() error {
	current, err := m.Version()
	if err != nil {
		return fmt.Errorf("eventcore: read migration version: %w", err)
	}

	for _, step := range m.steps {
		if step.Version <= current {
			continue
		}
		if err := m.apply(step); err != nil {
			return fmt.Errorf("eventcore: apply migration %d (%s): %w", step.Version, step.Name, err)
		}
	}
	return nil
}

func (m *Migrator) apply(step Step) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(step.Up); err != nil {
		return fmt.Errorf("run up script: %w", err)
	}
	if _, err := tx.Exec(
		fmt.Sprintf("INSERT INTO %s (version, name, applied_at) VALUES (?, ?, ?)", m.tableName),
		step.Version, step.Name, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down() error {
	current, err := m.Version()
	if err != nil {
		return err
	}
	if current == 0 {
		return fmt.Errorf("eventcore: no migrations to roll back")
	}

	var target *Step
	for i := range m.steps {
		if m.steps[i].Version == current {
			target = &m.steps[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("eventcore: migration %d not found in step list", current)
	}
	if target.Down == "" {
		return fmt.Errorf("eventcore: migration %d has no down script", current)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(target.Down); err != nil {
		return fmt.Errorf("eventcore: run down script for %d: %w", current, err)
	}
	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE version = ?", m.tableName), current); err != nil {
		return fmt.Errorf("eventcore: remove migration record %d: %w", current, err)
	}
	return tx.Commit()
}
