// internal/infrastructure/persistence/postgres/migrator.go
package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrator applies numbered SQL files (001_name.sql) exactly once each.
type Migrator struct {
	db         *sqlx.DB
	migrations map[int]*Migration
}

type Migration struct {
	ID          int
	Name        string
	Description string
	SQL         string
	Checksum    string
}

type MigrationRecord struct {
	ID        int       `db:"id"`
	Name      string    `db:"name"`
	Checksum  string    `db:"checksum"`
	AppliedAt time.Time `db:"applied_at"`
}

type MigrationStatus struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Applied   bool      `json:"applied"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
	Status    string    `json:"status"`
}

func NewMigrator(db *sqlx.DB) *Migrator {
	return &Migrator{
		db:         db,
		migrations: make(map[int]*Migration),
	}
}

// RunMigrations loads the embedded migrations and applies the pending ones.
func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	m := NewMigrator(db)
	if err := m.Init(ctx); err != nil {
		return err
	}
	if err := m.Load(embeddedMigrations, "migrations"); err != nil {
		return err
	}
	if err := m.Validate(ctx); err != nil {
		return err
	}
	return m.Migrate(ctx)
}

func (m *Migrator) Init(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		id INTEGER PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		checksum VARCHAR(64) NOT NULL,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`
	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// Load reads every .sql file in dir of fsys.
func (m *Migrator) Load(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, filename := range files {
		id, name, err := parseMigrationFilename(filename)
		if err != nil {
			return err
		}
		content, err := fs.ReadFile(fsys, path.Join(dir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}
		if _, dup := m.migrations[id]; dup {
			return fmt.Errorf("duplicate migration id %d (%s)", id, filename)
		}
		m.migrations[id] = &Migration{
			ID:          id,
			Name:        name,
			Description: extractDescription(string(content)),
			SQL:         string(content),
			Checksum:    calculateChecksum(content),
		}
	}

	logger.Debug("📂 Loaded %d migrations", len(m.migrations))
	return nil
}

// Migrate applies pending migrations in id order, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	var count int
	for _, id := range m.orderedIDs() {
		migration := m.migrations[id]
		if _, done := applied[id]; done {
			continue
		}
		if err := m.apply(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", id, migration.Name, err)
		}
		count++
	}

	if count > 0 {
		logger.Info("✅ Applied %d new migrations", count)
	} else {
		logger.Info("✅ Database schema is up to date")
	}
	return nil
}

// Validate checks that ids are contiguous and that applied files were not edited.
func (m *Migrator) Validate(ctx context.Context) error {
	if len(m.migrations) == 0 {
		return errors.New("no migrations loaded")
	}
	for i, id := range m.orderedIDs() {
		if id != i+1 {
			return fmt.Errorf("missing migration with ID %d", i+1)
		}
	}

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	var problems []string
	for id, record := range applied {
		migration, ok := m.migrations[id]
		if !ok {
			problems = append(problems, fmt.Sprintf("migration %d applied but not found", id))
			continue
		}
		if record.Checksum != migration.Checksum {
			problems = append(problems, fmt.Sprintf("migration %d (%s): checksum mismatch", id, migration.Name))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("migration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	var statuses []MigrationStatus
	for _, id := range m.orderedIDs() {
		st := MigrationStatus{ID: id, Name: m.migrations[id].Name, Status: "pending"}
		if record, ok := applied[id]; ok {
			st.Applied = true
			st.AppliedAt = record.AppliedAt
			st.Status = "applied"
			if record.Checksum != m.migrations[id].Checksum {
				st.Status = "checksum_mismatch"
			}
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func (m *Migrator) orderedIDs() []int {
	ids := make([]int, 0, len(m.migrations))
	for id := range m.migrations {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (m *Migrator) appliedMigrations(ctx context.Context) (map[int]MigrationRecord, error) {
	var records []MigrationRecord
	err := m.db.SelectContext(ctx, &records, `SELECT id, name, checksum, applied_at FROM schema_migrations ORDER BY id`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	applied := make(map[int]MigrationRecord, len(records))
	for _, r := range records {
		applied[r.ID] = r
	}
	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, migration *Migration) error {
	logger.Info("📤 Applying migration %03d: %s", migration.ID, migration.Name)

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (id, name, checksum) VALUES ($1, $2, $3)`,
		migration.ID, migration.Name, migration.Checksum,
	); err != nil {
		return fmt.Errorf("failed to save migration record: %w", err)
	}
	return tx.Commit()
}

func parseMigrationFilename(filename string) (int, string, error) {
	base := strings.TrimSuffix(filename, ".sql")

	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("invalid migration filename format: %s (expected: 001_name.sql)", filename)
	}

	var id int
	if _, err := fmt.Sscanf(parts[0], "%d", &id); err != nil || id <= 0 {
		return 0, "", fmt.Errorf("invalid migration ID in filename: %s", filename)
	}
	return id, strings.ReplaceAll(parts[1], "_", " "), nil
}

func extractDescription(sql string) string {
	for _, line := range strings.Split(sql, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-- Description:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "-- Description:"))
		}
	}
	return ""
}

func calculateChecksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
