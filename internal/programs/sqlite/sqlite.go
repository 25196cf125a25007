// Package sqlite implements programs.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"run-sphere/internal/programs"

	_ "modernc.org/sqlite"
)

// Store implements programs.Store backed by a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ programs.Store = (*Store)(nil)

// Open creates or opens a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListPrograms(ctx context.Context) ([]programs.Program, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, language, code, created_at, updated_at
		FROM programs ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}
	defer rows.Close()

	list := []programs.Program{}
	for rows.Next() {
		var (
			p                    programs.Program
			createdAt, updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Language, &p.Code, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning program: %w", err)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		list = append(list, p)
	}
	return list, rows.Err()
}

func (s *Store) SaveProgram(ctx context.Context, in programs.SaveInput) (string, error) {
	if in.ID != "" {
		ok, err := s.UpdateProgram(ctx, in.ID, programs.Patch{Name: in.Name, Language: in.Language, Code: in.Code})
		if err != nil {
			return "", err
		}
		if ok {
			return in.ID, nil
		}
	}

	name := programs.DefaultName
	if in.Name != nil && *in.Name != "" {
		name = *in.Name
	}
	now := s.now().Format(time.RFC3339Nano)
	id := uuid.New().String()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO programs (id, name, language, code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, deref(in.Language), deref(in.Code), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("inserting program: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateProgram(ctx context.Context, id string, p programs.Patch) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE programs SET
			name = COALESCE(?, name),
			language = COALESCE(?, language),
			code = COALESCE(?, code),
			updated_at = ?
		WHERE id = ?`,
		p.Name, p.Language, p.Code, s.now().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return false, fmt.Errorf("updating program: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("updating program: %w", err)
	}
	return n > 0, nil
}

func (s *Store) DeleteProgram(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM programs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting program: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting program: %w", err)
	}
	return n > 0, nil
}

func (s *Store) DeletePrograms(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	res, err := s.db.ExecContext(ctx, `DELETE FROM programs WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting programs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting programs: %w", err)
	}
	return int(n), nil
}

func (s *Store) LoadSettings(ctx context.Context) (programs.Settings, error) {
	settings := programs.DefaultSettings()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM editor_settings`)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			// A corrupt value falls back to the default for that key.
			continue
		}
		settings[key] = v
	}
	return settings, rows.Err()
}

func (s *Store) SaveSettings(ctx context.Context, settings programs.Settings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM editor_settings`); err != nil {
		return fmt.Errorf("clearing settings: %w", err)
	}
	for key, v := range settings {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding setting %q: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO editor_settings (key, value) VALUES (?, ?)`, key, string(raw)); err != nil {
			return fmt.Errorf("saving setting %q: %w", key, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ResetSettings(ctx context.Context) (programs.Settings, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM editor_settings`); err != nil {
		return nil, fmt.Errorf("resetting settings: %w", err)
	}
	return programs.DefaultSettings(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
