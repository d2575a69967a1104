package out

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dashext/internal/modules/extension/domain"
	extensionout "dashext/internal/modules/extension/port/out"
	apperrors "dashext/internal/platform/errors"

	_ "modernc.org/sqlite"
)

type SQLiteRegistry struct {
	db *sql.DB
}

func NewSQLiteRegistry(dbPath string) (*SQLiteRegistry, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	registry := &SQLiteRegistry{db: db}
	if err := registry.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return registry, nil
}

var _ extensionout.Registry = (*SQLiteRegistry)(nil)

func (s *SQLiteRegistry) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS extensions (
  name TEXT PRIMARY KEY,
  id TEXT NOT NULL,
  target_path TEXT NOT NULL,
  source_archive TEXT NOT NULL,
  archive_sha256 TEXT NOT NULL,
  files INTEGER NOT NULL,
  bytes INTEGER NOT NULL,
  extracted_at TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create extensions table: %w", err)
	}
	return nil
}

func (s *SQLiteRegistry) Record(ctx context.Context, item domain.Installed) error {
	const stmt = `
INSERT INTO extensions (name, id, target_path, source_archive, archive_sha256, files, bytes, extracted_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
  id=excluded.id,
  target_path=excluded.target_path,
  source_archive=excluded.source_archive,
  archive_sha256=excluded.archive_sha256,
  files=excluded.files,
  bytes=excluded.bytes,
  extracted_at=excluded.extracted_at;
`
	_, err := s.db.ExecContext(ctx, stmt,
		item.Name,
		item.ID,
		item.TargetPath,
		item.SourceArchive,
		item.ArchiveSHA256,
		item.Files,
		item.Bytes,
		item.ExtractedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record extension %s: %w", item.Name, err)
	}
	return nil
}

func (s *SQLiteRegistry) List(ctx context.Context) ([]domain.Installed, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT name, id, target_path, source_archive, archive_sha256, files, bytes, extracted_at
FROM extensions
ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list extensions: %w", err)
	}
	defer rows.Close()

	out := []domain.Installed{}
	for rows.Next() {
		var item domain.Installed
		var extractedAt string
		if err := rows.Scan(&item.Name, &item.ID, &item.TargetPath, &item.SourceArchive, &item.ArchiveSHA256, &item.Files, &item.Bytes, &extractedAt); err != nil {
			return nil, fmt.Errorf("scan extension: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, extractedAt); err == nil {
			item.ExtractedAt = ts
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extensions: %w", err)
	}
	return out, nil
}

func (s *SQLiteRegistry) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM extensions WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete extension %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete extension %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: extension %s", apperrors.ErrNotFound, name)
	}
	return nil
}

func (s *SQLiteRegistry) Close() error {
	return s.db.Close()
}
