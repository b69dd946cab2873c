package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tinfoil-queue/internal/domain"
	"tinfoil-queue/internal/repository"
)

const createCatalogTable = `
CREATE TABLE IF NOT EXISTS game_catalog (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	filename TEXT NOT NULL UNIQUE,
	title_id TEXT NOT NULL DEFAULT '',
	version INTEGER NOT NULL DEFAULT 0,
	size INTEGER NOT NULL DEFAULT 0,
	url TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL DEFAULT '',
	indexed_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_game_catalog_title ON game_catalog (title_id, version);
`

type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) repository.CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createCatalogTable); err != nil {
		return fmt.Errorf("create game_catalog table: %w", err)
	}
	return nil
}

func (r *CatalogRepository) Upsert(ctx context.Context, entry *domain.CatalogEntry) error {
	if entry.IndexedAt.IsZero() {
		entry.IndexedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
INSERT INTO game_catalog (name, filename, title_id, version, size, url, path, indexed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(filename) DO UPDATE SET
	name = excluded.name,
	title_id = excluded.title_id,
	version = excluded.version,
	size = excluded.size,
	url = excluded.url,
	path = excluded.path,
	indexed_at = excluded.indexed_at`,
		entry.Name, entry.Filename, entry.TitleID, entry.Version, entry.Size, entry.URL, entry.Path, entry.IndexedAt)
	if err != nil {
		return fmt.Errorf("upsert catalog entry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil && entry.ID == 0 {
		entry.ID = id
	}
	return nil
}

func (r *CatalogRepository) FindByFilename(ctx context.Context, filename string) (*domain.CatalogEntry, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, filename, title_id, version, size, url, path, indexed_at
FROM game_catalog WHERE filename = ? COLLATE NOCASE LIMIT 1`, filename)
	return scanCatalogEntry(row)
}

func (r *CatalogRepository) FindByTitle(ctx context.Context, titleID string, version int) (*domain.CatalogEntry, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, filename, title_id, version, size, url, path, indexed_at
FROM game_catalog WHERE title_id = ? COLLATE NOCASE AND version = ? AND title_id != '' LIMIT 1`, titleID, version)
	return scanCatalogEntry(row)
}

func (r *CatalogRepository) List(ctx context.Context) ([]domain.CatalogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, filename, title_id, version, size, url, path, indexed_at
FROM game_catalog ORDER BY indexed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	defer rows.Close()

	var entries []domain.CatalogEntry
	for rows.Next() {
		var e domain.CatalogEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Filename, &e.TitleID, &e.Version, &e.Size, &e.URL, &e.Path, &e.IndexedAt); err != nil {
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog: %w", err)
	}
	return entries, nil
}

func scanCatalogEntry(row *sql.Row) (*domain.CatalogEntry, error) {
	var e domain.CatalogEntry
	err := row.Scan(&e.ID, &e.Name, &e.Filename, &e.TitleID, &e.Version, &e.Size, &e.URL, &e.Path, &e.IndexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan catalog entry: %w", err)
	}
	return &e, nil
}
