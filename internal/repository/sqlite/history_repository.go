package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tinfoil-queue/internal/domain"
	"tinfoil-queue/internal/repository"
)

const createHistoryTable = `
CREATE TABLE IF NOT EXISTS download_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	files INTEGER NOT NULL DEFAULT 1,
	size INTEGER NOT NULL DEFAULT 0,
	folder TEXT NOT NULL DEFAULT '',
	duration INTEGER NOT NULL DEFAULT 0,
	source TEXT NOT NULL DEFAULT 'torrent-file',
	completed_at DATETIME NOT NULL
);
`

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) repository.HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createHistoryTable); err != nil {
		return fmt.Errorf("create download_history table: %w", err)
	}
	return nil
}

func (r *HistoryRepository) Save(ctx context.Context, entry *domain.HistoryEntry) (int64, error) {
	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
INSERT INTO download_history (name, files, size, folder, duration, source, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Name, entry.Files, entry.Size, entry.Folder, entry.Duration, string(entry.Source), entry.CompletedAt)
	if err != nil {
		return 0, fmt.Errorf("save history entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history insert id: %w", err)
	}
	entry.ID = id
	return id, nil
}

func (r *HistoryRepository) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, files, size, folder, duration, source, completed_at
FROM download_history ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var (
			e      domain.HistoryEntry
			source string
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Files, &e.Size, &e.Folder, &e.Duration, &source, &e.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.Source = domain.Source(source)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}
