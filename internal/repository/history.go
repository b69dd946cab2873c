package repository

import (
	"context"

	"tinfoil-queue/internal/domain"
)

// HistoryRepository records completed downloads.
type HistoryRepository interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, entry *domain.HistoryEntry) (int64, error)
	List(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
}
