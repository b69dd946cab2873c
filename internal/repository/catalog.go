package repository

import (
	"context"

	"tinfoil-queue/internal/domain"
)

// CatalogRepository exposes persistence operations for indexed games.
type CatalogRepository interface {
	Init(ctx context.Context) error
	Upsert(ctx context.Context, entry *domain.CatalogEntry) error
	FindByFilename(ctx context.Context, filename string) (*domain.CatalogEntry, error)
	FindByTitle(ctx context.Context, titleID string, version int) (*domain.CatalogEntry, error)
	List(ctx context.Context) ([]domain.CatalogEntry, error)
}
