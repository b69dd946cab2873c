package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"tinfoil-queue/internal/domain"
	"tinfoil-queue/internal/repository"
)

// CatalogService fronts the persisted game catalog. Lookups fail open: when
// the backing store is unavailable the catalog reports "not found" instead of
// blocking admission, trading strict duplicate prevention for availability.
type CatalogService interface {
	Lookup(ctx context.Context, sig domain.Signature) *domain.CatalogEntry
	Upsert(ctx context.Context, entry *domain.CatalogEntry) error
	List(ctx context.Context) ([]domain.CatalogEntry, error)
}

type catalogService struct {
	repo   repository.CatalogRepository
	logger *logrus.Logger
}

func NewCatalogService(repo repository.CatalogRepository, logger *logrus.Logger) CatalogService {
	if logger == nil {
		logger = logrus.New()
	}
	return &catalogService{repo: repo, logger: logger}
}

// Lookup checks the exact filename first, then the (titleID, version) pair.
// Both are checked because a re-download of the same content may arrive under
// a different filename.
func (s *catalogService) Lookup(ctx context.Context, sig domain.Signature) *domain.CatalogEntry {
	if sig.Filename != "" {
		entry, err := s.repo.FindByFilename(ctx, sig.Filename)
		if err != nil {
			s.logger.Warnf("catalog lookup by filename unavailable, allowing submission: %v", err)
			return nil
		}
		if entry != nil {
			return entry
		}
	}

	if sig.Resolved() {
		entry, err := s.repo.FindByTitle(ctx, sig.TitleID, sig.Version)
		if err != nil {
			s.logger.Warnf("catalog lookup by title unavailable, allowing submission: %v", err)
			return nil
		}
		if entry != nil {
			return entry
		}
	}

	return nil
}

func (s *catalogService) Upsert(ctx context.Context, entry *domain.CatalogEntry) error {
	return s.repo.Upsert(ctx, entry)
}

func (s *catalogService) List(ctx context.Context) ([]domain.CatalogEntry, error) {
	return s.repo.List(ctx)
}
