package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinfoil-queue/internal/domain"
)

type memCatalogRepo struct {
	entries []domain.CatalogEntry
	err     error
}

func (r *memCatalogRepo) Init(ctx context.Context) error { return r.err }

func (r *memCatalogRepo) Upsert(ctx context.Context, entry *domain.CatalogEntry) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memCatalogRepo) FindByFilename(ctx context.Context, filename string) (*domain.CatalogEntry, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, e := range r.entries {
		if e.Filename == filename {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memCatalogRepo) FindByTitle(ctx context.Context, titleID string, version int) (*domain.CatalogEntry, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, e := range r.entries {
		if e.TitleID == titleID && e.Version == version {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memCatalogRepo) List(ctx context.Context) ([]domain.CatalogEntry, error) {
	return r.entries, r.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestDetectorCheckCatalog(t *testing.T) {
	repo := &memCatalogRepo{entries: []domain.CatalogEntry{
		{Name: "Zelda", Filename: "Zelda.torrent"},
		{Name: "Mario", Filename: "Mario [0100000000010000][v0].nsp", TitleID: "0100000000010000", Version: 0},
	}}
	det := NewDetector(NewCatalogService(repo, quietLogger()))
	ctx := context.Background()

	t.Run("filename hit", func(t *testing.T) {
		dup := det.CheckCatalog(ctx, domain.Signature{Filename: "Zelda.torrent"})
		require.NotNil(t, dup)
		assert.Equal(t, MatchCatalog, dup.Against)
		assert.Contains(t, dup.Error(), "already indexed")
	})

	t.Run("title hit under different filename", func(t *testing.T) {
		dup := det.CheckCatalog(ctx, domain.Signature{
			Filename: "Mario (rip).nsp",
			TitleID:  "0100000000010000",
			Version:  0,
		})
		require.NotNil(t, dup)
		assert.Equal(t, MatchCatalog, dup.Against)
	})

	t.Run("miss", func(t *testing.T) {
		assert.Nil(t, det.CheckCatalog(ctx, domain.Signature{Filename: "Metroid.torrent"}))
	})
}

func TestCatalogLookupFailsOpen(t *testing.T) {
	repo := &memCatalogRepo{err: errors.New("database is locked")}
	det := NewDetector(NewCatalogService(repo, quietLogger()))

	dup := det.CheckCatalog(context.Background(), domain.Signature{Filename: "Zelda.torrent"})
	assert.Nil(t, dup, "storage outage must not block admission")
}

func TestDetectorMatchInflight(t *testing.T) {
	det := NewDetector(NewCatalogService(&memCatalogRepo{}, quietLogger()))
	inflight := []domain.Signature{
		{Filename: "Zelda.torrent"},
		{Filename: "Mario [0100000000010000][v0].nsp", TitleID: "0100000000010000", Version: 0},
	}

	dup := det.MatchInflight(domain.Signature{Filename: "zelda.torrent"}, "Zelda", inflight)
	require.NotNil(t, dup)
	assert.Equal(t, MatchActiveQueue, dup.Against)
	assert.Contains(t, dup.Error(), "already downloading or waiting")

	assert.Nil(t, det.MatchInflight(domain.Signature{Filename: "Metroid.torrent"}, "Metroid", inflight))
}

func TestCredentialService(t *testing.T) {
	svc := NewCredentialService()

	t.Run("derives username from email local part", func(t *testing.T) {
		creds, err := svc.Generate("John.Doe-42@example.com")
		require.NoError(t, err)
		assert.Equal(t, "johndoe42", creds.Username)
		assert.Len(t, creds.Password, 6)
		assert.True(t, svc.Verify(creds.Password, creds.PasswordHash))
		assert.False(t, svc.Verify("WRONG1", creds.PasswordHash))
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		_, err := svc.Generate("not-an-email")
		assert.ErrorIs(t, err, ErrInvalidEmail)

		_, err = svc.Generate("@example.com")
		assert.ErrorIs(t, err, ErrInvalidEmail)
	})
}
