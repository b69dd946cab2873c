package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinfoil-queue/internal/domain"
	"tinfoil-queue/internal/repository"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestCatalogRepo(t *testing.T) repository.CatalogRepository {
	t.Helper()
	repo := NewCatalogRepository(openTestDB(t))
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

func TestCatalogUpsertAndFind(t *testing.T) {
	repo := newTestCatalogRepo(t)
	ctx := context.Background()

	entry := &domain.CatalogEntry{
		Name:     "Zelda",
		Filename: "Zelda [0100000000010000][v0].nsp",
		TitleID:  "0100000000010000",
		Version:  0,
		Size:     1 << 30,
		Path:     "/downloads/zelda",
	}
	require.NoError(t, repo.Upsert(ctx, entry))
	assert.NotZero(t, entry.ID)

	t.Run("by filename case-insensitive", func(t *testing.T) {
		found, err := repo.FindByFilename(ctx, "zelda [0100000000010000][V0].NSP")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, entry.Filename, found.Filename)
		assert.Equal(t, entry.Size, found.Size)
	})

	t.Run("by title", func(t *testing.T) {
		found, err := repo.FindByTitle(ctx, "0100000000010000", 0)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "Zelda", found.Name)
	})

	t.Run("miss returns nil without error", func(t *testing.T) {
		found, err := repo.FindByFilename(ctx, "Metroid.nsp")
		require.NoError(t, err)
		assert.Nil(t, found)

		found, err = repo.FindByTitle(ctx, "0100FFFFFFFFFFFF", 0)
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("empty title id never matches", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, &domain.CatalogEntry{Name: "Untagged", Filename: "Untagged.nsp"}))
		found, err := repo.FindByTitle(ctx, "", 0)
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestCatalogUpsertReplacesOnFilename(t *testing.T) {
	repo := newTestCatalogRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &domain.CatalogEntry{Name: "Game", Filename: "Game.nsp", Size: 100}))
	require.NoError(t, repo.Upsert(ctx, &domain.CatalogEntry{Name: "Game (fixed)", Filename: "Game.nsp", Size: 200}))

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Game (fixed)", entries[0].Name)
	assert.Equal(t, int64(200), entries[0].Size)
}

func TestHistorySaveAndList(t *testing.T) {
	repo := NewHistoryRepository(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Init(ctx))

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"First", "Second", "Third"} {
		id, err := repo.Save(ctx, &domain.HistoryEntry{
			Name:        name,
			Files:       1,
			Size:        int64(i+1) * 1024,
			Folder:      "/downloads/" + name,
			Duration:    int64(i * 10),
			Source:      domain.SourceTorrentFile,
			CompletedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		assert.NotZero(t, id)
	}

	entries, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "Third", entries[0].Name)
	assert.Equal(t, "First", entries[2].Name)
	assert.Equal(t, domain.SourceTorrentFile, entries[0].Source)

	limited, err := repo.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
