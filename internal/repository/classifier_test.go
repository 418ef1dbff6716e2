package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trove/catalog/internal/domain"
)

// newTestRepository connects to DATABASE_URL and skips when it is unset.
func newTestRepository(t *testing.T) (ClassifierRepository, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	repo := NewClassifierRepository(db)
	require.NoError(t, repo.EnsureSchema(ctx))
	_, err = db.Exec(ctx, `TRUNCATE classifiers; DELETE FROM catalog_meta;`)
	require.NoError(t, err)

	return repo, db
}

func TestListCatalogNeverStored(t *testing.T) {
	repo, _ := newTestRepository(t)

	catalog, err := repo.ListCatalog(context.Background())
	require.NoError(t, err)
	assert.Nil(t, catalog)

	digest, err := repo.StoredDigest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, digest)
}

func TestReplaceCatalogKeepsOrderAndDuplicates(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	first := &domain.Catalog{
		Classifiers: domain.Classifiers("Topic :: B", "Topic :: A", "Topic :: B"),
		FetchedAt:   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Source:      "https://catalog.test/classifiers",
	}
	require.NoError(t, repo.ReplaceCatalog(ctx, first))

	second := &domain.Catalog{
		Classifiers: domain.Classifiers("Private :: Do Not Upload", "Topic :: C"),
		FetchedAt:   time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
		Source:      "https://catalog.test/classifiers",
	}
	require.NoError(t, repo.ReplaceCatalog(ctx, second))

	got, err := repo.ListCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Classifiers, got.Classifiers)
	assert.Equal(t, second.Source, got.Source)
	assert.True(t, second.FetchedAt.Equal(got.FetchedAt))

	digest, err := repo.StoredDigest(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Digest(), digest)
}
