package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trove/catalog/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS classifiers (
	ordinal    INTEGER PRIMARY KEY,
	classifier TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS catalog_meta (
	id         SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	digest     TEXT NOT NULL,
	source     TEXT NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
);`

// ClassifierRepository persists the latest classifier catalog snapshot.
type ClassifierRepository interface {
	EnsureSchema(ctx context.Context) error
	ReplaceCatalog(ctx context.Context, catalog *domain.Catalog) error
	ListCatalog(ctx context.Context) (*domain.Catalog, error)
	StoredDigest(ctx context.Context) (string, error)
}

type classifierRepository struct {
	db *pgxpool.Pool
}

func NewClassifierRepository(db *pgxpool.Pool) ClassifierRepository {
	return &classifierRepository{
		db: db,
	}
}

func (r *classifierRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create classifier schema: %w", err)
	}
	return nil
}

// ReplaceCatalog swaps the stored snapshot in one transaction. Ordinals keep
// the upstream order; duplicates are stored as given.
func (r *classifierRepository) ReplaceCatalog(ctx context.Context, catalog *domain.Catalog) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM classifiers`); err != nil {
		return fmt.Errorf("failed to clear classifiers: %w", err)
	}

	rows := make([][]any, len(catalog.Classifiers))
	for i, c := range catalog.Classifiers {
		rows[i] = []any{i, c.String()}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"classifiers"},
		[]string{"ordinal", "classifier"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("failed to save classifiers: %w", err)
	}

	query := `
	INSERT INTO catalog_meta (id, digest, source, fetched_at)
	VALUES (1, $1, $2, $3)
	ON CONFLICT (id)
	DO UPDATE SET digest = $1, source = $2, fetched_at = $3`
	if _, err := tx.Exec(ctx, query, catalog.Digest(), catalog.Source, catalog.FetchedAt); err != nil {
		return fmt.Errorf("failed to save catalog metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}
	return nil
}

// ListCatalog returns the stored snapshot, or nil when none was ever saved.
func (r *classifierRepository) ListCatalog(ctx context.Context) (*domain.Catalog, error) {
	catalog := &domain.Catalog{}
	err := r.db.QueryRow(ctx, `SELECT source, fetched_at FROM catalog_meta WHERE id = 1`).
		Scan(&catalog.Source, &catalog.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog metadata: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT classifier FROM classifiers ORDER BY ordinal`)
	if err != nil {
		return nil, fmt.Errorf("failed to load classifiers: %w", err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan classifiers: %w", err)
	}

	catalog.Classifiers = domain.Classifiers(values...)
	return catalog, nil
}

// StoredDigest returns the digest of the stored snapshot, or "" when none was
// ever saved.
func (r *classifierRepository) StoredDigest(ctx context.Context) (string, error) {
	var digest string
	err := r.db.QueryRow(ctx, `SELECT digest FROM catalog_meta WHERE id = 1`).Scan(&digest)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load catalog digest: %w", err)
	}
	return digest, nil
}
