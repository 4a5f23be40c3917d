package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of *pgxpool.Pool the Postgres store needs.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	version    BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps documents in a single `documents` table.
type PostgresStore struct {
	pool PgxPool
}

func NewPostgresStore(pool PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the documents table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, documentsSchema); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Document, error) {
	doc := Document{Key: key}
	var value []byte

	err := s.pool.QueryRow(ctx, `
		SELECT value, version
		FROM documents
		WHERE key = $1
	`, key).Scan(&value, &doc.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{Key: key}, nil
		}
		return Document{}, fmt.Errorf("postgres get %s: %w", key, err)
	}

	doc.Value = value
	return doc, nil
}

func (s *PostgresStore) Commit(ctx context.Context, writes ...Write) error {
	if err := validateWrites(writes); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, w := range writes {
		tag, err := applyWrite(ctx, tx, w)
		if err != nil {
			return fmt.Errorf("write %s: %w", w.Key, err)
		}
		if w.ExpectedVersion != AnyVersion && tag.RowsAffected() != 1 {
			return ErrVersionConflict
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit documents: %w", err)
	}
	return nil
}

func applyWrite(ctx context.Context, tx pgx.Tx, w Write) (pgconn.CommandTag, error) {
	switch {
	case w.Delete && w.ExpectedVersion == AnyVersion:
		return tx.Exec(ctx, `DELETE FROM documents WHERE key = $1`, w.Key)
	case w.Delete:
		return tx.Exec(ctx, `DELETE FROM documents WHERE key = $1 AND version = $2`, w.Key, w.ExpectedVersion)
	case w.ExpectedVersion == AnyVersion:
		return tx.Exec(ctx, `
			INSERT INTO documents (key, value, version, updated_at)
			VALUES ($1, $2, 1, now())
			ON CONFLICT (key) DO UPDATE
			SET value = EXCLUDED.value,
			    version = documents.version + 1,
			    updated_at = now()
		`, w.Key, []byte(w.Value))
	case w.ExpectedVersion == 0:
		return tx.Exec(ctx, `
			INSERT INTO documents (key, value, version, updated_at)
			VALUES ($1, $2, 1, now())
			ON CONFLICT (key) DO NOTHING
		`, w.Key, []byte(w.Value))
	default:
		return tx.Exec(ctx, `
			UPDATE documents
			SET value = $2,
			    version = version + 1,
			    updated_at = now()
			WHERE key = $1
			  AND version = $3
		`, w.Key, []byte(w.Value), w.ExpectedVersion)
	}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
