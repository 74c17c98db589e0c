// Package store persists items in PostgreSQL. Every operation runs in its own
// transaction that commits on success and rolls back on any error.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items"
	apperrors "github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Schema creates the items table.
//
//	CREATE TABLE items (
//	    id          UUID PRIMARY KEY,
//	    name        VARCHAR(200) NOT NULL,
//	    description TEXT,
//	    enrichment  TEXT,
//	    enriched_at TIMESTAMPTZ
//	);
const Schema = `CREATE TABLE IF NOT EXISTS items (
	id          UUID PRIMARY KEY,
	name        VARCHAR(200) NOT NULL,
	description TEXT,
	enrichment  TEXT,
	enriched_at TIMESTAMPTZ
)`

const itemColumns = `id, name, description, enrichment, enriched_at`

// Store is the single writer path for items; the service and the worker both
// go through it.
type Store struct {
	db      *postgres.Client
	metrics *metrics.Metrics
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Store. m may be nil; timeout <= 0 leaves calls bounded only by
// the caller's context.
func New(db *postgres.Client, m *metrics.Metrics, timeout time.Duration) *Store {
	return &Store{
		db:      db,
		metrics: m,
		timeout: timeout,
		logger:  slog.Default().With("component", "item-store"),
	}
}

// Migrate creates the items table if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating items table: %w", err)
	}
	return nil
}

// Create inserts a new item with a fresh id and returns the row as stored.
func (s *Store) Create(ctx context.Context, name string, description *string) (*items.Item, error) {
	id := uuid.New()
	var created *items.Item
	err := s.run(ctx, "insert", id, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`INSERT INTO items (id, name, description) VALUES ($1, $2, $3)
			RETURNING `+itemColumns,
			id, name, nullString(description),
		)
		item, err := scanItem(row)
		if err != nil {
			return err
		}
		created = item
		return nil
	})
	if err != nil {
		return nil, apperrors.Storage("creating item", err)
	}
	s.logger.Debug("item created", "item_id", created.ID)
	return created, nil
}

// GetByID loads one item. A missing row is ErrItemNotFound, not a storage
// error.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*items.Item, error) {
	var found *items.Item
	err := s.run(ctx, "select", id, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+itemColumns+` FROM items WHERE id = $1`, id,
		)
		item, err := scanItem(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("item %s: %w", id, apperrors.ErrItemNotFound)
		}
		if err != nil {
			return err
		}
		found = item
		return nil
	})
	if errors.Is(err, apperrors.ErrItemNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, apperrors.Storage("reading item", err)
	}
	return found, nil
}

// UpdateEnrichment sets both enrichment fields in one statement. It reports
// false, with no error, when no item has that id.
func (s *Store) UpdateEnrichment(ctx context.Context, id uuid.UUID, text string, at time.Time) (bool, error) {
	var updated bool
	err := s.run(ctx, "update", id, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE items SET enrichment = $1, enriched_at = $2 WHERE id = $3`,
			text, at.UTC(), id,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		updated = n > 0
		return nil
	})
	if err != nil {
		return false, apperrors.Storage("updating enrichment", err)
	}
	return updated, nil
}

// run bounds fn by the store timeout, wraps it in a transaction and a span,
// and records its latency under operation.
func (s *Store) run(ctx context.Context, operation string, id uuid.UUID, fn func(context.Context, *sql.Tx) error) (err error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ctx, span := tracing.Start(ctx, "store."+operation,
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", operation),
		attribute.String("item.id", id.String()),
	)
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveQuery(operation, time.Since(start))
		}
		if errors.Is(err, apperrors.ErrItemNotFound) {
			tracing.End(span, nil)
			return
		}
		tracing.End(span, err)
	}()

	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, tx)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*items.Item, error) {
	var (
		item        items.Item
		description sql.NullString
		enrichment  sql.NullString
		enrichedAt  sql.NullTime
	)
	if err := row.Scan(&item.ID, &item.Name, &description, &enrichment, &enrichedAt); err != nil {
		return nil, err
	}
	if description.Valid {
		item.Description = &description.String
	}
	if enrichment.Valid {
		item.Enrichment = &enrichment.String
	}
	if enrichedAt.Valid {
		t := enrichedAt.Time.UTC()
		item.EnrichedAt = &t
	}
	return &item, nil
}

// nullString converts an optional string to a sql.NullString.
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
