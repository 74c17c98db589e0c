package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/postgres"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sqliteSchema mirrors Schema with column types go-sqlite3 maps back to Go
// values (TIMESTAMP decodes to time.Time).
const sqliteSchema = `CREATE TABLE items (
	id          TEXT PRIMARY KEY,
	name        VARCHAR(200) NOT NULL,
	description TEXT,
	enrichment  TEXT,
	enriched_at TIMESTAMP
)`

func newTestStore(t *testing.T) (*Store, *metrics.Metrics) {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "items.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(sqliteSchema)
	require.NoError(t, err)

	m := metrics.New(nil)
	return New(postgres.Wrap(db), m, time.Second), m
}

func strPtr(s string) *string { return &s }

func TestCreateReturnsCanonicalRow(t *testing.T) {
	s, m := newTestStore(t)
	ctx := context.Background()

	item, err := s.Create(ctx, "widget", strPtr("test"))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, item.ID)
	assert.Equal(t, "widget", item.Name)
	require.NotNil(t, item.Description)
	assert.Equal(t, "test", *item.Description)
	assert.Nil(t, item.Enrichment)
	assert.Nil(t, item.EnrichedAt)
	assert.Equal(t, 1, testutil.CollectAndCount(m.DBQueryDuration))
}

func TestCreateWithoutDescription(t *testing.T) {
	s, _ := newTestStore(t)

	item, err := s.Create(context.Background(), "bare", nil)
	require.NoError(t, err)
	assert.Nil(t, item.Description)

	got, err := s.GetByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Description)
}

func TestGetByIDNotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrItemNotFound)
	assert.NotErrorIs(t, err, apperrors.ErrStorage)
}

func TestUpdateEnrichmentSetsBothFields(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	item, err := s.Create(ctx, "widget", nil)
	require.NoError(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ok, err := s.UpdateEnrichment(ctx, item.ID, "Enriched at first", at)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetByID(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, got.Enriched())
	assert.Equal(t, "Enriched at first", *got.Enrichment)
	assert.True(t, at.Equal(*got.EnrichedAt))

	later := at.Add(time.Minute)
	ok, err = s.UpdateEnrichment(ctx, item.ID, "Enriched at second", later)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = s.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Enriched at second", *got.Enrichment)
	assert.True(t, later.Equal(*got.EnrichedAt))
}

func TestUpdateEnrichmentMissingRowIsNotAnError(t *testing.T) {
	s, _ := newTestStore(t)

	ok, err := s.UpdateEnrichment(context.Background(), uuid.New(), "x", time.Now())
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCancelledContextIsStorageError(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Create(ctx, "widget", nil)
	assert.ErrorIs(t, err, apperrors.ErrStorage)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFailedStatementRollsBack(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "widget", nil)
	require.NoError(t, err)

	// a NOT NULL violation aborts the transaction
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO items (id, name) VALUES ($1, $2)`, uuid.New(), "kept?"); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO items (id, name) VALUES ($1, NULL)`, uuid.New())
		return err
	})
	require.Error(t, err)

	var n int
	require.NoError(t, s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestConcurrentEnrichmentLastWriteWins(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	item, err := s.Create(ctx, "raced", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateEnrichment(ctx, item.ID, "Enriched", time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Enriched())
	assert.Equal(t, "Enriched", *got.Enrichment)
}
