package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/recipe-image-enricher/internal/enrichment"
)

func newMockStore(t *testing.T, cfg StoreConfig) (*RecipeStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewRecipeStoreWithPool(mock, cfg)
	require.NoError(t, err)
	return store, mock
}

func TestSelectMissingImageReturnsOrderedCandidates(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, StoreConfig{})
	rows := pgxmock.NewRows([]string{"id", "RecipeName", "URL"}).
		AddRow(int64(3), "Dal Makhani", "https://example.com/dal").
		AddRow(int64(7), "", "")
	mock.ExpectQuery(`FROM recipes\s+WHERE "ImageURL" IS NULL\s+ORDER BY id\s+LIMIT \$1 OFFSET \$2`).
		WithArgs(50, 100).
		WillReturnRows(rows)

	got, err := store.SelectMissingImage(context.Background(), 50, 100)
	require.NoError(t, err)
	require.Equal(t, []enrichment.Candidate{
		{ID: 3, Name: "Dal Makhani", SourceURL: "https://example.com/dal"},
		{ID: 7},
	}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectMissingImageEmpty(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, StoreConfig{})
	mock.ExpectQuery(`FROM recipes`).
		WithArgs(50, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "RecipeName", "URL"}))

	got, err := store.SelectMissingImage(context.Background(), 50, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectMissingImageRejectsInvalidBatch(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, StoreConfig{})

	_, err := store.SelectMissingImage(context.Background(), 0, 0)
	require.ErrorIs(t, err, enrichment.ErrInvalidBatch)
	_, err = store.SelectMissingImage(context.Background(), 10, -1)
	require.ErrorIs(t, err, enrichment.ErrInvalidBatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectMissingImageQueryError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, StoreConfig{})
	mock.ExpectQuery(`FROM recipes`).
		WithArgs(50, 0).
		WillReturnError(errors.New("connection reset"))

	_, err := store.SelectMissingImage(context.Background(), 50, 0)
	require.ErrorContains(t, err, "select missing images")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectMissingImageExcludesCappedRecords(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, StoreConfig{MaxAttempts: 3})
	mock.ExpectQuery(`LEFT JOIN image_enrichment_attempts a ON a.recipe_id = r.id`).
		WithArgs(50, 0, 3).
		WillReturnRows(pgxmock.NewRows([]string{"id", "RecipeName", "URL"}).
			AddRow(int64(1), "Poha", "https://example.com/poha"))

	got, err := store.SelectMissingImage(context.Background(), 50, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountMissingImage(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, StoreConfig{Table: "dishes"})
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM dishes WHERE "ImageURL" IS NULL`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := store.CountMissingImage(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(42), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountMissingImageWithAttempts(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, StoreConfig{MaxAttempts: 2})
	mock.ExpectQuery(`COALESCE\(a.attempts, 0\) < \$1`).
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(5)))

	n, err := store.CountMissingImage(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateImage(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, StoreConfig{})
	mock.ExpectExec(`UPDATE recipes SET "ImageURL" = \$1 WHERE id = \$2`).
		WithArgs("https://cdn.example.com/a.jpg", int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.UpdateImage(context.Background(), 9, "https://cdn.example.com/a.jpg"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateImageMissingRecord(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, StoreConfig{})
	mock.ExpectExec(`UPDATE recipes`).
		WithArgs("x", int64(404)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateImage(context.Background(), 404, "x")
	require.ErrorIs(t, err, enrichment.ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordMiss(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, StoreConfig{MaxAttempts: 3})
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO image_enrichment_attempts`).
		WithArgs(int64(11), at, "no_match").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordMiss(context.Background(), 11, enrichment.MissNoMatch, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordMissDisabled(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, StoreConfig{})
	require.NoError(t, store.RecordMiss(context.Background(), 11, enrichment.MissFetchError, time.Now()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImageStats(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, StoreConfig{})
	mock.ExpectQuery(`FILTER \(WHERE "ImageURL" = \$1\)`).
		WithArgs(enrichment.DefaultPlaceholderImageURL).
		WillReturnRows(pgxmock.NewRows([]string{"total", "with", "without", "placeholders"}).
			AddRow(int64(100), int64(60), int64(40), int64(5)))

	st, err := store.ImageStats(context.Background(), enrichment.DefaultPlaceholderImageURL)
	require.NoError(t, err)
	require.Equal(t, enrichment.ImageStats{Total: 100, WithImage: 60, WithoutImage: 40, Placeholders: 5}, st)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, StoreConfig{})
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	require.NoError(t, store.Ping(context.Background()))
	require.ErrorContains(t, store.Ping(context.Background()), "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRecipeStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRecipeStoreWithPool(nil, StoreConfig{})
	require.Error(t, err)
	_, err = NewRecipeStoreWithPool(mock, StoreConfig{Table: "recipes; DROP TABLE x"})
	require.Error(t, err)
	_, err = NewRecipeStoreWithPool(mock, StoreConfig{AttemptsTable: "bad-name"})
	require.Error(t, err)
	_, err = NewRecipeStoreWithPool(mock, StoreConfig{MaxAttempts: -1})
	require.Error(t, err)
}

func TestNewRecipeStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewRecipeStore(context.Background(), StoreConfig{})
	require.ErrorContains(t, err, "db.dsn")
}
