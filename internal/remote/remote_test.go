package remote

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestUpsertBuildsMultiRowStatement(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO brands").
		WithArgs("6", 1, "Audi", "7", 1, "BMW").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	n, err := store.Upsert(context.Background(), "brands",
		[]string{"code", "vehicle_class", "name"},
		[]string{"code", "vehicle_class"},
		[][]any{
			{"6", 1, "Audi"},
			{"7", 1, "BMW"},
		})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAllKeyColumnsDoesNothingOnConflict(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO model_year_links .* DO NOTHING").
		WithArgs("6", "5496", 1, "2014-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	cols := []string{"brand_code", "model_code", "vehicle_class", "year_fuel_code"}
	n, err := store.Upsert(context.Background(), "model_year_links", cols, cols,
		[][]any{{"6", "5496", 1, "2014-1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertEmptyBatchIsNoop(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	n, err := store.Upsert(context.Background(), "brands",
		[]string{"code"}, []string{"code"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRejectsBadIdentifiers(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	_, err := store.Upsert(context.Background(), "brands; DROP TABLE brands",
		[]string{"code"}, []string{"code"}, [][]any{{"6"}})
	assert.Error(t, err)

	_, err = store.Upsert(context.Background(), "brands",
		[]string{"code)"}, []string{"code"}, [][]any{{"6"}})
	assert.Error(t, err)
}

func TestUpsertRejectsRaggedRows(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	_, err := store.Upsert(context.Background(), "brands",
		[]string{"code", "name"}, []string{"code"}, [][]any{{"6"}})
	assert.Error(t, err)
}

func TestDeleteWhere(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM models WHERE code = \\$1 AND brand_code = \\$2 AND vehicle_class = \\$3").
		WithArgs("5496", "6", "1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := store.DeleteWhere(context.Background(), "models",
		[]string{"code", "brand_code", "vehicle_class"},
		[]any{"5496", "6", "1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCount(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM brands").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := store.Count(context.Background(), "brands")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectKeys(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT code::text, vehicle_class::text FROM brands").
		WillReturnRows(pgxmock.NewRows([]string{"code", "vehicle_class"}).
			AddRow("6", "1").
			AddRow("7", "1"))

	keys, err := store.SelectKeys(context.Background(), "brands",
		[]string{"code", "vehicle_class"})
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, []string{"6", "1"}, keys[0])
	require.NoError(t, mock.ExpectationsWereMet())
}
