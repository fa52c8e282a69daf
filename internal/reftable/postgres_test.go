package reftable

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entryColumns = []string{"source_code", "target_code", "target_label", "version"}

func TestLoadFromPool(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows(entryColumns).
		AddRow("A00", "gbd_cholera", "Cholera", "v1").
		AddRow("A15", "gbd_tb", "Tuberculosis", "v1")

	mock.ExpectQuery("SELECT source_code").
		WithArgs("v1").
		WillReturnRows(rows)

	tbl, err := loadFromPool(context.Background(), mock, "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Size())

	code, ok := tbl.Lookup("A15")
	assert.True(t, ok)
	assert.Equal(t, "gbd_tb", code)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadFromPool_EmptyVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT source_code").
		WithArgs("v9").
		WillReturnRows(pgxmock.NewRows(entryColumns))

	_, err = loadFromPool(context.Background(), mock, "v9")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrLoad))
}

func TestLoadFromPool_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT source_code").
		WithArgs("v1").
		WillReturnError(eris.New("connection reset"))

	_, err = loadFromPool(context.Background(), mock, "v1")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrLoad))
}
