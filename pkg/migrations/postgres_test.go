package migrations

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	schema "dtfcapture/migrations"
)

func TestEnsurePriceTable_DefaultIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, EnsurePriceTable(context.Background(), db, ""))
	require.NoError(t, EnsurePriceTable(context.Background(), db, defaultPriceTable))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsurePriceTable_ClonesDefaultLayout(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "dtf_prices_test" \(LIKE dtf_daily_prices INCLUDING ALL\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsurePriceTable(context.Background(), db, "dtf_prices_test"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsurePriceTable_RejectsUnsafeName(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	assert.Error(t, EnsurePriceTable(context.Background(), db, `prices"; DROP TABLE x; --`))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(schema.Postgres, schema.PostgresDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, ups, downs)
}
