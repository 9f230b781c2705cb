//go:build integration

package prices

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtfcapture/internal/logger"
	"dtfcapture/internal/series"
	"dtfcapture/internal/testinfra"
	"dtfcapture/pkg/migrations"
	"dtfcapture/pkg/retry"
)

func observation(day int, value string) series.Observation {
	return series.Observation{
		Date:  time.Date(2024, time.August, day, 0, 0, 0, 0, time.UTC),
		Value: decimal.RequireFromString(value),
	}
}

func TestPostgresRepository_InsertBatchIsIdempotent(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Postgres: true})
	repo, err := NewRepository(infra.PostgresDB, retry.NewEngine(logger.NopLogger()), "")
	require.NoError(t, err)

	ctx := context.Background()
	flowID := uuid.New()
	payloads := PayloadsFrom([]series.Observation{observation(16, "10.81"), observation(15, "10.75")})

	require.NoError(t, repo.InsertBatch(ctx, flowID, time.Now().UTC(), payloads))
	require.NoError(t, repo.InsertBatch(ctx, flowID, time.Now().UTC(), payloads))

	stored, err := repo.GetPayloadsByFlowID(ctx, flowID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "2024-08-15", stored[0].Date)
	assert.True(t, stored[1].Price.Equal(decimal.RequireFromString("10.81")))

	other, err := repo.GetPayloadsByFlowID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestPostgresRepository_CustomTable(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Postgres: true})
	ctx := context.Background()
	require.NoError(t, migrations.EnsurePriceTable(ctx, infra.PostgresDB, "dtf_prices_custom"))

	repo, err := NewRepository(infra.PostgresDB, retry.NewEngine(logger.NopLogger()), "dtf_prices_custom")
	require.NoError(t, err)

	flowID := uuid.New()
	require.NoError(t, repo.Insert(ctx, flowID, time.Now().UTC(), NewPayload(observation(15, "10.75"))))

	stored, err := repo.GetPayloadsByFlowID(ctx, flowID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
