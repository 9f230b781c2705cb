//go:build integration

package state

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtfcapture/internal/logger"
	"dtfcapture/internal/testinfra"
	pkgerrors "dtfcapture/pkg/errors"
	"dtfcapture/pkg/retry"
)

func newIntegrationRepository(t *testing.T) *PostgresRepository {
	infra := testinfra.Setup(t, testinfra.Options{Postgres: true})
	return NewRepository(infra.PostgresDB, retry.NewEngine(logger.NopLogger()))
}

func TestPostgresRepository_Lifecycle(t *testing.T) {
	repo := newIntegrationRepository(t)
	ctx := context.Background()
	captureDate := time.Date(2024, time.August, 15, 0, 0, 0, 0, time.UTC)
	flowID := uuid.New()

	require.NoError(t, repo.CreateIfNotExists(ctx, captureDate, flowID))
	require.NoError(t, repo.CreateIfNotExists(ctx, captureDate, flowID))

	st, err := repo.GetByFlowID(ctx, flowID)
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, st.Status)
	assert.True(t, st.CaptureDate.Equal(captureDate))

	require.NoError(t, repo.UpdateStatus(ctx, flowID, StatusPersisted, nil))
	sendID := uuid.New()
	require.NoError(t, repo.RecordDownstreamSend(ctx, flowID, sendID))

	st, err = repo.GetByFlowID(ctx, flowID)
	require.NoError(t, err)
	require.NotNil(t, st.DownstreamSendID)
	assert.Equal(t, sendID, *st.DownstreamSendID)
	assert.True(t, st.IsComplete())

	require.NoError(t, repo.UpdateStatus(ctx, flowID, StatusSent, nil))
	last, err := repo.GetLastByCaptureDate(ctx, captureDate)
	require.NoError(t, err)
	assert.Equal(t, flowID, last.FlowID)
}

func TestPostgresRepository_FailedFlowIsListed(t *testing.T) {
	repo := newIntegrationRepository(t)
	ctx := context.Background()
	captureDate := time.Date(2024, time.August, 16, 0, 0, 0, 0, time.UTC)

	failed := uuid.New()
	require.NoError(t, repo.CreateIfNotExists(ctx, captureDate, failed))
	detail := "SOURCE_TIMEOUT: data source timed out"
	require.NoError(t, repo.UpdateStatus(ctx, failed, StatusFailed, &detail))

	sent := uuid.New()
	require.NoError(t, repo.CreateIfNotExists(ctx, captureDate, sent))
	require.NoError(t, repo.UpdateStatus(ctx, sent, StatusSent, nil))

	states, err := repo.ListFailedOrIncomplete(ctx, 10)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, failed, states[0].FlowID)
	require.NotNil(t, states[0].ErrorMessage)
	assert.Equal(t, detail, *states[0].ErrorMessage)
}

func TestPostgresRepository_UnknownFlow(t *testing.T) {
	repo := newIntegrationRepository(t)
	ctx := context.Background()

	_, err := repo.GetByFlowID(ctx, uuid.New())
	assert.True(t, pkgerrors.IsNotFound(err))

	err = repo.UpdateStatus(ctx, uuid.New(), StatusProcessing, nil)
	assert.True(t, pkgerrors.IsNotFound(err))
}
