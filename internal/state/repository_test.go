package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtfcapture/internal/logger"
	pkgerrors "dtfcapture/pkg/errors"
	"dtfcapture/pkg/retry"
)

var columns = []string{"flow_id", "capture_date", "status", "last_updated_at", "error_message", "downstream_send_id"}

func newMockRepository(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, time.Time) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Date(2024, time.August, 19, 10, 0, 0, 0, time.UTC)
	repo := NewRepository(db, retry.NewEngine(logger.NopLogger()))
	repo.now = func() time.Time { return now }
	return repo, mock, now
}

func TestIsComplete(t *testing.T) {
	sendID := uuid.New()
	tests := []struct {
		name  string
		state *State
		want  bool
	}{
		{"nil", nil, false},
		{"sent", &State{Status: StatusSent}, true},
		{"persisted with send id", &State{Status: StatusPersisted, DownstreamSendID: &sendID}, true},
		{"persisted without send id", &State{Status: StatusPersisted}, false},
		{"failed with send id", &State{Status: StatusFailed, DownstreamSendID: &sendID}, false},
		{"processing", &State{Status: StatusProcessing}, false},
		{"received", &State{Status: StatusReceived}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.IsComplete())
		})
	}
}

func TestCreateIfNotExists(t *testing.T) {
	repo, mock, now := newMockRepository(t)
	flowID := uuid.New()
	captureDate := time.Date(2024, time.August, 19, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO processing_state .* ON CONFLICT \(flow_id\) DO NOTHING`).
		WithArgs(flowID, captureDate, "Received", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.CreateIfNotExists(context.Background(), captureDate, flowID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_CommitsTransaction(t *testing.T) {
	repo, mock, now := newMockRepository(t)
	flowID := uuid.New()
	msg := "source timed out"

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE processing_state\s+SET status = \$2`).
		WithArgs(flowID, "Failed", msg, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.UpdateStatus(context.Background(), flowID, StatusFailed, &msg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_ProcessingClearsSendID(t *testing.T) {
	repo, mock, now := newMockRepository(t)
	flowID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE processing_state\s+SET status = \$2, error_message = \$3, last_updated_at = \$4, downstream_send_id = NULL`).
		WithArgs(flowID, "Processing", sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.UpdateStatus(context.Background(), flowID, StatusProcessing, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_MissingRowIsNotFound(t *testing.T) {
	repo, mock, _ := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE processing_state`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.UpdateStatus(context.Background(), uuid.New(), StatusSent, nil)
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	repo, _, _ := newMockRepository(t)
	err := repo.UpdateStatus(context.Background(), uuid.New(), Status("Archived"), nil)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestUpdateStatus_RollsBackOnError(t *testing.T) {
	repo, mock, _ := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE processing_state`).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err := repo.UpdateStatus(context.Background(), uuid.New(), StatusProcessing, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDownstreamSend(t *testing.T) {
	repo, mock, now := newMockRepository(t)
	flowID, sendID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE processing_state\s+SET downstream_send_id = \$2`).
		WithArgs(flowID, sendID, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.RecordDownstreamSend(context.Background(), flowID, sendID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByFlowID(t *testing.T) {
	repo, mock, now := newMockRepository(t)
	flowID, sendID := uuid.New(), uuid.New()
	captureDate := time.Date(2024, time.August, 19, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM processing_state WHERE flow_id = \$1`).
		WithArgs(flowID).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(flowID.String(), captureDate, "Persisted", now, nil, sendID.String()))

	st, err := repo.GetByFlowID(context.Background(), flowID)
	require.NoError(t, err)
	assert.Equal(t, flowID, st.FlowID)
	assert.Equal(t, StatusPersisted, st.Status)
	assert.Nil(t, st.ErrorMessage)
	require.NotNil(t, st.DownstreamSendID)
	assert.Equal(t, sendID, *st.DownstreamSendID)
	assert.True(t, st.IsComplete())
}

func TestGetByFlowID_NotFound(t *testing.T) {
	repo, mock, _ := newMockRepository(t)
	mock.ExpectQuery(`FROM processing_state`).WillReturnRows(sqlmock.NewRows(columns))

	_, err := repo.GetByFlowID(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestGetLastByCaptureDate_OrdersByLastUpdate(t *testing.T) {
	repo, mock, now := newMockRepository(t)
	flowID := uuid.New()
	captureDate := time.Date(2024, time.August, 19, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE capture_date = \$1\s+ORDER BY last_updated_at DESC\s+LIMIT 1`).
		WithArgs(captureDate).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(flowID.String(), captureDate, "Failed", now, "boom", nil))

	st, err := repo.GetLastByCaptureDate(context.Background(), captureDate)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, st.Status)
	require.NotNil(t, st.ErrorMessage)
	assert.Equal(t, "boom", *st.ErrorMessage)
	assert.False(t, st.IsComplete())
}

func TestListFailedOrIncomplete(t *testing.T) {
	repo, mock, now := newMockRepository(t)
	a, b := uuid.New(), uuid.New()
	captureDate := time.Date(2024, time.August, 19, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE status IN \(\$1, \$2, \$3, \$4\)`).
		WithArgs("Received", "Processing", "Persisted", "Failed", 100).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(a.String(), captureDate, "Failed", now, "boom", nil).
			AddRow(b.String(), captureDate, "Processing", now.Add(-time.Minute), nil, nil))

	states, err := repo.ListFailedOrIncomplete(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, a, states[0].FlowID)
	assert.Equal(t, StatusProcessing, states[1].Status)
}
