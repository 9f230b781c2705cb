package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "dtfcapture/pkg/errors"
	"dtfcapture/pkg/retry"
)

type Repository interface {
	CreateIfNotExists(ctx context.Context, captureDate time.Time, flowID uuid.UUID) error
	UpdateStatus(ctx context.Context, flowID uuid.UUID, status Status, errorMessage *string) error
	RecordDownstreamSend(ctx context.Context, flowID uuid.UUID, sendID uuid.UUID) error
	GetByFlowID(ctx context.Context, flowID uuid.UUID) (*State, error)
	GetLastByCaptureDate(ctx context.Context, captureDate time.Time) (*State, error)
	ListFailedOrIncomplete(ctx context.Context, limit int) ([]*State, error)
}

const selectColumns = `flow_id, capture_date, status, last_updated_at, error_message, downstream_send_id`

type PostgresRepository struct {
	db    *sql.DB
	retry *retry.Engine
	now   func() time.Time
}

func NewRepository(db *sql.DB, engine *retry.Engine) *PostgresRepository {
	return &PostgresRepository{
		db:    db,
		retry: engine,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *PostgresRepository) CreateIfNotExists(ctx context.Context, captureDate time.Time, flowID uuid.UUID) error {
	query := `
		INSERT INTO processing_state (flow_id, capture_date, status, last_updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (flow_id) DO NOTHING
	`

	return r.retry.Do(ctx, retry.KindPersistenceConnect, "state.CreateIfNotExists", func(ctx context.Context) error {
		if _, err := r.db.ExecContext(ctx, query, flowID, captureDate, StatusReceived, r.now()); err != nil {
			return fmt.Errorf("failed to create processing state: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, flowID uuid.UUID, status Status, errorMessage *string) error {
	if !status.Valid() {
		return pkgerrors.ErrValidation.WithDetail("status", string(status))
	}

	query := `
		UPDATE processing_state
		SET status = $2, error_message = $3, last_updated_at = $4
		WHERE flow_id = $1
	`
	// A new attempt starts without a send id, otherwise a crash before the
	// next send would leave the flow looking complete.
	if status == StatusProcessing {
		query = `
		UPDATE processing_state
		SET status = $2, error_message = $3, last_updated_at = $4, downstream_send_id = NULL
		WHERE flow_id = $1
	`
	}

	return r.inTx(ctx, "state.UpdateStatus", flowID, func(ctx context.Context, tx *sql.Tx) (sql.Result, error) {
		return tx.ExecContext(ctx, query, flowID, status, errorMessage, r.now())
	})
}

func (r *PostgresRepository) RecordDownstreamSend(ctx context.Context, flowID uuid.UUID, sendID uuid.UUID) error {
	query := `
		UPDATE processing_state
		SET downstream_send_id = $2, last_updated_at = $3
		WHERE flow_id = $1
	`

	return r.inTx(ctx, "state.RecordDownstreamSend", flowID, func(ctx context.Context, tx *sql.Tx) (sql.Result, error) {
		return tx.ExecContext(ctx, query, flowID, sendID, r.now())
	})
}

// inTx runs a single-row update in its own transaction. A missing row is
// reported as ErrNotFound and is not retried.
func (r *PostgresRepository) inTx(ctx context.Context, method string, flowID uuid.UUID, fn func(context.Context, *sql.Tx) (sql.Result, error)) error {
	var notFound bool

	err := r.retry.Do(ctx, retry.KindPersistenceConnect, method, func(ctx context.Context) error {
		notFound = false

		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		result, err := fn(ctx, tx)
		if err != nil {
			return fmt.Errorf("failed to update processing state: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			notFound = true
			return nil
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if notFound {
		return pkgerrors.ErrNotFound.WithDetail("flow_id", flowID.String())
	}
	return nil
}

func (r *PostgresRepository) GetByFlowID(ctx context.Context, flowID uuid.UUID) (*State, error) {
	query := `SELECT ` + selectColumns + ` FROM processing_state WHERE flow_id = $1`

	st, err := retry.Execute(ctx, r.retry, retry.KindPersistenceConnect, "state.GetByFlowID", func(ctx context.Context) (*State, error) {
		return scanOne(r.db.QueryRowContext(ctx, query, flowID))
	})
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("flow_id", flowID.String())
	}
	return st, nil
}

func (r *PostgresRepository) GetLastByCaptureDate(ctx context.Context, captureDate time.Time) (*State, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM processing_state
		WHERE capture_date = $1
		ORDER BY last_updated_at DESC
		LIMIT 1
	`

	st, err := retry.Execute(ctx, r.retry, retry.KindPersistenceConnect, "state.GetLastByCaptureDate", func(ctx context.Context) (*State, error) {
		return scanOne(r.db.QueryRowContext(ctx, query, captureDate))
	})
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("capture_date", captureDate.Format("2006-01-02"))
	}
	return st, nil
}

func (r *PostgresRepository) ListFailedOrIncomplete(ctx context.Context, limit int) ([]*State, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + selectColumns + `
		FROM processing_state
		WHERE status IN ($1, $2, $3, $4)
		  AND NOT (status = $3 AND downstream_send_id IS NOT NULL)
		ORDER BY last_updated_at DESC
		LIMIT $5
	`

	return retry.Execute(ctx, r.retry, retry.KindPersistenceConnect, "state.ListFailedOrIncomplete", func(ctx context.Context) ([]*State, error) {
		rows, err := r.db.QueryContext(ctx, query, StatusReceived, StatusProcessing, StatusPersisted, StatusFailed, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list incomplete flows: %w", err)
		}
		defer rows.Close()

		var states []*State
		for rows.Next() {
			st, err := scan(rows)
			if err != nil {
				return nil, err
			}
			states = append(states, st)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate processing states: %w", err)
		}
		return states, nil
	})
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanOne returns nil, nil when the row does not exist.
func scanOne(row scanner) (*State, error) {
	st, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return st, err
}

func scan(row scanner) (*State, error) {
	var (
		st     State
		status string
		errMsg sql.NullString
		sendID uuid.NullUUID
	)

	if err := row.Scan(&st.FlowID, &st.CaptureDate, &status, &st.LastUpdatedAt, &errMsg, &sendID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan processing state: %w", err)
	}

	st.Status = Status(status)
	if errMsg.Valid {
		st.ErrorMessage = &errMsg.String
	}
	if sendID.Valid {
		st.DownstreamSendID = &sendID.UUID
	}
	return &st, nil
}
