package prices

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	pkgerrors "dtfcapture/pkg/errors"
	"dtfcapture/pkg/retry"
)

const DefaultTable = "dtf_daily_prices"

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type Repository interface {
	Insert(ctx context.Context, flowID uuid.UUID, capturedAt time.Time, payload Payload) error
	InsertBatch(ctx context.Context, flowID uuid.UUID, capturedAt time.Time, payloads []Payload) error
	GetPayloadsByFlowID(ctx context.Context, flowID uuid.UUID) ([]Payload, error)
}

type PostgresRepository struct {
	db        *sql.DB
	retry     *retry.Engine
	insertSQL string
	selectSQL string
}

// NewRepository validates table before it is interpolated into SQL.
func NewRepository(db *sql.DB, engine *retry.Engine, table string) (*PostgresRepository, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, pkgerrors.ErrValidation.WithDetail("message", fmt.Sprintf("invalid price table name %q", table))
	}

	return &PostgresRepository{
		db:    db,
		retry: engine,
		insertSQL: fmt.Sprintf(`
		INSERT INTO "%s" (flow_id, data_capture, data_price, payload)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (flow_id, data_price) DO NOTHING
	`, table),
		selectSQL: fmt.Sprintf(`
		SELECT payload
		FROM "%s"
		WHERE flow_id = $1
		ORDER BY data_price ASC
	`, table),
	}, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, flowID uuid.UUID, capturedAt time.Time, payload Payload) error {
	priceDate, err := payload.PriceDate()
	if err != nil {
		return pkgerrors.ErrValidation.WithCause(err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	return r.retry.Do(ctx, retry.KindPersistenceConnect, "prices.Insert", func(ctx context.Context) error {
		if _, err := r.db.ExecContext(ctx, r.insertSQL, flowID, capturedAt, priceDate, string(body)); err != nil {
			return fmt.Errorf("failed to insert price for %s: %w", payload.Date, err)
		}
		return nil
	})
}

func (r *PostgresRepository) InsertBatch(ctx context.Context, flowID uuid.UUID, capturedAt time.Time, payloads []Payload) error {
	for _, p := range payloads {
		if err := r.Insert(ctx, flowID, capturedAt, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) GetPayloadsByFlowID(ctx context.Context, flowID uuid.UUID) ([]Payload, error) {
	return retry.Execute(ctx, r.retry, retry.KindPersistenceConnect, "prices.GetPayloadsByFlowID", func(ctx context.Context) ([]Payload, error) {
		rows, err := r.db.QueryContext(ctx, r.selectSQL, flowID)
		if err != nil {
			return nil, fmt.Errorf("failed to query prices: %w", err)
		}
		defer rows.Close()

		var payloads []Payload
		for rows.Next() {
			var raw []byte
			if err := rows.Scan(&raw); err != nil {
				return nil, fmt.Errorf("failed to scan price payload: %w", err)
			}
			var p Payload
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, retry.NewFatalError(fmt.Errorf("failed to decode price payload: %w", err))
			}
			payloads = append(payloads, p)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate prices: %w", err)
		}
		return payloads, nil
	})
}
