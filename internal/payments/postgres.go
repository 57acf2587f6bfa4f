package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/learnhub/learnhub-wallet/internal/infra"
)

// PostgresAttemptStore keeps payment attempts in the payment_attempts table.
type PostgresAttemptStore struct {
	db *pgxpool.Pool
}

// NewPostgresAttemptStore constructs a Postgres-backed attempt store.
func NewPostgresAttemptStore(db *pgxpool.Pool) *PostgresAttemptStore {
	return &PostgresAttemptStore{db: db}
}

const attemptColumns = `request_id, gateway_order_id, kind, user_id, order_id, amount::text, status,
       result_code, gateway_trans_id, created_at, updated_at`

func (s *PostgresAttemptStore) Create(ctx context.Context, a Attempt) error {
	if a.Status == "" {
		a.Status = AttemptPending
	}
	_, err := infra.Conn(ctx, s.db).Exec(ctx, `
        INSERT INTO payment_attempts (request_id, gateway_order_id, kind, user_id, order_id, amount, status)
        VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)`,
		a.RequestID, a.GatewayOrderID, string(a.Kind), a.UserID, a.OrderID, a.Amount.String(), string(a.Status))
	if err != nil {
		return fmt.Errorf("insert payment attempt: %w", err)
	}
	return nil
}

func (s *PostgresAttemptStore) Get(ctx context.Context, gatewayOrderID string) (Attempt, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE gateway_order_id = $1`, gatewayOrderID)
	return scanAttempt(row)
}

func (s *PostgresAttemptStore) Resolve(ctx context.Context, gatewayOrderID string, status AttemptStatus, resultCode int, transID string) (Attempt, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `
        UPDATE payment_attempts
        SET status = $2, result_code = $3, gateway_trans_id = $4, updated_at = NOW()
        WHERE gateway_order_id = $1 AND status = 'pending'
        RETURNING `+attemptColumns, gatewayOrderID, string(status), resultCode, transID)
	a, err := scanAttempt(row)
	if errors.Is(err, ErrAttemptNotFound) {
		// either unknown or already resolved
		return s.Get(ctx, gatewayOrderID)
	}
	return a, err
}

func (s *PostgresAttemptStore) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := infra.Conn(ctx, s.db).Query(ctx, `
        SELECT `+attemptColumns+`
        FROM payment_attempts
        WHERE status = 'pending' AND created_at < $1
        ORDER BY created_at
        LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttempt(row pgx.Row) (Attempt, error) {
	var (
		a            Attempt
		kind, status string
		amount       string
	)
	err := row.Scan(&a.RequestID, &a.GatewayOrderID, &kind, &a.UserID, &a.OrderID, &amount, &status,
		&a.ResultCode, &a.GatewayTransID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, err
	}
	if a.Amount, err = decimal.NewFromString(amount); err != nil {
		return Attempt{}, fmt.Errorf("parse attempt amount: %w", err)
	}
	a.Kind = Kind(kind)
	a.Status = AttemptStatus(status)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}
