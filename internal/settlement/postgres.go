package settlement

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

// PostgresRepository settles orders in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository constructs a Postgres-backed order repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const orderColumns = `id, user_id, final_amount::text, payment_method, payment_ref, payment_status, paid_at, created_at`

func (r *PostgresRepository) Get(ctx context.Context, orderID string) (Order, error) {
	return scanOrder(infra.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
}

func (r *PostgresRepository) Items(ctx context.Context, orderID string) ([]Item, error) {
	return r.items(ctx, infra.Conn(ctx, r.db), orderID)
}

func (r *PostgresRepository) Complete(ctx context.Context, orderID string, c Completion) (Result, error) {
	var res Result
	err := infra.WithTx(ctx, r.db, func(ctx context.Context) error {
		tx := infra.Conn(ctx, r.db)

		o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
		if err != nil {
			return err
		}
		switch o.PaymentStatus {
		case StatusCompleted, StatusRefunded:
			res = Result{Order: o, AlreadySettled: true}
			return nil
		case StatusFailed:
			res = Result{Order: o}
			return ErrInvalidTransition
		}

		paidAt := c.PaidAt.UTC()
		if _, err := tx.Exec(ctx, `
            UPDATE orders
            SET payment_status = $2, payment_method = $3, payment_ref = $4, paid_at = $5, updated_at = NOW()
            WHERE id = $1`, orderID, string(StatusCompleted), c.PaymentMethod, c.PaymentRef, paidAt); err != nil {
			return fmt.Errorf("mark order completed: %w", err)
		}
		o.PaymentStatus = StatusCompleted
		o.PaymentMethod = c.PaymentMethod
		o.PaymentRef = c.PaymentRef
		o.PaidAt = &paidAt

		items, err := r.items(ctx, tx, orderID)
		if err != nil {
			return err
		}
		courseIDs := make([]string, 0, len(items))
		enrolled := 0
		for _, item := range items {
			tag, err := tx.Exec(ctx, `
                INSERT INTO enrollments (user_id, course_id, order_id, enrolled_at)
                VALUES ($1, $2, $3, $4)
                ON CONFLICT (user_id, course_id) DO NOTHING`, o.UserID, item.CourseID, orderID, paidAt)
			if err != nil {
				return fmt.Errorf("enroll %s: %w", item.CourseID, err)
			}
			enrolled += int(tag.RowsAffected())
			courseIDs = append(courseIDs, item.CourseID)
		}

		if len(courseIDs) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND course_id = ANY($2)`, o.UserID, courseIDs); err != nil {
				return fmt.Errorf("clear cart: %w", err)
			}
		}

		res = Result{Order: o, Enrolled: enrolled}
		return nil
	})
	return res, err
}

func (r *PostgresRepository) Fail(ctx context.Context, orderID string) (Order, error) {
	return r.transition(ctx, orderID, StatusFailed, func(current Status) (bool, error) {
		switch current {
		case StatusFailed:
			return false, nil
		case StatusPending:
			return true, nil
		default:
			return false, ErrInvalidTransition
		}
	})
}

func (r *PostgresRepository) Refund(ctx context.Context, orderID string) (Order, error) {
	return r.transition(ctx, orderID, StatusRefunded, func(current Status) (bool, error) {
		if current != StatusCompleted {
			return false, ErrInvalidTransition
		}
		return true, nil
	})
}

// transition locks the order and moves it to next when allow says so.
func (r *PostgresRepository) transition(ctx context.Context, orderID string, next Status, allow func(Status) (bool, error)) (Order, error) {
	var out Order
	err := infra.WithTx(ctx, r.db, func(ctx context.Context) error {
		tx := infra.Conn(ctx, r.db)
		o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
		if err != nil {
			return err
		}
		out = o
		write, err := allow(o.PaymentStatus)
		if err != nil || !write {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE orders SET payment_status = $2, updated_at = NOW() WHERE id = $1`, orderID, string(next)); err != nil {
			return err
		}
		out.PaymentStatus = next
		return nil
	})
	return out, err
}

func (r *PostgresRepository) items(ctx context.Context, q infra.Querier, orderID string) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT course_id, price::text FROM order_items WHERE order_id = $1 ORDER BY course_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item  Item
			price string
		)
		if err := rows.Scan(&item.CourseID, &price); err != nil {
			return nil, err
		}
		if item.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		amount string
		status string
		paidAt *time.Time
	)
	if err := row.Scan(&o.ID, &o.UserID, &amount, &o.PaymentMethod, &o.PaymentRef, &status, &paidAt, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	total, err := decimal.NewFromString(amount)
	if err != nil {
		return Order{}, fmt.Errorf("parse final amount: %w", err)
	}
	o.FinalAmount = total
	o.PaymentStatus = Status(status)
	if paidAt != nil {
		t := paidAt.UTC()
		o.PaidAt = &t
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}
