package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/learnhub/learnhub-wallet/internal/infra"
)

const uniqueViolation = "23505"

// PostgresStore persists wallets and the transaction log in PostgreSQL, serializing
// mutations per wallet with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db       *pgxpool.Pool
	currency string
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool, currency string) *PostgresStore {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &PostgresStore{db: db, currency: currency}
}

const walletColumns = `id, user_id, balance::text, currency, status, created_at, updated_at`

// FindByUserID returns the user's wallet or ErrWalletNotFound.
func (s *PostgresStore) FindByUserID(ctx context.Context, userID string) (Wallet, error) {
	row := infra.Conn(ctx, s.db).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	return scanWallet(row)
}

// Create inserts a zero-balance wallet, returning the existing one if present.
func (s *PostgresStore) Create(ctx context.Context, userID string) (Wallet, error) {
	q := infra.Conn(ctx, s.db)
	if err := s.ensureWallet(ctx, q, userID); err != nil {
		return Wallet{}, err
	}
	return scanWallet(q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
}

// Transactions returns the most-recent-first page of the user's log.
func (s *PostgresStore) Transactions(ctx context.Context, userID string, page Page) ([]Transaction, error) {
	page = page.Clamp()
	const query = `
        SELECT t.id, t.seq, t.wallet_id, t.type, t.amount::text, t.balance_before::text,
               t.balance_after::text, t.status, t.reference_id, t.description, t.created_at
        FROM wallet_transactions t
        INNER JOIN wallets w ON w.id = t.wallet_id
        WHERE w.user_id = $1
        ORDER BY t.seq DESC
        LIMIT $2 OFFSET $3`
	rows, err := infra.Conn(ctx, s.db).Query(ctx, query, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Transaction, 0, page.Limit)
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// UpdateBalance applies m atomically.
func (s *PostgresStore) UpdateBalance(ctx context.Context, m Mutation) (Transaction, error) {
	return s.UpdateBalanceWith(ctx, m, nil)
}

// UpdateBalanceWith locks the wallet row, applies m, appends one log row and runs
// hook before committing. Any failure rolls back the balance and the log together.
func (s *PostgresStore) UpdateBalanceWith(ctx context.Context, m Mutation, hook Hook) (Transaction, error) {
	if err := m.Validate(); err != nil {
		return Transaction{}, err
	}

	var entry Transaction
	err := infra.WithTx(ctx, s.db, func(ctx context.Context) error {
		tx := infra.Conn(ctx, s.db)

		if err := s.ensureWallet(ctx, tx, m.UserID); err != nil {
			return err
		}
		wallet, err := scanWallet(tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, m.UserID))
		if err != nil {
			return err
		}

		if m.ReferenceID != "" {
			existing, err := s.findByReference(ctx, tx, wallet.ID, m.Type, m.ReferenceID)
			if err == nil {
				entry = existing
				return ErrDuplicateTransaction
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
		}

		after, err := Apply(wallet.Balance, m.Amount, m.Type)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = $1::numeric, updated_at = NOW() WHERE id = $2`, after.String(), wallet.ID); err != nil {
			return err
		}

		id := uuid.New()
		var (
			seq       int64
			createdAt time.Time
		)
		err = tx.QueryRow(ctx, `
            INSERT INTO wallet_transactions
                (id, wallet_id, type, amount, balance_before, balance_after, status, reference_id, description)
            VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9)
            RETURNING seq, created_at`,
			id, wallet.ID, string(m.Type), m.Amount.String(), wallet.Balance.String(), after.String(),
			string(StatusCompleted), m.ReferenceID, m.Description,
		).Scan(&seq, &createdAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return ErrDuplicateTransaction
			}
			return err
		}

		entry = Transaction{
			ID:            id.String(),
			Sequence:      seq,
			WalletID:      wallet.ID,
			Type:          m.Type,
			Amount:        m.Amount,
			BalanceBefore: wallet.Balance,
			BalanceAfter:  after,
			Status:        StatusCompleted,
			ReferenceID:   m.ReferenceID,
			Description:   m.Description,
			CreatedAt:     createdAt.UTC(),
		}

		if hook != nil {
			return hook(ctx, entry)
		}
		return nil
	})
	recordMutation(ctx, m.Type, err)
	if err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			return entry, err
		}
		return Transaction{}, err
	}
	return entry, nil
}

func (s *PostgresStore) ensureWallet(ctx context.Context, q infra.Querier, userID string) error {
	_, err := q.Exec(ctx, `INSERT INTO wallets (id, user_id, balance, currency, status)
        VALUES ($1, $2, 0, $3, $4)
        ON CONFLICT (user_id) DO NOTHING`, uuid.New(), userID, s.currency, WalletStatusActive)
	if err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}
	return nil
}

func (s *PostgresStore) findByReference(ctx context.Context, q infra.Querier, walletID string, t TxType, ref string) (Transaction, error) {
	row := q.QueryRow(ctx, `
        SELECT id, seq, wallet_id, type, amount::text, balance_before::text,
               balance_after::text, status, reference_id, description, created_at
        FROM wallet_transactions
        WHERE wallet_id = $1 AND type = $2 AND reference_id = $3`, walletID, string(t), ref)
	return scanTransaction(row)
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w       Wallet
		id      uuid.UUID
		balance string
	)
	if err := row.Scan(&id, &w.UserID, &balance, &w.Currency, &w.Status, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return Wallet{}, fmt.Errorf("parse balance: %w", err)
	}
	w.ID = id.String()
	w.Balance = amount
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t                     Transaction
		id, walletID          uuid.UUID
		txType, status        string
		amount, before, after string
	)
	if err := row.Scan(&id, &t.Sequence, &walletID, &txType, &amount, &before, &after, &status, &t.ReferenceID, &t.Description, &t.CreatedAt); err != nil {
		return Transaction{}, err
	}
	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return Transaction{}, err
	}
	if t.BalanceBefore, err = decimal.NewFromString(before); err != nil {
		return Transaction{}, err
	}
	if t.BalanceAfter, err = decimal.NewFromString(after); err != nil {
		return Transaction{}, err
	}
	t.ID = id.String()
	t.WalletID = walletID.String()
	t.Type = TxType(txType)
	t.Status = TxStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}
