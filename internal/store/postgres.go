package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/zelapay/ledgercore/internal/domain"
)

// Store owns the connection pool and the read-side queries. Mutations happen
// in the service layer inside explicit transactions on the same pool.
type Store struct {
	Db *pgxpool.Pool
}

func NewStore(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Db: pool}, nil
}

func (s *Store) Close() {
	s.Db.Close()
}

// CreateAccount inserts a zero-balance account and returns its id.
func (s *Store) CreateAccount(ctx context.Context, role domain.Role) (string, error) {
	id := uuid.New().String()
	_, err := s.Db.Exec(ctx,
		"INSERT INTO accounts (id, balance, role) VALUES ($1, 0, $2)",
		id, string(role),
	)
	if err != nil {
		return "", fmt.Errorf("account insert failed: %w", err)
	}
	return id, nil
}

// GetAccount retrieves a single account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var (
		acc domain.Account
		bal string
	)
	err := s.Db.QueryRow(ctx,
		"SELECT id, balance::text, role, is_treasury, created_at FROM accounts WHERE id = $1",
		id,
	).Scan(&acc.ID, &bal, &acc.Role, &acc.IsTreasury, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	acc.Balance, err = decimal.NewFromString(bal)
	if err != nil {
		return nil, fmt.Errorf("balance parse failed: %w", err)
	}
	return &acc, nil
}

// GetTransaction retrieves one ledger row.
func (s *Store) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	row := s.Db.QueryRow(ctx, `
		SELECT id, sender_id, recipient_id, amount::text, fee::text, total_amount::text,
		       status, transaction_type, description, created_at
		FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

// ListTransactionsByAccount returns ledger rows where the account is sender or
// recipient, newest first. Read-only reporting path.
func (s *Store) ListTransactionsByAccount(ctx context.Context, accountID string, limit, offset int) ([]domain.Transaction, error) {
	rows, err := s.Db.Query(ctx, `
		SELECT id, sender_id, recipient_id, amount::text, fee::text, total_amount::text,
		       status, transaction_type, description, created_at
		FROM transactions
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

// GetChainEntry retrieves one provenance node by chain id.
func (s *Store) GetChainEntry(ctx context.Context, chainID string) (*domain.FundChainEntry, error) {
	row := s.Db.QueryRow(ctx, `
		SELECT id, chain_id, COALESCE(parent_chain_id, ''), source_type, amount::text,
		       destination_user_id, is_verified, created_at
		FROM fund_chain_entries WHERE chain_id = $1`, chainID)
	return scanChainEntry(row)
}

// ListChainEntriesByDestination returns provenance nodes credited to a user,
// newest first. Read-only reporting path.
func (s *Store) ListChainEntriesByDestination(ctx context.Context, userID string, limit, offset int) ([]domain.FundChainEntry, error) {
	rows, err := s.Db.Query(ctx, `
		SELECT id, chain_id, COALESCE(parent_chain_id, ''), source_type, amount::text,
		       destination_user_id, is_verified, created_at
		FROM fund_chain_entries
		WHERE destination_user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FundChainEntry
	for rows.Next() {
		e, err := scanChainEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// GetPaymentRequest retrieves one request by id.
func (s *Store) GetPaymentRequest(ctx context.Context, id int64) (*domain.PaymentRequest, error) {
	var (
		pr     domain.PaymentRequest
		amount string
	)
	err := s.Db.QueryRow(ctx, `
		SELECT id, sender_id, recipient_id, amount::text, description, status, created_at, updated_at
		FROM payment_requests WHERE id = $1`, id,
	).Scan(&pr.ID, &pr.SenderID, &pr.RecipientID, &amount, &pr.Description, &pr.Status, &pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}
	pr.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("amount parse failed: %w", err)
	}
	return &pr, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx                 domain.Transaction
		amount, fee, total string
	)
	err := row.Scan(&tx.ID, &tx.SenderID, &tx.RecipientID, &amount, &fee, &total,
		&tx.Status, &tx.Type, &tx.Description, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if tx.Fee, err = decimal.NewFromString(fee); err != nil {
		return nil, err
	}
	if tx.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	return &tx, nil
}

func scanChainEntry(row rowScanner) (*domain.FundChainEntry, error) {
	var (
		e      domain.FundChainEntry
		amount string
	)
	err := row.Scan(&e.ID, &e.ChainID, &e.ParentChainID, &e.SourceType, &amount,
		&e.DestinationUserID, &e.IsVerified, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChainNotFound
		}
		return nil, err
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	return &e, nil
}
