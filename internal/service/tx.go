package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/zelapay/ledgercore/internal/domain"
)

// maxAttempts bounds internal retries before ErrConcurrencyConflict surfaces.
const maxAttempts = 3

// errChainIDCollision marks the (practically impossible) unique-violation on a
// freshly generated chain id. The whole operation restarts with a new id; the
// caller never sees it.
var errChainIDCollision = errors.New("chain id collision")

// isRetryable classifies serialization failures, deadlocks and lock timeouts.
func isRetryable(err error) bool {
	if errors.Is(err, errChainIDCollision) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// withRetry runs fn up to maxAttempts times, restarting on retryable errors.
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !isRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrConcurrencyConflict, err)
}

type lockedAccount struct {
	balance    decimal.Decimal
	role       domain.Role
	isTreasury bool
}

// lockAccount acquires the row lock that serializes every balance
// check-and-mutate on this account.
func lockAccount(ctx context.Context, tx pgx.Tx, id string) (lockedAccount, error) {
	var (
		acc lockedAccount
		bal string
	)
	err := tx.QueryRow(ctx,
		"SELECT balance::text, role, is_treasury FROM accounts WHERE id = $1 FOR UPDATE",
		id,
	).Scan(&bal, &acc.role, &acc.isTreasury)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return acc, domain.ErrAccountNotFound
		}
		return acc, fmt.Errorf("lock acquisition failed: %w", err)
	}
	acc.balance, err = decimal.NewFromString(bal)
	if err != nil {
		return acc, fmt.Errorf("balance parse failed: %w", err)
	}
	return acc, nil
}

// lockPair locks both accounts in ascending-id order so concurrent transfers
// between the same pair cannot deadlock, and returns them keyed back to the
// caller's (first, second) order.
func lockPair(ctx context.Context, tx pgx.Tx, firstID, secondID string) (lockedAccount, lockedAccount, error) {
	loID, hiID := firstID, secondID
	if loID > hiID {
		loID, hiID = hiID, loID
	}
	lo, err := lockAccount(ctx, tx, loID)
	if err != nil {
		return lockedAccount{}, lockedAccount{}, err
	}
	hi, err := lockAccount(ctx, tx, hiID)
	if err != nil {
		return lockedAccount{}, lockedAccount{}, err
	}
	if firstID == loID {
		return lo, hi, nil
	}
	return hi, lo, nil
}

type transferParams struct {
	senderID    string
	recipientID string
	amount      decimal.Decimal
	fee         decimal.Decimal
	txType      string
	description string
}

// execTransferTx performs the balance check, debit, credit and ledger insert
// inside the caller's transaction. Every transfer in the system funnels
// through here: plain transfers, request fulfillment and admin transfers.
func execTransferTx(ctx context.Context, tx pgx.Tx, p transferParams) (int64, decimal.Decimal, error) {
	sender, _, err := lockPair(ctx, tx, p.senderID, p.recipientID)
	if err != nil {
		return 0, decimal.Zero, err
	}

	total := p.amount.Add(p.fee)
	if !sender.isTreasury && sender.balance.LessThan(total) {
		return 0, decimal.Zero, domain.ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx,
		"UPDATE accounts SET balance = balance - $1::numeric WHERE id = $2",
		total.String(), p.senderID,
	)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("debit failed: %w", err)
	}
	_, err = tx.Exec(ctx,
		"UPDATE accounts SET balance = balance + $1::numeric WHERE id = $2",
		p.amount.String(), p.recipientID,
	)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("credit failed: %w", err)
	}

	var txID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (sender_id, recipient_id, amount, fee, total_amount, status, transaction_type, description)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7, $8)
		RETURNING id`,
		p.senderID, p.recipientID, p.amount.String(), p.fee.String(), total.String(),
		domain.StatusCompleted, p.txType, p.description,
	).Scan(&txID)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("transaction insert failed: %w", err)
	}

	return txID, sender.balance.Sub(total), nil
}
