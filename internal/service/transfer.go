package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/zelapay/ledgercore/internal/domain"
	"github.com/zelapay/ledgercore/internal/events"
	"github.com/zelapay/ledgercore/internal/fees"
)

// TransferService is the atomic transfer executor: validate, debit, credit,
// ledger row — all or nothing.
type TransferService struct {
	db      *pgxpool.Pool
	fees    fees.Policy
	events  events.Publisher
	timeout time.Duration
}

func NewTransferService(db *pgxpool.Pool, feePolicy fees.Policy, pub events.Publisher, timeout time.Duration) *TransferService {
	return &TransferService{db: db, fees: feePolicy, events: pub, timeout: timeout}
}

func validateTransfer(senderID, recipientID string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}
	if senderID == recipientID {
		return domain.ErrSelfTransfer
	}
	return nil
}

// ExecuteTransfer moves amount (+fee) from sender to recipient within a single
// database transaction, serialized per account by row locks.
func (s *TransferService) ExecuteTransfer(ctx context.Context, senderID, recipientID string, amount decimal.Decimal, description string) (*domain.TransferResult, error) {
	if err := validateTransfer(senderID, recipientID, amount); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fee := s.fees.Fee(amount)

	var result domain.TransferResult
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("tx begin failed: %w", err)
		}
		defer tx.Rollback(ctx)

		txID, newBalance, err := execTransferTx(ctx, tx, transferParams{
			senderID:    senderID,
			recipientID: recipientID,
			amount:      amount,
			fee:         fee,
			txType:      domain.TypeTransfer,
			description: description,
		})
		if err != nil {
			return err
		}

		if err = tx.Commit(ctx); err != nil {
			return fmt.Errorf("tx commit failed: %w", err)
		}
		result = domain.TransferResult{TransactionID: txID, NewSenderBalance: newBalance}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			s.recordDeclined(senderID, recipientID, amount, fee, description)
		}
		return nil, err
	}

	// Post-commit: collaborators are informed outside the atomic unit.
	s.events.Publish(events.Event{Kind: events.KindTransaction, Payload: result})
	return &result, nil
}

// recordDeclined appends a failed ledger row for an insufficient-funds attempt.
// Best effort and outside the atomic unit: the decline itself already stands.
func (s *TransferService) recordDeclined(senderID, recipientID string, amount, fee decimal.Decimal, description string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, _ = s.db.Exec(ctx, `
		INSERT INTO transactions (sender_id, recipient_id, amount, fee, total_amount, status, transaction_type, description)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7, $8)`,
		senderID, recipientID, amount.String(), fee.String(), amount.Add(fee).String(),
		domain.StatusFailed, domain.TypeTransfer, description,
	)
}
