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

// RequestService manages the payment request lifecycle. A request leaves
// pending exactly once; acceptance runs the transfer in the same transaction
// that flips the status, so a failed transfer leaves the request pending.
type RequestService struct {
	db      *pgxpool.Pool
	fees    fees.Policy
	events  events.Publisher
	timeout time.Duration
}

func NewRequestService(db *pgxpool.Pool, feePolicy fees.Policy, pub events.Publisher, timeout time.Duration) *RequestService {
	return &RequestService{db: db, fees: feePolicy, events: pub, timeout: timeout}
}

func validateRequest(requesterID, payerID string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}
	if requesterID == payerID {
		return domain.ErrSelfRequest
	}
	return nil
}

// CreateRequest records a pending request-for-funds from requester to payer.
func (s *RequestService) CreateRequest(ctx context.Context, requesterID, payerID string, amount decimal.Decimal, description string) (int64, error) {
	if err := validateRequest(requesterID, payerID, amount); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO payment_requests (sender_id, recipient_id, amount, description, status)
		VALUES ($1, $2, $3::numeric, $4, $5)
		RETURNING id`,
		requesterID, payerID, amount.String(), description, domain.RequestPending,
	).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, domain.ErrAccountNotFound
		}
		return 0, fmt.Errorf("request insert failed: %w", err)
	}

	s.events.Publish(events.Event{Kind: events.KindPaymentRequest, Payload: id})
	return id, nil
}

// AcceptRequest fulfills a pending request: the payer becomes the sender of a
// transfer to the requester, then the request is marked accepted. Both happen
// in one transaction; if the transfer fails, the status stays pending.
func (s *RequestService) AcceptRequest(ctx context.Context, requestID int64, payerID string) (*domain.TransferResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var result domain.TransferResult
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("tx begin failed: %w", err)
		}
		defer tx.Rollback(ctx)

		req, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.RecipientID != payerID {
			return domain.ErrNotAuthorized
		}
		if req.Status != domain.RequestPending {
			return domain.ErrAlreadyResolved
		}

		txID, newBalance, err := execTransferTx(ctx, tx, transferParams{
			senderID:    payerID,
			recipientID: req.SenderID,
			amount:      req.Amount,
			fee:         s.fees.Fee(req.Amount),
			txType:      domain.TypeRequestPayment,
			description: req.Description,
		})
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			"UPDATE payment_requests SET status = $1, updated_at = now() WHERE id = $2 AND status = $3",
			domain.RequestAccepted, requestID, domain.RequestPending,
		)
		if err != nil {
			return fmt.Errorf("request update failed: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return domain.ErrAlreadyResolved
		}

		if err = tx.Commit(ctx); err != nil {
			return fmt.Errorf("tx commit failed: %w", err)
		}
		result = domain.TransferResult{TransactionID: txID, NewSenderBalance: newBalance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(events.Event{Kind: events.KindTransaction, Payload: result})
	return &result, nil
}

// RejectRequest declines a pending request. Rejecting an already resolved
// request fails with ErrAlreadyResolved.
func (s *RequestService) RejectRequest(ctx context.Context, requestID int64, payerID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("tx begin failed: %w", err)
		}
		defer tx.Rollback(ctx)

		req, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.RecipientID != payerID {
			return domain.ErrNotAuthorized
		}
		if req.Status != domain.RequestPending {
			return domain.ErrAlreadyResolved
		}

		_, err = tx.Exec(ctx,
			"UPDATE payment_requests SET status = $1, updated_at = now() WHERE id = $2",
			domain.RequestRejected, requestID,
		)
		if err != nil {
			return fmt.Errorf("request update failed: %w", err)
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return err
	}

	s.events.Publish(events.Event{Kind: events.KindPaymentRequest, Payload: requestID})
	return nil
}

// lockRequest loads the request row under FOR UPDATE; the pending-only status
// check behind this lock is the optimistic guard on the single transition.
func lockRequest(ctx context.Context, tx pgx.Tx, id int64) (*domain.PaymentRequest, error) {
	var (
		req    domain.PaymentRequest
		amount string
	)
	err := tx.QueryRow(ctx, `
		SELECT id, sender_id, recipient_id, amount::text, description, status
		FROM payment_requests WHERE id = $1 FOR UPDATE`, id,
	).Scan(&req.ID, &req.SenderID, &req.RecipientID, &amount, &req.Description, &req.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, err
	}
	req.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("amount parse failed: %w", err)
	}
	return &req, nil
}
