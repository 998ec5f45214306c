package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/zelapay/ledgercore/internal/chainid"
	"github.com/zelapay/ledgercore/internal/domain"
	"github.com/zelapay/ledgercore/internal/events"
)

// TreasuryService mints funds into the system. A withdrawal credits an admin
// balance with no debit leg and seeds a verified root in the fund chain.
type TreasuryService struct {
	db      *pgxpool.Pool
	events  events.Publisher
	timeout time.Duration
}

func NewTreasuryService(db *pgxpool.Pool, pub events.Publisher, timeout time.Duration) *TreasuryService {
	return &TreasuryService{db: db, events: pub, timeout: timeout}
}

// Withdraw mints amount into adminID's balance and records the provenance
// root. Only admins may withdraw, and a non-empty reason is mandatory.
func (s *TreasuryService) Withdraw(ctx context.Context, adminID string, amount decimal.Decimal, reason string) (*domain.WithdrawResult, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount
	}
	if strings.TrimSpace(reason) == "" {
		return nil, domain.ErrMissingReason
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var result domain.WithdrawResult
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("tx begin failed: %w", err)
		}
		defer tx.Rollback(ctx)

		admin, err := lockAccount(ctx, tx, adminID)
		if err != nil {
			return err
		}
		if admin.role != domain.RoleAdmin {
			return domain.ErrNotAuthorized
		}

		_, err = tx.Exec(ctx,
			"UPDATE accounts SET balance = balance + $1::numeric WHERE id = $2",
			amount.String(), adminID,
		)
		if err != nil {
			return fmt.Errorf("credit failed: %w", err)
		}

		// A colliding chain id aborts the tx; withRetry restarts the whole
		// operation with a fresh id.
		cid := chainid.New()
		_, err = tx.Exec(ctx,
			"INSERT INTO treasury_withdrawals (admin_id, amount, chain_id, reason) VALUES ($1, $2::numeric, $3, $4)",
			adminID, amount.String(), cid, reason,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return errChainIDCollision
			}
			return fmt.Errorf("withdrawal insert failed: %w", err)
		}

		err = insertChainEntry(ctx, tx, chainEntryParams{
			chainID:           cid,
			sourceType:        domain.SourceTreasuryWithdrawal,
			amount:            amount,
			destinationUserID: adminID,
			isVerified:        true,
		})
		if err != nil {
			return err
		}

		if err = tx.Commit(ctx); err != nil {
			return fmt.Errorf("tx commit failed: %w", err)
		}
		result = domain.WithdrawResult{ChainID: cid, NewAdminBalance: admin.balance.Add(amount)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(events.Event{Kind: events.KindChainEntry, Payload: result.ChainID})
	return &result, nil
}
