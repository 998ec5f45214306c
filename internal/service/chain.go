package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/zelapay/ledgercore/internal/chainid"
	"github.com/zelapay/ledgercore/internal/domain"
	"github.com/zelapay/ledgercore/internal/events"
	"github.com/zelapay/ledgercore/internal/fees"
)

// maxChainDepth bounds the provenance walk. Entries are append-only and a
// parent must exist before its child is created, so real chains are acyclic;
// the bound guards against corrupt data, not expected traffic.
const maxChainDepth = 128

// ChainService is the fund chain tracker: it records provenance entries for
// admin transfers, verifies lineage back to treasury roots, and composes the
// atomic admin transfer.
type ChainService struct {
	db      *pgxpool.Pool
	fees    fees.Policy
	events  events.Publisher
	timeout time.Duration
}

func NewChainService(db *pgxpool.Pool, feePolicy fees.Policy, pub events.Publisher, timeout time.Duration) *ChainService {
	return &ChainService{db: db, fees: feePolicy, events: pub, timeout: timeout}
}

// chainLookup resolves a chain id to its parent and source type. Satisfied by
// live queriers and by in-memory fakes in tests.
type chainLookup interface {
	chainParent(ctx context.Context, chainID string) (parent, sourceType string, err error)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgChainLookup struct {
	q querier
}

func (l pgChainLookup) chainParent(ctx context.Context, chainID string) (string, string, error) {
	var parent, sourceType string
	err := l.q.QueryRow(ctx,
		"SELECT COALESCE(parent_chain_id, ''), source_type FROM fund_chain_entries WHERE chain_id = $1",
		chainID,
	).Scan(&parent, &sourceType)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", domain.ErrChainNotFound
	}
	return parent, sourceType, err
}

// verifyLineage walks parent links from chainID and reports whether the chain
// terminates at a treasury withdrawal root. Dangling parents, unrooted admin
// transfers and over-deep chains all verify false; only infrastructure
// failures return an error.
func verifyLineage(ctx context.Context, lookup chainLookup, chainID string) (bool, error) {
	current := chainID
	for depth := 0; depth < maxChainDepth; depth++ {
		parent, sourceType, err := lookup.chainParent(ctx, current)
		if errors.Is(err, domain.ErrChainNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if sourceType == domain.SourceTreasuryWithdrawal {
			return true, nil
		}
		if parent == "" {
			return false, nil
		}
		current = parent
	}
	return false, nil
}

type chainEntryParams struct {
	chainID           string
	parentChainID     string
	sourceType        string
	amount            decimal.Decimal
	destinationUserID string
	isVerified        bool
}

func insertChainEntry(ctx context.Context, tx pgx.Tx, p chainEntryParams) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO fund_chain_entries (chain_id, parent_chain_id, source_type, amount, destination_user_id, is_verified)
		VALUES ($1, NULLIF($2, ''), $3, $4::numeric, $5, $6)`,
		p.chainID, p.parentChainID, p.sourceType, p.amount.String(), p.destinationUserID, p.isVerified,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errChainIDCollision
		}
		return fmt.Errorf("chain entry insert failed: %w", err)
	}
	return nil
}

// recordAdminTransferTx computes verification for the parent lineage and
// inserts the provenance entry inside the caller's transaction. An empty
// parentChainID records an unrooted entry with is_verified=false.
func recordAdminTransferTx(ctx context.Context, tx pgx.Tx, recipientID string, amount decimal.Decimal, parentChainID string) (string, error) {
	verified := false
	if parentChainID != "" {
		var err error
		verified, err = verifyLineage(ctx, pgChainLookup{q: tx}, parentChainID)
		if err != nil {
			return "", err
		}
	}

	cid := chainid.New()
	err := insertChainEntry(ctx, tx, chainEntryParams{
		chainID:           cid,
		parentChainID:     parentChainID,
		sourceType:        domain.SourceAdminTransfer,
		amount:            amount,
		destinationUserID: recipientID,
		isVerified:        verified,
	})
	if err != nil {
		return "", err
	}
	return cid, nil
}

// RecordAdminTransfer inserts a standalone provenance entry for funds an admin
// moved to a user. Callers that also move the money use AdminTransfer instead.
func (s *ChainService) RecordAdminTransfer(ctx context.Context, adminID, recipientID string, amount decimal.Decimal, parentChainID string) (string, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", domain.ErrInvalidAmount
	}
	if parentChainID != "" && !chainid.Valid(parentChainID) {
		return "", domain.ErrInvalidChainID
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var cid string
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("tx begin failed: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := s.requireAdmin(ctx, tx, adminID); err != nil {
			return err
		}
		cid, err = recordAdminTransferTx(ctx, tx, recipientID, amount, parentChainID)
		if err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return "", err
	}

	s.events.Publish(events.Event{Kind: events.KindChainEntry, Payload: cid})
	return cid, nil
}

// AdminTransfer moves funds from an admin to a user and records the provenance
// entry as one atomic unit; either both commit or neither does.
func (s *ChainService) AdminTransfer(ctx context.Context, adminID, recipientID string, amount decimal.Decimal, description, parentChainID string) (*domain.AdminTransferResult, error) {
	if err := validateTransfer(adminID, recipientID, amount); err != nil {
		return nil, err
	}
	if parentChainID != "" && !chainid.Valid(parentChainID) {
		return nil, domain.ErrInvalidChainID
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var result domain.AdminTransferResult
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("tx begin failed: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := s.requireAdmin(ctx, tx, adminID); err != nil {
			return err
		}

		txID, _, err := execTransferTx(ctx, tx, transferParams{
			senderID:    adminID,
			recipientID: recipientID,
			amount:      amount,
			fee:         s.fees.Fee(amount),
			txType:      domain.TypeAdminTransfer,
			description: description,
		})
		if err != nil {
			return err
		}

		cid, err := recordAdminTransferTx(ctx, tx, recipientID, amount, parentChainID)
		if err != nil {
			return err
		}

		if err = tx.Commit(ctx); err != nil {
			return fmt.Errorf("tx commit failed: %w", err)
		}
		result = domain.AdminTransferResult{TransactionID: txID, ChainID: cid}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(events.Event{Kind: events.KindTransaction, Payload: result.TransactionID})
	s.events.Publish(events.Event{Kind: events.KindChainEntry, Payload: result.ChainID})
	return &result, nil
}

// VerifyChain recomputes verification for an existing entry without mutating
// it. Audit and reporting use this.
func (s *ChainService) VerifyChain(ctx context.Context, chainID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	lookup := pgChainLookup{q: s.db}
	// the entry itself must exist; a missing start is an error, not "false"
	if _, _, err := lookup.chainParent(ctx, chainID); err != nil {
		return false, err
	}
	return verifyLineage(ctx, lookup, chainID)
}

// RepairChain recomputes verification and persists the result. This is the
// explicit repair operation; VerifyChain never writes.
func (s *ChainService) RepairChain(ctx context.Context, chainID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	verified, err := s.VerifyChain(ctx, chainID)
	if err != nil {
		return false, err
	}
	_, err = s.db.Exec(ctx,
		"UPDATE fund_chain_entries SET is_verified = $1 WHERE chain_id = $2",
		verified, chainID,
	)
	if err != nil {
		return false, fmt.Errorf("chain repair failed: %w", err)
	}
	return verified, nil
}

func (s *ChainService) requireAdmin(ctx context.Context, tx pgx.Tx, adminID string) error {
	var role domain.Role
	err := tx.QueryRow(ctx, "SELECT role FROM accounts WHERE id = $1", adminID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAccountNotFound
		}
		return err
	}
	if role != domain.RoleAdmin {
		return domain.ErrNotAuthorized
	}
	return nil
}
