package service

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zelapay/ledgercore/internal/domain"
	"github.com/zelapay/ledgercore/internal/events"
	"github.com/zelapay/ledgercore/internal/fees"
	"github.com/zelapay/ledgercore/internal/store"
)

// TestLedgerIntegration exercises the core against a live Postgres. Set
// RUN_LEDGER_INTEGRATION=true and DB_SOURCE to run it; migrations/0001_init.sql
// must be applied.
func TestLedgerIntegration(t *testing.T) {
	if os.Getenv("RUN_LEDGER_INTEGRATION") != "true" {
		t.Skip("set RUN_LEDGER_INTEGRATION=true to run this integration test")
	}
	dbURL := os.Getenv("DB_SOURCE")
	if dbURL == "" {
		t.Fatal("DB_SOURCE is required")
	}

	ctx := context.Background()
	st, err := store.NewStore(dbURL)
	require.NoError(t, err)
	defer st.Close()

	timeout := 5 * time.Second
	pub := events.Discard{}
	feePolicy := fees.Free{}

	transfers := NewTransferService(st.Db, feePolicy, pub, timeout)
	requests := NewRequestService(st.Db, feePolicy, pub, timeout)
	treasury := NewTreasuryService(st.Db, pub, timeout)
	chains := NewChainService(st.Db, feePolicy, pub, timeout)

	mustAccount := func(role domain.Role) string {
		id, err := st.CreateAccount(ctx, role)
		require.NoError(t, err)
		return id
	}
	balance := func(id string) decimal.Decimal {
		acc, err := st.GetAccount(ctx, id)
		require.NoError(t, err)
		return acc.Balance
	}

	admin := mustAccount(domain.RoleAdmin)
	alice := mustAccount(domain.RoleClient)
	bob := mustAccount(domain.RoleClient)

	t.Run("withdraw mints and seeds a verified root", func(t *testing.T) {
		res, err := treasury.Withdraw(ctx, admin, decimal.NewFromInt(1000), "initial float")
		require.NoError(t, err)
		assert.True(t, res.NewAdminBalance.Equal(decimal.NewFromInt(1000)))

		entry, err := st.GetChainEntry(ctx, res.ChainID)
		require.NoError(t, err)
		assert.True(t, entry.IsVerified)
		assert.Equal(t, domain.SourceTreasuryWithdrawal, entry.SourceType)
		assert.Empty(t, entry.ParentChainID)
	})

	t.Run("withdraw requires reason and admin role", func(t *testing.T) {
		_, err := treasury.Withdraw(ctx, admin, decimal.NewFromInt(10), "   ")
		assert.ErrorIs(t, err, domain.ErrMissingReason)
		_, err = treasury.Withdraw(ctx, alice, decimal.NewFromInt(10), "nope")
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	})

	t.Run("admin transfer chains to the withdrawal root", func(t *testing.T) {
		w, err := treasury.Withdraw(ctx, admin, decimal.NewFromInt(100), "test")
		require.NoError(t, err)

		res, err := chains.AdminTransfer(ctx, admin, alice, decimal.NewFromInt(100), "", w.ChainID)
		require.NoError(t, err)

		entry, err := st.GetChainEntry(ctx, res.ChainID)
		require.NoError(t, err)
		assert.Equal(t, w.ChainID, entry.ParentChainID)
		assert.True(t, entry.IsVerified)

		ok, err := chains.VerifyChain(ctx, res.ChainID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unrooted admin transfer is flagged", func(t *testing.T) {
		cid, err := chains.RecordAdminTransfer(ctx, admin, bob, decimal.NewFromInt(5), "")
		require.NoError(t, err)
		entry, err := st.GetChainEntry(ctx, cid)
		require.NoError(t, err)
		assert.False(t, entry.IsVerified)
	})

	t.Run("insufficient funds leaves balances untouched", func(t *testing.T) {
		before := balance(alice)
		_, err := transfers.ExecuteTransfer(ctx, alice, bob, before.Add(decimal.NewFromInt(10)), "too much")
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		assert.True(t, balance(alice).Equal(before))
	})

	t.Run("transfer conserves total funds", func(t *testing.T) {
		beforeA, beforeB := balance(alice), balance(bob)
		res, err := transfers.ExecuteTransfer(ctx, alice, bob, decimal.NewFromInt(30), "lunch")
		require.NoError(t, err)
		assert.True(t, res.NewSenderBalance.Equal(beforeA.Sub(decimal.NewFromInt(30))))
		assert.True(t, balance(bob).Equal(beforeB.Add(decimal.NewFromInt(30))))
	})

	t.Run("concurrent overdraft admits at most one", func(t *testing.T) {
		sender := mustAccount(domain.RoleClient)
		_, err := chains.AdminTransfer(ctx, admin, sender, decimal.NewFromInt(50), "", "")
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = transfers.ExecuteTransfer(ctx, sender, bob, decimal.NewFromInt(40), "race")
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
			}
		}
		assert.Equal(t, 1, succeeded, "combined amount exceeds balance, only one may pass")
	})

	t.Run("request lifecycle", func(t *testing.T) {
		reqID, err := requests.CreateRequest(ctx, alice, bob, decimal.NewFromInt(25), "rent")
		require.NoError(t, err)

		// wrong payer cannot resolve it
		_, err = requests.AcceptRequest(ctx, reqID, alice)
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)

		require.NoError(t, requests.RejectRequest(ctx, reqID, bob))
		pr, err := st.GetPaymentRequest(ctx, reqID)
		require.NoError(t, err)
		assert.Equal(t, domain.RequestRejected, pr.Status)

		// second resolution attempt fails and moves no money
		beforeB := balance(bob)
		assert.ErrorIs(t, requests.RejectRequest(ctx, reqID, bob), domain.ErrAlreadyResolved)
		_, err = requests.AcceptRequest(ctx, reqID, bob)
		assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
		assert.True(t, balance(bob).Equal(beforeB))
	})

	t.Run("accepted request moves funds once", func(t *testing.T) {
		reqID, err := requests.CreateRequest(ctx, alice, bob, decimal.NewFromInt(10), "coffee")
		require.NoError(t, err)

		beforeA := balance(alice)
		res, err := requests.AcceptRequest(ctx, reqID, bob)
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.True(t, balance(alice).Equal(beforeA.Add(decimal.NewFromInt(10))))

		pr, err := st.GetPaymentRequest(ctx, reqID)
		require.NoError(t, err)
		assert.Equal(t, domain.RequestAccepted, pr.Status)
	})

	t.Run("failed accept leaves request pending", func(t *testing.T) {
		payer := mustAccount(domain.RoleClient) // zero balance
		reqID, err := requests.CreateRequest(ctx, alice, payer, decimal.NewFromInt(30), "loan")
		require.NoError(t, err)

		_, err = requests.AcceptRequest(ctx, reqID, payer)
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

		pr, err := st.GetPaymentRequest(ctx, reqID)
		require.NoError(t, err)
		assert.Equal(t, domain.RequestPending, pr.Status, "transfer failure must not resolve the request")

		// once funded, the same request is still acceptable
		_, err = chains.AdminTransfer(ctx, admin, payer, decimal.NewFromInt(50), "", "")
		require.NoError(t, err)
		_, err = requests.AcceptRequest(ctx, reqID, payer)
		require.NoError(t, err)

		pr, err = st.GetPaymentRequest(ctx, reqID)
		require.NoError(t, err)
		assert.Equal(t, domain.RequestAccepted, pr.Status)
	})

	t.Run("fee-charging transfer debits amount plus fee", func(t *testing.T) {
		tenPercent := fees.FlatPercent{Percent: decimal.NewFromInt(10), Min: decimal.Zero}
		feeTransfers := NewTransferService(st.Db, tenPercent, pub, timeout)

		sender := mustAccount(domain.RoleClient)
		recipient := mustAccount(domain.RoleClient)
		_, err := chains.AdminTransfer(ctx, admin, sender, decimal.RequireFromString("105.00"), "", "")
		require.NoError(t, err)

		// 100 plus the 10 fee needs 110, only 105 available
		_, err = feeTransfers.ExecuteTransfer(ctx, sender, recipient, decimal.NewFromInt(100), "fee overdraft")
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		assert.True(t, balance(sender).Equal(decimal.RequireFromString("105.00")))
		assert.True(t, balance(recipient).IsZero())

		res, err := feeTransfers.ExecuteTransfer(ctx, sender, recipient, decimal.NewFromInt(50), "with fee")
		require.NoError(t, err)
		// sender down 55, recipient up 50; the difference is the fee sink
		assert.True(t, res.NewSenderBalance.Equal(decimal.RequireFromString("50.00")))
		assert.True(t, balance(sender).Equal(decimal.RequireFromString("50.00")))
		assert.True(t, balance(recipient).Equal(decimal.NewFromInt(50)))

		txRow, err := st.GetTransaction(ctx, res.TransactionID)
		require.NoError(t, err)
		assert.True(t, txRow.Fee.Equal(decimal.RequireFromString("5.00")))
		assert.True(t, txRow.TotalAmount.Sub(txRow.Amount).Equal(txRow.Fee))
	})

	t.Run("request to unknown payer fails cleanly", func(t *testing.T) {
		_, err := requests.CreateRequest(ctx, alice, uuid.New().String(), decimal.NewFromInt(5), "ghost")
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("rejection notifies subscribers", func(t *testing.T) {
		bus := events.NewBus()
		ch := bus.Subscribe(8)
		notifying := NewRequestService(st.Db, feePolicy, bus, timeout)

		reqID, err := notifying.CreateRequest(ctx, alice, bob, decimal.NewFromInt(5), "poke")
		require.NoError(t, err)
		require.NoError(t, notifying.RejectRequest(ctx, reqID, bob))

		// one event for creation, one for rejection
		require.Len(t, ch, 2)
		<-ch
		ev := <-ch
		assert.Equal(t, events.KindPaymentRequest, ev.Kind)
		assert.Equal(t, reqID, ev.Payload)
	})

	t.Run("repair persists recomputed verification", func(t *testing.T) {
		cid, err := chains.RecordAdminTransfer(ctx, admin, bob, decimal.NewFromInt(5), "")
		require.NoError(t, err)

		ok, err := chains.RepairChain(ctx, cid)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
