package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zelapay/ledgercore/internal/domain"
	"github.com/zelapay/ledgercore/internal/events"
	"github.com/zelapay/ledgercore/internal/fees"
)

type fakeEntry struct {
	parent string
	source string
}

type fakeLookup map[string]fakeEntry

func (f fakeLookup) chainParent(_ context.Context, chainID string) (string, string, error) {
	e, ok := f[chainID]
	if !ok {
		return "", "", domain.ErrChainNotFound
	}
	return e.parent, e.source, nil
}

func TestVerifyLineageRoot(t *testing.T) {
	lookup := fakeLookup{
		"CHN-AAAAAAAA-000000000001": {source: domain.SourceTreasuryWithdrawal},
	}
	ok, err := verifyLineage(context.Background(), lookup, "CHN-AAAAAAAA-000000000001")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyLineageOneHop(t *testing.T) {
	lookup := fakeLookup{
		"root":  {source: domain.SourceTreasuryWithdrawal},
		"child": {parent: "root", source: domain.SourceAdminTransfer},
	}
	ok, err := verifyLineage(context.Background(), lookup, "child")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyLineageDeepChain(t *testing.T) {
	lookup := fakeLookup{"n0": {source: domain.SourceTreasuryWithdrawal}}
	prev := "n0"
	for i := 1; i < 20; i++ {
		id := "n" + string(rune('a'+i))
		lookup[id] = fakeEntry{parent: prev, source: domain.SourceAdminTransfer}
		prev = id
	}
	ok, err := verifyLineage(context.Background(), lookup, prev)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyLineageUnrooted(t *testing.T) {
	lookup := fakeLookup{
		"orphan": {source: domain.SourceAdminTransfer},
	}
	ok, err := verifyLineage(context.Background(), lookup, "orphan")
	require.NoError(t, err)
	assert.False(t, ok, "admin transfer without a parent must not verify")
}

func TestVerifyLineageDanglingParent(t *testing.T) {
	lookup := fakeLookup{
		"child": {parent: "missing", source: domain.SourceAdminTransfer},
	}
	ok, err := verifyLineage(context.Background(), lookup, "child")
	require.NoError(t, err)
	assert.False(t, ok, "dangling parent must not verify")
}

func TestVerifyLineageMissingEntry(t *testing.T) {
	ok, err := verifyLineage(context.Background(), fakeLookup{}, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdminTransferRejectsMalformedParentChain(t *testing.T) {
	// validation fires before any database access, so no pool is needed
	svc := NewChainService(nil, fees.Free{}, events.Discard{}, time.Second)

	_, err := svc.AdminTransfer(context.Background(), "admin", "user", decimal.NewFromInt(10), "", "not-a-chain-id")
	assert.ErrorIs(t, err, domain.ErrInvalidChainID)

	_, err = svc.RecordAdminTransfer(context.Background(), "admin", "user", decimal.NewFromInt(10), "CHN-SHORT-1")
	assert.ErrorIs(t, err, domain.ErrInvalidChainID)
}

func TestVerifyLineageCycleBounded(t *testing.T) {
	// cycles cannot be created through the service, but corrupt data must not
	// hang the walk
	lookup := fakeLookup{
		"a": {parent: "b", source: domain.SourceAdminTransfer},
		"b": {parent: "a", source: domain.SourceAdminTransfer},
	}
	ok, err := verifyLineage(context.Background(), lookup, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}
