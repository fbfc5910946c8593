package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/ledger-sync/internal/cancel"
	"github.com/kelsos/ledger-sync/internal/models"
	"github.com/kelsos/ledger-sync/internal/notify"
	"github.com/kelsos/ledger-sync/internal/syncerr"
)

var (
	chainA = testChain("a", 354, "wss://a")
	chainB = testChain("b", 434, "wss://b")
	chainC = testChain("c", 787, "wss://c")
)

func TestSynchronizeAllKeepsEveryChainWhenEnrichmentFails(t *testing.T) {
	f := newFixture(chainA, chainB, chainC)
	for _, id := range []string{"a", "b", "c"} {
		f.enricher.fail[id] = errors.New("rpc down")
	}

	result, err := f.service.SynchronizeAll(context.Background(), SyncOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Snapshots, 3)

	assert.Equal(t, []string{"a", "b", "c"}, []string{result.Snapshots[0].ID, result.Snapshots[1].ID, result.Snapshots[2].ID})
	for _, snapshot := range result.Snapshots {
		assert.Equal(t, models.StatusError, snapshot.State.Status())
		require.NotNil(t, snapshot.State.Err())
		assert.Equal(t, models.ErrorSourceSynchronization, snapshot.State.Err().Source)
		assert.Contains(t, snapshot.State.Err().Description, "rpc down")
	}
	assert.Equal(t, f.connector.opened.Load(), f.connector.closed.Load())
}

func TestSynchronizeAllIsolatesChainWithoutEndpoint(t *testing.T) {
	b := testChain("b", 434)
	f := newFixture(chainA, b, chainC)

	result, err := f.service.SynchronizeAll(context.Background(), SyncOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)

	snapshots := byID(result.Snapshots)
	assert.Equal(t, models.StatusSynchronized, snapshots["a"].State.Status())
	assert.Equal(t, models.StatusSynchronized, snapshots["c"].State.Status())
	assert.Equal(t, models.StatusError, snapshots["b"].State.Status())
	assert.Contains(t, snapshots["b"].State.Err().Description, "no RPC endpoint configured")
}

func TestSynchronizeAllCancelledBeforeDiscovery(t *testing.T) {
	f := newFixture(chainA, chainB)

	result, err := f.service.SynchronizeAll(context.Background(), SyncOptions{
		OnCancel: func() bool { return true },
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Cancelled)
	assert.Empty(t, result.Snapshots)
	assert.Nil(t, result.Destination)
	assert.Empty(t, f.fetcher.calls)
}

func TestSynchronizeAllProgressIsMonotonic(t *testing.T) {
	f := newFixture(chainA, chainB, chainC, testChain("d", 810, "wss://d"))

	var mu sync.Mutex
	reports := map[models.SyncPhase][]int{}
	result, err := f.service.SynchronizeAll(context.Background(), SyncOptions{
		OnProgress: func(p models.SyncProgress) {
			mu.Lock()
			defer mu.Unlock()
			reports[p.Phase] = append(reports[p.Phase], p.Percentage)
		},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	for phase, values := range reports {
		for i := 1; i < len(values); i++ {
			assert.GreaterOrEqual(t, values[i], values[i-1], "phase %s", phase)
		}
	}
	assert.Equal(t, []int{13, 25, 38, 50}, reports[models.PhaseFetchingAddresses])
	assert.Equal(t, 100, reports[models.PhaseProcessingAccounts][len(reports[models.PhaseProcessingAccounts])-1])
}

func TestSynchronizeAllSkipsChainsOnDestinationPath(t *testing.T) {
	hub := testChain("hub", 354, "wss://hub")
	f := newFixture(chainA, hub, chainB)

	var started []models.ChainSnapshot
	result, err := f.service.SynchronizeAll(context.Background(), SyncOptions{
		OnChainStart: func(s models.ChainSnapshot) { started = append(started, s) },
	})
	require.NoError(t, err)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, models.StatusNoNeedMigration, result.Skipped[0].State.Status())
	assert.NotContains(t, byID(result.Snapshots), "hub")
	assert.NotContains(t, f.fetcher.calls, "hub")
	assert.Equal(t, "hub", started[0].ID)
	assert.Equal(t, models.StatusNoNeedMigration, started[0].State.Status())
}

func TestSynchronizeAllContinuesAfterFetchFailure(t *testing.T) {
	f := newFixture(chainA, chainB, chainC)
	f.fetcher.fail["b"] = syncerr.Fetch("b", ledgerLocked)

	var mu sync.Mutex
	completions := map[string]int{}
	result, err := f.service.SynchronizeAll(context.Background(), SyncOptions{
		OnChainComplete: func(s models.ChainSnapshot, _ []string) {
			mu.Lock()
			defer mu.Unlock()
			completions[s.ID]++
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 3)

	snapshots := byID(result.Snapshots)
	assert.Equal(t, models.StatusError, snapshots["b"].State.Status())
	assert.Contains(t, snapshots["b"].State.Err().Description, "failed to fetch addresses")
	assert.Equal(t, models.StatusSynchronized, snapshots["c"].State.Status())
	assert.Equal(t, []string{"a", "b", "c"}, f.fetcher.calls)
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, completions)
	assert.False(t, f.fetcher.overlapped.Load())
}

var ledgerLocked = errors.New("device locked")

func TestSynchronizeAllPassesDestinationAddresses(t *testing.T) {
	f := newFixture(chainA, chainB, chainC)

	result, err := f.service.SynchronizeAll(context.Background(), SyncOptions{FilterByBalance: true})
	require.NoError(t, err)
	require.NotNil(t, result.Destination)
	assert.Equal(t, "a", result.Destination.ID)

	destination, ok := f.enricher.request("a")
	require.True(t, ok)
	assert.True(t, destination.Destination)
	assert.False(t, destination.FilterByBalance)

	other, ok := f.enricher.request("b")
	require.True(t, ok)
	assert.Equal(t, []string{"a-0", "a-1"}, other.DestinationAddresses)
	assert.True(t, other.FilterByBalance)
	assert.Equal(t, "a-0", byID(result.Snapshots)["b"].Accounts[0].DestinationAddress)
}

func TestSynchronizeAllCancelledDuringProcessing(t *testing.T) {
	f := newFixture(chainA, chainB, chainC)
	token := cancel.NewToken()
	f.enricher.hook = func(chainID string) {
		if chainID == "b" {
			token.Cancel()
		}
	}

	result, err := f.service.SynchronizeAll(context.Background(), SyncOptions{OnCancel: token.Predicate()})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Cancelled)

	snapshots := byID(result.Snapshots)
	assert.Equal(t, models.StatusSynchronized, snapshots["a"].State.Status())
	assert.NotContains(t, snapshots, "b")
}

func TestSynchronizeAllCancelledDuringDiscovery(t *testing.T) {
	f := newFixture(chainA, chainB, chainC)
	token := cancel.NewToken()
	f.fetcher.onFetch = func(chainID string) {
		if chainID == "a" {
			token.Cancel()
		}
	}
	phaseTwo := false

	result, err := f.service.SynchronizeAll(context.Background(), SyncOptions{
		OnCancel:        token.Predicate(),
		OnPhaseTwoStart: func() { phaseTwo = true },
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Cancelled)
	assert.False(t, phaseTwo)
	assert.Equal(t, []string{"a"}, f.fetcher.calls)
	assert.Zero(t, f.connector.opened.Load())

	snapshots := byID(result.Snapshots)
	require.Len(t, snapshots, 1)
	assert.Equal(t, models.StatusAddressesFetched, snapshots["a"].State.Status())
	assert.Len(t, snapshots["a"].Accounts, 2)
	assert.NotContains(t, snapshots, "b")
	assert.NotContains(t, snapshots, "c")
	for _, snapshot := range result.Snapshots {
		assert.NotEqual(t, models.StatusError, snapshot.State.Status())
	}
}

func TestSynchronizeOneZeroAccountsIsSuccess(t *testing.T) {
	f := newFixture(chainA, chainB)
	var notes []notify.Notification
	f.service.notifier = notify.Func(func(n notify.Notification) { notes = append(notes, n) })

	one, err := f.service.SynchronizeOne(context.Background(), chainB, SyncOneOptions{
		PreloadedAddresses: []models.Account{},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynchronized, one.Snapshot.State.Status())
	assert.Empty(t, one.Snapshot.Accounts)
	assert.Empty(t, f.fetcher.calls)
	require.Len(t, notes, 1)
	assert.Equal(t, notify.LevelInfo, notes[0].Level)
	assert.Equal(t, "No accounts were found on b", notes[0].Description)
	assert.Equal(t, int32(1), f.connector.closed.Load())
}

func TestSynchronizeOneZeroAccountsWithBalanceFilter(t *testing.T) {
	f := newFixture(chainA, chainB)
	var notes []notify.Notification
	f.service.notifier = notify.Func(func(n notify.Notification) { notes = append(notes, n) })

	_, err := f.service.SynchronizeOne(context.Background(), chainB, SyncOneOptions{
		PreloadedAddresses: []models.Account{},
		FilterByBalance:    true,
	})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "No accounts with a balance were found on b", notes[0].Description)
}

func TestSynchronizeOneConnectionFailure(t *testing.T) {
	f := newFixture(chainA, chainB)
	f.connector.fail["wss://b"] = errors.New("dial refused")

	one, err := f.service.SynchronizeOne(context.Background(), chainB, SyncOneOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, one.Snapshot.State.Status())
	assert.Contains(t, one.Snapshot.State.Err().Description, "dial refused")
	assert.Zero(t, f.connector.closed.Load())
}

func TestSynchronizeOnePropagatesCancellation(t *testing.T) {
	f := newFixture(chainA, chainB)

	_, err := f.service.SynchronizeOne(context.Background(), chainB, SyncOneOptions{
		IsCancelled: func() bool { return true },
	})
	assert.ErrorIs(t, err, syncerr.ErrCancelled)
	assert.Zero(t, f.connector.opened.Load())
}

func TestSynchronizeOneRethrowsUnexpectedErrors(t *testing.T) {
	f := newFixture(chainA, chainB)
	f.fetcher.fail["b"] = errors.New("nil map write")

	_, err := f.service.SynchronizeOne(context.Background(), chainB, SyncOneOptions{})
	require.Error(t, err)
	assert.Equal(t, syncerr.KindUnexpected, syncerr.KindOf(err))
}

func TestSynchronizeAllReturnsUnexpectedErrors(t *testing.T) {
	f := newFixture(chainA, chainB)
	f.fetcher.fail["b"] = errors.New("nil map write")

	result, err := f.service.SynchronizeAll(context.Background(), SyncOptions{})
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestFanOutRecoversPanics(t *testing.T) {
	err := fanOut([]models.ChainConfig{chainB}, func(models.ChainConfig) error {
		panic("boom")
	})
	require.Error(t, err)
	assert.Equal(t, syncerr.KindUnexpected, syncerr.KindOf(err))
}

func TestFanOutReturnsEarlyOnCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	err := fanOut([]models.ChainConfig{chainB, chainC}, func(chain models.ChainConfig) error {
		if chain.ID == "b" {
			return syncerr.Cancelled(chain.ID)
		}
		<-release
		return nil
	})
	assert.ErrorIs(t, err, syncerr.ErrCancelled)
}

func TestDescribeUnwrapsClassifiedErrors(t *testing.T) {
	err := fmt.Errorf("wrap: %w", syncerr.Enrichment("b", errors.New("rpc down")))
	assert.Equal(t, "enrichment failed: rpc down", describe(err))
}
