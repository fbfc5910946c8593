package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/ledger-sync/internal/models"
)

func snapshot(t *testing.T, id string, state models.State, addresses ...string) models.ChainSnapshot {
	t.Helper()
	accounts := make([]models.Account, 0, len(addresses))
	for _, address := range addresses {
		accounts = append(accounts, models.Account{Address: address})
	}
	s, err := models.NewSnapshot(models.ChainConfig{ID: id, Name: id}).Transition(state)
	require.NoError(t, err)
	return s.WithAccounts(accounts, nil, nil)
}

func TestLoadStateMissingFile(t *testing.T) {
	state, err := LoadState(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Empty(t, state.Snapshots)
}

func TestSaveAndLoadSyncResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "ledger-sync-state.json")

	result := models.SyncResult{
		Success: true,
		Snapshots: []models.ChainSnapshot{
			snapshot(t, "kusama", models.AddressesFetched(), "k-0"),
			snapshot(t, "acala", models.Failed("", "rpc down")),
		},
	}
	require.NoError(t, SaveSyncResult(path, result))

	state, err := LoadState(path)
	require.NoError(t, err)
	require.Len(t, state.Snapshots, 2)
	assert.NotZero(t, state.UpdatedAt)
	assert.Equal(t, "k-0", state.Snapshots[0].Accounts[0].Address)
	assert.Equal(t, models.StatusError, state.Snapshots[1].State.Status())
	assert.Equal(t, "rpc down", state.Snapshots[1].State.Err().Description)
}

func TestSaveDeepScanReplacesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	state := StateData{Snapshots: []models.ChainSnapshot{
		snapshot(t, "polkadot", models.NoNeedMigration()),
		snapshot(t, "kusama", models.AddressesFetched(), "k-0"),
	}}

	result := models.DeepScanResult{Success: true, Chains: []models.DeepScanChain{
		{ChainSnapshot: snapshot(t, "kusama", models.AddressesFetched(), "k-0", "k-1"), OriginalAccountCount: 1},
		{ChainSnapshot: snapshot(t, "astar", models.AddressesFetched(), "a-0")},
	}}
	require.NoError(t, SaveDeepScan(path, state, result))

	loaded, err := LoadState(path)
	require.NoError(t, err)
	require.Len(t, loaded.Snapshots, 3)
	assert.Equal(t, "polkadot", loaded.Snapshots[0].ID)
	assert.Len(t, loaded.Snapshots[1].Accounts, 2)
	assert.Equal(t, "astar", loaded.Snapshots[2].ID)
}
