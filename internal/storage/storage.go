package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelsos/ledger-sync/internal/models"
)

// StateData represents the structure of the sync state stored in the file
type StateData struct {
	Snapshots []models.ChainSnapshot `json:"snapshots"`
	Skipped   []models.ChainSnapshot `json:"skipped,omitempty"`
	UpdatedAt int64                  `json:"updated_at"`
}

// GetAppDataDir returns the application data directory
func GetAppDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	appDataDir := filepath.Join(homeDir, ".ledger-sync")
	if err := os.MkdirAll(appDataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create app data directory: %w", err)
	}

	return appDataDir, nil
}

// ResolveStatePath places a relative state file name inside the app data directory
func ResolveStatePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}

	appDataDir, err := GetAppDataDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(appDataDir, file), nil
}

// SaveSyncResult stores the snapshots of a synchronization run
func SaveSyncResult(path string, result models.SyncResult) error {
	return SaveState(path, StateData{Snapshots: result.Snapshots, Skipped: result.Skipped})
}

// SaveDeepScan writes the merged deep scan chains over the stored snapshots
func SaveDeepScan(path string, state StateData, result models.DeepScanResult) error {
	merged := make(map[string]models.ChainSnapshot, len(result.Chains))
	for _, chain := range result.Chains {
		merged[chain.ID] = chain.ChainSnapshot
	}

	snapshots := make([]models.ChainSnapshot, 0, len(state.Snapshots)+len(merged))
	for _, snapshot := range state.Snapshots {
		if updated, ok := merged[snapshot.ID]; ok {
			snapshot = updated
			delete(merged, snapshot.ID)
		}
		snapshots = append(snapshots, snapshot)
	}
	for _, chain := range result.Chains {
		if snapshot, ok := merged[chain.ID]; ok {
			snapshots = append(snapshots, snapshot)
		}
	}

	state.Snapshots = snapshots
	return SaveState(path, state)
}

// SaveState saves the state to a file
func SaveState(path string, state StateData) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	state.UpdatedAt = time.Now().Unix()
	if state.Snapshots == nil {
		state.Snapshots = []models.ChainSnapshot{}
	}

	jsonData, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state data: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

// LoadState gets the last stored state; a missing file is an empty state
func LoadState(path string) (StateData, error) {
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return StateData{}, nil
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return StateData{}, fmt.Errorf("failed to read state file: %w", err)
	}

	var data StateData
	if err := json.Unmarshal(fileData, &data); err != nil {
		return StateData{}, fmt.Errorf("failed to unmarshal state data: %w", err)
	}

	return data, nil
}
