package models

type SyncPhase string

const (
	PhaseFetchingAddresses  SyncPhase = "FETCHING_ADDRESSES"
	PhaseProcessingAccounts SyncPhase = "PROCESSING_ACCOUNTS"
)

// SyncProgress is reported while a pipeline runs
type SyncProgress struct {
	Scanned    int       `json:"scanned"`
	Total      int       `json:"total"`
	Percentage int       `json:"percentage"`
	Phase      SyncPhase `json:"phase"`
}

// SyncResult is the outcome of a full synchronization
type SyncResult struct {
	Success     bool            `json:"success"`
	Snapshots   []ChainSnapshot `json:"snapshots"`
	Destination *ChainSnapshot  `json:"destination,omitempty"`
	// Skipped lists the chains sharing the destination's derivation path
	Skipped   []ChainSnapshot `json:"skipped,omitempty"`
	Cancelled bool            `json:"cancelled,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// DeepScanChain is a merged snapshot together with its pre-scan account count
type DeepScanChain struct {
	ChainSnapshot
	OriginalAccountCount int `json:"original_account_count"`
	// ScanError is set when this scan attempt failed; the snapshot keeps its previous accounts
	ScanError *ChainError `json:"scan_error,omitempty"`
}

// NewAccounts is the number of accounts the scan added to the chain
func (c DeepScanChain) NewAccounts() int {
	return c.AccountCount() - c.OriginalAccountCount
}

// DeepScanResult is the outcome of a deep scan
type DeepScanResult struct {
	Success          bool            `json:"success"`
	Chains           []DeepScanChain `json:"chains"`
	NewAccountsFound int             `json:"new_accounts_found"`
	Cancelled        bool            `json:"cancelled,omitempty"`
	Error            string          `json:"error,omitempty"`
}
