package models

// ErrorSourceSynchronization marks an account or chain that failed during synchronization
const ErrorSourceSynchronization = "synchronization"

// ChainError is a {source, description} error attached to accounts and snapshots
type ChainError struct {
	Source      string `json:"source"`
	Description string `json:"description"`
}

func (e ChainError) Error() string {
	return e.Source + ": " + e.Description
}

// Account is a single address derived from the device on one chain
type Account struct {
	Address            string      `json:"address"`
	Path               string      `json:"path"`
	PublicKey          string      `json:"public_key"`
	Balances           []Balance   `json:"balances,omitempty"`
	Error              *ChainError `json:"error,omitempty"`
	Selected           bool        `json:"selected"`
	DestinationAddress string      `json:"destination_address,omitempty"`
}

// Eligible reports whether the account can take part in a migration
func (a Account) Eligible() bool {
	return a.Error == nil || a.Error.Source != ErrorSourceSynchronization
}

// PendingCall is a multisig call waiting for approvals
type PendingCall struct {
	CallHash  string   `json:"call_hash"`
	Approvals []string `json:"approvals"`
	Depositor string   `json:"depositor"`
}

// MultisigMember is one signatory of a multisig account
type MultisigMember struct {
	Address  string `json:"address"`
	Internal bool   `json:"internal"`
	Path     string `json:"path,omitempty"`
}

// MultisigAccount is the multisig variant of an account
type MultisigAccount struct {
	Account
	Members      []MultisigMember `json:"members"`
	Threshold    int              `json:"threshold"`
	PendingCalls []PendingCall    `json:"pending_calls,omitempty"`
}

// Collection is an NFT/uniques collection owned by accounts on a chain
type Collection struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Items int    `json:"items"`
}

// Collections groups collections by pallet
type Collections struct {
	Uniques []Collection `json:"uniques,omitempty"`
	NFTs    []Collection `json:"nfts,omitempty"`
}

// UniqueAccounts drops accounts whose address was already seen, keeping the first occurrence
// and the input order
func UniqueAccounts(accounts []Account) []Account {
	seen := make(map[string]struct{}, len(accounts))
	unique := make([]Account, 0, len(accounts))
	for _, account := range accounts {
		if _, exists := seen[account.Address]; exists {
			continue
		}
		seen[account.Address] = struct{}{}
		unique = append(unique, account)
	}
	return unique
}

// UniqueMultisigAccounts is UniqueAccounts for the multisig variant
func UniqueMultisigAccounts(accounts []MultisigAccount) []MultisigAccount {
	seen := make(map[string]struct{}, len(accounts))
	unique := make([]MultisigAccount, 0, len(accounts))
	for _, account := range accounts {
		if _, exists := seen[account.Address]; exists {
			continue
		}
		seen[account.Address] = struct{}{}
		unique = append(unique, account)
	}
	return unique
}
