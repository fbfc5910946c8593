package models

import (
	"encoding/json"
	"fmt"
)

type Status string

const (
	StatusLoading          Status = "loading"
	StatusAddressesFetched Status = "addresses_fetched"
	StatusSynchronized     Status = "synchronized"
	StatusError            Status = "error"
	StatusNoNeedMigration  Status = "no_need_migration"
)

const unknownErrorDescription = "unknown error"

var transitions = map[Status][]Status{
	StatusLoading:          {StatusAddressesFetched, StatusError, StatusNoNeedMigration},
	StatusAddressesFetched: {StatusSynchronized, StatusError},
	StatusSynchronized:     {StatusLoading},
	StatusError:            {StatusLoading, StatusSynchronized},
	StatusNoNeedMigration:  {},
}

// State is a chain status together with the error that only ERROR may carry.
// The zero value is LOADING.
type State struct {
	status Status
	err    *ChainError
}

// Loading is the state of a chain the orchestrator just started working on
func Loading() State { return State{status: StatusLoading} }

// AddressesFetched is the state after a successful device fetch
func AddressesFetched() State { return State{status: StatusAddressesFetched} }

// Synchronized is the state after a successful enrichment
func Synchronized() State { return State{status: StatusSynchronized} }

// NoNeedMigration marks a chain sharing the destination's derivation path
func NoNeedMigration() State { return State{status: StatusNoNeedMigration} }

// Failed builds an ERROR state. An empty description is replaced so an error state always
// explains itself.
func Failed(source, description string) State {
	if source == "" {
		source = ErrorSourceSynchronization
	}
	if description == "" {
		description = unknownErrorDescription
	}
	return State{status: StatusError, err: &ChainError{Source: source, Description: description}}
}

func (s State) Status() Status {
	if s.status == "" {
		return StatusLoading
	}
	return s.status
}

// Err returns the chain error, non-nil only for ERROR
func (s State) Err() *ChainError {
	if s.err == nil {
		return nil
	}
	errCopy := *s.err
	return &errCopy
}

func (s State) String() string {
	if s.err != nil {
		return fmt.Sprintf("%s (%s)", s.Status(), s.err.Description)
	}
	return string(s.Status())
}

// CanTransition reports whether moving from one status to another is legal
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrIllegalTransition is returned when a snapshot is moved to a state it cannot reach
type ErrIllegalTransition struct {
	ChainID string
	From    Status
	To      Status
}

func (e ErrIllegalTransition) Error() string {
	return fmt.Sprintf("chain %s: illegal status transition %s -> %s", e.ChainID, e.From, e.To)
}

type stateJSON struct {
	Status Status      `json:"status"`
	Error  *ChainError `json:"error,omitempty"`
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{Status: s.Status(), Error: s.err})
}

func (s *State) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Status {
	case StatusError:
		source, description := "", ""
		if raw.Error != nil {
			source, description = raw.Error.Source, raw.Error.Description
		}
		*s = Failed(source, description)
	case StatusLoading, StatusAddressesFetched, StatusSynchronized, StatusNoNeedMigration, "":
		*s = State{status: raw.Status}
	default:
		return fmt.Errorf("unknown chain status %q", raw.Status)
	}
	return nil
}

// ChainSnapshot is the state of one chain within a sync result. Values are never mutated in
// place: every step builds a new snapshot.
type ChainSnapshot struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Token            Token             `json:"token"`
	State            State             `json:"state"`
	Accounts         []Account         `json:"accounts"`
	MultisigAccounts []MultisigAccount `json:"multisig_accounts"`
	Collections      *Collections      `json:"collections,omitempty"`
}

// NewSnapshot creates the LOADING snapshot of a chain
func NewSnapshot(chain ChainConfig) ChainSnapshot {
	return ChainSnapshot{
		ID:               chain.ID,
		Name:             chain.Name,
		Token:            chain.Token,
		State:            Loading(),
		Accounts:         []Account{},
		MultisigAccounts: []MultisigAccount{},
	}
}

// Transition returns a copy of the snapshot in the next state
func (s ChainSnapshot) Transition(next State) (ChainSnapshot, error) {
	from := s.State.Status()
	if !CanTransition(from, next.Status()) {
		return s, ErrIllegalTransition{ChainID: s.ID, From: from, To: next.Status()}
	}
	s.State = next
	return s, nil
}

// WithAccounts returns a copy carrying the given account lists
func (s ChainSnapshot) WithAccounts(accounts []Account, multisig []MultisigAccount, collections *Collections) ChainSnapshot {
	s.Accounts = append([]Account{}, accounts...)
	s.MultisigAccounts = append([]MultisigAccount{}, multisig...)
	s.Collections = collections
	return s
}

// AccountCount counts regular and multisig accounts
func (s ChainSnapshot) AccountCount() int {
	return len(s.Accounts) + len(s.MultisigAccounts)
}

// Addresses returns every regular and multisig address of the snapshot
func (s ChainSnapshot) Addresses() map[string]struct{} {
	addresses := make(map[string]struct{}, s.AccountCount())
	for _, account := range s.Accounts {
		addresses[account.Address] = struct{}{}
	}
	for _, account := range s.MultisigAccounts {
		addresses[account.Address] = struct{}{}
	}
	return addresses
}
