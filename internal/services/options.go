package services

import (
	"github.com/kelsos/ledger-sync/internal/cancel"
	"github.com/kelsos/ledger-sync/internal/models"
)

// SyncOneOptions configures a single chain synchronization
type SyncOneOptions struct {
	DestinationAddresses []string
	FilterByBalance      bool
	IsCancelled          cancel.Predicate
	// PreloadedAddresses skips the device fetch when non-nil; an empty non-nil slice is a
	// fetch that found nothing
	PreloadedAddresses []models.Account
	// Destination marks the destination chain, whose accounts are their own targets
	Destination bool
}

// SyncOptions holds the callbacks of a full synchronization. Every callback is optional and
// may be invoked from several goroutines during phase two.
type SyncOptions struct {
	FilterByBalance bool
	OnProgress      func(models.SyncProgress)
	OnCancel        cancel.Predicate
	OnChainStart    func(models.ChainSnapshot)
	OnPhaseTwoStart func()
	OnChainComplete func(snapshot models.ChainSnapshot, destinationAddresses []string)
}

func (o SyncOptions) progress(p models.SyncProgress) {
	if o.OnProgress != nil {
		o.OnProgress(p)
	}
}

func (o SyncOptions) chainStart(s models.ChainSnapshot) {
	if o.OnChainStart != nil {
		o.OnChainStart(s)
	}
}

func (o SyncOptions) phaseTwoStart() {
	if o.OnPhaseTwoStart != nil {
		o.OnPhaseTwoStart()
	}
}

func (o SyncOptions) chainComplete(s models.ChainSnapshot, destinations []string) {
	if o.OnChainComplete != nil {
		o.OnChainComplete(s, destinations)
	}
}

// DeepScanRequest selects what a deep scan probes
type DeepScanRequest struct {
	// ChainID limits the scan to one chain; empty scans every chain that needs migration
	ChainID         string
	AccountIndices  []uint32
	AddressIndices  []uint32
	Current         []models.ChainSnapshot
	FilterByBalance bool
}

// DeepScanOptions holds the deep scan callbacks, with the same rules as SyncOptions
type DeepScanOptions struct {
	OnProgress      func(models.SyncProgress)
	OnCancel        cancel.Predicate
	OnChainStart    func(models.ChainSnapshot)
	OnPhaseTwoStart func()
	OnChainUpdate   func(models.DeepScanChain)
}

func (o DeepScanOptions) progress(p models.SyncProgress) {
	if o.OnProgress != nil {
		o.OnProgress(p)
	}
}

func (o DeepScanOptions) chainStart(s models.ChainSnapshot) {
	if o.OnChainStart != nil {
		o.OnChainStart(s)
	}
}

func (o DeepScanOptions) phaseTwoStart() {
	if o.OnPhaseTwoStart != nil {
		o.OnPhaseTwoStart()
	}
}

func (o DeepScanOptions) chainUpdate(c models.DeepScanChain) {
	if o.OnChainUpdate != nil {
		o.OnChainUpdate(c)
	}
}
