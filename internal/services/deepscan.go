package services

import (
	"context"
	"time"

	"github.com/kelsos/ledger-sync/internal/logger"
	"github.com/kelsos/ledger-sync/internal/models"
	"github.com/kelsos/ledger-sync/internal/syncerr"
)

// DeepScan probes caller-chosen derivation indices and merges the accounts it finds into the
// current snapshots. Known addresses are never added twice, so repeating a scan is a no-op.
// A validation failure produces an unsuccessful result before any device exchange.
func (s *SyncService) DeepScan(ctx context.Context, req DeepScanRequest, opts DeepScanOptions) (models.DeepScanResult, error) {
	started := time.Now()

	result, err := s.deepScan(ctx, req, opts)
	switch {
	case err == nil:
		outcome := "success"
		if result.Cancelled {
			outcome = "cancelled"
		}
		s.metrics.RunFinished("deep_scan", outcome)
		s.metrics.NewAccounts(result.NewAccountsFound)
		logger.Info("Deep scan finished in %s, %d new accounts", time.Since(started).Round(time.Millisecond), result.NewAccountsFound)
		return result, nil
	case syncerr.KindOf(err) != syncerr.KindUnexpected:
		s.metrics.RunFinished("deep_scan", "failure")
		logger.Error("Deep scan failed: %v", err)
		return models.DeepScanResult{Success: false, Chains: []models.DeepScanChain{}, Error: err.Error()}, nil
	default:
		s.metrics.RunFinished("deep_scan", "error")
		result.Success = false
		result.Error = err.Error()
		return result, err
	}
}

func (s *SyncService) deepScanTargets(chainID string) ([]models.ChainConfig, error) {
	destination, migrate, skipped := s.partition()
	if chainID == "" {
		return migrate, nil
	}

	chain, ok := s.registry.Chain(chainID)
	if !ok {
		return nil, syncerr.Validation("unknown chain %q", chainID)
	}
	if chain.ID == destination.ID {
		return nil, syncerr.Validation("chain %s is the migration destination", chainID)
	}
	for _, skip := range skipped {
		if skip.ID == chain.ID {
			return nil, syncerr.Validation("chain %s shares the destination derivation path", chainID)
		}
	}
	return []models.ChainConfig{chain}, nil
}

func (s *SyncService) deepScan(ctx context.Context, req DeepScanRequest, opts DeepScanOptions) (models.DeepScanResult, error) {
	if len(req.AccountIndices) == 0 || len(req.AddressIndices) == 0 {
		return models.DeepScanResult{}, syncerr.Validation("account and address indices must not be empty")
	}
	for _, index := range append(append([]uint32{}, req.AccountIndices...), req.AddressIndices...) {
		if index > models.MaxPathIndex {
			return models.DeepScanResult{}, syncerr.Validation("index %d exceeds the hardened range (max %d)", index, models.MaxPathIndex)
		}
	}

	targets, err := s.deepScanTargets(req.ChainID)
	if err != nil {
		return models.DeepScanResult{}, err
	}

	current := make(map[string]models.ChainSnapshot, len(req.Current))
	for _, snapshot := range req.Current {
		current[snapshot.ID] = snapshot
	}

	destination := s.registry.DestinationChain()
	var destinationAddresses []string
	if snapshot, ok := current[destination.ID]; ok {
		for _, account := range snapshot.Accounts {
			destinationAddresses = append(destinationAddresses, account.Address)
		}
	}

	baseOf := func(chain models.ChainConfig) models.ChainSnapshot {
		if snapshot, ok := current[chain.ID]; ok {
			return snapshot
		}
		return models.NewSnapshot(chain)
	}

	updated := newResultSet[models.DeepScanChain]()

	found, err := s.discover(ctx, targets, opts.OnCancel, discoverHooks{
		start: func(chain models.ChainConfig) models.ChainSnapshot {
			base := baseOf(chain)
			opts.chainStart(models.NewSnapshot(chain).WithAccounts(base.Accounts, base.MultisigAccounts, base.Collections))
			return models.NewSnapshot(chain)
		},
		fetch: func(ctx context.Context, chain models.ChainConfig) ([]models.Account, error) {
			return s.fetcher.FetchIndexed(ctx, chain, req.AccountIndices, req.AddressIndices, opts.OnCancel)
		},
		failed: func(snapshot models.ChainSnapshot) {
			base, ok := current[snapshot.ID]
			if !ok {
				base = snapshot
			}
			chain, _ := mergeScan(base, snapshot)
			updated.put(snapshot.ID, chain)
			opts.chainUpdate(chain)
		},
		report: opts.progress,
	})
	if err != nil {
		return models.DeepScanResult{}, err
	}

	result := models.DeepScanResult{Success: true}
	if found.cancelled {
		result.Cancelled = true
		result.Chains = collectScan(targets, updated, baseOf)
		return result, nil
	}

	var pending []models.ChainConfig
	for _, chain := range found.reached {
		if _, ok := found.fetched[chain.ID]; ok {
			pending = append(pending, chain)
		}
	}

	opts.phaseTwoStart()
	tracker := newProgressTracker(models.PhaseProcessingAccounts, 50, 50, len(pending), opts.progress, s.metrics)

	err = fanOut(pending, func(chain models.ChainConfig) error {
		started := time.Now()
		one, err := s.SynchronizeOne(ctx, chain, SyncOneOptions{
			DestinationAddresses: destinationAddresses,
			FilterByBalance:      req.FilterByBalance,
			IsCancelled:          opts.OnCancel,
			PreloadedAddresses:   found.fetched[chain.ID],
		})
		s.metrics.ObservePhase(models.PhaseProcessingAccounts, started)
		if err != nil {
			return err
		}

		merged, err := mergeScan(baseOf(chain), one.Snapshot)
		if err != nil {
			return syncerr.Unexpected(chain.ID, err)
		}
		if n := merged.NewAccounts(); n > 0 {
			logger.Info("Deep scan found %d new accounts on %s", n, chain.ID)
		}

		updated.put(chain.ID, merged)
		s.metrics.ChainFinished(merged.State.Status())
		tracker.tick()
		opts.chainUpdate(merged)
		return nil
	})
	switch {
	case syncerr.IsCancelled(err):
		logger.Info("Deep scan cancelled during account processing")
		result.Cancelled = true
	case err != nil:
		return result, err
	}

	result.Chains = collectScan(targets, updated, baseOf)
	for _, chain := range result.Chains {
		result.NewAccountsFound += chain.NewAccounts()
	}
	return result, nil
}

// mergeScan appends the scanned accounts whose address the base does not know yet. A failed
// scan keeps the base untouched and carries the failure on ScanError.
func mergeScan(base, scanned models.ChainSnapshot) (models.DeepScanChain, error) {
	original := base.AccountCount()

	if scanned.State.Status() == models.StatusError {
		return models.DeepScanChain{
			ChainSnapshot:        base,
			OriginalAccountCount: original,
			ScanError:            scanned.State.Err(),
		}, nil
	}

	known := base.Addresses()

	accounts := append([]models.Account{}, base.Accounts...)
	for _, account := range scanned.Accounts {
		if _, exists := known[account.Address]; exists {
			continue
		}
		known[account.Address] = struct{}{}
		accounts = append(accounts, account)
	}

	multisig := append([]models.MultisigAccount{}, base.MultisigAccounts...)
	for _, account := range scanned.MultisigAccounts {
		if _, exists := known[account.Address]; exists {
			continue
		}
		known[account.Address] = struct{}{}
		multisig = append(multisig, account)
	}

	collections := base.Collections
	if scanned.Collections != nil {
		collections = scanned.Collections
	}

	merged := base.WithAccounts(accounts, multisig, collections)
	status := base.State.Status()
	if merged.AccountCount() > original || status == models.StatusLoading || status == models.StatusAddressesFetched {
		var err error
		if merged, err = promote(merged); err != nil {
			return models.DeepScanChain{}, err
		}
	}

	return models.DeepScanChain{ChainSnapshot: merged, OriginalAccountCount: original}, nil
}

// promote walks a snapshot through the legal transitions up to SYNCHRONIZED
func promote(snapshot models.ChainSnapshot) (models.ChainSnapshot, error) {
	for snapshot.State.Status() != models.StatusSynchronized {
		next := models.Synchronized()
		if snapshot.State.Status() == models.StatusLoading {
			next = models.AddressesFetched()
		}

		var err error
		if snapshot, err = snapshot.Transition(next); err != nil {
			return snapshot, err
		}
	}
	return snapshot, nil
}

// collectScan returns one entry per target in configuration order; chains the scan never
// reached come back unchanged
func collectScan(targets []models.ChainConfig, updated *resultSet[models.DeepScanChain], baseOf func(models.ChainConfig) models.ChainSnapshot) []models.DeepScanChain {
	chains := make([]models.DeepScanChain, 0, len(targets))
	for _, chain := range targets {
		if scanned, ok := updated.get(chain.ID); ok {
			chains = append(chains, scanned)
			continue
		}
		base := baseOf(chain)
		chains = append(chains, models.DeepScanChain{ChainSnapshot: base, OriginalAccountCount: base.AccountCount()})
	}
	return chains
}
