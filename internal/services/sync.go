package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/kelsos/ledger-sync/internal/blockchain"
	"github.com/kelsos/ledger-sync/internal/cancel"
	"github.com/kelsos/ledger-sync/internal/client"
	"github.com/kelsos/ledger-sync/internal/config"
	"github.com/kelsos/ledger-sync/internal/logger"
	"github.com/kelsos/ledger-sync/internal/metrics"
	"github.com/kelsos/ledger-sync/internal/models"
	"github.com/kelsos/ledger-sync/internal/notify"
	"github.com/kelsos/ledger-sync/internal/syncerr"
)

// Fetcher reads derived addresses from the hardware device. Implementations are never called
// concurrently by the service.
type Fetcher interface {
	FetchDefault(ctx context.Context, chain models.ChainConfig, isCancelled cancel.Predicate) ([]models.Account, error)
	FetchIndexed(ctx context.Context, chain models.ChainConfig, accountIndices, addressIndices []uint32, isCancelled cancel.Predicate) ([]models.Account, error)
}

// SyncService orchestrates address discovery and account enrichment across chains
type SyncService struct {
	registry  *config.Registry
	fetcher   Fetcher
	connector client.Connector
	enricher  blockchain.Enricher
	notifier  notify.Notifier
	metrics   *metrics.Metrics
}

// NewSyncService creates a new sync service. A nil notifier drops notifications and nil
// metrics record nothing.
func NewSyncService(registry *config.Registry, fetcher Fetcher, connector client.Connector, enricher blockchain.Enricher, notifier notify.Notifier, m *metrics.Metrics) *SyncService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &SyncService{
		registry:  registry,
		fetcher:   fetcher,
		connector: connector,
		enricher:  enricher,
		notifier:  notifier,
		metrics:   m,
	}
}

// SyncOneResult is the outcome of one chain synchronization
type SyncOneResult struct {
	Snapshot             models.ChainSnapshot
	DestinationAddresses []string
}

// SynchronizeOne fetches (or reuses) the addresses of a chain and enriches them. Operational
// failures come back as an ERROR snapshot with a nil error. Cancellation is returned as
// syncerr.ErrCancelled and anything unclassified as an unexpected error.
func (s *SyncService) SynchronizeOne(ctx context.Context, chain models.ChainConfig, opts SyncOneOptions) (SyncOneResult, error) {
	snapshot := models.NewSnapshot(chain)

	result, err := s.synchronizeOne(ctx, snapshot, chain, opts)
	if err == nil {
		return result, nil
	}

	// the snapshot as far as it got
	current := result.Snapshot
	if current.ID == "" {
		current = snapshot
	}

	switch {
	case syncerr.IsCancelled(err):
		return SyncOneResult{Snapshot: current}, err
	case syncerr.IsOperational(err):
		logger.ChainEvent(zerolog.ErrorLevel, chain.ID, "synchronization failed", err)
		failed, terr := current.Transition(models.Failed(models.ErrorSourceSynchronization, describe(err)))
		if terr != nil {
			return SyncOneResult{Snapshot: current}, syncerr.Unexpected(chain.ID, terr)
		}
		s.notifier.Notify(notify.Notification{
			Level:       notify.LevelError,
			ChainID:     chain.ID,
			Title:       "Synchronization failed",
			Description: describe(err),
		})
		return SyncOneResult{Snapshot: failed}, nil
	default:
		return SyncOneResult{Snapshot: current}, syncerr.Unexpected(chain.ID, err)
	}
}

func (s *SyncService) synchronizeOne(ctx context.Context, snapshot models.ChainSnapshot, chain models.ChainConfig, opts SyncOneOptions) (SyncOneResult, error) {
	accounts := opts.PreloadedAddresses
	if accounts == nil {
		fetched, err := s.fetcher.FetchDefault(ctx, chain, opts.IsCancelled)
		if err != nil {
			return SyncOneResult{Snapshot: snapshot}, err
		}
		accounts = fetched
	}

	snapshot, err := snapshot.Transition(models.AddressesFetched())
	if err != nil {
		return SyncOneResult{}, err
	}
	if err := opts.IsCancelled.Check(chain.ID); err != nil {
		return SyncOneResult{Snapshot: snapshot}, err
	}

	if !chain.HasEndpoint() {
		logger.Warn("Chain %s has no RPC endpoint configured", chain.ID)
		return SyncOneResult{Snapshot: snapshot}, syncerr.Connection(chain.ID, client.ErrNoEndpoint)
	}

	conn, err := s.connector.Open(ctx, chain.RPCEndpoints)
	if err != nil {
		if ctx.Err() != nil {
			return SyncOneResult{Snapshot: snapshot}, syncerr.Cancelled(chain.ID)
		}
		return SyncOneResult{Snapshot: snapshot}, syncerr.Connection(chain.ID, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("Failed to close connection to %s for chain %s: %v", conn.Endpoint(), chain.ID, err)
		}
	}()

	logger.Debug("Connected to %s for chain %s", conn.Endpoint(), chain.ID)

	enriched, err := s.enricher.Enrich(ctx, conn, blockchain.EnrichRequest{
		Chain:                chain,
		Accounts:             accounts,
		DestinationAddresses: opts.DestinationAddresses,
		FilterByBalance:      opts.FilterByBalance,
		Destination:          opts.Destination,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || syncerr.IsCancelled(err) {
			return SyncOneResult{Snapshot: snapshot}, syncerr.Cancelled(chain.ID)
		}
		return SyncOneResult{Snapshot: snapshot}, syncerr.Enrichment(chain.ID, err)
	}

	if err := opts.IsCancelled.Check(chain.ID); err != nil {
		return SyncOneResult{Snapshot: snapshot}, err
	}

	synced, err := snapshot.
		WithAccounts(enriched.Accounts, enriched.MultisigAccounts, enriched.Collections).
		Transition(models.Synchronized())
	if err != nil {
		return SyncOneResult{Snapshot: snapshot}, err
	}

	if synced.AccountCount() == 0 {
		description := "No accounts were found on " + chain.Name
		if opts.FilterByBalance {
			description = "No accounts with a balance were found on " + chain.Name
		}
		s.notifier.Notify(notify.Notification{
			Level:       notify.LevelInfo,
			ChainID:     chain.ID,
			Title:       "No accounts",
			Description: description,
		})
	}

	destinations := enriched.DestinationAddresses
	if destinations == nil {
		destinations = []string{}
	}
	return SyncOneResult{Snapshot: synced, DestinationAddresses: destinations}, nil
}

// SynchronizeAll runs the full pipeline: skip chains sharing the destination's path, discover
// addresses chain by chain, then enrich the destination followed by every other chain in
// parallel. Cancellation yields a successful partial result. Classified failures become an
// unsuccessful result; only unexpected errors are returned.
func (s *SyncService) SynchronizeAll(ctx context.Context, opts SyncOptions) (models.SyncResult, error) {
	started := time.Now()

	result, err := s.synchronizeAll(ctx, opts)
	switch {
	case err == nil:
		outcome := "success"
		if result.Cancelled {
			outcome = "cancelled"
		}
		s.metrics.RunFinished("sync", outcome)
		logger.Info("Synchronization finished in %s (%d chains)", time.Since(started).Round(time.Millisecond), len(result.Snapshots))
		return result, nil
	case syncerr.KindOf(err) != syncerr.KindUnexpected:
		s.metrics.RunFinished("sync", "failure")
		logger.Error("Synchronization failed: %v", err)
		result.Success = false
		result.Error = err.Error()
		return result, nil
	default:
		s.metrics.RunFinished("sync", "error")
		result.Success = false
		result.Error = err.Error()
		return result, err
	}
}

func (s *SyncService) synchronizeAll(ctx context.Context, opts SyncOptions) (models.SyncResult, error) {
	result := models.SyncResult{Success: true, Snapshots: []models.ChainSnapshot{}}

	destination, migrate, skipped := s.partition()
	for _, chain := range skipped {
		snapshot := skippedSnapshot(chain)
		logger.Info("Chain %s shares the destination derivation path, skipping", chain.ID)
		opts.chainStart(snapshot)
		s.metrics.ChainFinished(snapshot.State.Status())
		result.Skipped = append(result.Skipped, snapshot)
	}

	ordered := append([]models.ChainConfig{destination}, migrate...)

	found, err := s.discover(ctx, ordered, opts.OnCancel, discoverHooks{
		start: func(chain models.ChainConfig) models.ChainSnapshot {
			snapshot := models.NewSnapshot(chain)
			opts.chainStart(snapshot)
			return snapshot
		},
		fetch: func(ctx context.Context, chain models.ChainConfig) ([]models.Account, error) {
			return s.fetcher.FetchDefault(ctx, chain, opts.OnCancel)
		},
		failed: func(snapshot models.ChainSnapshot) {
			s.metrics.ChainFinished(snapshot.State.Status())
			opts.chainComplete(snapshot, []string{})
		},
		report: opts.progress,
	})
	if err != nil {
		return result, err
	}

	completed := newResultSet[models.ChainSnapshot]()
	for id, snapshot := range found.failed {
		completed.put(id, snapshot)
	}

	if found.cancelled {
		// chains discovered before the stop keep their fetched addresses
		for id, snapshot := range found.discovered {
			completed.put(id, snapshot)
		}
		result.Cancelled = true
		result.Snapshots = assemble(found.reached, completed)
		result.Destination = destinationOf(result.Snapshots, destination.ID)
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

	enrich := func(chain models.ChainConfig, destinations []string, isDestination bool) (SyncOneResult, error) {
		started := time.Now()
		one, err := s.SynchronizeOne(ctx, chain, SyncOneOptions{
			DestinationAddresses: destinations,
			FilterByBalance:      opts.FilterByBalance && !isDestination,
			IsCancelled:          opts.OnCancel,
			PreloadedAddresses:   found.fetched[chain.ID],
			Destination:          isDestination,
		})
		s.metrics.ObservePhase(models.PhaseProcessingAccounts, started)
		if err != nil {
			return one, err
		}
		completed.put(chain.ID, one.Snapshot)
		s.metrics.ChainFinished(one.Snapshot.State.Status())
		tracker.tick()
		opts.chainComplete(one.Snapshot, one.DestinationAddresses)
		return one, nil
	}

	var destinationAddresses []string
	others := pending
	if len(pending) > 0 && pending[0].ID == destination.ID {
		others = pending[1:]
		one, err := enrich(destination, nil, true)
		if err != nil {
			if syncerr.IsCancelled(err) {
				result.Cancelled = true
				result.Snapshots = assemble(found.reached, completed)
				result.Destination = destinationOf(result.Snapshots, destination.ID)
				return result, nil
			}
			return result, err
		}
		if one.Snapshot.State.Status() == models.StatusSynchronized {
			destinationAddresses = one.DestinationAddresses
		} else {
			logger.Warn("Destination chain %s failed, continuing without destination addresses", destination.ID)
		}
	}

	err = fanOut(others, func(chain models.ChainConfig) error {
		_, err := enrich(chain, destinationAddresses, false)
		return err
	})
	switch {
	case syncerr.IsCancelled(err):
		logger.Info("Synchronization cancelled during account processing")
		result.Cancelled = true
	case err != nil:
		return result, err
	}

	result.Snapshots = assemble(found.reached, completed)
	result.Destination = destinationOf(result.Snapshots, destination.ID)
	return result, nil
}

// assemble orders the completed snapshots by configuration, destination first
func assemble(reached []models.ChainConfig, completed *resultSet[models.ChainSnapshot]) []models.ChainSnapshot {
	snapshots := make([]models.ChainSnapshot, 0, len(reached))
	for _, chain := range reached {
		if snapshot, ok := completed.get(chain.ID); ok {
			snapshots = append(snapshots, snapshot)
		}
	}
	return snapshots
}

func destinationOf(snapshots []models.ChainSnapshot, id string) *models.ChainSnapshot {
	for i := range snapshots {
		if snapshots[i].ID == id {
			snapshot := snapshots[i]
			return &snapshot
		}
	}
	return nil
}
