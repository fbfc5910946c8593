package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kelsos/ledger-sync/internal/cancel"
	"github.com/kelsos/ledger-sync/internal/logger"
	"github.com/kelsos/ledger-sync/internal/models"
	"github.com/kelsos/ledger-sync/internal/syncerr"
)

func (s *SyncService) partition() (models.ChainConfig, []models.ChainConfig, []models.ChainConfig) {
	return s.registry.Partition()
}

func skippedSnapshot(chain models.ChainConfig) models.ChainSnapshot {
	snapshot, _ := models.NewSnapshot(chain).Transition(models.NoNeedMigration())
	return snapshot
}

// discovery is the outcome of phase one. discovered holds the ADDRESSES_FETCHED snapshot of
// every fetched chain.
type discovery struct {
	fetched    map[string][]models.Account
	discovered map[string]models.ChainSnapshot
	failed     map[string]models.ChainSnapshot
	reached    []models.ChainConfig
	cancelled  bool
}

type discoverHooks struct {
	start  func(models.ChainConfig) models.ChainSnapshot
	fetch  func(context.Context, models.ChainConfig) ([]models.Account, error)
	failed func(models.ChainSnapshot)
	report func(models.SyncProgress)
}

// discover pulls addresses from the device one chain at a time. A chain whose fetch fails is
// recorded and the loop goes on; a cancellation stops the loop and leaves the remaining chains
// out of the result.
func (s *SyncService) discover(ctx context.Context, chains []models.ChainConfig, isCancelled cancel.Predicate, hooks discoverHooks) (discovery, error) {
	d := discovery{
		fetched:    make(map[string][]models.Account, len(chains)),
		discovered: make(map[string]models.ChainSnapshot, len(chains)),
		failed:     make(map[string]models.ChainSnapshot),
	}

	tracker := newProgressTracker(models.PhaseFetchingAddresses, 0, 50, len(chains), hooks.report, s.metrics)

loop:
	for _, chain := range chains {
		if isCancelled.Requested() {
			logger.Info("Address discovery cancelled before chain %s", chain.ID)
			d.cancelled = true
			break
		}

		snapshot := hooks.start(chain)
		started := time.Now()
		accounts, err := hooks.fetch(ctx, chain)
		s.metrics.ObservePhase(models.PhaseFetchingAddresses, started)

		switch {
		case err == nil:
			fetched, terr := snapshot.Transition(models.AddressesFetched())
			if terr != nil {
				return d, syncerr.Unexpected(chain.ID, terr)
			}
			if accounts == nil {
				accounts = []models.Account{}
			}
			d.fetched[chain.ID] = accounts
			d.discovered[chain.ID] = fetched.WithAccounts(accounts, nil, nil)
			logger.Info("Fetched %d addresses for chain %s", len(accounts), chain.ID)

		case syncerr.IsCancelled(err):
			logger.Info("Address discovery cancelled during chain %s", chain.ID)
			d.cancelled = true
			break loop

		case syncerr.KindOf(err) == syncerr.KindFetch:
			logger.Error("Failed to fetch addresses for chain %s: %v", chain.ID, err)
			failed, terr := snapshot.Transition(models.Failed(models.ErrorSourceSynchronization, "failed to fetch addresses: "+describe(err)))
			if terr != nil {
				return d, syncerr.Unexpected(chain.ID, terr)
			}
			d.failed[chain.ID] = failed
			hooks.failed(failed)

		default:
			return d, syncerr.Unexpected(chain.ID, err)
		}

		d.reached = append(d.reached, chain)
		tracker.tick()
	}

	return d, nil
}

// fanOut runs one goroutine per chain. When a task reports a cancellation the join returns at
// once; the other tasks keep running and finish in the background.
func fanOut(chains []models.ChainConfig, run func(models.ChainConfig) error) error {
	var g errgroup.Group
	cancelled := make(chan struct{})
	var once sync.Once

	for _, chain := range chains {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = syncerr.Unexpected(chain.ID, fmt.Errorf("panic: %v", r))
				}
				if syncerr.IsCancelled(err) {
					once.Do(func() { close(cancelled) })
				}
			}()
			return run(chain)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-cancelled:
		return syncerr.Cancelled("")
	}
}

// resultSet collects per-chain results written by concurrent tasks
type resultSet[T any] struct {
	mu      sync.Mutex
	results map[string]T
}

func newResultSet[T any]() *resultSet[T] {
	return &resultSet[T]{results: make(map[string]T)}
}

func (r *resultSet[T]) put(chainID string, result T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[chainID] = result
}

func (r *resultSet[T]) get(chainID string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.results[chainID]
	return result, ok
}

func describe(err error) string {
	var classified *syncerr.Error
	if errors.As(err, &classified) {
		return classified.Description()
	}
	return err.Error()
}
