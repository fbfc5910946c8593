package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kelsos/ledger-sync/internal/cancel"
	"github.com/kelsos/ledger-sync/internal/ledger"
	"github.com/kelsos/ledger-sync/internal/logger"
	"github.com/kelsos/ledger-sync/internal/models"
	"github.com/kelsos/ledger-sync/internal/syncerr"
)

// DefaultAccountCount is the size of the standard account index range
const DefaultAccountCount = 5

// AddressFetcher pulls derived addresses from the device for one chain at a time
type AddressFetcher struct {
	device       ledger.Device
	accountCount uint32
	// the device has one channel for the whole process
	exchange sync.Mutex
}

// NewAddressFetcher creates a fetcher over the device; accountCount <= 0 uses the default range
func NewAddressFetcher(device ledger.Device, accountCount int) *AddressFetcher {
	if accountCount <= 0 {
		accountCount = DefaultAccountCount
	}
	return &AddressFetcher{
		device:       device,
		accountCount: uint32(accountCount),
	}
}

// FetchDefault fetches the standard index range of the chain
func (f *AddressFetcher) FetchDefault(ctx context.Context, chain models.ChainConfig, isCancelled cancel.Predicate) ([]models.Account, error) {
	accountIndices := make([]uint32, 0, f.accountCount)
	for i := uint32(0); i < f.accountCount; i++ {
		accountIndices = append(accountIndices, i)
	}
	return f.fetch(ctx, chain, accountIndices, []uint32{0}, isCancelled)
}

// FetchIndexed fetches every (account, address) index combination. Finding nothing is not an error.
func (f *AddressFetcher) FetchIndexed(ctx context.Context, chain models.ChainConfig, accountIndices, addressIndices []uint32, isCancelled cancel.Predicate) ([]models.Account, error) {
	return f.fetch(ctx, chain, accountIndices, addressIndices, isCancelled)
}

func (f *AddressFetcher) fetch(ctx context.Context, chain models.ChainConfig, accountIndices, addressIndices []uint32, isCancelled cancel.Predicate) ([]models.Account, error) {
	if err := isCancelled.Check(chain.ID); err != nil {
		return nil, err
	}

	template, err := models.ParsePath(chain.BIP44Path)
	if err != nil {
		return nil, syncerr.Fetch(chain.ID, err)
	}

	f.exchange.Lock()
	defer f.exchange.Unlock()

	logger.Debug("Fetching %d addresses for chain %s", len(accountIndices)*len(addressIndices), chain.ID)

	accounts := make([]models.Account, 0, len(accountIndices)*len(addressIndices))
	for _, accountIndex := range accountIndices {
		for _, addressIndex := range addressIndices {
			// one exchange per address; each one is a checkpoint
			if err := isCancelled.Check(chain.ID); err != nil {
				return nil, err
			}

			path := template.WithIndices(accountIndex, addressIndex)
			if err := path.Validate(); err != nil {
				return nil, syncerr.Fetch(chain.ID, err)
			}
			address, err := f.device.GetAddress(ctx, path, chain.SS58Prefix)
			if err != nil {
				return nil, classify(chain.ID, path, err)
			}

			accounts = append(accounts, models.Account{
				Address:   address.Address,
				Path:      path.String(),
				PublicKey: address.PublicKeyHex(),
				Balances:  []models.Balance{},
			})
		}
	}

	return models.UniqueAccounts(accounts), nil
}

func classify(chainID string, path models.DerivationPath, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return syncerr.Cancelled(chainID)
	}
	if syncerr.IsCancelled(err) {
		return err
	}
	return syncerr.Fetch(chainID, fmt.Errorf("path %s: %w", path, err))
}
