package services

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/kelsos/ledger-sync/internal/blockchain"
	"github.com/kelsos/ledger-sync/internal/cancel"
	"github.com/kelsos/ledger-sync/internal/client"
	"github.com/kelsos/ledger-sync/internal/config"
	"github.com/kelsos/ledger-sync/internal/models"
)

type fakeFetcher struct {
	mu       sync.Mutex
	accounts map[string][]models.Account
	indexed  map[string][]models.Account
	fail     map[string]error
	calls    []string
	onFetch  func(chainID string)

	inFlight   atomic.Int32
	overlapped atomic.Bool
}

func (f *fakeFetcher) FetchDefault(_ context.Context, chain models.ChainConfig, _ cancel.Predicate) ([]models.Account, error) {
	return f.fetch(chain, f.accounts)
}

func (f *fakeFetcher) FetchIndexed(_ context.Context, chain models.ChainConfig, _, _ []uint32, _ cancel.Predicate) ([]models.Account, error) {
	return f.fetch(chain, f.indexed)
}

func (f *fakeFetcher) fetch(chain models.ChainConfig, source map[string][]models.Account) ([]models.Account, error) {
	if f.inFlight.Inc() > 1 {
		f.overlapped.Store(true)
	}
	defer f.inFlight.Dec()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, chain.ID)
	if f.onFetch != nil {
		f.onFetch(chain.ID)
	}
	if err := f.fail[chain.ID]; err != nil {
		return nil, err
	}
	return append([]models.Account{}, source[chain.ID]...), nil
}

type fakeConn struct {
	endpoint string
	closed   *atomic.Int32
}

func (c *fakeConn) Call(context.Context, string, interface{}, ...interface{}) error { return nil }
func (c *fakeConn) Endpoint() string                                               { return c.endpoint }
func (c *fakeConn) Close() error {
	c.closed.Inc()
	return nil
}

type fakeConnector struct {
	fail   map[string]error
	opened atomic.Int32
	closed atomic.Int32
}

func (c *fakeConnector) Open(_ context.Context, endpoints []string) (client.Conn, error) {
	if err := c.fail[endpoints[0]]; err != nil {
		return nil, err
	}
	c.opened.Inc()
	return &fakeConn{endpoint: endpoints[0], closed: &c.closed}, nil
}

type fakeEnricher struct {
	mu       sync.Mutex
	fail     map[string]error
	hook     func(chainID string)
	requests map[string]blockchain.EnrichRequest
}

func (e *fakeEnricher) Enrich(_ context.Context, _ client.Conn, req blockchain.EnrichRequest) (blockchain.EnrichResult, error) {
	if e.hook != nil {
		e.hook(req.Chain.ID)
	}

	e.mu.Lock()
	if e.requests == nil {
		e.requests = make(map[string]blockchain.EnrichRequest)
	}
	e.requests[req.Chain.ID] = req
	err := e.fail[req.Chain.ID]
	e.mu.Unlock()

	if err != nil {
		return blockchain.EnrichResult{}, err
	}

	accounts := append([]models.Account{}, req.Accounts...)
	destinations := []string{}
	for i := range accounts {
		if req.Destination {
			accounts[i].DestinationAddress = accounts[i].Address
		} else if len(req.DestinationAddresses) > 0 {
			accounts[i].DestinationAddress = req.DestinationAddresses[0]
		}
		if accounts[i].DestinationAddress != "" {
			destinations = append(destinations, accounts[i].DestinationAddress)
		}
	}
	return blockchain.EnrichResult{
		Accounts:             accounts,
		MultisigAccounts:     []models.MultisigAccount{},
		DestinationAddresses: destinations,
	}, nil
}

func (e *fakeEnricher) request(chainID string) (blockchain.EnrichRequest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok := e.requests[chainID]
	return req, ok
}

func testChain(id string, coin int, endpoints ...string) models.ChainConfig {
	return models.ChainConfig{
		ID:           id,
		Name:         id,
		RPCEndpoints: endpoints,
		Token:        models.Token{Symbol: "TKN", Decimals: 10},
		BIP44Path:    fmt.Sprintf("m/44'/%d'/0'/0'/0'", coin),
	}
}

func testAccounts(chainID string, n int) []models.Account {
	accounts := make([]models.Account, 0, n)
	for i := 0; i < n; i++ {
		accounts = append(accounts, models.Account{
			Address: fmt.Sprintf("%s-%d", chainID, i),
			Path:    fmt.Sprintf("m/44'/0'/%d'/0'/0'", i),
		})
	}
	return accounts
}

type fixture struct {
	registry  *config.Registry
	fetcher   *fakeFetcher
	connector *fakeConnector
	enricher  *fakeEnricher
	service   *SyncService
}

// newFixture builds a service whose first chain is the destination and where every chain
// has two default accounts
func newFixture(chains ...models.ChainConfig) *fixture {
	f := &fixture{
		registry:  &config.Registry{Destination: chains[0].ID, Chains: chains},
		fetcher:   &fakeFetcher{accounts: map[string][]models.Account{}, indexed: map[string][]models.Account{}, fail: map[string]error{}},
		connector: &fakeConnector{fail: map[string]error{}},
		enricher:  &fakeEnricher{fail: map[string]error{}},
	}
	for _, chain := range chains {
		f.fetcher.accounts[chain.ID] = testAccounts(chain.ID, 2)
	}
	f.service = NewSyncService(f.registry, f.fetcher, f.connector, f.enricher, nil, nil)
	return f
}

func synchronized(chain models.ChainConfig, addresses ...string) models.ChainSnapshot {
	accounts := make([]models.Account, 0, len(addresses))
	for _, address := range addresses {
		accounts = append(accounts, models.Account{Address: address})
	}
	snapshot, _ := models.NewSnapshot(chain).Transition(models.AddressesFetched())
	snapshot, _ = snapshot.WithAccounts(accounts, nil, nil).Transition(models.Synchronized())
	return snapshot
}

func byID(snapshots []models.ChainSnapshot) map[string]models.ChainSnapshot {
	indexed := make(map[string]models.ChainSnapshot, len(snapshots))
	for _, snapshot := range snapshots {
		indexed[snapshot.ID] = snapshot
	}
	return indexed
}
