package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kelsos/ledger-sync/internal/models"
)

// Registry is the static list of chains taking part in the migration
type Registry struct {
	Destination string               `yaml:"destination"`
	Chains      []models.ChainConfig `yaml:"chains"`
}

// LoadRegistry reads and validates a YAML chain registry
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain registry: %w", err)
	}

	var registry Registry
	if err := yaml.Unmarshal(raw, &registry); err != nil {
		return nil, fmt.Errorf("parse chain registry: %w", err)
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return &registry, nil
}

// Validate checks id uniqueness, the destination chain and every derivation path
func (r *Registry) Validate() error {
	if len(r.Chains) == 0 {
		return fmt.Errorf("chain registry is empty")
	}

	seen := make(map[string]struct{}, len(r.Chains))
	for _, chain := range r.Chains {
		if chain.ID == "" {
			return fmt.Errorf("chain %q has no id", chain.Name)
		}
		if _, exists := seen[chain.ID]; exists {
			return fmt.Errorf("duplicate chain id %q", chain.ID)
		}
		seen[chain.ID] = struct{}{}

		if _, err := models.ParsePath(chain.BIP44Path); err != nil {
			return fmt.Errorf("chain %s: %w", chain.ID, err)
		}
	}

	if _, exists := seen[r.Destination]; !exists {
		return fmt.Errorf("destination chain %q is not in the registry", r.Destination)
	}
	return nil
}

// DestinationChain returns the chain whose addresses receive migrated funds
func (r *Registry) DestinationChain() models.ChainConfig {
	chain, _ := r.Chain(r.Destination)
	return chain
}

// Chain looks a chain up by id
func (r *Registry) Chain(id string) (models.ChainConfig, bool) {
	for _, chain := range r.Chains {
		if chain.ID == id {
			return chain, true
		}
	}
	return models.ChainConfig{}, false
}

// Partition splits the chains into the destination, the chains that need migration and the
// chains sharing the destination's derivation path, keeping configuration order
func (r *Registry) Partition() (models.ChainConfig, []models.ChainConfig, []models.ChainConfig) {
	destination := r.DestinationChain()

	var migrate, skipped []models.ChainConfig
	for _, chain := range r.Chains {
		if chain.ID == destination.ID {
			continue
		}
		if models.SamePath(chain.BIP44Path, destination.BIP44Path) {
			skipped = append(skipped, chain)
			continue
		}
		migrate = append(migrate, chain)
	}
	return destination, migrate, skipped
}

// DefaultRegistry is used when no registry file is configured
func DefaultRegistry() *Registry {
	return &Registry{
		Destination: "polkadot",
		Chains: []models.ChainConfig{
			{ID: "polkadot", Name: "Polkadot", RPCEndpoints: []string{"wss://rpc.polkadot.io", "wss://polkadot-rpc.dwellir.com"}, Token: models.Token{Symbol: "DOT", Decimals: 10}, BIP44Path: "m/44'/354'/0'/0'/0'", SS58Prefix: 0},
			{ID: "kusama", Name: "Kusama", RPCEndpoints: []string{"wss://kusama-rpc.polkadot.io", "wss://kusama-rpc.dwellir.com"}, Token: models.Token{Symbol: "KSM", Decimals: 12}, BIP44Path: "m/44'/434'/0'/0'/0'", SS58Prefix: 2},
			{ID: "polkadot-asset-hub", Name: "Polkadot Asset Hub", RPCEndpoints: []string{"wss://polkadot-asset-hub-rpc.polkadot.io"}, Token: models.Token{Symbol: "DOT", Decimals: 10}, BIP44Path: "m/44'/354'/0'/0'/0'", SS58Prefix: 0},
			{ID: "acala", Name: "Acala", RPCEndpoints: []string{"wss://acala-rpc.dwellir.com"}, Token: models.Token{Symbol: "ACA", Decimals: 12}, BIP44Path: "m/44'/787'/0'/0'/0'", SS58Prefix: 10},
			{ID: "astar", Name: "Astar", RPCEndpoints: []string{"wss://rpc.astar.network"}, Token: models.Token{Symbol: "ASTR", Decimals: 18}, BIP44Path: "m/44'/810'/0'/0'/0'", SS58Prefix: 5},
			{ID: "centrifuge", Name: "Centrifuge", RPCEndpoints: []string{"wss://fullnode.centrifuge.io"}, Token: models.Token{Symbol: "CFG", Decimals: 18}, BIP44Path: "m/44'/747'/0'/0'/0'", SS58Prefix: 36},
			{ID: "edgeware", Name: "Edgeware", RPCEndpoints: []string{"wss://edgeware-rpc.dwellir.com"}, Token: models.Token{Symbol: "EDG", Decimals: 18}, BIP44Path: "m/44'/523'/0'/0'/0'", SS58Prefix: 7},
			{ID: "nodle", Name: "Nodle", RPCEndpoints: []string{"wss://nodle-parachain.api.onfinality.io/public-ws"}, Token: models.Token{Symbol: "NODL", Decimals: 11}, BIP44Path: "m/44'/1003'/0'/0'/0'", SS58Prefix: 37},
		},
	}
}
