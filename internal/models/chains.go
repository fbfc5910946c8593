package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Token is the native token of a chain
type Token struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals int    `json:"decimals" yaml:"decimals"`
}

// ChainConfig describes one chain participating in the migration
type ChainConfig struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	RPCEndpoints []string `json:"rpc_endpoints" yaml:"rpc_endpoints"`
	Token        Token    `json:"token" yaml:"token"`
	// BIP44Path is the template used for the first derived account, e.g. m/44'/434'/0'/0'/0'
	BIP44Path  string `json:"bip44_path" yaml:"bip44_path"`
	SS58Prefix uint16 `json:"ss58_prefix" yaml:"ss58_prefix"`
}

// HasEndpoint reports whether at least one non-empty RPC endpoint is configured
func (c ChainConfig) HasEndpoint() bool {
	for _, endpoint := range c.RPCEndpoints {
		if strings.TrimSpace(endpoint) != "" {
			return true
		}
	}
	return false
}

// MaxPathIndex is the largest index a hardened path level can hold
const MaxPathIndex = 1<<31 - 1

var pathRegex = regexp.MustCompile(`^m(/[0-9]+')+$`)

// DerivationPath is a fully hardened BIP-44 path
type DerivationPath []uint32

// ParsePath parses a hardened path like m/44'/354'/0'/0'/0'
func ParsePath(path string) (DerivationPath, error) {
	if !pathRegex.MatchString(path) {
		return nil, fmt.Errorf("invalid derivation path %q", path)
	}

	segments := strings.Split(path, "/")[1:]
	parsed := make(DerivationPath, 0, len(segments))
	for _, segment := range segments {
		index, err := strconv.ParseUint(strings.TrimSuffix(segment, "'"), 10, 31)
		if err != nil {
			return nil, fmt.Errorf("invalid path segment %q in %q: %w", segment, path, err)
		}
		parsed = append(parsed, uint32(index))
	}

	if len(parsed) != 5 {
		return nil, fmt.Errorf("derivation path %q must have 5 levels, got %d", path, len(parsed))
	}
	return parsed, nil
}

// CoinType returns the BIP-44 coin type level
func (p DerivationPath) CoinType() uint32 {
	return p[1]
}

// WithIndices returns a copy of the path with the account and address levels replaced
func (p DerivationPath) WithIndices(account, address uint32) DerivationPath {
	derived := make(DerivationPath, len(p))
	copy(derived, p)
	derived[2] = account
	derived[4] = address
	return derived
}

// Validate checks the level count and that every level fits a hardened index
func (p DerivationPath) Validate() error {
	if len(p) != 5 {
		return fmt.Errorf("derivation path %s must have 5 levels, got %d", p, len(p))
	}
	for _, index := range p {
		if index > MaxPathIndex {
			return fmt.Errorf("derivation path %s: index %d exceeds %d", p, index, MaxPathIndex)
		}
	}
	return nil
}

func (p DerivationPath) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, index := range p {
		b.WriteString("/")
		b.WriteString(strconv.FormatUint(uint64(index), 10))
		b.WriteString("'")
	}
	return b.String()
}

// SamePath reports whether two path templates derive the same keys, which makes a migration
// between the chains pointless
func SamePath(a, b string) bool {
	pa, errA := ParsePath(a)
	pb, errB := ParsePath(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return pa.String() == pb.String()
}
