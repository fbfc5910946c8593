package blockchain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/kelsos/ledger-sync/internal/client"
	"github.com/kelsos/ledger-sync/internal/ledger"
	"github.com/kelsos/ledger-sync/internal/logger"
	"github.com/kelsos/ledger-sync/internal/models"
)

// twox128("System") ++ twox128("Account")
const systemAccountPrefix = "26aa394eea5630e07c48ae0c9558cef7b99d880ec681799c0cf30e8886371da9"

const (
	u32Size  = 4
	u128Size = 16
	// nonce, consumers, providers, sufficients
	accountInfoHeader = 4 * u32Size
	// nonce, consumers, providers
	legacyAccountInfoHeader = 3 * u32Size
	// free, reserved, frozen, flags
	accountDataSize = 4 * u128Size
)

// AccountData is the balance part of System.Account
type AccountData struct {
	Free     *big.Int
	Reserved *big.Int
	Frozen   *big.Int
}

// SystemAccountKey builds the storage key of System.Account for a public key
func SystemAccountKey(publicKey []byte) (string, error) {
	hasher, err := blake2b.New(16, nil)
	if err != nil {
		return "", err
	}
	hasher.Write(publicKey)

	return "0x" + systemAccountPrefix + hex.EncodeToString(hasher.Sum(nil)) + hex.EncodeToString(publicKey), nil
}

func decodeU128(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i := range le {
		be[len(le)-1-i] = le[i]
	}
	return new(big.Int).SetBytes(be)
}

// DecodeAccountInfo decodes the SCALE encoded AccountInfo returned by state_getStorage
func DecodeAccountInfo(encoded string) (AccountData, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
	if err != nil {
		return AccountData{}, fmt.Errorf("invalid storage hex: %w", err)
	}

	var header int
	switch len(raw) {
	case accountInfoHeader + accountDataSize:
		header = accountInfoHeader
	case legacyAccountInfoHeader + accountDataSize:
		header = legacyAccountInfoHeader
	default:
		return AccountData{}, fmt.Errorf("unexpected AccountInfo length %d", len(raw))
	}

	data := raw[header:]
	return AccountData{
		Free:     decodeU128(data[0:u128Size]),
		Reserved: decodeU128(data[u128Size : 2*u128Size]),
		Frozen:   decodeU128(data[2*u128Size : 3*u128Size]),
	}, nil
}

// BalanceEnricher reads native balances from System.Account storage
type BalanceEnricher struct{}

func NewBalanceEnricher() *BalanceEnricher {
	return &BalanceEnricher{}
}

// FetchAccountData queries the balance of one address; a missing account has zero balance
func FetchAccountData(ctx context.Context, conn client.Conn, address string) (AccountData, error) {
	publicKey, _, err := ledger.DecodeSS58(address)
	if err != nil {
		return AccountData{}, err
	}

	storageKey, err := SystemAccountKey(publicKey)
	if err != nil {
		return AccountData{}, err
	}

	var encoded *string
	if err := conn.Call(ctx, "state_getStorage", &encoded, storageKey); err != nil {
		return AccountData{}, err
	}
	if encoded == nil {
		return AccountData{Free: new(big.Int), Reserved: new(big.Int), Frozen: new(big.Int)}, nil
	}
	return DecodeAccountInfo(*encoded)
}

func balancesOf(data AccountData, symbol string) []models.Balance {
	balances := []models.Balance{{Type: models.BalanceNative, Symbol: symbol, Amount: data.Free.String()}}
	if data.Reserved.Sign() > 0 {
		balances = append(balances, models.Balance{Type: models.BalanceReserved, Symbol: symbol, Amount: data.Reserved.String()})
	}
	if data.Frozen.Sign() > 0 {
		balances = append(balances, models.Balance{Type: models.BalanceFrozen, Symbol: symbol, Amount: data.Frozen.String()})
	}
	return balances
}

// Enrich attaches balances to every account. A failing query for one account becomes that
// account's error; transport failures fail the whole chain.
func (e *BalanceEnricher) Enrich(ctx context.Context, conn client.Conn, req EnrichRequest) (EnrichResult, error) {
	accounts := make([]models.Account, 0, len(req.Accounts))

	for _, account := range req.Accounts {
		data, err := FetchAccountData(ctx, conn, account.Address)
		if err != nil {
			var rpcErr *client.RPCError
			if !errors.As(err, &rpcErr) {
				return EnrichResult{}, fmt.Errorf("failed to fetch balance of %s: %w", account.Address, err)
			}

			logger.Warn("Balance query for %s on %s failed: %v", account.Address, req.Chain.ID, err)
			account.Balances = []models.Balance{}
			account.Error = &models.ChainError{
				Source:      models.ErrorSourceSynchronization,
				Description: fmt.Sprintf("failed to fetch balance: %v", err),
			}
			accounts = append(accounts, account)
			continue
		}

		account.Balances = balancesOf(data, req.Chain.Token.Symbol)
		if req.FilterByBalance && !models.HasFunds(account.Balances) {
			logger.Debug("Skipping %s on %s, no funds", account.Address, req.Chain.ID)
			continue
		}
		accounts = append(accounts, account)
	}

	destinations := pairDestinations(accounts, req.DestinationAddresses, req.Destination)

	logger.Info("Enriched %d accounts for chain %s", len(accounts), req.Chain.ID)

	return EnrichResult{
		Accounts:             accounts,
		MultisigAccounts:     []models.MultisigAccount{},
		DestinationAddresses: destinations,
	}, nil
}

// pairDestinations assigns destination addresses by position. Accounts of the destination
// chain are their own destinations. Without destinations nothing is assigned.
func pairDestinations(accounts []models.Account, destinations []string, self bool) []string {
	used := make([]string, 0, len(accounts))
	for i := range accounts {
		if self {
			accounts[i].DestinationAddress = accounts[i].Address
		} else if len(destinations) == 0 {
			continue
		} else if i < len(destinations) {
			accounts[i].DestinationAddress = destinations[i]
		} else {
			accounts[i].DestinationAddress = destinations[0]
		}
		used = append(used, accounts[i].DestinationAddress)
	}
	return used
}
