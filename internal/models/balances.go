package models

import "math/big"

type BalanceType string

const (
	BalanceNative   BalanceType = "native"
	BalanceUniques  BalanceType = "uniques"
	BalanceNFT      BalanceType = "nfts"
	BalanceReserved BalanceType = "reserved"
	BalanceFrozen   BalanceType = "frozen"
)

// Balance is an amount in the smallest unit of the token
type Balance struct {
	Type   BalanceType `json:"type"`
	Symbol string      `json:"symbol"`
	Amount string      `json:"amount"`
}

// IsZero reports whether the amount is missing, unparsable or zero
func (b Balance) IsZero() bool {
	amount, ok := new(big.Int).SetString(b.Amount, 10)
	return !ok || amount.Sign() == 0
}

// HasFunds reports whether any balance of the account is non-zero
func HasFunds(balances []Balance) bool {
	for _, balance := range balances {
		if !balance.IsZero() {
			return true
		}
	}
	return false
}
