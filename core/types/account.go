package types

import "math/big"

// Account holds the token balance tracked for a single address. The settlement
// engines never touch balances directly; custody mutates them on their behalf.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// EnsureAccount normalises a possibly-nil account into one with a non-nil
// balance so arithmetic never has to branch on nil.
func EnsureAccount(acc *Account) *Account {
	if acc == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}
