package state

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrInsufficientBalance is wrapped by Burn and TransferFrom when the source
// account cannot cover the amount; callers detect it with errors.Is.
var ErrInsufficientBalance = errors.New("custody: insufficient balance")

var supplyKey = []byte("state/supply")

// TokenCustody executes supply changes and transfers against managed
// accounts. It satisfies the custody interfaces consumed by the settlement
// engines; the engines themselves never touch balances.
type TokenCustody struct {
	state *Manager
	vault [20]byte
}

// NewTokenCustody binds custody to the state manager, with vault holding the
// escrowed cash-out funds.
func NewTokenCustody(state *Manager, vault [20]byte) *TokenCustody {
	return &TokenCustody{state: state, vault: vault}
}

// Vault returns the address holding escrowed funds.
func (c *TokenCustody) Vault() [20]byte {
	return c.vault
}

// Mint credits newly issued tokens to the account and grows total supply.
func (c *TokenCustody) Mint(to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	acc, err := c.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	if err := c.state.PutAccount(to[:], acc); err != nil {
		return err
	}
	return c.adjustSupply(amount)
}

// Burn destroys tokens held by the vault and shrinks total supply.
func (c *TokenCustody) Burn(amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	acc, err := c.state.GetAccount(c.vault[:])
	if err != nil {
		return err
	}
	if acc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("vault balance %s below burn amount %s: %w", acc.Balance, amount, ErrInsufficientBalance)
	}
	acc.Balance = new(big.Int).Sub(acc.Balance, amount)
	if err := c.state.PutAccount(c.vault[:], acc); err != nil {
		return err
	}
	return c.adjustSupply(new(big.Int).Neg(amount))
}

// Transfer moves tokens out of the vault to the recipient.
func (c *TokenCustody) Transfer(to [20]byte, amount *big.Int) error {
	return c.TransferFrom(c.vault, to, amount)
}

// TransferFrom moves tokens between two accounts, failing when the source
// balance cannot cover the amount.
func (c *TokenCustody) TransferFrom(from, to [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	fromAcc, err := c.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("balance %s below transfer amount %s: %w", fromAcc.Balance, amount, ErrInsufficientBalance)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	if err := c.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	toAcc, err := c.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	return c.state.PutAccount(to[:], toAcc)
}

// BalanceOf reports the token balance held by addr.
func (c *TokenCustody) BalanceOf(addr [20]byte) (*big.Int, error) {
	acc, err := c.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Balance), nil
}

// TotalSupply reports the outstanding token supply minted through custody.
func (c *TokenCustody) TotalSupply() (*big.Int, error) {
	supply := new(big.Int)
	ok, err := c.state.KVGet(supplyKey, supply)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return supply, nil
}

func (c *TokenCustody) adjustSupply(delta *big.Int) error {
	supply, err := c.TotalSupply()
	if err != nil {
		return err
	}
	next := new(big.Int).Add(supply, delta)
	if next.Sign() < 0 {
		return fmt.Errorf("custody: supply underflow")
	}
	return c.state.KVPut(supplyKey, next)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("custody: amount must be positive")
	}
	return nil
}
