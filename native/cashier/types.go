package cashier

import (
	"math/big"
)

// CashOutStatus represents the lifecycle states of a cash-out operation. The
// zero value means the transaction identifier has never opened a cycle.
type CashOutStatus uint8

const (
	CashOutNonexistent CashOutStatus = iota
	CashOutPending
	CashOutReversed
	CashOutConfirmed
)

// String renders the status for diagnostics and event payloads.
func (s CashOutStatus) String() string {
	switch s {
	case CashOutNonexistent:
		return "nonexistent"
	case CashOutPending:
		return "pending"
	case CashOutReversed:
		return "reversed"
	case CashOutConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Valid reports whether the status value is within the supported range.
func (s CashOutStatus) Valid() bool {
	switch s {
	case CashOutNonexistent, CashOutPending, CashOutReversed, CashOutConfirmed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status ends a cycle. Terminal records stay in
// the ledger for audit and may be overwritten by a fresh request, opening a
// new cycle under the same identifier.
func (s CashOutStatus) Terminal() bool {
	return s == CashOutReversed || s == CashOutConfirmed
}

// CashOut is the authoritative record of a single cash-out cycle, keyed by
// the caller-supplied off-chain transaction identifier.
type CashOut struct {
	TxID    [32]byte
	Account [20]byte
	Amount  *big.Int
	Status  CashOutStatus
}

// Clone returns a deep copy so callers can safely mutate the result without
// affecting the stored record.
func (c *CashOut) Clone() *CashOut {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Amount != nil {
		clone.Amount = new(big.Int).Set(c.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}
