package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"pixcashier/core/types"
	"pixcashier/crypto"
)

const (
	TypeCashIn          = "cashier.cashin"
	TypeCashOutRequest  = "cashier.cashout.requested"
	TypeCashOutConfirm  = "cashier.cashout.confirmed"
	TypeCashOutReversal = "cashier.cashout.reversed"
)

// CashIn is emitted when newly issued tokens are credited to an account.
type CashIn struct {
	Account [20]byte
	Amount  *big.Int
	TxID    [32]byte
}

func (CashIn) EventType() string { return TypeCashIn }

func (e CashIn) Event() *types.Event {
	return &types.Event{
		Type: TypeCashIn,
		Attributes: map[string]string{
			"account": crypto.NewAddress(crypto.PixPrefix, e.Account).String(),
			"amount":  formatAmount(e.Amount),
			"txId":    hex.EncodeToString(e.TxID[:]),
		},
	}
}

// CashOutRequested is emitted when a cash-out cycle opens and the requested
// amount moves into custody.
type CashOutRequested struct {
	Account [20]byte
	Amount  *big.Int
	Balance *big.Int
	TxID    [32]byte
}

func (CashOutRequested) EventType() string { return TypeCashOutRequest }

func (e CashOutRequested) Event() *types.Event {
	return cashOutEvent(TypeCashOutRequest, e.Account, e.Amount, e.Balance, e.TxID)
}

// CashOutConfirmed is emitted when a pending cash-out settles and the escrowed
// tokens are burned.
type CashOutConfirmed struct {
	Account [20]byte
	Amount  *big.Int
	Balance *big.Int
	TxID    [32]byte
}

func (CashOutConfirmed) EventType() string { return TypeCashOutConfirm }

func (e CashOutConfirmed) Event() *types.Event {
	return cashOutEvent(TypeCashOutConfirm, e.Account, e.Amount, e.Balance, e.TxID)
}

// CashOutReversed is emitted when a pending cash-out is cancelled and the
// escrowed tokens return to their owner.
type CashOutReversed struct {
	Account [20]byte
	Amount  *big.Int
	Balance *big.Int
	TxID    [32]byte
}

func (CashOutReversed) EventType() string { return TypeCashOutReversal }

func (e CashOutReversed) Event() *types.Event {
	return cashOutEvent(TypeCashOutReversal, e.Account, e.Amount, e.Balance, e.TxID)
}

func cashOutEvent(eventType string, account [20]byte, amount, balance *big.Int, txID [32]byte) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"account": crypto.NewAddress(crypto.PixPrefix, account).String(),
			"amount":  formatAmount(amount),
			"balance": formatAmount(balance),
			"txId":    hex.EncodeToString(txID[:]),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
