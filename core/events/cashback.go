package events

import (
	"encoding/hex"
	"math/big"
	"strings"

	"pixcashier/core/types"
	"pixcashier/crypto"
)

const (
	TypeCashbackRateUpdated = "cashback.rate.updated"
	TypeCashbackSent        = "cashback.sent"
	TypeCashbackBypassed    = "cashback.bypassed"
)

// CashbackRateUpdated is emitted whenever the payout multiplier is rewritten.
type CashbackRateUpdated struct {
	OldRate uint64
	NewRate uint64
}

func (CashbackRateUpdated) EventType() string { return TypeCashbackRateUpdated }

func (e CashbackRateUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeCashbackRateUpdated,
		Attributes: map[string]string{
			"oldRate": formatUint(e.OldRate),
			"newRate": formatUint(e.NewRate),
		},
	}
}

// CashbackSent is emitted after a successful payout. Reserve carries the
// controller balance remaining after the transfer.
type CashbackSent struct {
	Token           string
	Recipient       [20]byte
	Amount          *big.Int
	Reserve         *big.Int
	AuthorizationID [32]byte
}

func (CashbackSent) EventType() string { return TypeCashbackSent }

func (e CashbackSent) Event() *types.Event {
	return cashbackEvent(TypeCashbackSent, e.Token, e.Recipient, e.Amount, e.Reserve, e.AuthorizationID)
}

// CashbackBypassed is emitted when the reserve cannot cover the computed
// payout. No transfer happens and the enclosing call still succeeds.
type CashbackBypassed struct {
	Token           string
	Recipient       [20]byte
	Amount          *big.Int
	Reserve         *big.Int
	AuthorizationID [32]byte
}

func (CashbackBypassed) EventType() string { return TypeCashbackBypassed }

func (e CashbackBypassed) Event() *types.Event {
	return cashbackEvent(TypeCashbackBypassed, e.Token, e.Recipient, e.Amount, e.Reserve, e.AuthorizationID)
}

func cashbackEvent(eventType, token string, recipient [20]byte, amount, reserve *big.Int, authID [32]byte) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"token":           strings.ToUpper(strings.TrimSpace(token)),
			"recipient":       crypto.NewAddress(crypto.PixPrefix, recipient).String(),
			"amount":          formatAmount(amount),
			"reserve":         formatAmount(reserve),
			"authorizationId": hex.EncodeToString(authID[:]),
		},
	}
}
