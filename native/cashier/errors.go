package cashier

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	ErrNilState    = errors.New("cashier: state not configured")
	ErrNilCustody  = errors.New("cashier: custody not configured")
	ErrZeroAccount = errors.New("cashier: account is the zero address")
	ErrZeroAmount  = errors.New("cashier: amount must be positive")
	ErrZeroTxID    = errors.New("cashier: transaction id must be non-zero")
	ErrEmptyBatch  = errors.New("cashier: transaction id list must not be empty")
)

// InappropriateStatusError reports a state-conflict: the operation required a
// different lifecycle status than the record currently holds. Status carries
// the current value for diagnosis.
type InappropriateStatusError struct {
	TxID   [32]byte
	Status CashOutStatus
}

func (e *InappropriateStatusError) Error() string {
	return fmt.Sprintf("cashier: inappropriate status %s for tx %s", e.Status, hex.EncodeToString(e.TxID[:]))
}

// IsInappropriateStatus reports whether err is a status conflict and, if so,
// returns the conflicting record status.
func IsInappropriateStatus(err error) (CashOutStatus, bool) {
	var conflict *InappropriateStatusError
	if errors.As(err, &conflict) {
		return conflict.Status, true
	}
	return CashOutNonexistent, false
}
