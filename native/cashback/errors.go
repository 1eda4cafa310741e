package cashback

import "errors"

var (
	ErrNilState         = errors.New("cashback: state not configured")
	ErrNilCustody       = errors.New("cashback: custody not configured")
	ErrUnsupportedToken = errors.New("cashback: unsupported token")
	ErrZeroRecipient    = errors.New("cashback: recipient is the zero address")
	ErrInvalidAmount    = errors.New("cashback: transaction amount must be non-negative")
	ErrAmountOverflow   = errors.New("cashback: payout amount overflows 256 bits")
)
