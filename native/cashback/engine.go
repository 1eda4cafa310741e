package cashback

import (
	"math/big"
	"strings"
	"sync"

	"github.com/holiman/uint256"

	"pixcashier/core/events"
	nativecommon "pixcashier/native/common"
)

const (
	// RoleController authorizes rate changes and payouts.
	RoleController = "ROLE_CASHBACK_CONTROLLER"

	moduleName = "cashback"
)

var rateKey = []byte("cashback/rate")

// EngineState is the state manager functionality the cashback engine needs.
type EngineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	HasRole(role string, addr []byte) bool
	TokenSymbol() (string, error)
	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshot(id int)
}

// Custody is the slice of token custody used for payouts.
type Custody interface {
	TransferFrom(from, to [20]byte, amount *big.Int) error
	BalanceOf(addr [20]byte) (*big.Int, error)
}

// Engine computes rate-based rewards and pays them out of a dedicated reserve
// account. Payouts are best-effort: a reserve shortfall bypasses the transfer
// with an event instead of failing the call, so cashback never blocks the
// primary transaction flow.
type Engine struct {
	mu      sync.Mutex
	state   EngineState
	custody Custody
	reserve [20]byte
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewEngine creates a cashback engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetCustody configures token custody and the reserve account funding
// payouts.
func (e *Engine) SetCustody(custody Custody, reserve [20]byte) {
	e.custody = custody
	e.reserve = reserve
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses configures the pause view gating mutating operations.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// Reserve returns the account funding payouts.
func (e *Engine) Reserve() [20]byte { return e.reserve }

// Rate returns the current payout multiplier. The default is zero.
func (e *Engine) Rate() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	var rate uint64
	ok, err := e.state.KVGet(rateKey, &rate)
	if err != nil || !ok {
		return 0, err
	}
	return rate, nil
}

// SeedRate installs the payout multiplier without a role check or an event.
// It exists for first-boot provisioning, before any controller role has been
// granted; runtime changes go through SetRate.
func (e *Engine) SeedRate(rate uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	return e.state.KVPut(rateKey, rate)
}

// SetRate unconditionally overwrites the payout multiplier and emits the old
// and new values.
func (e *Engine) SetRate(caller [20]byte, newRate uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(e.state, RoleController, caller); err != nil {
		return err
	}
	oldRate, err := e.Rate()
	if err != nil {
		return err
	}
	if err := e.state.KVPut(rateKey, newRate); err != nil {
		return err
	}
	e.emitter.Emit(events.CashbackRateUpdated{OldRate: oldRate, NewRate: newRate})
	return nil
}

// SendCashback computes transactionAmount times the current rate and pays it
// to recipient from the reserve. When the reserve cannot cover the amount the
// payout is bypassed: an event records the shortfall and the call still
// succeeds. The returned flag reports whether a transfer happened.
func (e *Engine) SendCashback(caller [20]byte, token string, recipient [20]byte, transactionAmount *big.Int, authorizationID [32]byte) (bool, *big.Int, error) {
	if e == nil || e.state == nil {
		return false, nil, ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.custody == nil {
		return false, nil, ErrNilCustody
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return false, nil, err
	}
	if err := nativecommon.RequireRole(e.state, RoleController, caller); err != nil {
		return false, nil, err
	}
	symbol, err := e.state.TokenSymbol()
	if err != nil {
		return false, nil, err
	}
	if strings.ToUpper(strings.TrimSpace(token)) != symbol {
		return false, nil, ErrUnsupportedToken
	}
	if recipient == ([20]byte{}) {
		return false, nil, ErrZeroRecipient
	}
	if transactionAmount == nil || transactionAmount.Sign() < 0 {
		return false, nil, ErrInvalidAmount
	}
	rate, err := e.Rate()
	if err != nil {
		return false, nil, err
	}
	amount, err := mulChecked(transactionAmount, rate)
	if err != nil {
		return false, nil, err
	}
	reserve, err := e.custody.BalanceOf(e.reserve)
	if err != nil {
		return false, nil, err
	}
	if reserve.Cmp(amount) < 0 {
		e.emitter.Emit(events.CashbackBypassed{
			Token:           symbol,
			Recipient:       recipient,
			Amount:          amount,
			Reserve:         reserve,
			AuthorizationID: authorizationID,
		})
		return false, amount, nil
	}
	if amount.Sign() > 0 {
		snap := e.state.Snapshot()
		if err := e.custody.TransferFrom(e.reserve, recipient, amount); err != nil {
			e.state.RevertToSnapshot(snap)
			return false, nil, err
		}
		e.state.DiscardSnapshot(snap)
	}
	remaining := new(big.Int).Sub(reserve, amount)
	e.emitter.Emit(events.CashbackSent{
		Token:           symbol,
		Recipient:       recipient,
		Amount:          amount,
		Reserve:         remaining,
		AuthorizationID: authorizationID,
	})
	return amount.Sign() > 0, amount, nil
}

// mulChecked multiplies amount by rate in 256-bit space, failing on overflow
// instead of wrapping.
func mulChecked(amount *big.Int, rate uint64) (*big.Int, error) {
	base, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountOverflow
	}
	product, overflow := new(uint256.Int).MulOverflow(base, uint256.NewInt(rate))
	if overflow {
		return nil, ErrAmountOverflow
	}
	return product.ToBig(), nil
}
