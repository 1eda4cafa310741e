package cashier

import (
	"math/big"
	"sync"

	"pixcashier/core/events"
	nativecommon "pixcashier/native/common"
)

const (
	// RoleCashier authorizes cash-in and confirm/reverse processing.
	RoleCashier = "ROLE_CASHIER"

	moduleName = "cashier"
)

// EngineState is the slice of state manager functionality the engine needs:
// journalled storage for the ledger, capability checks, and snapshot/revert
// for total-abort failure semantics.
type EngineState interface {
	Storage
	HasRole(role string, addr []byte) bool
	IsBlacklisted(addr []byte) bool
	TokenSymbol() (string, error)
	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshot(id int)
}

// Custody performs the actual token supply changes and transfers. Each call
// may fail, which aborts the enclosing engine operation entirely.
type Custody interface {
	Mint(to [20]byte, amount *big.Int) error
	Burn(amount *big.Int) error
	Transfer(to [20]byte, amount *big.Int) error
	TransferFrom(from, to [20]byte, amount *big.Int) error
	Vault() [20]byte
}

// Engine orchestrates cash-in and the cash-out lifecycle. Mutating operations
// hold the write lock and either fully commit or revert every state change,
// including custody balance moves journalled in the same state manager. Read
// accessors hold the read lock, so a paginated scan never observes a
// settlement mid-flight. Events are buffered per operation and only reach the
// emitter after commit, so the observable log never records an aborted call.
type Engine struct {
	mu      sync.RWMutex
	state   EngineState
	ledger  *Ledger
	custody Custody
	emitter events.Emitter
	pauses  nativecommon.PauseView

	queued []events.Event
}

// NewEngine creates a cashier engine with a no-op emitter. Callers configure
// state and custody before use.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state EngineState) {
	e.state = state
	e.ledger = NewLedger(state)
}

// SetCustody configures the token custody collaborator.
func (e *Engine) SetCustody(custody Custody) { e.custody = custody }

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

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.ledger == nil {
		return ErrNilState
	}
	if e.custody == nil {
		return ErrNilCustody
	}
	return nil
}

func (e *Engine) queue(evt events.Event) {
	e.queued = append(e.queued, evt)
}

func (e *Engine) flush() {
	for _, evt := range e.queued {
		e.emitter.Emit(evt)
	}
	e.queued = e.queued[:0]
}

func (e *Engine) drop() {
	e.queued = e.queued[:0]
}

// CashIn credits newly issued tokens to account. The caller must hold the
// cashier role and the module must be unpaused. No ledger state is touched;
// cash-in is not tracked as a cash-out record.
func (e *Engine) CashIn(caller, account [20]byte, amount *big.Int, txID [32]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(e.state, RoleCashier, caller); err != nil {
		return err
	}
	if account == ([20]byte{}) {
		return ErrZeroAccount
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if txID == ([32]byte{}) {
		return ErrZeroTxID
	}
	snap := e.state.Snapshot()
	e.queue(events.CashIn{Account: account, Amount: new(big.Int).Set(amount), TxID: txID})
	if err := e.custody.Mint(account, amount); err != nil {
		e.state.RevertToSnapshot(snap)
		e.drop()
		return err
	}
	e.state.DiscardSnapshot(snap)
	e.flush()
	return nil
}

// RequestCashOut opens a cash-out cycle for the caller: the record is written
// as pending, the identifier joins the pending set, the caller's pending
// balance grows, and the amount is pulled into the custody vault as the final
// step. A record already pending under txID rejects the call; a terminal
// record is overwritten, starting a new cycle.
func (e *Engine) RequestCashOut(caller [20]byte, amount *big.Int, txID [32]byte) (*CashOut, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := nativecommon.RequireNotBlacklisted(e.state, caller); err != nil {
		return nil, err
	}
	if caller == ([20]byte{}) {
		return nil, ErrZeroAccount
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if txID == ([32]byte{}) {
		return nil, ErrZeroTxID
	}
	existing, found, err := e.ledger.Get(txID)
	if err != nil {
		return nil, err
	}
	if found && existing.Status == CashOutPending {
		return nil, &InappropriateStatusError{TxID: txID, Status: existing.Status}
	}

	snap := e.state.Snapshot()
	record := &CashOut{TxID: txID, Account: caller, Amount: new(big.Int).Set(amount), Status: CashOutPending}
	balance, err := e.ledger.BalanceOf(caller)
	if err == nil {
		balance = new(big.Int).Add(balance, amount)
		err = e.ledger.put(record)
	}
	if err == nil {
		err = e.ledger.addPending(txID)
	}
	if err == nil {
		err = e.ledger.setBalance(caller, balance)
	}
	if err == nil {
		e.queue(events.CashOutRequested{Account: caller, Amount: new(big.Int).Set(amount), Balance: balance, TxID: txID})
		err = e.custody.TransferFrom(caller, e.custody.Vault(), amount)
	}
	if err != nil {
		e.state.RevertToSnapshot(snap)
		e.drop()
		return nil, err
	}
	e.state.DiscardSnapshot(snap)
	e.flush()
	return record.Clone(), nil
}

// ConfirmCashOut settles a pending cash-out by burning the escrowed amount.
func (e *Engine) ConfirmCashOut(caller [20]byte, txID [32]byte) error {
	return e.settle(caller, []([32]byte){txID}, true)
}

// ConfirmCashOuts settles each pending identifier in order; a single failure
// aborts the whole batch.
func (e *Engine) ConfirmCashOuts(caller [20]byte, txIDs [][32]byte) error {
	if len(txIDs) == 0 {
		return ErrEmptyBatch
	}
	return e.settle(caller, txIDs, true)
}

// ReverseCashOut cancels a pending cash-out, returning the escrowed amount to
// its owner.
func (e *Engine) ReverseCashOut(caller [20]byte, txID [32]byte) error {
	return e.settle(caller, []([32]byte){txID}, false)
}

// ReverseCashOuts cancels each pending identifier in order; a single failure
// aborts the whole batch.
func (e *Engine) ReverseCashOuts(caller [20]byte, txIDs [][32]byte) error {
	if len(txIDs) == 0 {
		return ErrEmptyBatch
	}
	return e.settle(caller, txIDs, false)
}

func (e *Engine) settle(caller [20]byte, txIDs [][32]byte, confirm bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := nativecommon.RequireRole(e.state, RoleCashier, caller); err != nil {
		return err
	}
	snap := e.state.Snapshot()
	for _, txID := range txIDs {
		if err := e.processCashOut(txID, confirm); err != nil {
			e.state.RevertToSnapshot(snap)
			e.drop()
			return err
		}
	}
	e.state.DiscardSnapshot(snap)
	e.flush()
	return nil
}

// processCashOut performs the bookkeeping shared by confirm and reverse: the
// record must be exactly pending; the owner's pending balance shrinks, the
// status turns terminal, the processed counter grows and the identifier
// leaves the pending set, all before the final custody call.
func (e *Engine) processCashOut(txID [32]byte, confirm bool) error {
	if txID == ([32]byte{}) {
		return ErrZeroTxID
	}
	record, found, err := e.ledger.Get(txID)
	if err != nil {
		return err
	}
	if !found {
		return &InappropriateStatusError{TxID: txID, Status: CashOutNonexistent}
	}
	if record.Status != CashOutPending {
		return &InappropriateStatusError{TxID: txID, Status: record.Status}
	}
	balance, err := e.ledger.BalanceOf(record.Account)
	if err != nil {
		return err
	}
	balance = new(big.Int).Sub(balance, record.Amount)
	if confirm {
		record.Status = CashOutConfirmed
	} else {
		record.Status = CashOutReversed
	}
	if err := e.ledger.put(record); err != nil {
		return err
	}
	if err := e.ledger.incrementProcessed(); err != nil {
		return err
	}
	if err := e.ledger.removePending(txID); err != nil {
		return err
	}
	if err := e.ledger.setBalance(record.Account, balance); err != nil {
		return err
	}
	if confirm {
		e.queue(events.CashOutConfirmed{Account: record.Account, Amount: record.Amount, Balance: balance, TxID: txID})
		return e.custody.Burn(record.Amount)
	}
	e.queue(events.CashOutReversed{Account: record.Account, Amount: record.Amount, Balance: balance, TxID: txID})
	return e.custody.Transfer(record.Account, record.Amount)
}

// GetCashOut returns the record stored for txID, if any.
func (e *Engine) GetCashOut(txID [32]byte) (*CashOut, bool, error) {
	if e == nil || e.ledger == nil {
		return nil, false, ErrNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	record, found, err := e.ledger.Get(txID)
	if err != nil || !found {
		return nil, false, err
	}
	return record.Clone(), true, nil
}

// GetCashOuts returns one record per supplied identifier. Unknown identifiers
// yield records with the nonexistent status, keeping positions aligned.
func (e *Engine) GetCashOuts(txIDs [][32]byte) ([]*CashOut, error) {
	if e == nil || e.ledger == nil {
		return nil, ErrNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	records := make([]*CashOut, 0, len(txIDs))
	for _, txID := range txIDs {
		record, found, err := e.ledger.Get(txID)
		if err != nil {
			return nil, err
		}
		if !found {
			record = &CashOut{TxID: txID, Amount: big.NewInt(0), Status: CashOutNonexistent}
		}
		records = append(records, record.Clone())
	}
	return records, nil
}

// CashOutBalanceOf returns the account's pending cash-out balance.
func (e *Engine) CashOutBalanceOf(account [20]byte) (*big.Int, error) {
	if e == nil || e.ledger == nil {
		return nil, ErrNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.BalanceOf(account)
}

// PendingCashOutCounter returns the size of the pending identifier set.
func (e *Engine) PendingCashOutCounter() (uint64, error) {
	if e == nil || e.ledger == nil {
		return 0, ErrNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.PendingCount()
}

// ProcessedCashOutCounter returns the number of terminal transitions. Reading
// it before and after a paginated scan and comparing tells the caller whether
// the scan observed a consistent set.
func (e *Engine) ProcessedCashOutCounter() (uint64, error) {
	if e == nil || e.ledger == nil {
		return 0, ErrNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.ProcessedCount()
}

// GetPendingCashOutTxIDs returns up to limit pending identifiers starting at
// index. Order is unspecified and may change after removals.
func (e *Engine) GetPendingCashOutTxIDs(index, limit uint64) ([][32]byte, error) {
	if e == nil || e.ledger == nil {
		return nil, ErrNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.PendingIDs(index, limit)
}

// UnderlyingToken returns the symbol of the token the ledger settles.
func (e *Engine) UnderlyingToken() (string, error) {
	if e == nil || e.state == nil {
		return "", ErrNilState
	}
	return e.state.TokenSymbol()
}
