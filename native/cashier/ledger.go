package cashier

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// Storage abstracts the journalled key-value state the ledger persists into.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

var (
	recordPrefix     = []byte("cashier/cashout/")
	balancePrefix    = []byte("cashier/balance/")
	pendingIDPrefix  = []byte("cashier/pending/id/")
	pendingPosPrefix = []byte("cashier/pending/pos/")
	pendingCountKey  = []byte("cashier/pending/count")
	processedKey     = []byte("cashier/processed")
)

type storedCashOut struct {
	Account [20]byte
	Amount  *big.Int
	Status  uint8
}

// Ledger owns the persisted cash-out records, the pending identifier set, the
// per-account pending balances and the processed counter. The pending set is
// a dense index with a position map, so membership tests and removals are a
// constant number of key operations and enumeration order is unspecified.
type Ledger struct {
	store Storage
}

// NewLedger binds a ledger to the supplied storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

// Get retrieves the record for txID. The second return is false when the
// identifier has never opened a cycle.
func (l *Ledger) Get(txID [32]byte) (*CashOut, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, ErrNilState
	}
	var stored storedCashOut
	ok, err := l.store.KVGet(recordKey(txID), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	record := &CashOut{
		TxID:    txID,
		Account: stored.Account,
		Amount:  stored.Amount,
		Status:  CashOutStatus(stored.Status),
	}
	if record.Amount == nil {
		record.Amount = big.NewInt(0)
	}
	return record, true, nil
}

func (l *Ledger) put(record *CashOut) error {
	if record == nil {
		return fmt.Errorf("cashier: nil record")
	}
	stored := storedCashOut{
		Account: record.Account,
		Amount:  record.Amount,
		Status:  uint8(record.Status),
	}
	if stored.Amount == nil {
		stored.Amount = big.NewInt(0)
	}
	return l.store.KVPut(recordKey(record.TxID), stored)
}

// BalanceOf returns the sum of amounts across the account's pending records.
func (l *Ledger) BalanceOf(account [20]byte) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilState
	}
	balance := new(big.Int)
	ok, err := l.store.KVGet(balanceKey(account), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (l *Ledger) setBalance(account [20]byte, balance *big.Int) error {
	if balance == nil || balance.Sign() < 0 {
		return fmt.Errorf("cashier: negative pending balance for %x", account)
	}
	if balance.Sign() == 0 {
		return l.store.KVDelete(balanceKey(account))
	}
	return l.store.KVPut(balanceKey(account), balance)
}

// PendingCount returns the size of the pending identifier set.
func (l *Ledger) PendingCount() (uint64, error) {
	return l.counter(pendingCountKey)
}

// ProcessedCount returns the number of cash-outs that reached a terminal
// state. Callers re-read it around multi-page scans as a consistency fence.
func (l *Ledger) ProcessedCount() (uint64, error) {
	return l.counter(processedKey)
}

func (l *Ledger) counter(key []byte) (uint64, error) {
	if l == nil || l.store == nil {
		return 0, ErrNilState
	}
	var count uint64
	ok, err := l.store.KVGet(key, &count)
	if err != nil || !ok {
		return 0, err
	}
	return count, nil
}

func (l *Ledger) incrementProcessed() error {
	count, err := l.ProcessedCount()
	if err != nil {
		return err
	}
	return l.store.KVPut(processedKey, count+1)
}

// PendingIDs returns up to limit identifiers starting at index. The result is
// empty when index is past the end of the set or limit is zero.
func (l *Ledger) PendingIDs(index, limit uint64) ([][32]byte, error) {
	count, err := l.PendingCount()
	if err != nil {
		return nil, err
	}
	if index >= count || limit == 0 {
		return [][32]byte{}, nil
	}
	end := index + limit
	if end > count || end < index {
		end = count
	}
	ids := make([][32]byte, 0, end-index)
	for i := index; i < end; i++ {
		var id [32]byte
		ok, err := l.store.KVGet(pendingIDKey(i), &id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("cashier: pending set hole at index %d", i)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (l *Ledger) addPending(txID [32]byte) error {
	count, err := l.PendingCount()
	if err != nil {
		return err
	}
	if err := l.store.KVPut(pendingIDKey(count), txID); err != nil {
		return err
	}
	if err := l.store.KVPut(pendingPosKey(txID), count); err != nil {
		return err
	}
	return l.store.KVPut(pendingCountKey, count+1)
}

// removePending drops txID from the set by swapping the last element into its
// slot, keeping the index dense.
func (l *Ledger) removePending(txID [32]byte) error {
	var pos uint64
	ok, err := l.store.KVGet(pendingPosKey(txID), &pos)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cashier: tx %x not in pending set", txID)
	}
	count, err := l.PendingCount()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("cashier: pending set empty")
	}
	last := count - 1
	if pos != last {
		var moved [32]byte
		ok, err := l.store.KVGet(pendingIDKey(last), &moved)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("cashier: pending set hole at index %d", last)
		}
		if err := l.store.KVPut(pendingIDKey(pos), moved); err != nil {
			return err
		}
		if err := l.store.KVPut(pendingPosKey(moved), pos); err != nil {
			return err
		}
	}
	if err := l.store.KVDelete(pendingIDKey(last)); err != nil {
		return err
	}
	if err := l.store.KVDelete(pendingPosKey(txID)); err != nil {
		return err
	}
	return l.store.KVPut(pendingCountKey, last)
}

func recordKey(txID [32]byte) []byte {
	return joinKey(recordPrefix, txID[:])
}

func balanceKey(account [20]byte) []byte {
	return joinKey(balancePrefix, account[:])
}

func pendingPosKey(txID [32]byte) []byte {
	return joinKey(pendingPosPrefix, txID[:])
}

func pendingIDKey(index uint64) []byte {
	var suffix [8]byte
	binary.BigEndian.PutUint64(suffix[:], index)
	return joinKey(pendingIDPrefix, suffix[:])
}

func joinKey(prefix, suffix []byte) []byte {
	buf := make([]byte, 0, len(prefix)+len(suffix))
	buf = append(buf, prefix...)
	return append(buf, suffix...)
}
