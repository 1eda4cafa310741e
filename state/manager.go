package state

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"pixcashier/core/types"
	"pixcashier/storage"
)

var (
	// ErrAlreadyInitialized is returned when Initialize runs against a
	// store that already carries the genesis marker.
	ErrAlreadyInitialized = errors.New("state: already initialized")
	// ErrNotInitialized is returned when the store is missing the genesis
	// marker required before settlement operations may run.
	ErrNotInitialized = errors.New("state: not initialized")
)

var (
	accountPrefix   = []byte("state/account/")
	rolePrefix      = []byte("state/role/")
	blacklistPrefix = []byte("state/blacklist/")
	pausePrefix     = []byte("state/pause/")
	initializedKey  = []byte("state/initialized")
)

type journalEntry struct {
	key     string
	prev    []byte
	existed bool
}

// Manager is the process-wide settlement state: a journalled key-value layer
// with RLP encoding plus the account, role, blacklist and pause records the
// engines consume. Writes made while a snapshot is open are journalled so a
// failed operation can revert; committed operations discard their snapshot,
// and writes outside any snapshot skip the journal entirely.
type Manager struct {
	mu      sync.Mutex
	db      storage.Database
	journal []journalEntry
	depth   int
}

// NewManager wraps the supplied database in a state manager.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Initialize writes the genesis marker carrying the underlying token symbol.
// It fails if the store was already initialized.
func (m *Manager) Initialize(tokenSymbol string) error {
	symbol := strings.ToUpper(strings.TrimSpace(tokenSymbol))
	if symbol == "" {
		return fmt.Errorf("state: token symbol required")
	}
	var existing string
	ok, err := m.KVGet(initializedKey, &existing)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialized
	}
	return m.KVPut(initializedKey, symbol)
}

// TokenSymbol returns the underlying token symbol recorded at initialization.
func (m *Manager) TokenSymbol() (string, error) {
	var symbol string
	ok, err := m.KVGet(initializedKey, &symbol)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotInitialized
	}
	return symbol, nil
}

// Snapshot opens a revert scope and returns its identifier. Every snapshot
// must be closed again through RevertToSnapshot or DiscardSnapshot.
func (m *Manager) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth++
	return len(m.journal)
}

// RevertToSnapshot undoes every write recorded after the supplied snapshot
// and closes it.
func (m *Manager) RevertToSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.existed {
			_ = m.db.Put([]byte(entry.key), entry.prev)
		} else {
			_ = m.db.Delete([]byte(entry.key))
		}
	}
	m.journal = m.journal[:id]
	if m.depth > 0 {
		m.depth--
	}
}

// DiscardSnapshot commits the writes recorded after the supplied snapshot,
// dropping their journal entries, and closes it. Callers invoke it once an
// operation has succeeded so the journal does not accumulate over the life of
// the process.
func (m *Manager) DiscardSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id > len(m.journal) {
		return
	}
	m.journal = m.journal[:id]
	if m.depth > 0 {
		m.depth--
	}
}

// KVGet decodes the stored value for key into out, reporting whether the key
// exists. Passing a nil out performs a bare existence check.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut encodes value with RLP and stores it under key. While a snapshot is
// open the prior value is journalled for revert.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.journalKey(key); err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// KVDelete removes the stored value for key. While a snapshot is open the
// prior value is journalled for revert.
func (m *Manager) KVDelete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.journalKey(key); err != nil {
		return err
	}
	return m.db.Delete(key)
}

func (m *Manager) journalKey(key []byte) error {
	if m.depth == 0 {
		return nil
	}
	prev, err := m.db.Get(key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		m.journal = append(m.journal, journalEntry{key: string(key)})
	case err != nil:
		return err
	default:
		m.journal = append(m.journal, journalEntry{key: string(key), prev: prev, existed: true})
	}
	return nil
}

// GetAccount loads the account stored for addr, returning a zero-balance
// account when none exists.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	acc := new(types.Account)
	ok, err := m.KVGet(accountKey(addr), acc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.EnsureAccount(nil), nil
	}
	return types.EnsureAccount(acc), nil
}

// PutAccount persists the account record for addr.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	return m.KVPut(accountKey(addr), types.EnsureAccount(account))
}

// HasRole reports whether addr currently holds the named role.
func (m *Manager) HasRole(role string, addr []byte) bool {
	ok, err := m.KVGet(roleKey(role, addr), nil)
	return err == nil && ok
}

// GrantRole marks addr as holding the named role.
func (m *Manager) GrantRole(role string, addr []byte) error {
	return m.KVPut(roleKey(role, addr), true)
}

// RevokeRole removes the named role from addr.
func (m *Manager) RevokeRole(role string, addr []byte) error {
	return m.KVDelete(roleKey(role, addr))
}

// IsBlacklisted reports whether addr is barred from requesting cash-outs.
func (m *Manager) IsBlacklisted(addr []byte) bool {
	ok, err := m.KVGet(prefixedKey(blacklistPrefix, addr), nil)
	return err == nil && ok
}

// SetBlacklisted adds or removes addr from the blacklist.
func (m *Manager) SetBlacklisted(addr []byte, blacklisted bool) error {
	key := prefixedKey(blacklistPrefix, addr)
	if blacklisted {
		return m.KVPut(key, true)
	}
	return m.KVDelete(key)
}

// IsPaused reports whether the named module is paused.
func (m *Manager) IsPaused(module string) bool {
	ok, err := m.KVGet(prefixedKey(pausePrefix, []byte(module)), nil)
	return err == nil && ok
}

// SetPaused toggles the pause flag for the named module.
func (m *Manager) SetPaused(module string, paused bool) error {
	key := prefixedKey(pausePrefix, []byte(module))
	if paused {
		return m.KVPut(key, true)
	}
	return m.KVDelete(key)
}

func accountKey(addr []byte) []byte {
	return prefixedKey(accountPrefix, addr)
}

func roleKey(role string, addr []byte) []byte {
	buf := make([]byte, 0, len(rolePrefix)+len(role)+1+len(addr))
	buf = append(buf, rolePrefix...)
	buf = append(buf, role...)
	buf = append(buf, '/')
	return append(buf, addr...)
}

func prefixedKey(prefix, suffix []byte) []byte {
	buf := make([]byte, 0, len(prefix)+len(suffix))
	buf = append(buf, prefix...)
	return append(buf, suffix...)
}
