package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"localsolana/core/types"
	"localsolana/native/escrow"
	"localsolana/storage"
)

// Key prefixes partition the backing key-value store.
var (
	prefixEscrow  = []byte("escrow/")
	prefixAccount = []byte("account/")
	prefixVault   = []byte("vault/")
)

// Manager persists escrow records, wallet accounts and custody vaults over a
// key-value Database and implements escrow.EngineState. Mutations buffer in
// an overlay between Begin and Commit so a failed operation rolls back
// without leaving partial fund movement behind.
type Manager struct {
	db storage.Database

	// overlay holds pending writes while a transaction is open; a nil value
	// marks a pending delete.
	overlay map[string][]byte
}

// NewManager wraps a database in a state manager.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a write-buffering transaction. Reads observe buffered writes.
func (m *Manager) Begin() {
	m.overlay = make(map[string][]byte)
}

// Commit flushes buffered writes to the database as one atomic batch and
// closes the transaction. The overlay is discarded on failure too, so a
// failed flush never leaves uncommitted data visible to later reads.
func (m *Manager) Commit() error {
	writes := m.overlay
	m.overlay = nil
	if len(writes) == 0 {
		return nil
	}
	return m.db.Write(writes)
}

// Rollback discards buffered writes.
func (m *Manager) Rollback() {
	m.overlay = nil
}

func (m *Manager) get(key []byte) ([]byte, error) {
	if m.overlay != nil {
		if value, ok := m.overlay[string(key)]; ok {
			if value == nil {
				return nil, storage.ErrKeyNotFound
			}
			return value, nil
		}
	}
	return m.db.Get(key)
}

func (m *Manager) put(key, value []byte) error {
	if m.overlay != nil {
		m.overlay[string(key)] = append([]byte(nil), value...)
		return nil
	}
	return m.db.Put(key, value)
}

func (m *Manager) delete(key []byte) error {
	if m.overlay != nil {
		m.overlay[string(key)] = nil
		return nil
	}
	return m.db.Delete(key)
}

func escrowKey(addr types.Address) []byte {
	return append(append([]byte(nil), prefixEscrow...), addr[:]...)
}

func accountKey(addr types.Address) []byte {
	return append(append([]byte(nil), prefixAccount...), addr[:]...)
}

func vaultKey(addr types.Address) []byte {
	return append(append([]byte(nil), prefixVault...), addr[:]...)
}

// EscrowPut stores the escrow record under its derived address.
func (m *Manager) EscrowPut(esc *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(esc)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return err
	}
	return m.put(escrowKey(sanitized.Address()), raw)
}

// EscrowGet loads the escrow record stored at the derived address.
func (m *Manager) EscrowGet(addr types.Address) (*escrow.Escrow, bool) {
	raw, err := m.get(escrowKey(addr))
	if err != nil {
		return nil, false
	}
	var esc escrow.Escrow
	if err := json.Unmarshal(raw, &esc); err != nil {
		return nil, false
	}
	return &esc, true
}

// EscrowDelete reclaims the storage of a terminal escrow record.
func (m *Manager) EscrowDelete(addr types.Address) error {
	return m.delete(escrowKey(addr))
}

// GetAccount loads a wallet account, returning an empty account when none has
// been stored yet.
func (m *Manager) GetAccount(addr types.Address) (*types.Account, error) {
	raw, err := m.get(accountKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return &types.Account{}, nil
	}
	if err != nil {
		return nil, err
	}
	var acc types.Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// PutAccount stores a wallet account.
func (m *Manager) PutAccount(addr types.Address, account *types.Account) error {
	if account == nil {
		account = &types.Account{}
	}
	raw, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return m.put(accountKey(addr), raw)
}

// VaultInit creates a custody vault bound to an escrow record. Initialising
// an address that already holds a vault is structurally rejected.
func (m *Manager) VaultInit(addr types.Address, escrowAddr types.Address, role string) error {
	if _, ok := m.VaultGet(addr); ok {
		return fmt.Errorf("%w: vault %s", escrow.ErrReinitialized, addr)
	}
	return m.vaultPut(addr, &escrow.Vault{Escrow: escrowAddr, Role: role})
}

// VaultGet loads a custody vault.
func (m *Manager) VaultGet(addr types.Address) (*escrow.Vault, bool) {
	raw, err := m.get(vaultKey(addr))
	if err != nil {
		return nil, false
	}
	var vault escrow.Vault
	if err := json.Unmarshal(raw, &vault); err != nil {
		return nil, false
	}
	return &vault, true
}

func (m *Manager) vaultPut(addr types.Address, vault *escrow.Vault) error {
	raw, err := json.Marshal(vault)
	if err != nil {
		return err
	}
	return m.put(vaultKey(addr), raw)
}

// VaultCredit adds funds to a vault.
func (m *Manager) VaultCredit(addr types.Address, amount uint64) error {
	vault, ok := m.VaultGet(addr)
	if !ok {
		return fmt.Errorf("state: vault %s not initialized", addr)
	}
	next := vault.Balance + amount
	if next < vault.Balance {
		return fmt.Errorf("%w: vault credit %d", escrow.ErrArithmetic, amount)
	}
	vault.Balance = next
	return m.vaultPut(addr, vault)
}

// VaultDebit removes funds from a vault, rejecting overdrafts.
func (m *Manager) VaultDebit(addr types.Address, amount uint64) error {
	vault, ok := m.VaultGet(addr)
	if !ok {
		return fmt.Errorf("state: vault %s not initialized", addr)
	}
	if vault.Balance < amount {
		return fmt.Errorf("%w: vault balance %d cannot cover %d", escrow.ErrInsufficientFunds, vault.Balance, amount)
	}
	vault.Balance -= amount
	return m.vaultPut(addr, vault)
}

// VaultClose reclaims a drained vault. Closing a vault that still holds funds
// is a defect and is rejected.
func (m *Manager) VaultClose(addr types.Address) error {
	vault, ok := m.VaultGet(addr)
	if !ok {
		return fmt.Errorf("state: vault %s not initialized", addr)
	}
	if vault.Balance != 0 {
		return fmt.Errorf("state: vault %s still holds %d", addr, vault.Balance)
	}
	return m.delete(vaultKey(addr))
}

// VaultBalance reports the balance held by a vault, with zero for a vault
// that does not exist. Inspection tooling uses it to reconcile
// tracked balances against actual holdings.
func (m *Manager) VaultBalance(addr types.Address) uint64 {
	vault, ok := m.VaultGet(addr)
	if !ok {
		return 0
	}
	return vault.Balance
}

// EachEscrow visits every stored escrow record. Intended for read-only
// inspection; the walk observes committed state only.
func (m *Manager) EachEscrow(fn func(*escrow.Escrow) error) error {
	return m.db.Iterate(prefixEscrow, func(_, value []byte) error {
		var esc escrow.Escrow
		if err := json.Unmarshal(value, &esc); err != nil {
			return err
		}
		return fn(&esc)
	})
}

// EachVault visits every stored custody vault with its derived address.
func (m *Manager) EachVault(fn func(types.Address, *escrow.Vault) error) error {
	return m.db.Iterate(prefixVault, func(key, value []byte) error {
		addr, err := types.AddressFromBytes(key[len(prefixVault):])
		if err != nil {
			return err
		}
		var vault escrow.Vault
		if err := json.Unmarshal(value, &vault); err != nil {
			return err
		}
		return fn(addr, &vault)
	})
}
