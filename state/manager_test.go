package state

import (
	"errors"
	"testing"

	"localsolana/core/types"
	"localsolana/native/escrow"
	"localsolana/storage"
)

func testAddress(fill byte) types.Address {
	var addr types.Address
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func testEscrow(escrowID, tradeID uint64) *escrow.Escrow {
	return &escrow.Escrow{
		EscrowID:   escrowID,
		TradeID:    tradeID,
		Seller:     testAddress(0x11),
		Buyer:      testAddress(0x22),
		Arbitrator: testAddress(0xAB),
		Amount:     1_000_000,
		Fee:        10_000,
		Status:     escrow.StatusCreated,
	}
}

func TestEscrowRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	esc := testEscrow(1, 2)

	if err := mgr.EscrowPut(esc); err != nil {
		t.Fatalf("put: %v", err)
	}
	stored, ok := mgr.EscrowGet(esc.Address())
	if !ok {
		t.Fatalf("expected stored escrow")
	}
	if stored.EscrowID != 1 || stored.TradeID != 2 || stored.Amount != 1_000_000 {
		t.Fatalf("unexpected stored escrow %+v", stored)
	}
	if err := mgr.EscrowDelete(esc.Address()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := mgr.EscrowGet(esc.Address()); ok {
		t.Fatalf("expected record deleted")
	}
}

func TestEscrowPutRejectsInvalidRecord(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	esc := testEscrow(1, 2)
	esc.Amount = 0
	if err := mgr.EscrowPut(esc); !errors.Is(err, escrow.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAccountDefaultsToEmpty(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	addr := testAddress(0x33)

	acc, err := mgr.GetAccount(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acc.Balance != 0 || acc.Nonce != 0 {
		t.Fatalf("expected empty account, got %+v", acc)
	}

	acc.Balance = 500
	if err := mgr.PutAccount(addr, acc); err != nil {
		t.Fatalf("put: %v", err)
	}
	reloaded, err := mgr.GetAccount(addr)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Balance != 500 {
		t.Fatalf("unexpected balance %d", reloaded.Balance)
	}
}

func TestVaultLifecycle(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	record := escrow.RecordAddress(3, 3)
	vault := escrow.VaultAddress(record)

	if err := mgr.VaultInit(vault, record, escrow.VaultRolePrincipal); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := mgr.VaultInit(vault, record, escrow.VaultRolePrincipal); !errors.Is(err, escrow.ErrReinitialized) {
		t.Fatalf("expected reinitialization rejected, got %v", err)
	}
	if err := mgr.VaultCredit(vault, 1_010_000); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if got := mgr.VaultBalance(vault); got != 1_010_000 {
		t.Fatalf("unexpected balance %d", got)
	}
	if err := mgr.VaultDebit(vault, 2_000_000); !errors.Is(err, escrow.ErrInsufficientFunds) {
		t.Fatalf("expected overdraft rejected, got %v", err)
	}
	if err := mgr.VaultClose(vault); err == nil {
		t.Fatalf("expected close of a funded vault to fail")
	}
	if err := mgr.VaultDebit(vault, 1_010_000); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if err := mgr.VaultClose(vault); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := mgr.VaultGet(vault); ok {
		t.Fatalf("expected vault deleted")
	}
}

func TestRollbackDiscardsBufferedWrites(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	esc := testEscrow(5, 5)

	mgr.Begin()
	if err := mgr.EscrowPut(esc); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok := mgr.EscrowGet(esc.Address()); !ok {
		t.Fatalf("expected buffered write visible inside the transaction")
	}
	mgr.Rollback()
	if _, ok := mgr.EscrowGet(esc.Address()); ok {
		t.Fatalf("expected rollback to discard the write")
	}
}

func TestCommitFlushesWritesAndDeletes(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	previous := testEscrow(6, 6)
	if err := mgr.EscrowPut(previous); err != nil {
		t.Fatalf("seed: %v", err)
	}

	mgr.Begin()
	next := testEscrow(7, 7)
	if err := mgr.EscrowPut(next); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.EscrowDelete(previous.Address()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Committed state is untouched until Commit.
	fresh := NewManager(db)
	if _, ok := fresh.EscrowGet(next.Address()); ok {
		t.Fatalf("buffered write leaked before commit")
	}
	if _, ok := fresh.EscrowGet(previous.Address()); !ok {
		t.Fatalf("buffered delete applied before commit")
	}

	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, ok := fresh.EscrowGet(next.Address()); !ok {
		t.Fatalf("expected committed record")
	}
	if _, ok := fresh.EscrowGet(previous.Address()); ok {
		t.Fatalf("expected committed delete")
	}
}

// faultDB fails batch writes on demand to exercise the commit failure path.
type faultDB struct {
	*storage.MemDB
	failWrites bool
}

func (db *faultDB) Write(batch map[string][]byte) error {
	if db.failWrites {
		return errors.New("write failed")
	}
	return db.MemDB.Write(batch)
}

func TestFailedCommitPersistsNothing(t *testing.T) {
	db := &faultDB{MemDB: storage.NewMemDB()}
	mgr := NewManager(db)
	seller := testAddress(0x11)
	buyer := testAddress(0x22)

	db.failWrites = true
	mgr.Begin()
	if err := mgr.PutAccount(seller, &types.Account{Balance: 1}); err != nil {
		t.Fatalf("put seller: %v", err)
	}
	if err := mgr.PutAccount(buyer, &types.Account{Balance: 2}); err != nil {
		t.Fatalf("put buyer: %v", err)
	}
	if err := mgr.Commit(); err == nil {
		t.Fatalf("expected commit to fail")
	}

	// Neither write may be durable: the batch lands whole or not at all.
	fresh := NewManager(db.MemDB)
	for _, addr := range []types.Address{seller, buyer} {
		acc, err := fresh.GetAccount(addr)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if acc.Balance != 0 {
			t.Fatalf("partial commit: account %s holds %d", addr, acc.Balance)
		}
	}

	// The failed transaction must not keep serving its buffered writes.
	acc, err := mgr.GetAccount(seller)
	if err != nil {
		t.Fatalf("get after failed commit: %v", err)
	}
	if acc.Balance != 0 {
		t.Fatalf("uncommitted balance %d visible after failed commit", acc.Balance)
	}

	db.failWrites = false
	mgr.Begin()
	if err := mgr.PutAccount(seller, &types.Account{Balance: 3}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	acc, err = mgr.GetAccount(seller)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acc.Balance != 3 {
		t.Fatalf("unexpected balance %d after recovery", acc.Balance)
	}
}

func TestEachEscrowAndVault(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	for i := uint64(1); i <= 3; i++ {
		if err := mgr.EscrowPut(testEscrow(i, i)); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	record := escrow.RecordAddress(1, 1)
	vault := escrow.VaultAddress(record)
	if err := mgr.VaultInit(vault, record, escrow.VaultRolePrincipal); err != nil {
		t.Fatalf("vault init: %v", err)
	}

	var escrows int
	if err := mgr.EachEscrow(func(*escrow.Escrow) error {
		escrows++
		return nil
	}); err != nil {
		t.Fatalf("each escrow: %v", err)
	}
	if escrows != 3 {
		t.Fatalf("expected 3 escrows, got %d", escrows)
	}

	var vaults int
	if err := mgr.EachVault(func(addr types.Address, v *escrow.Vault) error {
		if addr != vault || v.Escrow != record {
			t.Fatalf("unexpected vault %s", addr)
		}
		vaults++
		return nil
	}); err != nil {
		t.Fatalf("each vault: %v", err)
	}
	if vaults != 1 {
		t.Fatalf("expected 1 vault, got %d", vaults)
	}
}
