// Package recon reconciles the ledger's own accounting against the balances
// its custody vaults actually hold. The ledger is expected to keep the two in
// lockstep at all times, so every anomaly reported here is a correctness
// defect in the transfer or accounting logic, never a normal state.
package recon

import (
	"fmt"

	"localsolana/core/types"
	"localsolana/native/escrow"
	"localsolana/state"
)

// Anomaly types reported by the reconciler.
const (
	AnomalyBalanceMismatch = "balance_mismatch"
	AnomalyMissingVault    = "missing_vault"
	AnomalyOrphanedVault   = "orphaned_vault"
)

// Anomaly describes one divergence between tracked and actual custody state.
type Anomaly struct {
	Type     string        `json:"type"`
	EscrowID uint64        `json:"escrowId,omitempty"`
	TradeID  uint64        `json:"tradeId,omitempty"`
	Vault    types.Address `json:"vault"`
	Tracked  uint64        `json:"tracked"`
	Actual   uint64        `json:"actual"`
	Detail   string        `json:"detail,omitempty"`
}

// Reconciler walks committed state and compares each escrow's tracked balance
// with its principal vault.
type Reconciler struct {
	state *state.Manager
}

// New builds a reconciler over the given state manager.
func New(mgr *state.Manager) *Reconciler {
	return &Reconciler{state: mgr}
}

// Run returns every anomaly found in the current state. An empty slice means
// the ledger and its vaults agree exactly.
func (r *Reconciler) Run() ([]Anomaly, error) {
	var anomalies []Anomaly
	live := make(map[types.Address]bool)
	err := r.state.EachEscrow(func(esc *escrow.Escrow) error {
		record := esc.Address()
		vaultAddr := escrow.VaultAddress(record)
		live[vaultAddr] = true
		live[escrow.BuyerBondAddress(record)] = true
		live[escrow.SellerBondAddress(record)] = true
		vault, ok := r.state.VaultGet(vaultAddr)
		switch {
		case !ok && esc.TrackedBalance != 0:
			anomalies = append(anomalies, Anomaly{
				Type:     AnomalyMissingVault,
				EscrowID: esc.EscrowID,
				TradeID:  esc.TradeID,
				Vault:    vaultAddr,
				Tracked:  esc.TrackedBalance,
				Detail:   fmt.Sprintf("escrow in state %s tracks %d but has no vault", esc.Status, esc.TrackedBalance),
			})
		case ok && vault.Balance != esc.TrackedBalance:
			anomalies = append(anomalies, Anomaly{
				Type:     AnomalyBalanceMismatch,
				EscrowID: esc.EscrowID,
				TradeID:  esc.TradeID,
				Vault:    vaultAddr,
				Tracked:  esc.TrackedBalance,
				Actual:   vault.Balance,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Vaults whose escrow record no longer exists should have been closed
	// with it.
	err = r.state.EachVault(func(addr types.Address, vault *escrow.Vault) error {
		if live[addr] {
			return nil
		}
		if _, ok := r.state.EscrowGet(vault.Escrow); ok {
			return nil
		}
		anomalies = append(anomalies, Anomaly{
			Type:   AnomalyOrphanedVault,
			Vault:  addr,
			Actual: vault.Balance,
			Detail: fmt.Sprintf("%s vault outlives its escrow record", vault.Role),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return anomalies, nil
}
