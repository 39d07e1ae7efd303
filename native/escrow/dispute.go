package escrow

import (
	"fmt"
	"time"

	"localsolana/core/types"
)

// bondVault resolves the derived bond vault address and role tag for a party.
func bondVault(record types.Address, buyer bool) (types.Address, string) {
	if buyer {
		return BuyerBondAddress(record), VaultRoleBuyerBond
	}
	return SellerBondAddress(record), VaultRoleSellerBond
}

// ensureBondVault initialises a bond vault once. Re-running against an empty
// vault of the same role is a no-op; a populated or role-mismatched vault
// rejects recreation.
func (e *Engine) ensureBondVault(record types.Address, buyer bool) (types.Address, error) {
	addr, role := bondVault(record, buyer)
	if existing, ok := e.state.VaultGet(addr); ok {
		if existing.Role != role || existing.Escrow != record {
			return addr, fmt.Errorf("%w: bond vault bound to a different role", ErrReinitialized)
		}
		if existing.Balance != 0 {
			return addr, fmt.Errorf("%w: bond vault already populated", ErrReinitialized)
		}
		return addr, nil
	}
	if err := e.state.VaultInit(addr, record, role); err != nil {
		return addr, err
	}
	return addr, nil
}

// InitializeBuyerBondAccount creates the buyer's bond vault ahead of a
// dispute. Initialization is idempotent while the vault is empty and blocked
// once it holds a bond.
func (e *Engine) InitializeBuyerBondAccount(addr types.Address, caller types.Address) error {
	return e.initBondAccount(addr, caller, true)
}

// InitializeSellerBondAccount creates the seller's bond vault ahead of a
// dispute, with the same idempotence rules as the buyer variant.
func (e *Engine) InitializeSellerBondAccount(addr types.Address, caller types.Address) error {
	return e.initBondAccount(addr, caller, false)
}

func (e *Engine) initBondAccount(addr types.Address, caller types.Address, buyer bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(addr)
	if err != nil {
		return err
	}
	party := esc.Seller
	if buyer {
		party = esc.Buyer
	}
	if caller != party && caller != esc.Arbitrator {
		return fmt.Errorf("%w: bond account belongs to another party", ErrUnauthorized)
	}
	if esc.Status != StatusFunded && esc.Status != StatusDisputed {
		return fmt.Errorf("%w: cannot initialize bond account in state %s", ErrInvalidState, esc.Status)
	}
	_, err = e.ensureBondVault(addr, buyer)
	return err
}

// OpenDisputeWithBond moves a funded, fiat-confirmed escrow into the Disputed
// state. The initiator posts a 5% bond into their own bond vault together
// with a 32-byte evidence hash, and the counterparty's 72 hour response
// window starts.
func (e *Engine) OpenDisputeWithBond(addr types.Address, caller types.Address, evidence types.Hash32) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(addr)
	if err != nil {
		return err
	}
	if esc.Status == StatusDisputed {
		return fmt.Errorf("%w: dispute already opened", ErrInvalidState)
	}
	if esc.Status != StatusFunded {
		return fmt.Errorf("%w: cannot open dispute in state %s", ErrInvalidState, esc.Status)
	}
	if !esc.FiatPaid {
		return fmt.Errorf("%w: dispute requires fiat marked paid", ErrInvalidState)
	}
	if caller != esc.Buyer && caller != esc.Seller {
		return fmt.Errorf("%w: only the buyer or seller may open a dispute", ErrUnauthorized)
	}
	// Only a byte-length shape check is applied here: the hash must be a
	// non-zero 32-byte value. Stricter entropy rules are deliberately not
	// guessed at.
	if evidence.IsZero() {
		return fmt.Errorf("%w: evidence hash required", ErrValidation)
	}
	bond, err := BondFor(esc.Amount)
	if err != nil {
		return err
	}
	vault, err := e.ensureBondVault(addr, caller == esc.Buyer)
	if err != nil {
		return err
	}
	if err := e.debitAccount(caller, bond); err != nil {
		return err
	}
	if err := e.state.VaultCredit(vault, bond); err != nil {
		return err
	}
	now := e.now()
	esc.Status = StatusDisputed
	esc.DisputeInitiator = caller
	esc.DisputeInitiated = now
	esc.ResponseDeadline = now + int64(e.windows.Response/time.Second)
	if caller == esc.Buyer {
		esc.BuyerEvidence = evidence
		esc.BuyerEvidenceSet = true
	} else {
		esc.SellerEvidence = evidence
		esc.SellerEvidenceSet = true
	}
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewDisputeOpenedEvent(esc, now, bond))
	return nil
}

// RespondToDisputeWithBond is the counterparty's answer: an equal bond into
// their own vault plus a distinct evidence hash, landing before the response
// deadline. It also records the arbitration window, which is stored but not
// enforced before resolution.
func (e *Engine) RespondToDisputeWithBond(addr types.Address, caller types.Address, evidence types.Hash32) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(addr)
	if err != nil {
		return err
	}
	if esc.Status != StatusDisputed {
		return fmt.Errorf("%w: no dispute open", ErrInvalidState)
	}
	if caller != esc.Buyer && caller != esc.Seller {
		return fmt.Errorf("%w: only the buyer or seller may respond", ErrUnauthorized)
	}
	if caller == esc.DisputeInitiator {
		return fmt.Errorf("%w: initiator cannot respond to their own dispute", ErrUnauthorized)
	}
	now := e.now()
	if now >= esc.ResponseDeadline {
		return fmt.Errorf("%w: response deadline elapsed", ErrDeadline)
	}
	buyerSide := caller == esc.Buyer
	if (buyerSide && esc.BuyerEvidenceSet) || (!buyerSide && esc.SellerEvidenceSet) {
		return fmt.Errorf("%w: response already submitted", ErrInvalidState)
	}
	if evidence.IsZero() {
		return fmt.Errorf("%w: evidence hash required", ErrValidation)
	}
	initiatorEvidence := esc.SellerEvidence
	if esc.DisputeInitiator == esc.Buyer {
		initiatorEvidence = esc.BuyerEvidence
	}
	if evidence == initiatorEvidence {
		return fmt.Errorf("%w: evidence hash must differ from the initiator's", ErrValidation)
	}
	bond, err := BondFor(esc.Amount)
	if err != nil {
		return err
	}
	vault, err := e.ensureBondVault(addr, buyerSide)
	if err != nil {
		return err
	}
	if err := e.debitAccount(caller, bond); err != nil {
		return err
	}
	if err := e.state.VaultCredit(vault, bond); err != nil {
		return err
	}
	if buyerSide {
		esc.BuyerEvidence = evidence
		esc.BuyerEvidenceSet = true
	} else {
		esc.SellerEvidence = evidence
		esc.SellerEvidenceSet = true
	}
	esc.ArbitrationWindow = now + int64(e.windows.Arbitration/time.Second)
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewDisputeResponseEvent(esc, now, caller, bond))
	return nil
}

// DefaultJudgment settles a dispute where only one party posted bond and
// evidence before the response deadline: the responsive party receives the
// principal and their own bond back, with the fee routed as in the matching
// resolution branch. Neither party both posting, or both failing to post, is
// an invalid state for this operation.
func (e *Engine) DefaultJudgment(addr types.Address, caller types.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(addr)
	if err != nil {
		return err
	}
	if esc.Status != StatusDisputed {
		return fmt.Errorf("%w: no dispute open", ErrInvalidState)
	}
	if caller != esc.Arbitrator {
		return fmt.Errorf("%w: only the arbitrator may enter a default judgment", ErrUnauthorized)
	}
	if e.now() <= esc.ResponseDeadline {
		return fmt.Errorf("%w: response deadline not yet passed", ErrDeadline)
	}
	if esc.BuyerEvidenceSet == esc.SellerEvidenceSet {
		return fmt.Errorf("%w: default judgment requires exactly one posted party", ErrInvalidState)
	}
	buyerWins := esc.BuyerEvidenceSet
	winner := esc.Seller
	if buyerWins {
		winner = esc.Buyer
	}
	// The responsive party recovers their own bond; no bond was ever posted
	// on the other side, so nothing further is forfeited.
	bondAddr, _ := bondVault(addr, buyerWins)
	if vault, ok := e.state.VaultGet(bondAddr); ok && vault.Balance > 0 {
		if err := e.vaultPayout(bondAddr, winner, vault.Balance); err != nil {
			return err
		}
	}
	if err := e.settleDispute(esc, buyerWins); err != nil {
		return err
	}
	esc.Status = StatusResolved
	esc.TrackedBalance = 0
	esc.Counter++
	e.emit(NewDefaultJudgmentEvent(esc, e.now(), winner))
	return e.state.EscrowDelete(addr)
}

// ResolveDisputeWithExplanation is the arbitrator's ruling on a fully bonded
// dispute. The winning side recovers its bond; the losing side's bond is
// forfeited to the arbitrator along with the fee routing of the corresponding
// release/refund branch. The stored arbitration window is deliberately not
// enforced here; a late ruling is only flagged on the emitted event.
func (e *Engine) ResolveDisputeWithExplanation(addr types.Address, caller types.Address, buyerWins bool, explanation types.Hash32) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(addr)
	if err != nil {
		return err
	}
	if esc.Status != StatusDisputed {
		return fmt.Errorf("%w: no dispute open", ErrInvalidState)
	}
	if caller != esc.Arbitrator {
		return fmt.Errorf("%w: only the arbitrator may resolve", ErrUnauthorized)
	}
	if !esc.BuyerEvidenceSet || !esc.SellerEvidenceSet {
		return fmt.Errorf("%w: resolution requires both bonds and evidence", ErrInvalidState)
	}
	if explanation.IsZero() {
		return fmt.Errorf("%w: explanation hash required", ErrValidation)
	}
	bond, err := BondFor(esc.Amount)
	if err != nil {
		return err
	}
	// Loser's bond to the arbitrator, winner's bond back to them.
	buyerBond, _ := bondVault(addr, true)
	sellerBond, _ := bondVault(addr, false)
	if buyerWins {
		if err := e.vaultPayout(buyerBond, esc.Buyer, bond); err != nil {
			return err
		}
		if err := e.vaultPayout(sellerBond, e.arbitrator, bond); err != nil {
			return err
		}
	} else {
		if err := e.vaultPayout(sellerBond, esc.Seller, bond); err != nil {
			return err
		}
		if err := e.vaultPayout(buyerBond, e.arbitrator, bond); err != nil {
			return err
		}
	}
	if err := e.settleDispute(esc, buyerWins); err != nil {
		return err
	}
	now := e.now()
	late := esc.ArbitrationWindow > 0 && now > esc.ArbitrationWindow
	esc.Status = StatusResolved
	esc.ResolutionHash = explanation
	esc.TrackedBalance = 0
	esc.Counter++
	e.emit(NewDisputeResolvedEvent(esc, now, buyerWins, late))
	return e.state.EscrowDelete(addr)
}

// settleDispute distributes the principal vault according to the winning side
// and closes every vault the dispute touched. A buyer win routes principal to
// the buyer (or sequential escrow) and fee to the arbitrator; a seller win
// refunds principal plus fee to the seller.
func (e *Engine) settleDispute(esc *Escrow, buyerWins bool) error {
	addr := esc.Address()
	vault := VaultAddress(addr)
	if buyerWins {
		recipient := esc.Buyer
		if esc.Sequential {
			if esc.SequentialAddress.IsZero() {
				return fmt.Errorf("%w: sequential escrow requires a forwarding address", ErrValidation)
			}
			recipient = esc.SequentialAddress
		}
		if err := e.vaultPayout(vault, e.arbitrator, esc.Fee); err != nil {
			return err
		}
		if err := e.vaultPayout(vault, recipient, esc.Amount); err != nil {
			return err
		}
	} else {
		total, err := addChecked(esc.Amount, esc.Fee)
		if err != nil {
			return err
		}
		if err := e.vaultPayout(vault, esc.Seller, total); err != nil {
			return err
		}
	}
	if err := e.state.VaultClose(vault); err != nil {
		return err
	}
	// Bond vaults close regardless of whether they were ever populated; a
	// never-initialised vault is simply absent.
	for _, bondAddr := range []types.Address{BuyerBondAddress(addr), SellerBondAddress(addr)} {
		if _, ok := e.state.VaultGet(bondAddr); ok {
			if err := e.state.VaultClose(bondAddr); err != nil {
				return err
			}
		}
	}
	return nil
}
