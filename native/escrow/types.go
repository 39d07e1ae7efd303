package escrow

import (
	"fmt"

	"localsolana/core/types"
)

// EscrowStatus represents the lifecycle states of an escrow record. The
// progression is monotonic except for the Funded self-loop on fiat
// confirmation; Released, Cancelled and Resolved are terminal and make the
// record eligible for reclamation.
type EscrowStatus uint8

const (
	StatusCreated EscrowStatus = iota + 1
	StatusFunded
	StatusReleased
	StatusCancelled
	StatusDisputed
	StatusResolved
)

// Valid reports whether the status value is within the supported range.
func (s EscrowStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusFunded, StatusReleased, StatusCancelled, StatusDisputed, StatusResolved:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further transitions.
func (s EscrowStatus) Terminal() bool {
	switch s {
	case StatusReleased, StatusCancelled, StatusResolved:
		return true
	default:
		return false
	}
}

func (s EscrowStatus) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusFunded:
		return "funded"
	case StatusReleased:
		return "released"
	case StatusCancelled:
		return "cancelled"
	case StatusDisputed:
		return "disputed"
	case StatusResolved:
		return "resolved"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Escrow captures the full state of one trade-leg: parties, value, deadlines,
// fiat tracking and the dispute sub-protocol fields. Optional fields carry an
// explicit presence flag (or a documented zero sentinel) so each is checked
// before use and never partially written.
type Escrow struct {
	EscrowID uint64 `json:"escrowId"`
	TradeID  uint64 `json:"tradeId"`

	Seller     types.Address `json:"seller"`
	Buyer      types.Address `json:"buyer"`
	Arbitrator types.Address `json:"arbitrator"`

	// Amount is the principal; Fee is fixed at creation as 1% of Amount.
	Amount uint64 `json:"amount"`
	Fee    uint64 `json:"fee"`

	// Deadlines are absolute unix seconds; zero means not yet applicable.
	DepositDeadline int64 `json:"depositDeadline"`
	FiatDeadline    int64 `json:"fiatDeadline"`

	Status EscrowStatus `json:"status"`

	// Sequential marks a chained trade whose released principal forwards to
	// SequentialAddress instead of the buyer. The address is mutable by the
	// buyer until the record turns terminal and mandatory before principal
	// may move forward.
	Sequential        bool          `json:"sequential"`
	SequentialAddress types.Address `json:"sequentialAddress"`

	FiatPaid bool `json:"fiatPaid"`

	// Counter increments on every value-moving transition for external
	// reconciliation. TrackedBalance is the ledger's own accounting of the
	// principal vault; divergence from the vault's actual balance is a
	// defect, never an expected state.
	Counter        uint64 `json:"counter"`
	TrackedBalance uint64 `json:"trackedBalance"`

	// Dispute sub-protocol fields, meaningful only while Status is
	// StatusDisputed (and ResolutionHash once resolved).
	DisputeInitiator  types.Address `json:"disputeInitiator"`
	DisputeInitiated  int64         `json:"disputeInitiated,omitempty"`
	ResponseDeadline  int64         `json:"responseDeadline,omitempty"`
	ArbitrationWindow int64         `json:"arbitrationWindow,omitempty"`

	BuyerEvidence     types.Hash32 `json:"buyerEvidence"`
	BuyerEvidenceSet  bool         `json:"buyerEvidenceSet"`
	SellerEvidence    types.Hash32 `json:"sellerEvidence"`
	SellerEvidenceSet bool         `json:"sellerEvidenceSet"`

	ResolutionHash types.Hash32 `json:"resolutionHash"`
}

// Address returns the deterministic record address for this escrow.
func (e *Escrow) Address() types.Address {
	return RecordAddress(e.EscrowID, e.TradeID)
}

// Clone returns a deep copy of the escrow so callers can safely mutate the
// copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// SanitizeEscrow validates the supplied escrow record and returns a cloned
// instance. The function does not mutate the original value.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil escrow", ErrValidation)
	}
	clone := e.Clone()
	if clone.Amount == 0 || clone.Amount > MaxAmount {
		return nil, fmt.Errorf("%w: amount %d out of range", ErrValidation, clone.Amount)
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid status %d", ErrValidation, clone.Status)
	}
	if clone.Seller.IsZero() || clone.Buyer.IsZero() || clone.Arbitrator.IsZero() {
		return nil, fmt.Errorf("%w: missing party address", ErrValidation)
	}
	if clone.Sequential && clone.SequentialAddress.IsZero() {
		return nil, fmt.Errorf("%w: sequential escrow requires a forwarding address", ErrValidation)
	}
	return clone, nil
}

// Vault roles tag each custody vault with its purpose so reinitialization
// attempts against a vault of a different role are structurally blocked.
const (
	VaultRolePrincipal  = "principal"
	VaultRoleBuyerBond  = "buyer_bond"
	VaultRoleSellerBond = "seller_bond"
)

// Vault is a token-holding custody account bound 1:1 to an escrow record.
// Only the ledger's derived authority moves value out of it; it is created on
// first use and closed once drained to zero.
type Vault struct {
	Escrow  types.Address `json:"escrow"`
	Role    string        `json:"role"`
	Balance uint64        `json:"balance"`
}

// Clone returns a copy of the vault record.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}
