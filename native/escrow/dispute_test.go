package escrow

import (
	"errors"
	"testing"

	"localsolana/core/types"
)

// disputedEscrow funds an escrow, confirms fiat and opens a dispute from the
// buyer side. Amounts: principal 1_000_000, fee 10_000, bond 50_000.
func disputedEscrow(t *testing.T, state *mockState, engine *Engine) (*Escrow, types.Address, types.Address) {
	t.Helper()
	esc, seller, buyer := fundedEscrow(t, state, engine)
	addr := esc.Address()
	if err := engine.MarkFiatPaid(addr, buyer); err != nil {
		t.Fatalf("mark fiat paid: %v", err)
	}
	if err := engine.OpenDisputeWithBond(addr, buyer, newTestHash(0xE1)); err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	stored, ok := state.EscrowGet(addr)
	if !ok {
		t.Fatalf("expected stored escrow")
	}
	return stored, seller, buyer
}

func TestOpenDisputeRequiresFiatPaid(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	esc, _, buyer := fundedEscrow(t, state, engine)

	if err := engine.OpenDisputeWithBond(esc.Address(), buyer, newTestHash(0xE1)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected dispute before fiat paid to fail, got %v", err)
	}
}

func TestOpenDisputePostsBondAndEvidence(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)
	esc, _, buyer := disputedEscrow(t, state, engine)
	addr := esc.Address()

	if got := state.balance(buyer); got != 2_000_000-50_000 {
		t.Fatalf("expected 5%% bond debited, got balance %d", got)
	}
	if got := state.vaultBalance(BuyerBondAddress(addr)); got != 50_000 {
		t.Fatalf("unexpected bond vault balance %d", got)
	}
	stored, _ := state.EscrowGet(addr)
	if stored.Status != StatusDisputed {
		t.Fatalf("expected disputed status, got %s", stored.Status)
	}
	if stored.DisputeInitiator != buyer {
		t.Fatalf("unexpected initiator")
	}
	if !stored.BuyerEvidenceSet || stored.BuyerEvidence != newTestHash(0xE1) {
		t.Fatalf("expected initiator evidence recorded")
	}
	if stored.ResponseDeadline != 1_700_000_000+72*3600 {
		t.Fatalf("unexpected response deadline %d", stored.ResponseDeadline)
	}
	evt := emitter.last(t)
	if evt.Type != EventTypeDisputeOpened {
		t.Fatalf("expected dispute opened event, got %s", evt.Type)
	}
	if evt.Attributes["bond"] != "50000" {
		t.Fatalf("unexpected bond attribute %s", evt.Attributes["bond"])
	}
	if evt.Attributes["evidenceHash"] != newTestHash(0xE1).String() {
		t.Fatalf("unexpected evidence attribute %s", evt.Attributes["evidenceHash"])
	}
}

func TestOpenDisputeValidations(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	esc, seller, buyer := fundedEscrow(t, state, engine)
	addr := esc.Address()
	if err := engine.MarkFiatPaid(addr, buyer); err != nil {
		t.Fatalf("mark fiat paid: %v", err)
	}

	if err := engine.OpenDisputeWithBond(addr, testArbitrator, newTestHash(0xE1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected arbitrator-opened dispute to fail, got %v", err)
	}
	if err := engine.OpenDisputeWithBond(addr, buyer, types.Hash32{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected zero evidence hash to fail, got %v", err)
	}
	state.setBalance(buyer, 10_000) // below the 50_000 bond
	if err := engine.OpenDisputeWithBond(addr, buyer, newTestHash(0xE1)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds for bond, got %v", err)
	}
	state.setBalance(buyer, 2_000_000)
	if err := engine.OpenDisputeWithBond(addr, seller, newTestHash(0xE2)); err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	if err := engine.OpenDisputeWithBond(addr, buyer, newTestHash(0xE1)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected second dispute to fail, got %v", err)
	}
}

func TestRespondToDisputeRules(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	esc, seller, buyer := disputedEscrow(t, state, engine)
	addr := esc.Address()

	if err := engine.RespondToDisputeWithBond(addr, buyer, newTestHash(0xE2)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected initiator response to fail, got %v", err)
	}
	if err := engine.RespondToDisputeWithBond(addr, seller, newTestHash(0xE1)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected matching evidence hash to fail, got %v", err)
	}
	if err := engine.RespondToDisputeWithBond(addr, seller, types.Hash32{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected zero evidence hash to fail, got %v", err)
	}
	if err := engine.RespondToDisputeWithBond(addr, seller, newTestHash(0xE2)); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if err := engine.RespondToDisputeWithBond(addr, seller, newTestHash(0xE3)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected second response to fail, got %v", err)
	}

	if got := state.balance(seller); got != 2_000_000-1_010_000-50_000 {
		t.Fatalf("unexpected seller balance %d", got)
	}
	if got := state.vaultBalance(SellerBondAddress(addr)); got != 50_000 {
		t.Fatalf("unexpected seller bond vault %d", got)
	}
	stored, _ := state.EscrowGet(addr)
	if !stored.SellerEvidenceSet {
		t.Fatalf("expected responder evidence recorded")
	}
	if stored.ArbitrationWindow != 1_700_000_000+168*3600 {
		t.Fatalf("unexpected arbitration window %d", stored.ArbitrationWindow)
	}
}

func TestRespondAfterDeadlineFails(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	esc, seller, _ := disputedEscrow(t, state, engine)

	engine.SetNowFunc(func() int64 { return esc.ResponseDeadline + 72*3600 + 1 })
	if err := engine.RespondToDisputeWithBond(esc.Address(), seller, newTestHash(0xE2)); !errors.Is(err, ErrDeadline) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestRespondDeadlineIsExclusive(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	esc, seller, _ := disputedEscrow(t, state, engine)

	// The response must land strictly before the deadline.
	engine.SetNowFunc(func() int64 { return esc.ResponseDeadline })
	if err := engine.RespondToDisputeWithBond(esc.Address(), seller, newTestHash(0xE2)); !errors.Is(err, ErrDeadline) {
		t.Fatalf("expected deadline error at the boundary, got %v", err)
	}
	engine.SetNowFunc(func() int64 { return esc.ResponseDeadline - 1 })
	if err := engine.RespondToDisputeWithBond(esc.Address(), seller, newTestHash(0xE2)); err != nil {
		t.Fatalf("respond inside the window: %v", err)
	}
}

func TestResolveDisputeBuyerWins(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)
	esc, seller, buyer := disputedEscrow(t, state, engine)
	addr := esc.Address()

	if err := engine.ResolveDisputeWithExplanation(addr, testArbitrator, true, newTestHash(0xD0)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected resolution before response to fail, got %v", err)
	}
	if err := engine.RespondToDisputeWithBond(addr, seller, newTestHash(0xE2)); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if err := engine.ResolveDisputeWithExplanation(addr, seller, true, newTestHash(0xD1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected party resolution to fail, got %v", err)
	}
	if err := engine.ResolveDisputeWithExplanation(addr, testArbitrator, true, types.Hash32{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected zero explanation to fail, got %v", err)
	}
	if err := engine.ResolveDisputeWithExplanation(addr, testArbitrator, true, newTestHash(0xD1)); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Buyer: start 2_000_000, -50_000 bond, +1_000_000 principal, +50_000 bond back.
	if got := state.balance(buyer); got != 3_000_000 {
		t.Fatalf("unexpected buyer balance %d", got)
	}
	// Seller: start 2_000_000, -1_010_000 escrow, -50_000 forfeited bond.
	if got := state.balance(seller); got != 940_000 {
		t.Fatalf("unexpected seller balance %d", got)
	}
	// Arbitrator: fee plus the loser's bond.
	if got := state.balance(testArbitrator); got != 60_000 {
		t.Fatalf("unexpected arbitrator balance %d", got)
	}
	if _, ok := state.EscrowGet(addr); ok {
		t.Fatalf("expected resolved record reclaimed")
	}
	if len(state.vaults) != 0 {
		t.Fatalf("expected every vault closed, %d remain", len(state.vaults))
	}
	evt := emitter.last(t)
	if evt.Type != EventTypeDisputeResolved {
		t.Fatalf("expected resolution event, got %s", evt.Type)
	}
	if evt.Attributes["winner"] != buyer.String() {
		t.Fatalf("unexpected winner %s", evt.Attributes["winner"])
	}
	if _, late := evt.Attributes["late"]; late {
		t.Fatalf("resolution within the window must not be flagged late")
	}
}

func TestResolveDisputeSellerWins(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	esc, seller, buyer := disputedEscrow(t, state, engine)
	addr := esc.Address()

	if err := engine.RespondToDisputeWithBond(addr, seller, newTestHash(0xE2)); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if err := engine.ResolveDisputeWithExplanation(addr, testArbitrator, false, newTestHash(0xD2)); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Seller: start 2_000_000, escrow and bond returned in full.
	if got := state.balance(seller); got != 2_000_000 {
		t.Fatalf("unexpected seller balance %d", got)
	}
	// Buyer forfeits the bond.
	if got := state.balance(buyer); got != 1_950_000 {
		t.Fatalf("unexpected buyer balance %d", got)
	}
	if got := state.balance(testArbitrator); got != 50_000 {
		t.Fatalf("unexpected arbitrator balance %d", got)
	}
	if len(state.vaults) != 0 {
		t.Fatalf("expected every vault closed, %d remain", len(state.vaults))
	}
}

func TestResolveAfterArbitrationWindowFlagsLate(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)
	esc, seller, _ := disputedEscrow(t, state, engine)
	addr := esc.Address()

	if err := engine.RespondToDisputeWithBond(addr, seller, newTestHash(0xE2)); err != nil {
		t.Fatalf("respond: %v", err)
	}
	engine.SetNowFunc(func() int64 { return 1_700_000_000 + 168*3600 + 1 })
	if err := engine.ResolveDisputeWithExplanation(addr, testArbitrator, true, newTestHash(0xD3)); err != nil {
		t.Fatalf("late resolution must still apply: %v", err)
	}
	evt := emitter.last(t)
	if evt.Attributes["late"] != "true" {
		t.Fatalf("expected late flag on the resolution event")
	}
}

func TestDefaultJudgmentAwardsResponsiveParty(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)
	esc, seller, buyer := disputedEscrow(t, state, engine)
	addr := esc.Address()

	if err := engine.DefaultJudgment(addr, testArbitrator); !errors.Is(err, ErrDeadline) {
		t.Fatalf("expected default judgment before the deadline to fail, got %v", err)
	}
	engine.SetNowFunc(func() int64 { return esc.ResponseDeadline + 72*3600 + 1 })
	if err := engine.DefaultJudgment(addr, seller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected party judgment to fail, got %v", err)
	}
	if err := engine.DefaultJudgment(addr, testArbitrator); err != nil {
		t.Fatalf("default judgment: %v", err)
	}

	// Buyer: bond returned, principal awarded.
	if got := state.balance(buyer); got != 3_000_000 {
		t.Fatalf("unexpected buyer balance %d", got)
	}
	// Seller never posted; the escrow total is lost, nothing further forfeited.
	if got := state.balance(seller); got != 990_000 {
		t.Fatalf("unexpected seller balance %d", got)
	}
	if got := state.balance(testArbitrator); got != 10_000 {
		t.Fatalf("unexpected arbitrator balance %d", got)
	}
	if len(state.vaults) != 0 {
		t.Fatalf("expected every vault closed, %d remain", len(state.vaults))
	}
	evt := emitter.last(t)
	if evt.Type != EventTypeDefaultJudgment {
		t.Fatalf("expected default judgment event, got %s", evt.Type)
	}
	if evt.Attributes["winner"] != buyer.String() {
		t.Fatalf("unexpected winner %s", evt.Attributes["winner"])
	}
}

func TestDefaultJudgmentRequiresExactlyOnePostedParty(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	esc, seller, _ := disputedEscrow(t, state, engine)
	addr := esc.Address()

	if err := engine.RespondToDisputeWithBond(addr, seller, newTestHash(0xE2)); err != nil {
		t.Fatalf("respond: %v", err)
	}
	engine.SetNowFunc(func() int64 { return esc.ResponseDeadline + 72*3600 + 1 })
	if err := engine.DefaultJudgment(addr, testArbitrator); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected judgment with both parties posted to fail, got %v", err)
	}
}

func TestBondAccountInitialization(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	esc, seller, buyer := fundedEscrow(t, state, engine)
	addr := esc.Address()

	if err := engine.InitializeBuyerBondAccount(addr, seller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected seller to be barred from the buyer bond account, got %v", err)
	}
	if err := engine.InitializeBuyerBondAccount(addr, buyer); err != nil {
		t.Fatalf("init buyer bond: %v", err)
	}
	// Re-initialization of an empty vault is a no-op.
	if err := engine.InitializeBuyerBondAccount(addr, buyer); err != nil {
		t.Fatalf("idempotent init: %v", err)
	}
	if err := engine.InitializeSellerBondAccount(addr, testArbitrator); err != nil {
		t.Fatalf("arbitrator-assisted init: %v", err)
	}

	if err := engine.MarkFiatPaid(addr, buyer); err != nil {
		t.Fatalf("mark fiat paid: %v", err)
	}
	if err := engine.OpenDisputeWithBond(addr, buyer, newTestHash(0xE1)); err != nil {
		t.Fatalf("open dispute with pre-created vault: %v", err)
	}
	// Once the bond is posted the vault refuses recreation.
	if err := engine.InitializeBuyerBondAccount(addr, buyer); !errors.Is(err, ErrReinitialized) {
		t.Fatalf("expected populated vault to reject init, got %v", err)
	}
}

func TestDisputeValueConservation(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	esc, seller, buyer := disputedEscrow(t, state, engine)
	addr := esc.Address()

	if err := engine.RespondToDisputeWithBond(addr, seller, newTestHash(0xE2)); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if err := engine.ResolveDisputeWithExplanation(addr, testArbitrator, false, newTestHash(0xD4)); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	total := state.balance(seller) + state.balance(buyer) + state.balance(testArbitrator)
	if total != 4_000_000 {
		t.Fatalf("value not conserved: %d", total)
	}
}
