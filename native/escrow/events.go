package escrow

import (
	"strconv"

	"localsolana/core/types"
)

const (
	EventTypeEscrowCreated   = "escrow.created"
	EventTypeFundsDeposited  = "escrow.funds_deposited"
	EventTypeFiatMarkedPaid  = "escrow.fiat_marked_paid"
	EventTypeEscrowReleased  = "escrow.released"
	EventTypeEscrowCancelled = "escrow.cancelled"
	EventTypeDisputeOpened   = "escrow.dispute_opened"
	EventTypeDisputeResponse = "escrow.dispute_response_submitted"
	EventTypeDisputeResolved = "escrow.dispute_resolved"
	EventTypeDefaultJudgment = "escrow.dispute_default_judgment"
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// newEvent builds the canonical payload shared by every ledger event: escrow
// and trade identifiers, the per-escrow audit counter and the operation
// timestamp.
func newEvent(eventType string, e *Escrow, ts int64) *types.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["escrowId"] = strconv.FormatUint(e.EscrowID, 10)
	attrs["tradeId"] = strconv.FormatUint(e.TradeID, 10)
	attrs["address"] = e.Address().String()
	attrs["counter"] = strconv.FormatUint(e.Counter, 10)
	attrs["timestamp"] = strconv.FormatInt(ts, 10)
	attrs["state"] = e.Status.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewCreatedEvent returns the payload for a newly created escrow record.
func NewCreatedEvent(e *Escrow, ts int64) *types.Event {
	evt := newEvent(EventTypeEscrowCreated, e, ts)
	if e != nil {
		evt.Attributes["seller"] = e.Seller.String()
		evt.Attributes["buyer"] = e.Buyer.String()
		evt.Attributes["amount"] = strconv.FormatUint(e.Amount, 10)
		evt.Attributes["fee"] = strconv.FormatUint(e.Fee, 10)
		evt.Attributes["depositDeadline"] = strconv.FormatInt(e.DepositDeadline, 10)
		evt.Attributes["sequential"] = strconv.FormatBool(e.Sequential)
	}
	return evt
}

// NewFundsDepositedEvent returns the payload emitted when the seller funds the
// principal vault with amount plus fee.
func NewFundsDepositedEvent(e *Escrow, ts int64) *types.Event {
	evt := newEvent(EventTypeFundsDeposited, e, ts)
	if e != nil {
		evt.Attributes["amount"] = strconv.FormatUint(e.Amount, 10)
		evt.Attributes["fee"] = strconv.FormatUint(e.Fee, 10)
		evt.Attributes["fiatDeadline"] = strconv.FormatInt(e.FiatDeadline, 10)
	}
	return evt
}

// NewFiatMarkedPaidEvent returns the payload emitted when the buyer confirms
// the fiat side of the trade.
func NewFiatMarkedPaidEvent(e *Escrow, ts int64) *types.Event {
	return newEvent(EventTypeFiatMarkedPaid, e, ts)
}

// NewReleasedEvent returns the payload emitted when principal reaches the
// buyer (or the sequential escrow) and the fee reaches the arbitrator.
func NewReleasedEvent(e *Escrow, ts int64, recipient types.Address) *types.Event {
	evt := newEvent(EventTypeEscrowReleased, e, ts)
	if e != nil {
		evt.Attributes["recipient"] = recipient.String()
		evt.Attributes["amount"] = strconv.FormatUint(e.Amount, 10)
		evt.Attributes["fee"] = strconv.FormatUint(e.Fee, 10)
	}
	return evt
}

// NewCancelledEvent returns the payload emitted on cancellation, whether
// party-initiated or deadline-driven.
func NewCancelledEvent(e *Escrow, ts int64, auto bool) *types.Event {
	evt := newEvent(EventTypeEscrowCancelled, e, ts)
	if e != nil {
		evt.Attributes["auto"] = strconv.FormatBool(auto)
	}
	return evt
}

// NewDisputeOpenedEvent returns the payload emitted when a party posts bond
// and evidence to open a dispute.
func NewDisputeOpenedEvent(e *Escrow, ts int64, bond uint64) *types.Event {
	evt := newEvent(EventTypeDisputeOpened, e, ts)
	if e != nil {
		evt.Attributes["initiator"] = e.DisputeInitiator.String()
		evt.Attributes["bond"] = strconv.FormatUint(bond, 10)
		evt.Attributes["responseDeadline"] = strconv.FormatInt(e.ResponseDeadline, 10)
		if e.DisputeInitiator == e.Buyer && e.BuyerEvidenceSet {
			evt.Attributes["evidenceHash"] = e.BuyerEvidence.String()
		} else if e.SellerEvidenceSet {
			evt.Attributes["evidenceHash"] = e.SellerEvidence.String()
		}
	}
	return evt
}

// NewDisputeResponseEvent returns the payload emitted when the counterparty
// matches the bond with its own evidence.
func NewDisputeResponseEvent(e *Escrow, ts int64, responder types.Address, bond uint64) *types.Event {
	evt := newEvent(EventTypeDisputeResponse, e, ts)
	if e != nil {
		evt.Attributes["responder"] = responder.String()
		evt.Attributes["bond"] = strconv.FormatUint(bond, 10)
		evt.Attributes["arbitrationDeadline"] = strconv.FormatInt(e.ArbitrationWindow, 10)
		if responder == e.Buyer && e.BuyerEvidenceSet {
			evt.Attributes["evidenceHash"] = e.BuyerEvidence.String()
		} else if e.SellerEvidenceSet {
			evt.Attributes["evidenceHash"] = e.SellerEvidence.String()
		}
	}
	return evt
}

// NewDisputeResolvedEvent returns the payload emitted when the arbitrator
// settles a fully-bonded dispute. The late attribute flags a resolution past
// the stored arbitration window without blocking it.
func NewDisputeResolvedEvent(e *Escrow, ts int64, buyerWins, late bool) *types.Event {
	evt := newEvent(EventTypeDisputeResolved, e, ts)
	if e != nil {
		evt.Attributes["buyerWins"] = strconv.FormatBool(buyerWins)
		evt.Attributes["resolutionHash"] = e.ResolutionHash.String()
		winner := e.Seller
		if buyerWins {
			winner = e.Buyer
		}
		evt.Attributes["winner"] = winner.String()
		if late {
			evt.Attributes["late"] = "true"
		}
	}
	return evt
}

// NewDefaultJudgmentEvent returns the payload emitted when the arbitrator
// awards the dispute to the only party that posted bond and evidence.
func NewDefaultJudgmentEvent(e *Escrow, ts int64, winner types.Address) *types.Event {
	evt := newEvent(EventTypeDefaultJudgment, e, ts)
	if e != nil {
		evt.Attributes["winner"] = winner.String()
	}
	return evt
}
