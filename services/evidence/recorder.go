package evidence

import (
	"log/slog"
	"strconv"

	"localsolana/core/events"
	"localsolana/core/types"
	"localsolana/native/escrow"
)

// Recorder subscribes to ledger events and mirrors dispute artifacts into the
// store. It satisfies events.Emitter so it can sit directly behind the
// engine, alone or fanned out with other subscribers.
type Recorder struct {
	store *Store
	log   *slog.Logger
}

// NewRecorder builds a recorder writing into store.
func NewRecorder(store *Store, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: store, log: log}
}

type eventCarrier interface {
	Event() *types.Event
}

// Emit implements events.Emitter.
func (r *Recorder) Emit(evt events.Event) {
	if r == nil || r.store == nil {
		return
	}
	carrier, ok := evt.(eventCarrier)
	if !ok {
		return
	}
	payload := carrier.Event()
	if payload == nil {
		return
	}
	attrs := payload.Attributes
	switch payload.Type {
	case escrow.EventTypeDisputeOpened:
		r.recordEvidence(attrs, attrs["initiator"])
	case escrow.EventTypeDisputeResponse:
		r.recordEvidence(attrs, attrs["responder"])
	case escrow.EventTypeDisputeResolved:
		if err := r.store.RecordResolution(attrs["address"], attrs["resolutionHash"], attrs["winner"]); err != nil {
			r.log.Warn("failed to record resolution", "dispute", attrs["address"], "err", err)
		}
	}
}

func (r *Recorder) recordEvidence(attrs map[string]string, submitter string) {
	hash := attrs["evidenceHash"]
	if hash == "" || submitter == "" {
		return
	}
	escrowID, err := strconv.ParseUint(attrs["escrowId"], 10, 64)
	if err != nil {
		return
	}
	tradeID, err := strconv.ParseUint(attrs["tradeId"], 10, 64)
	if err != nil {
		return
	}
	if err := r.store.RecordEvidence(escrowID, tradeID, submitter, hash); err != nil {
		r.log.Warn("failed to record evidence", "escrowId", escrowID, "tradeId", tradeID, "err", err)
	}
}
