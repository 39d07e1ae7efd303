package escrow

import (
	"errors"
	"fmt"
	"time"

	"localsolana/core/events"
	"localsolana/core/types"
)

var (
	errNilState     = errors.New("escrow engine: state not configured")
	errNoArbitrator = errors.New("escrow engine: arbitrator not configured")
)

// EngineState is the persistence surface the engine drives. Implementations
// must apply each operation's mutations atomically with respect to other
// operations on the same record; the engine never leaves partial effects
// behind on error because every transfer is validated before any mutation.
type EngineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(addr types.Address) (*Escrow, bool)
	EscrowDelete(addr types.Address) error

	GetAccount(addr types.Address) (*types.Account, error)
	PutAccount(addr types.Address, account *types.Account) error

	VaultInit(addr types.Address, escrow types.Address, role string) error
	VaultGet(addr types.Address) (*Vault, bool)
	VaultCredit(addr types.Address, amount uint64) error
	VaultDebit(addr types.Address, amount uint64) error
	VaultClose(addr types.Address) error
}

// Windows bundles the deadline durations applied by the engine. The zero
// value is replaced by DefaultWindows; test networks may shorten them.
type Windows struct {
	Deposit     time.Duration
	Fiat        time.Duration
	Response    time.Duration
	Arbitration time.Duration
}

// DefaultWindows returns the production deadline set: 15 minutes to deposit,
// 30 minutes to confirm fiat, 72 hours to respond to a dispute and a 168 hour
// arbitration window.
func DefaultWindows() Windows {
	return Windows{
		Deposit:     15 * time.Minute,
		Fiat:        30 * time.Minute,
		Response:    72 * time.Hour,
		Arbitration: 168 * time.Hour,
	}
}

// Engine wires the escrow transition logic with external state, a trusted
// clock and event emission. The arbitrator identity is injected at
// construction time rather than compiled in, so deployments and tests choose
// their own.
type Engine struct {
	state      EngineState
	emitter    events.Emitter
	arbitrator types.Address
	windows    Windows
	nowFn      func() int64
}

// NewEngine creates an escrow engine with default windows and a no-op
// emitter. Callers configure state, arbitrator and emitter before use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		windows: DefaultWindows(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetArbitrator configures the fixed arbitrator identity that receives fees
// and settles disputes.
func (e *Engine) SetArbitrator(addr types.Address) { e.arbitrator = addr }

// Arbitrator returns the configured arbitrator identity.
func (e *Engine) Arbitrator() types.Address { return e.arbitrator }

// SetWindows overrides the deadline durations. Zero fields fall back to the
// defaults.
func (e *Engine) SetWindows(w Windows) {
	def := DefaultWindows()
	if w.Deposit <= 0 {
		w.Deposit = def.Deposit
	}
	if w.Fiat <= 0 {
		w.Fiat = def.Fiat
	}
	if w.Response <= 0 {
		w.Response = def.Response
	}
	if w.Arbitration <= 0 {
		w.Arbitration = def.Arbitration
	}
	e.windows = w
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Emitter returns the configured event emitter.
func (e *Engine) Emitter() events.Emitter { return e.emitter }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.arbitrator.IsZero() {
		return errNoArbitrator
	}
	return nil
}

func (e *Engine) loadEscrow(addr types.Address) (*Escrow, error) {
	esc, ok := e.state.EscrowGet(addr)
	if !ok {
		return nil, ErrNotFound
	}
	return esc, nil
}

func (e *Engine) storeEscrow(esc *Escrow) error {
	sanitized, err := SanitizeEscrow(esc)
	if err != nil {
		return err
	}
	return e.state.EscrowPut(sanitized)
}

// debitAccount moves amount out of a wallet, failing with ErrInsufficientFunds
// when the balance cannot cover it.
func (e *Engine) debitAccount(addr types.Address, amount uint64) error {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	next, err := subChecked(acc.Balance, amount)
	if err != nil {
		return fmt.Errorf("%w: balance %d cannot cover %d", ErrInsufficientFunds, acc.Balance, amount)
	}
	acc.Balance = next
	return e.state.PutAccount(addr, acc)
}

func (e *Engine) creditAccount(addr types.Address, amount uint64) error {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	next, err := addChecked(acc.Balance, amount)
	if err != nil {
		return err
	}
	acc.Balance = next
	return e.state.PutAccount(addr, acc)
}

// vaultPayout drains amount from a vault into a wallet.
func (e *Engine) vaultPayout(vault types.Address, to types.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := e.state.VaultDebit(vault, amount); err != nil {
		return err
	}
	return e.creditAccount(to, amount)
}

// Create initialises and persists a new escrow record on behalf of the
// seller. The deposit deadline starts ticking immediately.
func (e *Engine) Create(escrowID, tradeID uint64, seller, buyer types.Address, amount uint64, sequential bool, sequentialAddr *types.Address) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == 0 || amount > MaxAmount {
		return nil, fmt.Errorf("%w: amount %d out of range (0, %d]", ErrValidation, amount, MaxAmount)
	}
	if seller.IsZero() || buyer.IsZero() {
		return nil, fmt.Errorf("%w: seller and buyer addresses required", ErrValidation)
	}
	var forward types.Address
	if sequential {
		if sequentialAddr == nil || sequentialAddr.IsZero() {
			return nil, fmt.Errorf("%w: sequential escrow requires a forwarding address", ErrValidation)
		}
		forward = *sequentialAddr
	}
	fee, err := FeeFor(amount)
	if err != nil {
		return nil, err
	}
	addr := RecordAddress(escrowID, tradeID)
	if _, ok := e.state.EscrowGet(addr); ok {
		return nil, fmt.Errorf("%w: escrow (%d, %d) already exists", ErrInvalidState, escrowID, tradeID)
	}
	now := e.now()
	esc := &Escrow{
		EscrowID:          escrowID,
		TradeID:           tradeID,
		Seller:            seller,
		Buyer:             buyer,
		Arbitrator:        e.arbitrator,
		Amount:            amount,
		Fee:               fee,
		DepositDeadline:   now + int64(e.windows.Deposit/time.Second),
		Status:            StatusCreated,
		Sequential:        sequential,
		SequentialAddress: forward,
	}
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(esc, now))
	return esc.Clone(), nil
}

// Fund transfers amount plus fee from the seller into the principal vault and
// starts the fiat confirmation window. Funding an already-funded escrow fails
// without altering balances or state.
func (e *Engine) Fund(addr types.Address, caller types.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(addr)
	if err != nil {
		return err
	}
	if esc.Status != StatusCreated {
		return fmt.Errorf("%w: cannot fund in state %s", ErrInvalidState, esc.Status)
	}
	if caller != esc.Seller {
		return fmt.Errorf("%w: only the seller may fund", ErrUnauthorized)
	}
	now := e.now()
	if now >= esc.DepositDeadline {
		return fmt.Errorf("%w: deposit deadline elapsed", ErrDeadline)
	}
	total, err := addChecked(esc.Amount, esc.Fee)
	if err != nil {
		return err
	}
	vault := VaultAddress(addr)
	if _, ok := e.state.VaultGet(vault); ok {
		return fmt.Errorf("%w: principal vault for escrow %d", ErrReinitialized, esc.EscrowID)
	}
	if err := e.debitAccount(esc.Seller, total); err != nil {
		return err
	}
	if err := e.state.VaultInit(vault, addr, VaultRolePrincipal); err != nil {
		return err
	}
	if err := e.state.VaultCredit(vault, total); err != nil {
		return err
	}
	esc.Status = StatusFunded
	esc.FiatDeadline = now + int64(e.windows.Fiat/time.Second)
	esc.TrackedBalance = total
	esc.Counter++
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewFundsDepositedEvent(esc, now))
	return nil
}

// MarkFiatPaid records the buyer's one-time confirmation that the fiat side
// of the trade settled. It must land before the fiat deadline.
func (e *Engine) MarkFiatPaid(addr types.Address, caller types.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(addr)
	if err != nil {
		return err
	}
	if esc.Status != StatusFunded {
		return fmt.Errorf("%w: cannot mark fiat paid in state %s", ErrInvalidState, esc.Status)
	}
	if caller != esc.Buyer {
		return fmt.Errorf("%w: only the buyer may mark fiat paid", ErrUnauthorized)
	}
	if esc.FiatPaid {
		return fmt.Errorf("%w: fiat already marked paid", ErrInvalidState)
	}
	now := e.now()
	if now >= esc.FiatDeadline {
		return fmt.Errorf("%w: fiat confirmation deadline elapsed", ErrDeadline)
	}
	esc.FiatPaid = true
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewFiatMarkedPaidEvent(esc, now))
	return nil
}

// UpdateSequentialAddress lets the buyer repoint the downstream escrow of a
// sequential trade any time before the record turns terminal.
func (e *Engine) UpdateSequentialAddress(addr types.Address, caller types.Address, next types.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(addr)
	if err != nil {
		return err
	}
	if caller != esc.Buyer {
		return fmt.Errorf("%w: only the buyer may update the sequential address", ErrUnauthorized)
	}
	if !esc.Sequential {
		return fmt.Errorf("%w: escrow is not sequential", ErrValidation)
	}
	if esc.Status.Terminal() {
		return fmt.Errorf("%w: cannot update a %s escrow", ErrInvalidState, esc.Status)
	}
	if next.IsZero() {
		return fmt.Errorf("%w: sequential address required", ErrValidation)
	}
	esc.SequentialAddress = next
	return e.storeEscrow(esc)
}

// Release settles the escrow in the buyer's favour: principal to the buyer
// (or the sequential escrow), fee to the arbitrator, vault closed. Either the
// seller or the arbitrator may trigger it once fiat is confirmed.
func (e *Engine) Release(addr types.Address, caller types.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(addr)
	if err != nil {
		return err
	}
	if esc.Status != StatusFunded {
		return fmt.Errorf("%w: cannot release in state %s", ErrInvalidState, esc.Status)
	}
	if caller != esc.Seller && caller != esc.Arbitrator {
		return fmt.Errorf("%w: only the seller or arbitrator may release", ErrUnauthorized)
	}
	if !esc.FiatPaid {
		return fmt.Errorf("%w: fiat not marked paid", ErrInvalidState)
	}
	recipient := esc.Buyer
	if esc.Sequential {
		if esc.SequentialAddress.IsZero() {
			return fmt.Errorf("%w: sequential escrow requires a forwarding address", ErrValidation)
		}
		recipient = esc.SequentialAddress
	}
	vault := VaultAddress(addr)
	if err := e.vaultPayout(vault, e.arbitrator, esc.Fee); err != nil {
		return err
	}
	if err := e.vaultPayout(vault, recipient, esc.Amount); err != nil {
		return err
	}
	if err := e.state.VaultClose(vault); err != nil {
		return err
	}
	now := e.now()
	esc.Status = StatusReleased
	esc.TrackedBalance = 0
	esc.Counter++
	e.emit(NewReleasedEvent(esc, now, recipient))
	// Terminal records are reclaimed immediately; the event is the durable
	// trace.
	return e.state.EscrowDelete(addr)
}

// Cancel unwinds an escrow whose fiat leg never settled. A funded escrow
// refunds amount plus fee to the seller before the vault closes.
func (e *Engine) Cancel(addr types.Address, caller types.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(addr)
	if err != nil {
		return err
	}
	if caller != esc.Seller && caller != esc.Arbitrator {
		return fmt.Errorf("%w: only the seller or arbitrator may cancel", ErrUnauthorized)
	}
	return e.cancel(esc, false)
}

// AutoCancel is the arbitrator-invoked, deadline-gated variant of Cancel: it
// applies once the deposit window lapses unfunded, or the fiat window lapses
// without confirmation.
func (e *Engine) AutoCancel(addr types.Address, caller types.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(addr)
	if err != nil {
		return err
	}
	if caller != esc.Arbitrator {
		return fmt.Errorf("%w: only the arbitrator may auto-cancel", ErrUnauthorized)
	}
	now := e.now()
	switch esc.Status {
	case StatusCreated:
		if now <= esc.DepositDeadline {
			return fmt.Errorf("%w: deposit deadline not yet passed", ErrDeadline)
		}
	case StatusFunded:
		if esc.FiatPaid {
			return fmt.Errorf("%w: fiat already marked paid", ErrInvalidState)
		}
		if now <= esc.FiatDeadline {
			return fmt.Errorf("%w: fiat deadline not yet passed", ErrDeadline)
		}
	default:
		return fmt.Errorf("%w: cannot auto-cancel in state %s", ErrInvalidState, esc.Status)
	}
	return e.cancel(esc, true)
}

func (e *Engine) cancel(esc *Escrow, auto bool) error {
	if esc.Status != StatusCreated && esc.Status != StatusFunded {
		return fmt.Errorf("%w: cannot cancel in state %s", ErrInvalidState, esc.Status)
	}
	if esc.FiatPaid {
		return fmt.Errorf("%w: cannot cancel after fiat marked paid", ErrInvalidState)
	}
	addr := esc.Address()
	if esc.Status == StatusFunded {
		total, err := addChecked(esc.Amount, esc.Fee)
		if err != nil {
			return err
		}
		vault := VaultAddress(addr)
		if err := e.vaultPayout(vault, esc.Seller, total); err != nil {
			return err
		}
		if err := e.state.VaultClose(vault); err != nil {
			return err
		}
	}
	esc.Status = StatusCancelled
	esc.TrackedBalance = 0
	esc.Counter++
	e.emit(NewCancelledEvent(esc, e.now(), auto))
	return e.state.EscrowDelete(addr)
}
