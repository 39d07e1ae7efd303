package escrow

import "errors"

// Sentinel errors enumerate the failure kinds every operation can report.
// Handlers match them with errors.Is to choose response codes; the wrapped
// message carries the operation-specific detail.
var (
	// ErrValidation covers malformed input: zero or over-maximum amounts,
	// missing sequential addresses and zeroed 32-byte hashes.
	ErrValidation = errors.New("escrow: validation failed")
	// ErrUnauthorized is returned when the caller is not the seller, buyer or
	// arbitrator required by the operation.
	ErrUnauthorized = errors.New("escrow: unauthorized caller")
	// ErrInvalidState is returned when the record's current status does not
	// permit the requested transition.
	ErrInvalidState = errors.New("escrow: invalid state transition")
	// ErrDeadline is returned when a deposit, fiat or response window has
	// elapsed, or when an expiry-gated operation runs too early.
	ErrDeadline = errors.New("escrow: deadline constraint violated")
	// ErrInsufficientFunds is returned when a balance cannot cover the
	// principal plus fee or a dispute bond.
	ErrInsufficientFunds = errors.New("escrow: insufficient funds")
	// ErrReinitialized is returned when an already-populated custody vault
	// would be recreated.
	ErrReinitialized = errors.New("escrow: vault already initialized")
	// ErrNotFound is returned when no escrow record exists at the address.
	ErrNotFound = errors.New("escrow: escrow not found")
	// ErrArithmetic is returned when checked integer arithmetic would
	// overflow or underflow. It is always a defect in the caller's input,
	// never silently saturated.
	ErrArithmetic = errors.New("escrow: arithmetic overflow")
)
