package escrow

import "fmt"

const (
	// UnitDecimals is the number of implied decimal places carried by every
	// monetary value: 1_000_000 represents 1.00 unit.
	UnitDecimals = 6
	// MaxAmount caps the principal of a single escrow at 100 units.
	MaxAmount uint64 = 100_000_000
	// FeeBps is the platform fee charged on the principal, in basis points.
	FeeBps uint64 = 100
	// BondBps is the dispute bond posted by each disputing party, in basis
	// points of the principal.
	BondBps uint64 = 500

	bpsDenominator uint64 = 10_000
)

func addChecked(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("%w: %d + %d", ErrArithmetic, a, b)
	}
	return sum, nil
}

func subChecked(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("%w: %d - %d", ErrArithmetic, a, b)
	}
	return a - b, nil
}

func mulBps(amount, bps uint64) (uint64, error) {
	if bps != 0 && amount > ^uint64(0)/bps {
		return 0, fmt.Errorf("%w: %d bps of %d", ErrArithmetic, bps, amount)
	}
	return amount * bps / bpsDenominator, nil
}

// FeeFor returns the platform fee for a principal amount, exactly amount/100.
func FeeFor(amount uint64) (uint64, error) {
	return mulBps(amount, FeeBps)
}

// BondFor returns the dispute bond for a principal amount, exactly
// amount*5/100.
func BondFor(amount uint64) (uint64, error) {
	return mulBps(amount, BondBps)
}
