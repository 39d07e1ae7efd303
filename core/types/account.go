package types

// Account holds the stablecoin balance of a wallet address. All monetary
// values are unsigned 64-bit integers with six implied decimal places, so
// 1_000_000 represents 1.00 unit.
type Account struct {
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Clone returns a copy of the account so callers can mutate the result without
// affecting the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{}
	}
	clone := *a
	return &clone
}
