package escrow

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"localsolana/core/types"
)

// Derivation seeds for custody objects. Every account an escrow touches is
// addressed by hashing a fixed seed with the relevant identifiers, so any
// party can recompute the full account set from public identifiers without an
// off-chain registry. The derivation is one-way and collision-resistant;
// spending authority over a derived address is held only by the ledger
// itself, never by a private key.
const (
	seedRecord     = "escrow"
	seedVault      = "escrow_token"
	seedBuyerBond  = "buyer_bond"
	seedSellerBond = "seller_bond"
)

func le8(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

func derive(seed string, parts ...[]byte) types.Address {
	data := append([][]byte{[]byte(seed)}, parts...)
	return types.Address(ethcrypto.Keccak256Hash(data...))
}

// RecordAddress derives the address of the escrow record for the identifier
// pair chosen by the caller.
func RecordAddress(escrowID, tradeID uint64) types.Address {
	return derive(seedRecord, le8(escrowID), le8(tradeID))
}

// VaultAddress derives the principal vault bound to an escrow record.
func VaultAddress(record types.Address) types.Address {
	return derive(seedVault, record[:])
}

// BuyerBondAddress derives the buyer's bond vault bound to an escrow record.
func BuyerBondAddress(record types.Address) types.Address {
	return derive(seedBuyerBond, record[:])
}

// SellerBondAddress derives the seller's bond vault bound to an escrow record.
func SellerBondAddress(record types.Address) types.Address {
	return derive(seedSellerBond, record[:])
}
