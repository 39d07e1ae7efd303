package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	var addr Address
	for i := range addr {
		addr[i] = byte(i)
	}
	parsed, err := ParseAddress(addr.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != addr {
		t.Fatalf("address did not round-trip")
	}

	if _, err := ParseAddress("not base58 !!"); err == nil {
		t.Fatalf("expected invalid encoding rejected")
	}
	if _, err := AddressFromBytes(make([]byte, 16)); err == nil {
		t.Fatalf("expected short input rejected")
	}
}

func TestAddressJSON(t *testing.T) {
	addr := Address{0x01, 0x02}
	raw, err := json.Marshal(addr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Address
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != addr {
		t.Fatalf("address did not survive JSON")
	}
}

func TestHash32Parsing(t *testing.T) {
	hash, err := ParseHash32(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if hash.IsZero() {
		t.Fatalf("expected non-zero hash")
	}
	if hash.String() != strings.Repeat("ab", 32) {
		t.Fatalf("hash did not round-trip")
	}

	if _, err := ParseHash32("abcd"); err == nil {
		t.Fatalf("expected short hash rejected")
	}
	if _, err := ParseHash32(strings.Repeat("zz", 32)); err == nil {
		t.Fatalf("expected invalid hex rejected")
	}

	var zero Hash32
	if !zero.IsZero() {
		t.Fatalf("zero hash must report IsZero")
	}
}
