package primitives

import "testing"

func TestSumHashDeterministic(t *testing.T) {
	a := SumHash([]byte("devv"))
	b := SumHash([]byte("devv"))
	if !a.Equal(b) {
		t.Fatal("SumHash is not deterministic")
	}
	c := SumHash([]byte("devv2"))
	if a.Equal(c) {
		t.Fatal("different inputs hashed to the same value")
	}
}

func TestGenesisHash(t *testing.T) {
	want := SumHash([]byte("Genesis"))
	if !GenesisHash.Equal(want) {
		t.Fatal("GenesisHash does not match sha256(\"Genesis\")")
	}
}

func TestHashParseRoundTrip(t *testing.T) {
	h := SumHash([]byte("round trip"))
	parsed, n, err := ParseHash(h.Bytes())
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	if n != HashLen || !parsed.Equal(h) {
		t.Fatal("hash did not round trip")
	}
}

func TestHashFromHex(t *testing.T) {
	h := SumHash([]byte("hex"))
	parsed, err := HashFromHex(h.String())
	if err != nil {
		t.Fatalf("HashFromHex: %v", err)
	}
	if !parsed.Equal(h) {
		t.Fatal("hash did not survive a hex round trip")
	}
}

func TestZeroHashIsZero(t *testing.T) {
	if !ZeroHash.IsZero() {
		t.Fatal("ZeroHash.IsZero() must be true")
	}
	if GenesisHash.IsZero() {
		t.Fatal("GenesisHash must not be the zero hash")
	}
}
