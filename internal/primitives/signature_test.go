package primitives

import "testing"

func TestWalletSignVerifyRoundTrip(t *testing.T) {
	priv, addr := newWalletKey(t)
	hash := SumHash([]byte("hello wallet"))
	sig, err := SignWallet(priv, hash[:])
	if err != nil {
		t.Fatalf("SignWallet: %v", err)
	}
	if len(sig.Bytes()) != 1+walletSignatureBodyLen {
		t.Fatalf("wallet signature is %d bytes, want %d", len(sig.Bytes()), 1+walletSignatureBodyLen)
	}
	if !VerifyWallet(addr, hash[:], sig) {
		t.Fatal("signature failed to verify against its own address")
	}
	other := SumHash([]byte("tampered"))
	if VerifyWallet(addr, other[:], sig) {
		t.Fatal("signature verified against a different hash")
	}
}

func TestNodeSignVerifyRoundTrip(t *testing.T) {
	priv, addr := newNodeKey(t)
	hash := SumHash([]byte("hello node"))
	sig, err := SignNode(priv, hash[:])
	if err != nil {
		t.Fatalf("SignNode: %v", err)
	}
	if len(sig.Bytes()) != 1+nodeSignatureBodyLen {
		t.Fatalf("node signature is %d bytes, want %d", len(sig.Bytes()), 1+nodeSignatureBodyLen)
	}
	if !VerifyNode(addr, hash[:], sig) {
		t.Fatal("signature failed to verify against its own address")
	}
}

func TestSignatureRoundTripBytes(t *testing.T) {
	priv, _ := newNodeKey(t)
	hash := SumHash([]byte("round trip"))
	sig, err := SignNode(priv, hash[:])
	if err != nil {
		t.Fatalf("SignNode: %v", err)
	}
	parsed, n, err := ParseSignature(sig.Bytes())
	if err != nil {
		t.Fatalf("ParseSignature: %v", err)
	}
	if n != len(sig.Bytes()) || !parsed.Equal(sig) {
		t.Fatal("signature did not round trip through ParseSignature")
	}
}

func TestNullSignatureRoundTrip(t *testing.T) {
	null := NullSignature()
	if !null.IsNull() {
		t.Fatal("NullSignature().IsNull() must be true")
	}
	parsed, n, err := ParseSignature(null.Bytes())
	if err != nil {
		t.Fatalf("ParseSignature: %v", err)
	}
	if n != 1 || !parsed.IsNull() {
		t.Fatal("null signature did not round trip")
	}
}

func TestCrossTierVerifyFails(t *testing.T) {
	walletPriv, walletAddr := newWalletKey(t)
	hash := SumHash([]byte("cross tier"))
	sig, err := SignWallet(walletPriv, hash[:])
	if err != nil {
		t.Fatalf("SignWallet: %v", err)
	}
	if VerifyNode(walletAddr, hash[:], sig) {
		t.Fatal("a wallet signature must not verify as a node signature")
	}
}
