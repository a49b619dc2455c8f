package primitives

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// newWalletKey generates a fresh secp256k1 key and its wallet Address, for
// tests that need a signer rather than a recorded fixture.
func newWalletKey(t *testing.T) (*secp256k1.PrivateKey, Address) {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generating wallet key: %v", err)
	}
	addr, err := WalletAddressFromPublicKey(priv.PubKey())
	if err != nil {
		t.Fatalf("deriving wallet address: %v", err)
	}
	return priv, addr
}

// newNodeKey generates a fresh P-384 key and its node Address.
func newNodeKey(t *testing.T) (*ecdsa.PrivateKey, Address) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatalf("generating node key: %v", err)
	}
	addr, err := NodeAddressFromPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("deriving node address: %v", err)
	}
	return priv, addr
}
