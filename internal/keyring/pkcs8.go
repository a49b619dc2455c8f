// Package keyring loads password-protected PEM key files into a read-only,
// lock-free Address -> key directory. Key files follow the shape the
// original Devv node used: an encrypted PKCS8 "ENCRYPTED PRIVATE KEY" PEM
// block per key, built with PBES2 (PBKDF2 key derivation, AES-CBC
// encryption) — the classic OpenSSL `pkcs8 -topk8 -v2` output.
package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"hash"
	"math/big"

	"golang.org/x/crypto/pbkdf2"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"devv.network/node/internal/nodeerrors"
)

var (
	oidPBES2       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 13}
	oidPBKDF2      = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 12}
	oidHMACSHA1    = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 7}
	oidHMACSHA256  = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 9}
	oidAES128CBC   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 2}
	oidAES192CBC   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 22}
	oidAES256CBC   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42}
	oidECPublicKey = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
)

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type encryptedPrivateKeyInfo struct {
	Algorithm     algorithmIdentifier
	EncryptedData []byte
}

type pbkdf2Params struct {
	Salt           []byte
	IterationCount int
	KeyLength      int                  `asn1:"optional"`
	PRF            algorithmIdentifier `asn1:"optional"`
}

type pbes2Params struct {
	KeyDerivationFunc algorithmIdentifier
	EncryptionScheme  algorithmIdentifier
}

type pkcs8PrivateKeyInfo struct {
	Version    int
	Algorithm  algorithmIdentifier
	PrivateKey []byte
}

// ecPrivateKey is the minimal prefix of RFC 5915's ECPrivateKey needed to
// recover the raw scalar; the optional parameters/publicKey context-tagged
// fields that may trail it are left unparsed.
type ecPrivateKey struct {
	Version    int
	PrivateKey []byte
}

// decryptPKCS8 decrypts a PEM-encoded, password-protected PKCS8
// EncryptedPrivateKeyInfo block and returns the inner unencrypted
// PrivateKeyInfo DER.
func decryptPKCS8(pemBlock *pem.Block, passphrase []byte) ([]byte, error) {
	var info encryptedPrivateKeyInfo
	if _, err := asn1.Unmarshal(pemBlock.Bytes, &info); err != nil {
		return nil, fmt.Errorf("%w: parse EncryptedPrivateKeyInfo: %v", nodeerrors.ErrKeyMissing, err)
	}
	if !info.Algorithm.Algorithm.Equal(oidPBES2) {
		return nil, fmt.Errorf("%w: unsupported key-encryption scheme %v", nodeerrors.ErrKeyMissing, info.Algorithm.Algorithm)
	}
	var params pbes2Params
	if _, err := asn1.Unmarshal(info.Algorithm.Parameters.FullBytes, &params); err != nil {
		return nil, fmt.Errorf("%w: parse PBES2-params: %v", nodeerrors.ErrKeyMissing, err)
	}
	if !params.KeyDerivationFunc.Algorithm.Equal(oidPBKDF2) {
		return nil, fmt.Errorf("%w: unsupported KDF %v", nodeerrors.ErrKeyMissing, params.KeyDerivationFunc.Algorithm)
	}
	var kdf pbkdf2Params
	if _, err := asn1.Unmarshal(params.KeyDerivationFunc.Parameters.FullBytes, &kdf); err != nil {
		return nil, fmt.Errorf("%w: parse PBKDF2-params: %v", nodeerrors.ErrKeyMissing, err)
	}

	var newHash func() hash.Hash = sha1.New // PKCS5 v2.0 default PRF when absent
	if len(kdf.PRF.Algorithm) > 0 && kdf.PRF.Algorithm.Equal(oidHMACSHA256) {
		newHash = sha256.New
	}

	keyLen, iv, err := cipherParamsFor(params.EncryptionScheme)
	if err != nil {
		return nil, err
	}
	key := pbkdf2.Key(passphrase, kdf.Salt, kdf.IterationCount, keyLen, newHash)

	cb, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrKeyMissing, err)
	}
	if len(info.EncryptedData)%cb.BlockSize() != 0 || len(info.EncryptedData) == 0 {
		return nil, fmt.Errorf("%w: ciphertext not block-aligned", nodeerrors.ErrKeyMissing)
	}
	plain := make([]byte, len(info.EncryptedData))
	cipher.NewCBCDecrypter(cb, iv).CryptBlocks(plain, info.EncryptedData)
	plain, err = pkcs7Unpad(plain, cb.BlockSize())
	if err != nil {
		return nil, fmt.Errorf("%w: wrong passphrase or corrupt key file: %v", nodeerrors.ErrKeyMissing, err)
	}
	return plain, nil
}

func cipherParamsFor(scheme algorithmIdentifier) (keyLen int, iv []byte, err error) {
	var ivBytes []byte
	if _, uerr := asn1.Unmarshal(scheme.Parameters.FullBytes, &ivBytes); uerr != nil {
		return 0, nil, fmt.Errorf("%w: parse IV: %v", nodeerrors.ErrKeyMissing, uerr)
	}
	switch {
	case scheme.Algorithm.Equal(oidAES128CBC):
		return 16, ivBytes, nil
	case scheme.Algorithm.Equal(oidAES192CBC):
		return 24, ivBytes, nil
	case scheme.Algorithm.Equal(oidAES256CBC):
		return 32, ivBytes, nil
	default:
		return 0, nil, fmt.Errorf("%w: unsupported cipher %v", nodeerrors.ErrKeyMissing, scheme.Algorithm)
	}
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-pad], nil
}

// parseECDSAPrivateKey parses an unencrypted PKCS8 PrivateKeyInfo DER as a
// P-384 node key. Stdlib's x509 understands the NIST curve OID directly.
func parseECDSAPrivateKey(der []byte) (*ecdsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse node PKCS8 key: %v", nodeerrors.ErrKeyMissing, err)
	}
	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: node key is not ECDSA", nodeerrors.ErrKeyMissing)
	}
	return priv, nil
}

// parseSecp256k1PrivateKey parses an unencrypted PKCS8 PrivateKeyInfo DER
// carrying a secp256k1 scalar. x509 doesn't recognize the secp256k1 curve
// OID, so the ECPrivateKey inner structure is unwrapped by hand down to the
// raw 32-byte scalar.
func parseSecp256k1PrivateKey(der []byte) (*secp256k1.PrivateKey, error) {
	var pk8 pkcs8PrivateKeyInfo
	if _, err := asn1.Unmarshal(der, &pk8); err != nil {
		return nil, fmt.Errorf("%w: parse wallet PKCS8 key: %v", nodeerrors.ErrKeyMissing, err)
	}
	if !pk8.Algorithm.Algorithm.Equal(oidECPublicKey) {
		return nil, fmt.Errorf("%w: wallet key is not an EC key", nodeerrors.ErrKeyMissing)
	}
	var ecKey ecPrivateKey
	if _, err := asn1.Unmarshal(pk8.PrivateKey, &ecKey); err != nil {
		return nil, fmt.Errorf("%w: parse ECPrivateKey: %v", nodeerrors.ErrKeyMissing, err)
	}
	if len(ecKey.PrivateKey) != 32 {
		return nil, fmt.Errorf("%w: wallet scalar must be 32 bytes, got %d", nodeerrors.ErrKeyMissing, len(ecKey.PrivateKey))
	}
	scalar := new(big.Int).SetBytes(ecKey.PrivateKey)
	if scalar.Sign() == 0 || scalar.Cmp(secp256k1.S256().N) >= 0 {
		return nil, fmt.Errorf("%w: wallet scalar out of range", nodeerrors.ErrKeyMissing)
	}
	priv := secp256k1.PrivKeyFromBytes(ecKey.PrivateKey)
	return priv, nil
}
