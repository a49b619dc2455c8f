package keyring

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"devv.network/node/internal/nodeerrors"
	"devv.network/node/internal/primitives"
)

// Key is a loaded private key paired with the public Address it signs for.
// Exactly one of Node/Wallet is set, matching the address's own type tag.
type Key struct {
	Address primitives.Address
	Node    *ecdsa.PrivateKey
	Wallet  *secp256k1.PrivateKey
}

// Sign produces the canonical signature for hash using whichever tier this
// key belongs to.
func (k Key) Sign(hash primitives.Hash) (primitives.Signature, error) {
	if k.Node != nil {
		return primitives.SignNode(k.Node, hash[:])
	}
	return primitives.SignWallet(k.Wallet, hash[:])
}

// KeyRing is the process-wide Address -> key directory. Built once at
// startup from three password-protected PEM files (INN, node, wallet), then
// read-only and safe to share across every worker without locking.
type KeyRing struct {
	byAddress    map[string]Key
	innAddress   primitives.Address
	nodeAddrs    []primitives.Address
	walletAddrs  []primitives.Address
	shardWallets map[uint32][]primitives.Address
}

// record is one "<hex address>\n<PEM block>" pair read from a key file.
type record struct {
	hexAddr string
	block   *pem.Block
}

func readRecords(path string) ([]record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", nodeerrors.ErrKeyMissing, path, err)
	}
	var recs []record
	rest := data
	for len(bytes.TrimSpace(rest)) > 0 {
		rest = bytes.TrimLeft(rest, "\r\n\t ")
		idx := bytes.IndexByte(rest, '\n')
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s: address line without a following PEM block", nodeerrors.ErrKeyMissing, path)
		}
		hexAddr := strings.TrimSpace(string(rest[:idx]))
		rest = rest[idx+1:]
		block, remainder := pem.Decode(rest)
		if block == nil {
			return nil, fmt.Errorf("%w: %s: expected PEM block after address %s", nodeerrors.ErrKeyMissing, path, hexAddr)
		}
		recs = append(recs, record{hexAddr: hexAddr, block: block})
		rest = remainder
	}
	return recs, nil
}

func loadNodeRecord(rec record, passphrase []byte) (primitives.Address, *ecdsa.PrivateKey, error) {
	addr, err := primitives.ParseAddressHex(rec.hexAddr)
	if err != nil {
		return primitives.Address{}, nil, err
	}
	plain, err := decryptPKCS8(rec.block, passphrase)
	if err != nil {
		return primitives.Address{}, nil, err
	}
	priv, err := parseECDSAPrivateKey(plain)
	if err != nil {
		return primitives.Address{}, nil, err
	}
	derived, err := primitives.NodeAddressFromPublicKey(&priv.PublicKey)
	if err != nil {
		return primitives.Address{}, nil, err
	}
	if !derived.Equal(addr) {
		return primitives.Address{}, nil, fmt.Errorf("%w: node key does not match address %s", nodeerrors.ErrKeyMissing, rec.hexAddr)
	}
	return addr, priv, nil
}

func loadWalletRecord(rec record, passphrase []byte) (primitives.Address, *secp256k1.PrivateKey, error) {
	addr, err := primitives.ParseAddressHex(rec.hexAddr)
	if err != nil {
		return primitives.Address{}, nil, err
	}
	plain, err := decryptPKCS8(rec.block, passphrase)
	if err != nil {
		return primitives.Address{}, nil, err
	}
	priv, err := parseSecp256k1PrivateKey(plain)
	if err != nil {
		return primitives.Address{}, nil, err
	}
	derived, err := primitives.WalletAddressFromPublicKey(priv.PubKey())
	if err != nil {
		return primitives.Address{}, nil, err
	}
	if !derived.Equal(addr) {
		return primitives.Address{}, nil, fmt.Errorf("%w: wallet key does not match address %s", nodeerrors.ErrKeyMissing, rec.hexAddr)
	}
	return addr, priv, nil
}

// Load builds a KeyRing from three key files: innKeyPath holds exactly one
// INN node-tier record, nodeKeyPath holds the shard's ordered node-tier
// records, walletKeyPath holds the ordered wallet-tier records. shardWallets
// seeds DesignatedWallets, the per-shard wallet projection the internetwork
// worker needs — it has no key material of its own, so it can't be derived
// from the files above and is supplied directly by configuration.
func Load(innKeyPath, nodeKeyPath, walletKeyPath string, passphrase []byte, shardWallets map[uint32][]primitives.Address) (*KeyRing, error) {
	kr := &KeyRing{
		byAddress:    make(map[string]Key),
		shardWallets: shardWallets,
	}

	innRecs, err := readRecords(innKeyPath)
	if err != nil {
		return nil, err
	}
	if len(innRecs) != 1 {
		return nil, fmt.Errorf("%w: %s: expected exactly one INN key record, found %d", nodeerrors.ErrKeyMissing, innKeyPath, len(innRecs))
	}
	innAddr, innPriv, err := loadNodeRecord(innRecs[0], passphrase)
	if err != nil {
		return nil, err
	}
	kr.innAddress = innAddr
	kr.byAddress[innAddr.String()] = Key{Address: innAddr, Node: innPriv}

	nodeRecs, err := readRecords(nodeKeyPath)
	if err != nil {
		return nil, err
	}
	for _, rec := range nodeRecs {
		addr, priv, err := loadNodeRecord(rec, passphrase)
		if err != nil {
			return nil, err
		}
		kr.nodeAddrs = append(kr.nodeAddrs, addr)
		kr.byAddress[addr.String()] = Key{Address: addr, Node: priv}
	}

	walletRecs, err := readRecords(walletKeyPath)
	if err != nil {
		return nil, err
	}
	for _, rec := range walletRecs {
		addr, priv, err := loadWalletRecord(rec, passphrase)
		if err != nil {
			return nil, err
		}
		kr.walletAddrs = append(kr.walletAddrs, addr)
		kr.byAddress[addr.String()] = Key{Address: addr, Wallet: priv}
	}

	return kr, nil
}

// GetKey looks up addr's private key, failing with ErrKeyMissing.
func (kr *KeyRing) GetKey(addr primitives.Address) (Key, error) {
	k, ok := kr.byAddress[addr.String()]
	if !ok {
		return Key{}, fmt.Errorf("%w: %s", nodeerrors.ErrKeyMissing, addr)
	}
	return k, nil
}

// IsINN reports whether addr is the shard's designated INN address.
func (kr *KeyRing) IsINN(addr primitives.Address) bool {
	return addr.Equal(kr.innAddress)
}

// INNAddress returns the shard's designated INN address.
func (kr *KeyRing) INNAddress() primitives.Address { return kr.innAddress }

// NodeAddress returns the node address at index (this process's peer
// ordering within the shard).
func (kr *KeyRing) NodeAddress(index int) (primitives.Address, error) {
	if index < 0 || index >= len(kr.nodeAddrs) {
		return primitives.Address{}, fmt.Errorf("%w: node index %d out of range", nodeerrors.ErrKeyMissing, index)
	}
	return kr.nodeAddrs[index], nil
}

// NodeKey returns the node key at index.
func (kr *KeyRing) NodeKey(index int) (Key, error) {
	addr, err := kr.NodeAddress(index)
	if err != nil {
		return Key{}, err
	}
	return kr.GetKey(addr)
}

// WalletAddress returns the wallet address at index.
func (kr *KeyRing) WalletAddress(index int) (primitives.Address, error) {
	if index < 0 || index >= len(kr.walletAddrs) {
		return primitives.Address{}, fmt.Errorf("%w: wallet index %d out of range", nodeerrors.ErrKeyMissing, index)
	}
	return kr.walletAddrs[index], nil
}

// WalletKey returns the wallet key at index.
func (kr *KeyRing) WalletKey(index int) (Key, error) {
	addr, err := kr.WalletAddress(index)
	if err != nil {
		return Key{}, err
	}
	return kr.GetKey(addr)
}

// NodeCount and WalletCount report how many keys of each tier were loaded.
func (kr *KeyRing) NodeCount() int   { return len(kr.nodeAddrs) }
func (kr *KeyRing) WalletCount() int { return len(kr.walletAddrs) }

// DesignatedWallets returns the wallet addresses the internetwork worker
// should project remote-block credits into for shardIndex.
func (kr *KeyRing) DesignatedWallets(shardIndex uint32) []primitives.Address {
	return kr.shardWallets[shardIndex]
}

// AssignShardWallets replaces the shard->wallet projection table. Load
// leaves this empty when shardWallets is nil, since the wallet addresses it
// would key on aren't known until the wallet key file has been read; callers
// that want DesignatedWallets to resolve (the internetwork worker does) call
// this once after Load returns, typically with this process's own
// WalletAddress set keyed under its own shard index.
func (kr *KeyRing) AssignShardWallets(m map[uint32][]primitives.Address) {
	kr.shardWallets = m
}
