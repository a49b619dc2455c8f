// Package repeater archives finalized blocks to a bbolt database and
// answers by-height/by-signature queries, the persistence/repeater
// collaborator named in §1 as out of the core's scope but given a real
// implementation here so the FinalBlock-emission contract has a subscriber
// to exercise it.
package repeater

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"devv.network/node/internal/nodeerrors"
	"devv.network/node/internal/primitives"
)

var (
	bucketByHeight    = []byte("blocks_by_height")
	bucketBySignature = []byte("heights_by_signature")
)

// Repeater is a bbolt-backed archive of finalized blocks, keyed both by
// height and by the signature of every transaction each block carries.
type Repeater struct {
	db *bolt.DB
}

// Open creates or opens the database at path, ensuring both buckets exist.
func Open(path string) (*Repeater, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open repeater db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketByHeight); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketBySignature)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing repeater buckets: %w", err)
	}
	return &Repeater{db: db}, nil
}

// Close releases the underlying database file.
func (r *Repeater) Close() error { return r.db.Close() }

func heightKey(h uint64) []byte {
	key := make([]byte, 8)
	binary.LittleEndian.PutUint64(key, h)
	return key
}

// Record archives block at height, indexing every transaction signature it
// carries for BySignature lookups. Re-recording the same height overwrites
// the prior entry, matching the idempotent-replay contract the rest of the
// core relies on.
func (r *Repeater) Record(height uint64, block *primitives.FinalBlock) error {
	data := block.CanonicalBytes()
	return r.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketByHeight).Put(heightKey(height), data); err != nil {
			return err
		}
		sigBucket := tx.Bucket(bucketBySignature)
		for _, t := range block.Transactions {
			sig := t.Signature()
			if sig.IsNull() {
				continue
			}
			if err := sigBucket.Put(sig.Bytes(), heightKey(height)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ByHeight returns the canonical bytes of the final block at height.
func (r *Repeater) ByHeight(height uint64) ([]byte, error) {
	var out []byte
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketByHeight).Get(heightKey(height))
		if v == nil {
			return fmt.Errorf("%w: no block archived at height %d", nodeerrors.ErrKeyMissing, height)
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BySignature returns the canonical bytes of the final block that contains
// a transaction signed with sig.
func (r *Repeater) BySignature(sig primitives.Signature) ([]byte, error) {
	var heightBytes []byte
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBySignature).Get(sig.Bytes())
		if v == nil {
			return fmt.Errorf("%w: no block indexed for this signature", nodeerrors.ErrKeyMissing)
		}
		heightBytes = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.ByHeight(binary.LittleEndian.Uint64(heightBytes))
}
