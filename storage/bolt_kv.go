package storage

import (
	"bytes"
	"encoding/gob"

	bolt "go.etcd.io/bbolt"
)

// BoltKV is a durable KVStore backed by a bbolt bucket. Keys and values
// are encoded with the supplied codec functions so one BoltKV type can
// back any of the typed relations in spec §4.5's schema without a
// reflection-based serializer.
type BoltKV[K comparable, V any] struct {
	db         *bolt.DB
	bucket     []byte
	encodeKey  func(K) []byte
	decodeVal  func([]byte) (V, error)
}

// OpenBoltKV opens (creating if absent) a bucket named bucket inside db
// for one relation's durable storage.
func OpenBoltKV[K comparable, V any](db *bolt.DB, bucket string, encodeKey func(K) []byte) (*BoltKV[K, V], error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &BoltKV[K, V]{db: db, bucket: []byte(bucket), encodeKey: encodeKey}, nil
}

func gobEncode[V any](v V) []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(v)
	return buf.Bytes()
}

func gobDecode[V any](b []byte) (V, error) {
	var v V
	err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v)
	return v, err
}

func (b *BoltKV[K, V]) Get(k K) (V, bool) {
	var out V
	var found bool
	_ = b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		raw := bk.Get(b.encodeKey(k))
		if raw == nil {
			return nil
		}
		v, err := gobDecode[V](raw)
		if err != nil {
			return err
		}
		out, found = v, true
		return nil
	})
	return out, found
}

func (b *BoltKV[K, V]) Put(k K, v V) {
	_ = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put(b.encodeKey(k), gobEncode(v))
	})
}

func (b *BoltKV[K, V]) Delete(k K) {
	_ = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Delete(b.encodeKey(k))
	})
}

// OpenBackingDB opens (creating as needed) the bbolt database file that
// backs every durable relation's BoltKV instances.
func OpenBackingDB(path string) (*bolt.DB, error) {
	return bolt.Open(path, 0600, nil)
}
