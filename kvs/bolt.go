package kvs

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	recordsBucket = []byte("records")
	metaBucket    = []byte("meta")
	lastKey       = []byte("last")
)

// BoltBackend keeps records in a bbolt database. Every write is a synced
// transaction, so an applied record survives a crash.
type BoltBackend struct {
	db   *bolt.DB
	last uint64
}

func OpenBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	bb := &BoltBackend{db: db}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		if v := meta.Get(lastKey); len(v) == 8 {
			bb.last = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing key/value database")
	}
	return bb, nil
}

func (bb *BoltBackend) Merge(rec Record) (bool, error) {
	applied := false
	err := bb.db.Update(func(tx *bolt.Tx) error {
		var err error
		applied, err = merge(tx, rec)
		return err
	})
	if err != nil {
		return false, errors.Wrapf(err, "merging %q", rec.Key)
	}
	return applied, nil
}

// Apply merges rec and raises the last instance to rec.Instance in a
// single synced transaction.
func (bb *BoltBackend) Apply(rec Record) (bool, error) {
	applied := false
	err := bb.db.Update(func(tx *bolt.Tx) error {
		var err error
		if applied, err = merge(tx, rec); err != nil {
			return err
		}
		if rec.Instance > bb.last {
			return putLast(tx, rec.Instance)
		}
		return nil
	})
	if err != nil {
		return false, errors.Wrapf(err, "applying %q at instance %d", rec.Key, rec.Instance)
	}
	if rec.Instance > bb.last {
		bb.last = rec.Instance
	}
	return applied, nil
}

func merge(tx *bolt.Tx, rec Record) (bool, error) {
	b := tx.Bucket(recordsBucket)
	if v := b.Get([]byte(rec.Key)); v != nil {
		cur, err := decodeRecord(v)
		if err != nil {
			return false, err
		}
		if cur.Instance >= rec.Instance {
			return false, nil
		}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return false, err
	}
	return true, b.Put([]byte(rec.Key), buf.Bytes())
}

func putLast(tx *bolt.Tx, instance uint64) error {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], instance)
	return tx.Bucket(metaBucket).Put(lastKey, v[:])
}

func (bb *BoltBackend) Get(key string) (Record, bool, error) {
	var (
		rec   Record
		found bool
	)
	err := bb.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(recordsBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		var err error
		rec, err = decodeRecord(v)
		found = err == nil
		return err
	})
	return rec, found, errors.Wrapf(err, "reading %q", key)
}

func (bb *BoltBackend) Since(instance uint64) ([]Record, error) {
	var recs []Record
	err := bb.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			if rec.Instance > instance {
				recs = append(recs, rec)
			}
			return nil
		})
	})
	return recs, errors.Wrap(err, "scanning records")
}

func (bb *BoltBackend) LastInstance() uint64 {
	return bb.last
}

func (bb *BoltBackend) SetLastInstance(instance uint64) error {
	if instance <= bb.last {
		return nil
	}
	err := bb.db.Update(func(tx *bolt.Tx) error {
		return putLast(tx, instance)
	})
	if err != nil {
		return errors.Wrap(err, "storing last instance")
	}
	bb.last = instance
	return nil
}

func (bb *BoltBackend) Close() error {
	return bb.db.Close()
}

func decodeRecord(v []byte) (Record, error) {
	var rec Record
	err := gob.NewDecoder(bytes.NewReader(v)).Decode(&rec)
	return rec, err
}
