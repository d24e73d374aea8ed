package durable

import (
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var stateBucket = []byte("state")

// BoltStore keeps state in a bbolt database file. Every SetState is a
// synced transaction.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating state bucket")
	}
	return &BoltStore{db: db}, nil
}

func (bs *BoltStore) SetState(dataID string, state []byte) error {
	err := bs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Put([]byte(dataID), state)
	})
	return errors.Wrapf(err, "storing %s", dataID)
}

func (bs *BoltStore) GetState(dataID string) ([]byte, error) {
	var state []byte
	err := bs.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(stateBucket).Get([]byte(dataID)); v != nil {
			state = append([]byte(nil), v...)
		}
		return nil
	})
	return state, errors.Wrapf(err, "loading %s", dataID)
}

func (bs *BoltStore) Delete(dataID string) error {
	err := bs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Delete([]byte(dataID))
	})
	return errors.Wrapf(err, "deleting %s", dataID)
}

func (bs *BoltStore) Flush() error {
	return errors.Wrap(bs.db.Sync(), "syncing state database")
}

func (bs *BoltStore) Close() error {
	return bs.db.Close()
}
