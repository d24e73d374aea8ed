package main

import (
	"io/ioutil"

	"github.com/golang/glog"

	"github.com/relab/txpaxos"
	"github.com/relab/txpaxos/kvs"
)

const hashFilename = "statehash"

// writeHash fingerprints the replica's key/value state, so that runs can
// be compared across nodes.
func writeHash(r *txpaxos.Replica) error {
	glog.V(1).Info("generating state hash...")

	var (
		hash string
		last uint64
		err  error
	)
	s := r.Server()
	s.Do(func() {
		b := s.Replica().Backend()
		last = b.LastInstance()
		hash, err = kvs.StateHash(b)
	})
	if err != nil {
		return err
	}
	glog.V(1).Infof("hash generated up to instance %d", last)
	glog.V(1).Infoln("resulting hash:", hash)

	return ioutil.WriteFile(hashFilename, []byte(hash), 0644)
}
