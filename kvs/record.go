package kvs

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/gob"
	"sort"
	"strings"
)

// ConfigKey holds the JSON encoded membership of the group.
const ConfigKey = "__config__"

// Keys with this prefix can only be written with the admin token.
const reservedPrefix = "__"

func IsReserved(key string) bool {
	return strings.HasPrefix(key, reservedPrefix)
}

// A Record is a key, its value and the instance that wrote it.
type Record struct {
	Key      string
	Value    []byte
	Instance uint64
}

// A Backend stores records. It is used from one event loop only.
type Backend interface {
	// Merge stores rec unless the key already holds a record from the
	// same or a later instance. It reports whether rec was stored.
	Merge(rec Record) (bool, error)
	// Apply merges rec and raises LastInstance to rec.Instance as one
	// durable step.
	Apply(rec Record) (bool, error)
	Get(key string) (Record, bool, error)
	// Since returns every record written by an instance after the given
	// one.
	Since(instance uint64) ([]Record, error)
	// LastInstance is the highest instance up to which every decision
	// has been applied.
	LastInstance() uint64
	// SetLastInstance raises LastInstance; lower values are ignored.
	SetLastInstance(instance uint64) error
	Close() error
}

// An op is the value a write proposes.
type op struct {
	Key   string
	Value []byte
}

func (o op) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeOp(data []byte) (op, error) {
	var o op
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&o)
	return o, err
}

// StateHash fingerprints the keys and values held by b. Instances are left
// out, so replicas that applied the same writes hash alike.
func StateHash(b Backend) (string, error) {
	recs, err := b.Since(0)
	if err != nil {
		return "", err
	}
	// Iteration order is not deterministic for every backend.
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
	hasher := sha1.New()
	for _, rec := range recs {
		hasher.Write([]byte(rec.Key))
		hasher.Write(rec.Value)
	}
	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}
