package pcommit

import (
	"container/list"

	"github.com/relab/txpaxos/paxos"
)

type Result uint8

const (
	Unset Result = iota
	Committed
	Aborted
)

func (r Result) String() string {
	switch r {
	case Unset:
		return "unset"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	}
	return "invalid"
}

var (
	commitValue = paxos.Value("commit")
	abortValue  = paxos.Value("abort")
)

func (r Result) value() paxos.Value {
	if r == Committed {
		return commitValue
	}
	return abortValue
}

// Decide applies the threshold rule to the votes decided so far. A
// transaction commits once committed reaches threshold, and aborts as soon
// as aborted makes that impossible.
func Decide(committed, aborted, total, threshold int) Result {
	switch {
	case committed >= threshold:
		return Committed
	case aborted > total-threshold:
		return Aborted
	}
	return Unset
}

// ResultsCache remembers the outcome of the most recent transactions. When
// full, the oldest entry is evicted and passed to OnEvict.
type ResultsCache struct {
	capacity int
	order    *list.List
	entries  map[string]*list.Element

	OnEvict func(txUUID string, desc Descriptor)
}

type cacheEntry struct {
	txUUID string
	desc   Descriptor
	result Result
}

func NewResultsCache(capacity int) *ResultsCache {
	if capacity < 1 {
		capacity = 1
	}
	return &ResultsCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (rc *ResultsCache) Get(txUUID string) (Result, bool) {
	r, _, found := rc.Entry(txUUID)
	return r, found
}

// Entry returns the result cached for txUUID and the descriptor it was
// decided under.
func (rc *ResultsCache) Entry(txUUID string) (Result, Descriptor, bool) {
	el, found := rc.entries[txUUID]
	if !found {
		return Unset, Descriptor{}, false
	}
	ce := el.Value.(cacheEntry)
	return ce.result, ce.desc, true
}

// Put records a result. A result already cached for txUUID is kept.
func (rc *ResultsCache) Put(txUUID string, desc Descriptor, r Result) {
	if _, found := rc.entries[txUUID]; found {
		return
	}
	rc.entries[txUUID] = rc.order.PushBack(cacheEntry{txUUID: txUUID, desc: desc, result: r})
	for rc.order.Len() > rc.capacity {
		oldest := rc.order.Front()
		rc.order.Remove(oldest)
		ce := oldest.Value.(cacheEntry)
		delete(rc.entries, ce.txUUID)
		if rc.OnEvict != nil {
			rc.OnEvict(ce.txUUID, ce.desc)
		}
	}
}

func (rc *ResultsCache) Len() int {
	return rc.order.Len()
}
