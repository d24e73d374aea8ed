package durable

import (
	"github.com/golang/glog"

	"github.com/relab/txpaxos/loop"
)

type write struct {
	state   []byte
	remove  bool
	waiters []func(error)
}

// A Persister writes state to a Store without blocking the event loop.
// It must only be used from the loop goroutine.
type Persister struct {
	store    Store
	sched    loop.Scheduler
	inflight map[string]*write
	queued   map[string]*write
}

func NewPersister(store Store, sched loop.Scheduler) *Persister {
	return &Persister{
		store:    store,
		sched:    sched,
		inflight: make(map[string]*write),
		queued:   make(map[string]*write),
	}
}

// InFlight reports whether a write for dataID has not completed yet.
func (p *Persister) InFlight(dataID string) bool {
	_, found := p.inflight[dataID]
	return found
}

// Persist saves state under dataID and calls done on the loop once the
// write has completed. If a write for dataID is in flight, state is queued
// behind it, replacing any state queued earlier; done is then called when
// the queued state has been written.
func (p *Persister) Persist(dataID string, state []byte, done func(error)) {
	if _, found := p.inflight[dataID]; found {
		q, found := p.queued[dataID]
		if !found {
			q = &write{}
			p.queued[dataID] = q
		}
		q.state, q.remove = state, false
		if done != nil {
			q.waiters = append(q.waiters, done)
		}
		glog.V(4).Infof("write of %s in flight, queued", dataID)
		return
	}
	w := &write{state: state}
	if done != nil {
		w.waiters = append(w.waiters, done)
	}
	p.start(dataID, w)
}

// Remove deletes dataID from the store once any write in flight for it
// has completed. A state queued behind that write is discarded, and its
// waiters are called when the delete completes.
func (p *Persister) Remove(dataID string) {
	if _, found := p.inflight[dataID]; found {
		q, found := p.queued[dataID]
		if !found {
			q = &write{}
			p.queued[dataID] = q
		}
		q.state, q.remove = nil, true
		return
	}
	p.start(dataID, &write{remove: true})
}

func (p *Persister) start(dataID string, w *write) {
	p.inflight[dataID] = w
	p.sched.Go(func() error {
		if w.remove {
			return p.store.Delete(dataID)
		}
		return p.store.SetState(dataID, w.state)
	}, func(err error) {
		p.complete(dataID, w, err)
	})
}

func (p *Persister) complete(dataID string, w *write, err error) {
	if err != nil {
		glog.Warningf("persisting %s failed: %v", dataID, err)
	}
	delete(p.inflight, dataID)
	if q, found := p.queued[dataID]; found {
		delete(p.queued, dataID)
		p.start(dataID, q)
	}
	for _, done := range w.waiters {
		done(err)
	}
}

// Load reads the state stored under dataID. It blocks and is meant for
// start-up, before the loop is processing messages.
func (p *Persister) Load(dataID string) ([]byte, error) {
	return p.store.GetState(dataID)
}

func (p *Persister) Flush() error {
	return p.store.Flush()
}
