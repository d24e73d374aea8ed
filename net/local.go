package net

import (
	"math/rand"
	"time"

	"github.com/golang/glog"

	"github.com/relab/txpaxos/grp"
	"github.com/relab/txpaxos/loop"
)

// LocalNetwork connects nodes within one process. Delivery is posted to a
// shared Scheduler, so with a loop.Manual a whole cluster runs
// deterministically. Links can be cut, nodes disconnected, and messages
// dropped or delayed at random.
type LocalNetwork struct {
	sched    loop.Scheduler
	nodes    map[grp.ID]func(Envelope)
	down     map[grp.ID]bool
	cut      map[link]bool
	rnd      *rand.Rand
	dropRate float64
	maxDelay time.Duration

	// Drop, if set, is consulted for every non-local message and drops it
	// when it returns true.
	Drop func(to grp.ID, env Envelope) bool

	Delivered int
	Dropped   int
}

type link struct {
	from, to grp.ID
}

func NewLocalNetwork(sched loop.Scheduler) *LocalNetwork {
	return &LocalNetwork{
		sched: sched,
		nodes: make(map[grp.ID]func(Envelope)),
		down:  make(map[grp.ID]bool),
		cut:   make(map[link]bool),
	}
}

// Join attaches a node to the network. Joining an id again replaces the
// previous delivery function, which is how tests restart a node.
func (ln *LocalNetwork) Join(id grp.ID, deliver func(Envelope)) Transport {
	ln.nodes[id] = deliver
	return &localTransport{ln: ln, id: id}
}

// Leave detaches a node; messages to it are lost.
func (ln *LocalNetwork) Leave(id grp.ID) {
	delete(ln.nodes, id)
}

// Disconnect isolates a node from every other node. It can still send to
// itself.
func (ln *LocalNetwork) Disconnect(id grp.ID) {
	ln.down[id] = true
}

func (ln *LocalNetwork) Reconnect(id grp.ID) {
	delete(ln.down, id)
}

// Partition cuts every link between nodes in different groups.
func (ln *LocalNetwork) Partition(groups ...[]grp.ID) {
	for i, a := range groups {
		for j, b := range groups {
			if i == j {
				continue
			}
			for _, from := range a {
				for _, to := range b {
					ln.cut[link{from, to}] = true
				}
			}
		}
	}
}

// Heal restores all links and reconnects all nodes.
func (ln *LocalNetwork) Heal() {
	ln.cut = make(map[link]bool)
	ln.down = make(map[grp.ID]bool)
}

// SetDropRate makes the network drop each remote message with
// probability p.
func (ln *LocalNetwork) SetDropRate(p float64, seed int64) {
	ln.dropRate = p
	ln.rnd = rand.New(rand.NewSource(seed))
}

// SetMaxDelay delays each remote message by a random duration below d,
// so messages overtake each other. Zero turns delays off.
func (ln *LocalNetwork) SetMaxDelay(d time.Duration, seed int64) {
	ln.maxDelay = d
	if ln.rnd == nil {
		ln.rnd = rand.New(rand.NewSource(seed))
	}
}

func (ln *LocalNetwork) send(from, to grp.ID, env Envelope) {
	if from != to && ln.lost(from, to, env) {
		ln.Dropped++
		if glog.V(4) {
			glog.Infof("dropping %v to %v", env, to)
		}
		return
	}
	deliver := func() {
		deliver, found := ln.nodes[to]
		if !found || (from != to && (ln.down[from] || ln.down[to])) {
			ln.Dropped++
			return
		}
		ln.Delivered++
		deliver(env)
	}
	if from != to && ln.maxDelay > 0 {
		ln.sched.AfterFunc(time.Duration(ln.rnd.Int63n(int64(ln.maxDelay))), deliver)
		return
	}
	ln.sched.Post(deliver)
}

func (ln *LocalNetwork) lost(from, to grp.ID, env Envelope) bool {
	if ln.down[from] || ln.down[to] || ln.cut[link{from, to}] {
		return true
	}
	if ln.Drop != nil && ln.Drop(to, env) {
		return true
	}
	return ln.rnd != nil && ln.rnd.Float64() < ln.dropRate
}

type localTransport struct {
	ln *LocalNetwork
	id grp.ID
}

func (lt *localTransport) Send(to grp.ID, env Envelope) {
	lt.ln.send(lt.id, to, env)
}

func (lt *localTransport) SetNodeMap(nm *grp.NodeMap) {}
