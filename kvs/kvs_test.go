package kvs

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	gc "gopkg.in/check.v1"

	"github.com/relab/txpaxos/config"
	"github.com/relab/txpaxos/durable"
	"github.com/relab/txpaxos/grp"
	"github.com/relab/txpaxos/loop"
	"github.com/relab/txpaxos/multipaxos"
	"github.com/relab/txpaxos/net"
)

func TestKVS(t *testing.T) { gc.TestingT(t) }

type node struct {
	id      grp.ID
	gm      *grp.GrpMgr
	rt      *net.Router
	store   *durable.MemStore
	backend *MemBackend
	r       *Replica
}

type cluster struct {
	m       *loop.Manual
	ln      *net.LocalNetwork
	cfg     *config.Config
	members map[grp.ID]grp.Node
	nodes   map[grp.ID]*node
	seq     int
}

func newCluster(c *gc.C, cfg *config.Config, ids ...grp.ID) *cluster {
	cl := &cluster{
		m:       loop.NewManual(),
		cfg:     cfg,
		members: make(map[grp.ID]grp.Node),
		nodes:   make(map[grp.ID]*node),
	}
	cl.ln = net.NewLocalNetwork(cl.m)
	for i, id := range ids {
		cl.members[id] = grp.NewNode(id, "localhost", fmt.Sprint(8080+i), fmt.Sprint(9080+i))
	}
	for _, id := range ids {
		cl.start(c, &node{id: id, store: durable.NewMemStore(), backend: NewMemBackend()})
	}
	return cl
}

// start builds a fresh replica over n's store and backend.
func (cl *cluster) start(c *gc.C, n *node) {
	n.rt = net.NewRouter()
	tr := cl.ln.Join(n.id, func(env net.Envelope) { n.rt.Dispatch(env) })
	n.gm = grp.NewGrpMgr(n.id, cl.nodeMap())
	ep := net.NewEndpoint(n.gm, tr)
	n.r = NewReplica(n.gm, ep, n.rt, cl.m, n.store, n.backend, cl.cfg)
	c.Assert(n.r.Init(), gc.IsNil)
	n.r.Start()
	cl.nodes[n.id] = n
}

func (cl *cluster) nodeMap() *grp.NodeMap {
	nodes := make(map[grp.ID]grp.Node, len(cl.members))
	for id, n := range cl.members {
		nodes[id] = n
	}
	return grp.NewNodeMap(nodes)
}

func (cl *cluster) stop(id grp.ID) *node {
	n := cl.nodes[id]
	cl.ln.Leave(id)
	n.r.Stop()
	return n
}

// elect lets the first poll run; a prepares first and wins.
func (cl *cluster) elect(c *gc.C) {
	cl.m.Advance(1500 * time.Millisecond)
	c.Assert(cl.nodes["a"].r.IsLeader(), gc.Equals, true)
}

func (cl *cluster) propose(id grp.ID, key, value string) *[]ProposeReply {
	cl.seq++
	var replies []ProposeReply
	cl.nodes[id].r.Propose(ProposeValue{
		Key:       key,
		Value:     []byte(value),
		RequestID: fmt.Sprintf("req-%d", cl.seq),
	}, func(pr ProposeReply) { replies = append(replies, pr) })
	return &replies
}

func (cl *cluster) put(c *gc.C, id grp.ID, key, value string) ProposeReply {
	replies := cl.propose(id, key, value)
	cl.m.Advance(50 * time.Millisecond)
	c.Assert(*replies, gc.HasLen, 1)
	c.Assert((*replies)[0].Result(), gc.IsNil)
	return (*replies)[0]
}

func (cl *cluster) hash(c *gc.C, id grp.ID) string {
	h, err := StateHash(cl.nodes[id].backend)
	c.Assert(err, gc.IsNil)
	return h
}

// -----------------------------------------------------------------------
// Replicated writes

type replicaSuite struct{}

var _ = gc.Suite(&replicaSuite{})

func (*replicaSuite) TestWritesReachEveryReplica(c *gc.C) {
	cl := newCluster(c, config.NewConfig(), "a", "b", "c")
	cl.elect(c)
	for i := 1; i <= 3; i++ {
		pr := cl.put(c, "a", fmt.Sprint("k", i), fmt.Sprint("v", i))
		c.Assert(pr.Instance, gc.Equals, uint64(i))
	}
	for _, id := range []grp.ID{"a", "b", "c"} {
		qr := cl.nodes[id].r.Query("k2")
		c.Assert(qr.Found, gc.Equals, true)
		c.Assert(string(qr.Value), gc.Equals, "v2")
		c.Assert(qr.Instance, gc.Equals, uint64(2))
		c.Assert(cl.nodes[id].backend.LastInstance(), gc.Equals, uint64(3))
	}
	c.Assert(cl.nodes["b"].r.Query("missing").Found, gc.Equals, false)
	c.Assert(cl.m.Panics, gc.Equals, 0)
}

func (*replicaSuite) TestUndecodableWriteStillCountsAsApplied(c *gc.C) {
	cl := newCluster(c, config.NewConfig(), "a", "b", "c")
	cl.elect(c)
	c.Assert(cl.nodes["a"].r.Sequencer().SetProposal("junk", []byte("not an op"), 1), gc.IsNil)
	cl.m.Advance(50 * time.Millisecond)
	for _, id := range []grp.ID{"a", "b", "c"} {
		c.Assert(cl.nodes[id].backend.LastInstance(), gc.Equals, uint64(1), gc.Commentf("%v", id))
		c.Assert(cl.nodes[id].r.Instance(), gc.Equals, uint64(2))
	}
	pr := cl.put(c, "a", "k", "v")
	c.Assert(pr.Instance, gc.Equals, uint64(2))
}

func (*replicaSuite) TestFollowerWriteIsForwarded(c *gc.C) {
	cl := newCluster(c, config.NewConfig(), "a", "b", "c")
	cl.elect(c)
	pr := cl.put(c, "b", "k", "v")
	c.Assert(pr.Instance, gc.Equals, uint64(1))
	c.Assert(string(cl.nodes["c"].r.Query("k").Value), gc.Equals, "v")
}

func (*replicaSuite) TestReservedKeyNeedsToken(c *gc.C) {
	cfg := config.NewConfig()
	cl := newCluster(c, cfg, "a", "b", "c")
	cl.elect(c)

	replies := cl.propose("a", ConfigKey, "x")
	c.Assert(*replies, gc.HasLen, 1)
	c.Assert((*replies)[0].Result(), gc.Equals, ErrAccessDenied)
	c.Assert(cl.nodes["a"].r.Instance(), gc.Equals, uint64(1))

	cfg.Set("adminToken", "s3cret")
	cl2 := newCluster(c, cfg, "a", "b", "c")
	cl2.elect(c)
	var got []ProposeReply
	cl2.nodes["a"].r.Propose(ProposeValue{Key: "__other", Value: []byte("x"), RequestID: "r", Token: "wrong"},
		func(pr ProposeReply) { got = append(got, pr) })
	cl2.nodes["a"].r.Propose(ProposeValue{Key: "__other", Value: []byte("y"), RequestID: "s", Token: "s3cret"},
		func(pr ProposeReply) { got = append(got, pr) })
	cl2.m.Advance(50 * time.Millisecond)
	c.Assert(got, gc.HasLen, 2)
	c.Assert(got[0].Result(), gc.Equals, ErrAccessDenied)
	c.Assert(got[1].Result(), gc.IsNil)
	c.Assert(string(cl2.nodes["b"].r.Query("__other").Value), gc.Equals, "y")
}

func (*replicaSuite) TestCompetingProposalIsSuperseded(c *gc.C) {
	cl := newCluster(c, config.NewConfig(), "a", "b", "c")
	cl.elect(c)
	mine := cl.propose("a", "k", "from-a")
	theirs := cl.propose("b", "k", "from-b")
	cl.m.Advance(50 * time.Millisecond)

	c.Assert(*mine, gc.HasLen, 1)
	c.Assert((*mine)[0].Result(), gc.IsNil)
	c.Assert(*theirs, gc.HasLen, 1)
	err := (*theirs)[0].Result()
	c.Assert(err, gc.Equals, ErrSuperseded)
	c.Assert(IsStale(err), gc.Equals, true)
	c.Assert(string(cl.nodes["b"].r.Query("k").Value), gc.Equals, "from-a")
}

func (*replicaSuite) TestSecondProposalForInstanceIsRefused(c *gc.C) {
	cl := newCluster(c, config.NewConfig(), "a", "b", "c")
	cl.elect(c)
	cl.propose("a", "k", "1")
	second := cl.propose("a", "k", "2")
	c.Assert(*second, gc.HasLen, 1)
	c.Assert((*second)[0].Result(), gc.Equals, multipaxos.ErrProposalPending)
}

func (*replicaSuite) TestStopAnswersPending(c *gc.C) {
	cl := newCluster(c, config.NewConfig(), "a", "b", "c")
	cl.elect(c)
	cl.ln.Disconnect("a")
	replies := cl.propose("a", "k", "v")
	cl.m.Advance(10 * time.Millisecond)
	c.Assert(*replies, gc.HasLen, 0)
	cl.stop("a")
	c.Assert(*replies, gc.HasLen, 1)
	c.Assert((*replies)[0].Result(), gc.Equals, ErrStopped)
}

func (*replicaSuite) TestMembershipChangeUpdatesQuorum(c *gc.C) {
	cl := newCluster(c, config.NewConfig(), "a", "b", "c")
	cl.elect(c)
	nm := cl.nodeMap()
	c.Assert(nm.Add(grp.NewNode("d", "localhost", "8083", "9083")), gc.IsNil)

	var replies []ProposeReply
	cl.nodes["a"].r.ProposeMembership(nm.Membership(), "join-d", func(pr ProposeReply) {
		replies = append(replies, pr)
	})
	cl.m.Advance(50 * time.Millisecond)
	c.Assert(replies, gc.HasLen, 1)
	c.Assert(replies[0].Result(), gc.IsNil)
	for _, id := range []grp.ID{"a", "b", "c"} {
		n := cl.nodes[id]
		c.Assert(n.gm.NodeMap().Contains("d"), gc.Equals, true)
		c.Assert(n.gm.Quorum(), gc.Equals, uint(3))
		c.Assert(n.r.Sequencer().Engine().Quorum(), gc.Equals, 3)
	}
	// Three of four still make progress.
	cl.put(c, "a", "k", "v")
}

func (*replicaSuite) TestMembershipSurvivesRestart(c *gc.C) {
	cl := newCluster(c, config.NewConfig(), "a", "b", "c")
	cl.elect(c)
	nm := cl.nodeMap()
	c.Assert(nm.Remove("c"), gc.IsNil)
	cl.nodes["a"].r.ProposeMembership(nm.Membership(), "drop-c", func(ProposeReply) {})
	cl.m.Advance(50 * time.Millisecond)

	b := cl.stop("b")
	cl.start(c, b)
	c.Assert(b.gm.NodeMap().Contains("c"), gc.Equals, false)
	c.Assert(b.gm.Quorum(), gc.Equals, uint(2))
}

// -----------------------------------------------------------------------
// Catch-up

type catchupSuite struct{}

var _ = gc.Suite(&catchupSuite{})

func (*catchupSuite) TestLaggingReplicaCatchesUp(c *gc.C) {
	cl := newCluster(c, config.NewConfig(), "a", "b", "c")
	cl.elect(c)
	for i := 1; i <= 4; i++ {
		cl.put(c, "a", fmt.Sprint("k", i), fmt.Sprint("v", i))
	}
	lagging := cl.stop("c")
	for i := 5; i <= 8; i++ {
		cl.put(c, "a", fmt.Sprint("k", i%3), fmt.Sprint("w", i))
	}
	c.Assert(lagging.backend.LastInstance(), gc.Equals, uint64(4))

	cl.start(c, lagging)
	cl.m.Advance(time.Second)
	c.Assert(lagging.r.State(), gc.Equals, Synced)
	c.Assert(lagging.backend.LastInstance(), gc.Equals, uint64(8))
	c.Assert(lagging.r.Instance(), gc.Equals, uint64(9))
	c.Assert(lagging.r.Sequencer().Active(), gc.Equals, true)
	c.Assert(lagging.r.Heartbeater().Enabled(), gc.Equals, true)

	cl.put(c, "a", "k9", "v9")
	want := cl.hash(c, "a")
	for _, id := range []grp.ID{"b", "c"} {
		c.Assert(cl.hash(c, id), gc.Equals, want)
		c.Assert(cl.nodes[id].backend.LastInstance(), gc.Equals, uint64(9))
	}
	c.Assert(cl.m.Panics, gc.Equals, 0)
}

func (*catchupSuite) TestStaleDataIsDiscarded(c *gc.C) {
	cl := newCluster(c, config.NewConfig(), "a", "b", "c")
	n := cl.nodes["c"]
	cl.ln.Disconnect("c")
	n.r.BehindInSequence(10)
	c.Assert(n.r.State(), gc.Equals, CatchingUp)
	c.Assert(n.r.Sequencer().Active(), gc.Equals, false)
	c.Assert(n.r.Heartbeater().Enabled(), gc.Equals, false)

	deliver := func(d CatchupData) {
		n.rt.Dispatch(net.Envelope{Channel: CatchupChannel, From: "a", Instance: 10, Msg: d})
	}
	deliver(CatchupData{FromInstance: 3, LastInstance: 9, Records: []Record{{Key: "x", Value: []byte("1"), Instance: 5}}})
	c.Assert(n.backend.LastInstance(), gc.Equals, uint64(0))
	c.Assert(n.r.Query("x").Found, gc.Equals, false)
	c.Assert(n.r.State(), gc.Equals, CatchingUp)

	deliver(CatchupData{FromInstance: 0, LastInstance: 9, Records: []Record{{Key: "x", Value: []byte("2"), Instance: 7}}})
	c.Assert(n.backend.LastInstance(), gc.Equals, uint64(9))
	c.Assert(string(n.r.Query("x").Value), gc.Equals, "2")
	c.Assert(n.r.Instance(), gc.Equals, uint64(10))
	c.Assert(n.r.State(), gc.Equals, Synced)
	c.Assert(n.r.Sequencer().Active(), gc.Equals, true)
}

func (*catchupSuite) TestPartialDataAsksAgain(c *gc.C) {
	cl := newCluster(c, config.NewConfig(), "a", "b", "c")
	n := cl.nodes["c"]
	cl.ln.Disconnect("c")
	n.r.BehindInSequence(10)
	n.rt.Dispatch(net.Envelope{Channel: CatchupChannel, From: "a", Msg: CatchupData{FromInstance: 0, LastInstance: 4}})
	c.Assert(n.backend.LastInstance(), gc.Equals, uint64(4))
	c.Assert(n.r.State(), gc.Equals, CatchingUp)
	c.Assert(n.r.Instance(), gc.Equals, uint64(5))
}

func (*catchupSuite) TestCatchingUpReplicaDoesNotServe(c *gc.C) {
	cl := newCluster(c, config.NewConfig(), "a", "b", "c")
	n := cl.nodes["c"]
	_, err := n.backend.Merge(Record{Key: "x", Value: []byte("1"), Instance: 3})
	c.Assert(err, gc.IsNil)
	c.Assert(n.backend.SetLastInstance(3), gc.IsNil)

	var served []net.Envelope
	cl.ln.Join("z", func(env net.Envelope) { served = append(served, env) })
	request := net.Envelope{Channel: CatchupChannel, From: "z", Msg: CatchupRequest{LastKnownInstance: 1}}

	n.rt.Dispatch(request)
	cl.m.RunPending()
	c.Assert(served, gc.HasLen, 1)
	d := served[0].Msg.(CatchupData)
	c.Assert(d.FromInstance, gc.Equals, uint64(1))
	c.Assert(d.LastInstance, gc.Equals, uint64(3))
	c.Assert(d.Records, gc.HasLen, 1)

	// Nothing newer than what the requester has.
	n.rt.Dispatch(net.Envelope{Channel: CatchupChannel, From: "z", Msg: CatchupRequest{LastKnownInstance: 3}})
	cl.m.RunPending()
	c.Assert(served, gc.HasLen, 1)

	n.r.BehindInSequence(10)
	cl.m.RunPending()
	served = nil
	n.rt.Dispatch(request)
	cl.m.RunPending()
	c.Assert(served, gc.HasLen, 0)
}

// -----------------------------------------------------------------------
// Backends

type backendSuite struct{}

var _ = gc.Suite(&backendSuite{})

func (*backendSuite) backends(c *gc.C) map[string]func() Backend {
	dir := c.MkDir()
	n := 0
	return map[string]func() Backend{
		"mem": func() Backend { return NewMemBackend() },
		"bolt": func() Backend {
			n++
			bb, err := OpenBoltBackend(filepath.Join(dir, fmt.Sprintf("kv%d.db", n)))
			c.Assert(err, gc.IsNil)
			return bb
		},
	}
}

func (s *backendSuite) TestMergeIsOrderIndependent(c *gc.C) {
	var recs []Record
	for i := uint64(1); i <= 40; i++ {
		recs = append(recs, Record{Key: fmt.Sprint("k", i%7), Value: []byte(fmt.Sprint(i)), Instance: i})
	}
	shuffled := append([]Record(nil), recs...)
	rand.New(rand.NewSource(3)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	for name, open := range s.backends(c) {
		ordered, mixed := open(), open()
		for i := range recs {
			_, err := ordered.Merge(recs[i])
			c.Assert(err, gc.IsNil)
			_, err = mixed.Merge(shuffled[i])
			c.Assert(err, gc.IsNil)
		}
		h1, err := StateHash(ordered)
		c.Assert(err, gc.IsNil)
		h2, err := StateHash(mixed)
		c.Assert(err, gc.IsNil)
		c.Assert(h1, gc.Equals, h2, gc.Commentf(name))

		rec, found, err := mixed.Get("k5")
		c.Assert(err, gc.IsNil)
		c.Assert(found, gc.Equals, true)
		c.Assert(rec.Instance, gc.Equals, uint64(40))
		c.Assert(ordered.Close(), gc.IsNil)
		c.Assert(mixed.Close(), gc.IsNil)
	}
}

func (s *backendSuite) TestOlderWriteIsNotApplied(c *gc.C) {
	for name, open := range s.backends(c) {
		b := open()
		applied, err := b.Merge(Record{Key: "k", Value: []byte("new"), Instance: 9})
		c.Assert(err, gc.IsNil)
		c.Assert(applied, gc.Equals, true, gc.Commentf(name))
		applied, err = b.Merge(Record{Key: "k", Value: []byte("old"), Instance: 4})
		c.Assert(err, gc.IsNil)
		c.Assert(applied, gc.Equals, false, gc.Commentf(name))

		recs, err := b.Since(4)
		c.Assert(err, gc.IsNil)
		c.Assert(recs, gc.HasLen, 1)
		recs, err = b.Since(9)
		c.Assert(err, gc.IsNil)
		c.Assert(recs, gc.HasLen, 0)

		c.Assert(b.SetLastInstance(9), gc.IsNil)
		c.Assert(b.SetLastInstance(3), gc.IsNil)
		c.Assert(b.LastInstance(), gc.Equals, uint64(9), gc.Commentf(name))
		c.Assert(b.Close(), gc.IsNil)
	}
}

func (s *backendSuite) TestApplyRaisesLastInstance(c *gc.C) {
	for name, open := range s.backends(c) {
		b := open()
		applied, err := b.Apply(Record{Key: "k", Value: []byte("v5"), Instance: 5})
		c.Assert(err, gc.IsNil)
		c.Assert(applied, gc.Equals, true, gc.Commentf(name))
		c.Assert(b.LastInstance(), gc.Equals, uint64(5), gc.Commentf(name))

		// Catch-up may already have stored a later write for the key.
		_, err = b.Merge(Record{Key: "j", Value: []byte("v9"), Instance: 9})
		c.Assert(err, gc.IsNil)
		applied, err = b.Apply(Record{Key: "j", Value: []byte("v7"), Instance: 7})
		c.Assert(err, gc.IsNil)
		c.Assert(applied, gc.Equals, false, gc.Commentf(name))
		c.Assert(b.LastInstance(), gc.Equals, uint64(7), gc.Commentf(name))

		applied, err = b.Apply(Record{Key: "k", Value: []byte("v3"), Instance: 3})
		c.Assert(err, gc.IsNil)
		c.Assert(applied, gc.Equals, false, gc.Commentf(name))
		c.Assert(b.LastInstance(), gc.Equals, uint64(7), gc.Commentf(name))
		rec, _, err := b.Get("k")
		c.Assert(err, gc.IsNil)
		c.Assert(string(rec.Value), gc.Equals, "v5")
		c.Assert(b.Close(), gc.IsNil)
	}
}

func (*backendSuite) TestBoltBackendReopens(c *gc.C) {
	path := filepath.Join(c.MkDir(), "kv.db")
	bb, err := OpenBoltBackend(path)
	c.Assert(err, gc.IsNil)
	_, err = bb.Apply(Record{Key: "k", Value: []byte("v"), Instance: 2})
	c.Assert(err, gc.IsNil)
	c.Assert(bb.Close(), gc.IsNil)

	bb, err = OpenBoltBackend(path)
	c.Assert(err, gc.IsNil)
	defer bb.Close()
	c.Assert(bb.LastInstance(), gc.Equals, uint64(2))
	rec, found, err := bb.Get("k")
	c.Assert(err, gc.IsNil)
	c.Assert(found, gc.Equals, true)
	c.Assert(string(rec.Value), gc.Equals, "v")
}

func (*backendSuite) TestReservedKeys(c *gc.C) {
	c.Assert(IsReserved(ConfigKey), gc.Equals, true)
	c.Assert(IsReserved("__x"), gc.Equals, true)
	c.Assert(IsReserved("_x"), gc.Equals, false)
	c.Assert(IsReserved("x"), gc.Equals, false)
}
