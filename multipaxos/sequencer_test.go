package multipaxos

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	gc "gopkg.in/check.v1"

	"github.com/relab/txpaxos/durable"
	"github.com/relab/txpaxos/grp"
	"github.com/relab/txpaxos/loop"
	"github.com/relab/txpaxos/net"
	"github.com/relab/txpaxos/paxos"
)

// -----------------------------------------------------------------------
// Hook up gocheck into the "go test" runner
func TestMultiPaxos(t *testing.T) { gc.TestingT(t) }

type sent struct {
	to  grp.ID // UndefinedID for broadcasts
	msg net.Message
}

type wire struct {
	id  grp.ID
	out []sent
}

func (w *wire) ID() grp.ID                                         { return w.id }
func (w *wire) Unicast(to grp.ID, channel string, msg net.Message) { w.out = append(w.out, sent{to, msg}) }
func (w *wire) Broadcast(channel string, msg net.Message)          { w.out = append(w.out, sent{grp.UndefinedID, msg}) }

func (w *wire) take() []sent {
	out := w.out
	w.out = nil
	return out
}

func (w *wire) count(k net.Kind) int {
	n := 0
	for _, s := range w.out {
		if s.msg.Kind() == k {
			n++
		}
	}
	return n
}

type recorder struct {
	instances []uint64
	resolved  []Proposal
	behind    []uint64
}

func (r *recorder) OnResolution(instance uint64, id paxos.ProposalID, p Proposal) {
	r.instances = append(r.instances, instance)
	r.resolved = append(r.resolved, p)
}

func (r *recorder) BehindInSequence(observed uint64) {
	r.behind = append(r.behind, observed)
}

func threeNodes() *grp.NodeMap {
	return grp.NewNodeMap(map[grp.ID]grp.Node{
		"a": grp.NewNode("a", "localhost", "8080", ""),
		"b": grp.NewNode("b", "localhost", "8081", ""),
		"c": grp.NewNode("c", "localhost", "8082", ""),
	})
}

func encoded(c *gc.C, requestID, value string) paxos.Value {
	v, err := Proposal{RequestID: requestID, Value: []byte(value)}.Encode()
	c.Assert(err, gc.IsNil)
	return v
}

var (
	pidB1 = paxos.ProposalID{Number: 1, UID: "b"}
	pidC2 = paxos.ProposalID{Number: 2, UID: "c"}
)

// -----------------------------------------------------------------------
// Sequencer

type seqSuite struct {
	m     *loop.Manual
	store *durable.MemStore
	w     *wire
	r     *recorder
	s     *Sequencer
}

var _ = gc.Suite(&seqSuite{})

func (s *seqSuite) SetUpTest(c *gc.C) {
	s.m = loop.NewManual()
	s.store = durable.NewMemStore()
	s.start(c)
}

// start creates a fresh sequencer on the suite's store, as a restarted
// node would.
func (s *seqSuite) start(c *gc.C) {
	s.w = &wire{id: "a"}
	s.r = &recorder{}
	gm := grp.NewGrpMgr("a", threeNodes())
	s.s = NewSequencer("kv/paxos", s.w, gm, s.m, durable.NewPersister(s.store, s.m), s.r, 100*time.Millisecond)
	c.Assert(s.s.Initialize(), gc.IsNil)
}

func (s *seqSuite) deliver(from grp.ID, instance uint64, msg net.Message) {
	s.s.Receive(net.Envelope{Channel: "kv/paxos", From: from, Instance: instance, Msg: msg})
}

func (s *seqSuite) TestStartsAtInstanceOne(c *gc.C) {
	c.Assert(s.s.Instance(), gc.Equals, uint64(1))
	c.Assert(s.s.Active(), gc.Equals, true)
	c.Assert(s.s.Proposal(), gc.IsNil)
}

func (s *seqSuite) TestSetProposalChecksInstance(c *gc.C) {
	c.Assert(s.s.SetProposal("r1", []byte("x"), 2), gc.Equals, ErrInstanceMismatch)
	c.Assert(s.s.SetProposal("r1", []byte("x"), 1), gc.IsNil)
	c.Assert(s.s.SetProposal("r1", []byte("x"), 1), gc.IsNil)
	c.Assert(s.s.SetProposal("r2", []byte("y"), 1), gc.Equals, ErrProposalPending)
	c.Assert(s.s.Proposal().RequestID, gc.Equals, "r1")
	c.Assert(s.s.Advocate().Armed(), gc.Equals, true)

	s.s.SetActive(false)
	s.s.NextInstance(0)
	c.Assert(s.s.SetProposal("r3", []byte("z"), 2), gc.Equals, ErrInactive)
}

func (s *seqSuite) TestPromiseWaitsForPersistence(c *gc.C) {
	s.deliver("b", 1, paxos.Prepare{ID: pidB1})
	c.Assert(s.w.take(), gc.HasLen, 0)
	c.Assert(s.store.Writes, gc.Equals, 1)

	s.m.RunPending()
	c.Assert(s.w.take(), gc.DeepEquals, []sent{{"b", paxos.Promise{ID: pidB1}}})
}

func (s *seqSuite) TestPromiseWithheldWhileWritesFail(c *gc.C) {
	s.store.FailWrites = true
	s.deliver("b", 1, paxos.Prepare{ID: pidB1})
	s.m.RunPending()
	c.Assert(s.w.take(), gc.HasLen, 0)
	c.Assert(s.s.Engine().PersistenceRequired(), gc.Equals, true)

	s.store.FailWrites = false
	s.deliver("b", 1, paxos.Prepare{ID: pidB1})
	s.m.RunPending()
	c.Assert(s.w.take(), gc.DeepEquals, []sent{{"b", paxos.Promise{ID: pidB1}}})
}

func (s *seqSuite) TestAcceptedWaitsForPersistence(c *gc.C) {
	v := encoded(c, "r1", "x")
	s.deliver("b", 1, paxos.Accept{ID: pidB1, Value: v})
	c.Assert(s.w.take(), gc.HasLen, 0)
	s.m.RunPending()
	c.Assert(s.w.take(), gc.DeepEquals, []sent{{grp.UndefinedID, paxos.Accepted{ID: pidB1, Value: v}}})

	// Redelivery is answered without another write.
	writes := s.store.Writes
	s.deliver("b", 1, paxos.Accept{ID: pidB1, Value: v})
	s.m.RunPending()
	c.Assert(s.w.take(), gc.HasLen, 1)
	c.Assert(s.store.Writes, gc.Equals, writes)
}

func (s *seqSuite) TestFuturePrepareReportsLag(c *gc.C) {
	s.deliver("b", 5, paxos.Prepare{ID: pidB1})
	s.m.RunPending()
	c.Assert(s.r.behind, gc.DeepEquals, []uint64{5})
	c.Assert(s.s.Instance(), gc.Equals, uint64(1))
	c.Assert(s.s.Engine().PromisedID().IsZero(), gc.Equals, true)
	c.Assert(s.w.out, gc.HasLen, 0)
}

func (s *seqSuite) TestOtherInstancesAreDropped(c *gc.C) {
	s.deliver("b", 3, paxos.Accept{ID: pidB1, Value: encoded(c, "r1", "x")})
	s.deliver("b", 0, paxos.Accept{ID: pidB1, Value: encoded(c, "r1", "x")})
	s.m.RunPending()
	c.Assert(s.r.behind, gc.HasLen, 0)
	c.Assert(s.s.Engine().AcceptedValue(), gc.IsNil)
	c.Assert(s.w.out, gc.HasLen, 0)
}

func (s *seqSuite) TestInactiveDropsProtocolMessages(c *gc.C) {
	s.s.SetActive(false)
	s.deliver("b", 1, paxos.Prepare{ID: pidB1})
	s.m.RunPending()
	c.Assert(s.s.Engine().PromisedID().IsZero(), gc.Equals, true)
	c.Assert(s.store.Writes, gc.Equals, 0)
}

func (s *seqSuite) TestAllowListBypassesFilter(c *gc.C) {
	var got []uint64
	s.s.Allow(net.KindHeartbeat, func(env net.Envelope) { got = append(got, env.Instance) })
	s.s.SetActive(false)
	s.deliver("b", 9, testHeartbeat{})
	c.Assert(got, gc.DeepEquals, []uint64{9})
}

func (s *seqSuite) TestResolutionAdvances(c *gc.C) {
	c.Assert(s.s.SetProposal("mine", []byte("y"), 1), gc.IsNil)
	v := encoded(c, "r1", "x")
	s.deliver("b", 1, paxos.Accepted{ID: pidB1, Value: v})
	c.Assert(s.r.resolved, gc.HasLen, 0)
	s.deliver("c", 1, paxos.Accepted{ID: pidB1, Value: v})

	c.Assert(s.r.instances, gc.DeepEquals, []uint64{1})
	c.Assert(s.r.resolved, gc.DeepEquals, []Proposal{{RequestID: "r1", Value: []byte("x")}})
	c.Assert(s.s.Instance(), gc.Equals, uint64(2))
	c.Assert(s.s.Proposal(), gc.IsNil)
	c.Assert(s.s.Advocate().Armed(), gc.Equals, false)

	s.m.RunPending()
	data, err := s.store.GetState(DataID)
	c.Assert(err, gc.IsNil)
	rr, err := decodeRecord(data)
	c.Assert(err, gc.IsNil)
	c.Assert(rr.Instance, gc.Equals, uint64(2))
	c.Assert(rr.Proposal, gc.IsNil)

	// Late messages for the resolved instance change nothing.
	s.deliver("a", 1, paxos.Accepted{ID: pidB1, Value: v})
	c.Assert(s.r.resolved, gc.HasLen, 1)
}

func (s *seqSuite) TestUndecodableValueIsHandedOnAndAdvances(c *gc.C) {
	s.deliver("b", 1, paxos.Accepted{ID: pidB1, Value: paxos.Value("junk")})
	s.deliver("c", 1, paxos.Accepted{ID: pidB1, Value: paxos.Value("junk")})
	c.Assert(s.r.resolved, gc.DeepEquals, []Proposal{{}})
	c.Assert(s.r.instances, gc.DeepEquals, []uint64{1})
	c.Assert(s.s.Instance(), gc.Equals, uint64(2))
}

func (s *seqSuite) TestAdvocateForwardsUntilAcknowledged(c *gc.C) {
	s.s.ChangeLeader("b")
	c.Assert(s.s.SetProposal("r1", []byte("x"), 1), gc.IsNil)
	c.Assert(s.w.count(net.KindProposalRequest), gc.Equals, 1)
	c.Assert(s.w.out[0].to, gc.Equals, grp.ID("b"))

	s.m.Advance(100 * time.Millisecond)
	c.Assert(s.w.count(net.KindProposalRequest), gc.Equals, 2)

	s.deliver("b", 1, ProposalAck{RequestID: "r1"})
	c.Assert(s.s.Advocate().Armed(), gc.Equals, false)
	s.m.Advance(time.Second)
	c.Assert(s.w.count(net.KindProposalRequest), gc.Equals, 2)

	// A new leader gets the proposal again.
	s.s.ChangeLeader("c")
	out := s.w.take()
	last := out[len(out)-1]
	c.Assert(last.to, gc.Equals, grp.ID("c"))
	c.Assert(last.msg, gc.DeepEquals, ProposalRequest{RequestID: "r1", Value: []byte("x")})
}

func (s *seqSuite) TestLeaderAdoptsForwardedProposal(c *gc.C) {
	s.s.Engine().AssumeLeadership(paxos.ProposalID{Number: 1, UID: "a"})
	s.deliver("c", 1, ProposalRequest{RequestID: "r9", Value: []byte("v")})
	out := s.w.take()
	c.Assert(out, gc.HasLen, 2)
	c.Assert(out[0].msg, gc.DeepEquals, paxos.Accept{ID: paxos.ProposalID{Number: 1, UID: "a"}, Value: encoded(c, "r9", "v")})
	c.Assert(out[1], gc.DeepEquals, sent{"c", ProposalAck{RequestID: "r9"}})

	// A second request is acknowledged but does not replace the value.
	s.deliver("b", 1, ProposalRequest{RequestID: "r10", Value: []byte("w")})
	c.Assert(s.w.take(), gc.DeepEquals, []sent{{"b", ProposalAck{RequestID: "r10"}}})
	c.Assert(s.s.Engine().ProposedValue(), gc.DeepEquals, encoded(c, "r9", "v"))

	// Requests for another instance are ignored.
	s.deliver("b", 2, ProposalRequest{RequestID: "r11", Value: []byte("w")})
	c.Assert(s.w.take(), gc.HasLen, 0)
}

func (s *seqSuite) TestNextInstanceCarriesPromiseAndLeadership(c *gc.C) {
	pid := paxos.ProposalID{Number: 3, UID: "a"}
	s.s.Engine().Recover(pid, paxos.ProposalID{}, nil)
	s.s.Engine().AssumeLeadership(pid)

	s.s.NextInstance(0)
	c.Assert(s.s.Instance(), gc.Equals, uint64(2))
	c.Assert(s.s.IsLeader(), gc.Equals, true)
	c.Assert(s.s.ProposalID(), gc.Equals, pid)
	c.Assert(s.s.Engine().PromisedID(), gc.Equals, pid)

	s.s.NextInstance(7)
	c.Assert(s.s.Instance(), gc.Equals, uint64(7))
	c.Assert(s.s.IsLeader(), gc.Equals, true)

	// Moving back gives up leadership but keeps the promise.
	s.s.NextInstance(4)
	c.Assert(s.s.Instance(), gc.Equals, uint64(4))
	c.Assert(s.s.IsLeader(), gc.Equals, false)
	c.Assert(s.s.Engine().PromisedID(), gc.Equals, pid)
	c.Assert(s.s.Engine().NextNumber(), gc.Equals, uint64(4))
}

func (s *seqSuite) TestRecoveryResumesMidInstance(c *gc.C) {
	c.Assert(s.s.SetProposal("r1", []byte("x"), 1), gc.IsNil)
	s.deliver("b", 1, paxos.Prepare{ID: pidC2})
	s.deliver("b", 1, paxos.Accept{ID: pidC2, Value: encoded(c, "r7", "z")})
	s.m.RunPending()

	s.start(c)
	c.Assert(s.s.Instance(), gc.Equals, uint64(1))
	c.Assert(s.s.Engine().PromisedID(), gc.Equals, pidC2)
	c.Assert(s.s.Engine().AcceptedID(), gc.Equals, pidC2)
	c.Assert(s.s.Engine().AcceptedValue(), gc.DeepEquals, encoded(c, "r7", "z"))
	c.Assert(s.s.Engine().NextNumber(), gc.Equals, uint64(3))
	c.Assert(s.s.Proposal(), gc.DeepEquals, &Proposal{RequestID: "r1", Value: []byte("x")})
	c.Assert(s.s.Advocate().Pending(), gc.NotNil)
	c.Assert(s.s.Advocate().Armed(), gc.Equals, true)
}

func (s *seqSuite) TestMalformedRecordIsIgnored(c *gc.C) {
	c.Assert(s.store.SetState(DataID, []byte("garbage")), gc.IsNil)
	s.start(c)
	c.Assert(s.s.Instance(), gc.Equals, uint64(1))
	c.Assert(s.s.Engine().PromisedID().IsZero(), gc.Equals, true)
}

type testHeartbeat struct{}

func (testHeartbeat) Kind() net.Kind { return net.KindHeartbeat }

// -----------------------------------------------------------------------
// Agreement across a lossy cluster

type clusterNode struct {
	id      grp.ID
	seq     *Sequencer
	decided map[uint64]string
}

func (n *clusterNode) OnResolution(instance uint64, id paxos.ProposalID, p Proposal) {
	n.decided[instance] = p.RequestID
}

func (n *clusterNode) BehindInSequence(observed uint64) {
	n.seq.NextInstance(observed)
}

type agreementSuite struct{}

var _ = gc.Suite(&agreementSuite{})

func joinAgreementCluster(c *gc.C, m *loop.Manual, ln *net.LocalNetwork, ids []grp.ID) []*clusterNode {
	members := make(map[grp.ID]grp.Node)
	for i, id := range ids {
		members[id] = grp.NewNode(id, "localhost", fmt.Sprint(9000+i), "")
	}
	var nodes []*clusterNode
	for _, id := range ids {
		n := &clusterNode{id: id, decided: make(map[uint64]string)}
		tr := ln.Join(id, func(env net.Envelope) { n.seq.Receive(env) })
		gm := grp.NewGrpMgr(id, grp.NewNodeMap(members))
		ep := net.NewEndpoint(gm, tr)
		n.seq = NewSequencer("kv/paxos", ep, gm, m, durable.NewPersister(durable.NewMemStore(), m), n, 20*time.Millisecond)
		ep.SetInstanceFunc(n.seq.Instance)
		c.Assert(n.seq.Initialize(), gc.IsNil)
		nodes = append(nodes, n)
	}
	return nodes
}

// assertAgreement checks that no two nodes decided different requests for
// the same instance, and returns the number of instances decided.
func assertAgreement(c *gc.C, nodes []*clusterNode) int {
	decided := make(map[uint64]string)
	for _, n := range nodes {
		for instance, reqID := range n.decided {
			if prev, found := decided[instance]; found {
				c.Assert(reqID, gc.Equals, prev, gc.Commentf("instance %d at %v", instance, n.id))
			}
			decided[instance] = reqID
		}
	}
	return len(decided)
}

func proposeRound(nodes []*clusterNode, round int) {
	for _, n := range nodes {
		n.seq.SetProposal(fmt.Sprintf("%v-%d", n.id, round), []byte{byte(round)}, n.seq.Instance())
	}
}

func (*agreementSuite) TestLossyClusterAgrees(c *gc.C) {
	m := loop.NewManual()
	ln := net.NewLocalNetwork(m)
	ln.SetDropRate(0.15, 1)
	nodes := joinAgreementCluster(c, m, ln, []grp.ID{"a", "b", "c", "d", "e"})

	rnd := rand.New(rand.NewSource(7))
	for round := 0; round < 300; round++ {
		if round%3 == 0 {
			nodes[rnd.Intn(len(nodes))].seq.Prepare()
		}
		proposeRound(nodes, round)
		m.Advance(30 * time.Millisecond)
	}

	c.Assert(m.Panics, gc.Equals, 0)
	c.Assert(assertAgreement(c, nodes) > 0, gc.Equals, true)
}

func (*agreementSuite) TestPartitionedReorderingClusterAgrees(c *gc.C) {
	ids := []grp.ID{"a", "b", "c", "d", "e"}
	m := loop.NewManual()
	ln := net.NewLocalNetwork(m)
	ln.SetDropRate(0.05, 3)
	ln.SetMaxDelay(40*time.Millisecond, 3)
	nodes := joinAgreementCluster(c, m, ln, ids)

	rnd := rand.New(rand.NewSource(11))
	for round := 0; round < 400; round++ {
		switch {
		case round%20 == 0 && rnd.Intn(3) == 0:
			ln.Heal()
		case round%20 == 0:
			// Split the nodes into two random sides.
			shuffled := append([]grp.ID(nil), ids...)
			rnd.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
			cut := 1 + rnd.Intn(len(shuffled)-1)
			ln.Heal()
			ln.Partition(shuffled[:cut], shuffled[cut:])
		}
		if round%3 == 0 {
			nodes[rnd.Intn(len(nodes))].seq.Prepare()
		}
		proposeRound(nodes, round)
		m.Advance(30 * time.Millisecond)
	}
	ln.Heal()
	for round := 400; round < 450; round++ {
		proposeRound(nodes, round)
		m.Advance(30 * time.Millisecond)
	}

	c.Assert(m.Panics, gc.Equals, 0)
	c.Assert(assertAgreement(c, nodes) > 0, gc.Equals, true)
}
