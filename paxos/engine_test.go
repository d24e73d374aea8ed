package paxos

import (
	"testing"

	gc "gopkg.in/check.v1"

	"github.com/relab/txpaxos/grp"
	"github.com/relab/txpaxos/net"
)

func TestPaxos(t *testing.T) { gc.TestingT(t) }

type sent struct {
	to  grp.ID // UndefinedID for broadcasts
	msg net.Message
}

type recorder struct {
	out      []sent
	resolved []Value
	acquired int
	lost     int
}

func (r *recorder) Broadcast(msg net.Message)           { r.out = append(r.out, sent{grp.UndefinedID, msg}) }
func (r *recorder) Unicast(to grp.ID, msg net.Message)  { r.out = append(r.out, sent{to, msg}) }
func (r *recorder) OnResolution(id ProposalID, v Value) { r.resolved = append(r.resolved, v) }
func (r *recorder) OnLeadershipAcquired()               { r.acquired++ }
func (r *recorder) OnLeadershipLost()                   { r.lost++ }

func (r *recorder) take() []sent {
	out := r.out
	r.out = nil
	return out
}

var (
	pidA1 = ProposalID{1, "a"}
	pidB1 = ProposalID{1, "b"}
	pidA2 = ProposalID{2, "a"}
	pidC5 = ProposalID{5, "c"}
)

// -----------------------------------------------------------------------
// Proposal ids

type proposalSuite struct{}

var _ = gc.Suite(&proposalSuite{})

func (*proposalSuite) TestCompare(c *gc.C) {
	c.Assert(pidA1.Compare(pidB1), gc.Equals, -1)
	c.Assert(pidB1.Compare(pidA2), gc.Equals, -1)
	c.Assert(pidA2.Compare(pidA2), gc.Equals, 0)
	c.Assert(pidC5.Compare(pidA2), gc.Equals, 1)
	c.Assert(ProposalID{}.Less(pidA1), gc.Equals, true)
	c.Assert(ProposalID{}.IsZero(), gc.Equals, true)
	c.Assert(pidA1.IsZero(), gc.Equals, false)
}

// -----------------------------------------------------------------------
// Acceptor

type acceptorSuite struct {
	r *recorder
	e *Engine
}

var _ = gc.Suite(&acceptorSuite{})

func (s *acceptorSuite) SetUpTest(c *gc.C) {
	s.r = &recorder{}
	s.e = NewEngine("a", 2, s.r)
}

func (s *acceptorSuite) TestPromiseWaitsForPersistence(c *gc.C) {
	s.e.RecvPrepare("b", Prepare{pidB1})
	c.Assert(s.r.take(), gc.HasLen, 0)
	c.Assert(s.e.PersistenceRequired(), gc.Equals, true)
	c.Assert(s.e.PromisedID(), gc.Equals, pidB1)

	s.e.Persisted()
	c.Assert(s.e.PersistenceRequired(), gc.Equals, false)
	c.Assert(s.r.take(), gc.DeepEquals, []sent{{"b", Promise{pidB1, ProposalID{}, nil}}})
}

func (s *acceptorSuite) TestDuplicatePrepareIsAnsweredAgain(c *gc.C) {
	s.e.RecvPrepare("b", Prepare{pidB1})
	s.e.Persisted()
	s.r.take()

	s.e.RecvPrepare("b", Prepare{pidB1})
	c.Assert(s.e.PersistenceRequired(), gc.Equals, false)
	c.Assert(s.r.take(), gc.HasLen, 1)
}

func (s *acceptorSuite) TestLowerPrepareIsNacked(c *gc.C) {
	s.e.RecvPrepare("c", Prepare{pidC5})
	s.e.Persisted()
	s.r.take()

	s.e.RecvPrepare("b", Prepare{pidB1})
	c.Assert(s.r.take(), gc.DeepEquals, []sent{{"b", PrepareNack{pidB1, pidC5}}})
	c.Assert(s.e.NextNumber(), gc.Equals, uint64(6))
}

func (s *acceptorSuite) TestAcceptWaitsForPersistence(c *gc.C) {
	s.e.RecvAccept("b", Accept{pidB1, Value("x")})
	c.Assert(s.r.take(), gc.HasLen, 0)
	c.Assert(s.e.PersistenceRequired(), gc.Equals, true)

	s.e.Persisted()
	c.Assert(s.r.take(), gc.DeepEquals, []sent{{grp.UndefinedID, Accepted{pidB1, Value("x")}}})
	c.Assert(s.e.AcceptedID(), gc.Equals, pidB1)
	c.Assert(s.e.PromisedID(), gc.Equals, pidB1)
}

func (s *acceptorSuite) TestRedeliveredAcceptChangesNothing(c *gc.C) {
	s.e.RecvAccept("b", Accept{pidB1, Value("x")})
	s.e.Persisted()
	s.r.take()

	s.e.RecvAccept("b", Accept{pidB1, Value("x")})
	c.Assert(s.e.PersistenceRequired(), gc.Equals, false)
	c.Assert(s.e.AcceptedValue(), gc.DeepEquals, Value("x"))
	c.Assert(s.r.take(), gc.DeepEquals, []sent{{grp.UndefinedID, Accepted{pidB1, Value("x")}}})
}

func (s *acceptorSuite) TestLowerAcceptIsNacked(c *gc.C) {
	s.e.RecvPrepare("c", Prepare{pidC5})
	s.e.Persisted()
	s.r.take()

	s.e.RecvAccept("b", Accept{pidB1, Value("x")})
	c.Assert(s.e.AcceptedValue(), gc.IsNil)
	c.Assert(s.r.take(), gc.DeepEquals, []sent{{"b", AcceptNack{pidB1, pidC5}}})
}

func (s *acceptorSuite) TestStalePendingPromiseIsNotSent(c *gc.C) {
	s.e.RecvPrepare("b", Prepare{pidB1})
	s.e.RecvAccept("c", Accept{pidC5, Value("y")})
	s.e.Persisted()
	c.Assert(s.r.take(), gc.DeepEquals, []sent{{grp.UndefinedID, Accepted{pidC5, Value("y")}}})
}

func (s *acceptorSuite) TestRecover(c *gc.C) {
	s.e.Recover(pidC5, pidA2, Value("z"))
	c.Assert(s.e.NextNumber(), gc.Equals, uint64(6))
	s.e.RecvPrepare("b", Prepare{pidC5})
	c.Assert(s.r.take(), gc.DeepEquals, []sent{{"b", Promise{pidC5, pidA2, Value("z")}}})
}

// -----------------------------------------------------------------------
// Proposer

type proposerSuite struct {
	r *recorder
	e *Engine
}

var _ = gc.Suite(&proposerSuite{})

func (s *proposerSuite) SetUpTest(c *gc.C) {
	s.r = &recorder{}
	s.e = NewEngine("a", 2, s.r)
}

func (s *proposerSuite) TestPrepareAndAcquireLeadership(c *gc.C) {
	s.e.SetProposal(Value("mine"))
	s.e.Prepare()
	c.Assert(s.r.take(), gc.DeepEquals, []sent{{grp.UndefinedID, Prepare{pidA1}}})

	s.e.RecvPromise("a", Promise{ID: pidA1})
	c.Assert(s.e.Leader(), gc.Equals, false)
	s.e.RecvPromise("a", Promise{ID: pidA1})
	c.Assert(s.e.Leader(), gc.Equals, false)
	s.e.RecvPromise("b", Promise{ID: pidA1})
	c.Assert(s.e.Leader(), gc.Equals, true)
	c.Assert(s.r.acquired, gc.Equals, 1)
	c.Assert(s.r.take(), gc.DeepEquals, []sent{{grp.UndefinedID, Accept{pidA1, Value("mine")}}})
}

func (s *proposerSuite) TestAdoptsHighestAcceptedValue(c *gc.C) {
	s.e.ObserveProposal(pidC5)
	s.e.SetProposal(Value("mine"))
	s.e.Prepare()
	pid := s.e.ProposalID()
	c.Assert(pid, gc.Equals, ProposalID{6, "a"})

	s.e.RecvPromise("b", Promise{pid, pidB1, Value("old")})
	s.e.RecvPromise("c", Promise{pid, pidA2, Value("newer")})
	c.Assert(s.e.Leader(), gc.Equals, true)
	c.Assert(s.e.ProposedValue(), gc.DeepEquals, Value("newer"))
}

func (s *proposerSuite) TestLeaderWithoutValueWaitsForProposal(c *gc.C) {
	s.e.Prepare()
	s.e.RecvPromise("a", Promise{ID: pidA1})
	s.e.RecvPromise("b", Promise{ID: pidA1})
	s.r.take()
	c.Assert(s.e.Leader(), gc.Equals, true)

	s.e.SetProposal(Value("late"))
	s.e.SetProposal(Value("ignored"))
	c.Assert(s.r.take(), gc.DeepEquals, []sent{{grp.UndefinedID, Accept{pidA1, Value("late")}}})
}

func (s *proposerSuite) TestQuorumOfAcceptNacksLosesLeadership(c *gc.C) {
	s.e.AssumeLeadership(pidA1)
	s.e.SetProposal(Value("v"))
	s.e.RecvAcceptNack("b", AcceptNack{pidA1, pidC5})
	c.Assert(s.e.Leader(), gc.Equals, true)
	s.e.RecvAcceptNack("b", AcceptNack{pidA1, pidC5})
	c.Assert(s.e.Leader(), gc.Equals, true)
	s.e.RecvAcceptNack("c", AcceptNack{pidA1, pidC5})
	c.Assert(s.e.Leader(), gc.Equals, false)
	c.Assert(s.r.lost, gc.Equals, 1)

	s.r.take()
	s.e.Prepare()
	c.Assert(s.r.take(), gc.DeepEquals, []sent{{grp.UndefinedID, Prepare{ProposalID{6, "a"}}}})
}

func (s *proposerSuite) TestPrepareNackRaisesNextNumber(c *gc.C) {
	s.e.Prepare()
	s.e.RecvPrepareNack("b", PrepareNack{pidA1, pidC5})
	c.Assert(s.e.NextNumber(), gc.Equals, uint64(6))
}

// -----------------------------------------------------------------------
// Learner

type learnerSuite struct {
	r *recorder
	e *Engine
}

var _ = gc.Suite(&learnerSuite{})

func (s *learnerSuite) SetUpTest(c *gc.C) {
	s.r = &recorder{}
	s.e = NewEngine("a", 2, s.r)
}

func (s *learnerSuite) TestResolvesOnQuorum(c *gc.C) {
	s.e.RecvAccepted("b", Accepted{pidB1, Value("x")})
	s.e.RecvAccepted("b", Accepted{pidB1, Value("x")})
	c.Assert(s.e.Resolved(), gc.Equals, false)
	s.e.RecvAccepted("c", Accepted{pidB1, Value("x")})
	c.Assert(s.e.Resolved(), gc.Equals, true)
	c.Assert(s.r.resolved, gc.DeepEquals, []Value{Value("x")})

	s.e.RecvAccepted("a", Accepted{pidB1, Value("x")})
	c.Assert(s.r.resolved, gc.HasLen, 1)
	id, v := s.e.FinalValue()
	c.Assert(id, gc.Equals, pidB1)
	c.Assert(v, gc.DeepEquals, Value("x"))
}

func (s *learnerSuite) TestOnlyLatestAcceptedPerAcceptorCounts(c *gc.C) {
	s.e.RecvAccepted("b", Accepted{pidB1, Value("x")})
	s.e.RecvAccepted("b", Accepted{pidC5, Value("y")})
	s.e.RecvAccepted("c", Accepted{pidB1, Value("x")})
	c.Assert(s.e.Resolved(), gc.Equals, false)
	s.e.RecvAccepted("a", Accepted{pidC5, Value("y")})
	_, v := s.e.FinalValue()
	c.Assert(v, gc.DeepEquals, Value("y"))
}

func (s *learnerSuite) TestDispatch(c *gc.C) {
	c.Assert(s.e.Dispatch("b", Accepted{pidB1, Value("x")}), gc.Equals, true)
	c.Assert(s.e.Dispatch("b", nil), gc.Equals, false)
}

// -----------------------------------------------------------------------
// Three engines talking to each other

type cluster struct {
	engines map[grp.ID]*Engine
	queue   []delivery
	results map[grp.ID]Value
}

type delivery struct {
	from, to grp.ID
	msg      net.Message
}

type clusterMessenger struct {
	cl  *cluster
	uid grp.ID
}

func (m clusterMessenger) Broadcast(msg net.Message) {
	for id := range m.cl.engines {
		m.cl.queue = append(m.cl.queue, delivery{m.uid, id, msg})
	}
}
func (m clusterMessenger) Unicast(to grp.ID, msg net.Message) {
	m.cl.queue = append(m.cl.queue, delivery{m.uid, to, msg})
}
func (m clusterMessenger) OnResolution(id ProposalID, v Value) { m.cl.results[m.uid] = v }
func (m clusterMessenger) OnLeadershipAcquired()               {}
func (m clusterMessenger) OnLeadershipLost()                   {}

func (cl *cluster) run() {
	for len(cl.queue) > 0 {
		d := cl.queue[0]
		cl.queue = cl.queue[1:]
		e := cl.engines[d.to]
		e.Dispatch(d.from, d.msg)
		if e.PersistenceRequired() {
			e.Persisted()
		}
	}
}

type clusterSuite struct{}

var _ = gc.Suite(&clusterSuite{})

func (*clusterSuite) TestCompetingProposersAgree(c *gc.C) {
	cl := &cluster{engines: make(map[grp.ID]*Engine), results: make(map[grp.ID]Value)}
	for _, id := range []grp.ID{"a", "b", "c"} {
		cl.engines[id] = NewEngine(id, 2, clusterMessenger{cl, id})
	}
	cl.engines["a"].SetProposal(Value("from-a"))
	cl.engines["b"].SetProposal(Value("from-b"))
	cl.engines["a"].Prepare()
	cl.engines["b"].Prepare()
	cl.run()

	c.Assert(cl.results, gc.HasLen, 3)
	c.Assert(cl.results["a"], gc.DeepEquals, cl.results["b"])
	c.Assert(cl.results["b"], gc.DeepEquals, cl.results["c"])
}
