package multipaxos

import (
	"bytes"
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/relab/txpaxos/durable"
	"github.com/relab/txpaxos/elog"
	e "github.com/relab/txpaxos/elog/event"
	"github.com/relab/txpaxos/grp"
	"github.com/relab/txpaxos/loop"
	"github.com/relab/txpaxos/net"
	"github.com/relab/txpaxos/paxos"
)

var (
	ErrInstanceMismatch = errors.New("instance mismatch")
	ErrProposalPending  = errors.New("another proposal is pending for this instance")
	ErrInactive         = errors.New("sequencer is not voting")
	errMalformedRecord  = errors.New("malformed recovery record")
)

// A Handler is told about every decision in instance order, and about
// evidence that the node has missed decisions.
type Handler interface {
	OnResolution(instance uint64, id paxos.ProposalID, p Proposal)
	BehindInSequence(observed uint64)
}

// A LeadershipObserver is notified when the current engine gains or loses
// leadership.
type LeadershipObserver interface {
	LeadershipAcquired()
	LeadershipLost()
}

// Sender is implemented by net.Endpoint.
type Sender interface {
	ID() grp.ID
	Unicast(to grp.ID, channel string, msg net.Message)
	Broadcast(channel string, msg net.Message)
}

type Sequencer struct {
	uid       grp.ID
	channel   string
	ep        Sender
	gm        grp.GroupManager
	persister *durable.Persister
	handler   Handler
	observer  LeadershipObserver
	advocate  *Advocate
	bypass    map[net.Kind]net.HandlerFunc

	instance uint64
	engine   *paxos.Engine
	proposal *Proposal
	leader   grp.ID
	active   bool

	dirty     bool
	submitted []byte
	saved     []byte
}

// NewSequencer creates a Sequencer speaking on channel. Initialize must be
// called before any message is delivered.
func NewSequencer(channel string, ep Sender, gm grp.GroupManager, sched loop.Scheduler,
	persister *durable.Persister, handler Handler, retry time.Duration) *Sequencer {
	s := &Sequencer{
		uid:       ep.ID(),
		channel:   channel,
		ep:        ep,
		gm:        gm,
		persister: persister,
		handler:   handler,
		bypass:    make(map[net.Kind]net.HandlerFunc),
	}
	s.advocate = NewAdvocate(s, sched, retry)
	s.bypass[net.KindProposalRequest] = s.receiveProposalRequest
	s.bypass[net.KindProposalAck] = s.receiveProposalAck
	gm.Subscribe("multipaxos", func(nm *grp.NodeMap) {
		if s.engine != nil {
			s.engine.SetQuorum(int(nm.Quorum()))
		}
	})
	return s
}

// Allow delivers messages of kind k to h regardless of the instance they
// carry, and even while the sequencer is inactive.
func (s *Sequencer) Allow(k net.Kind, h net.HandlerFunc) {
	s.bypass[k] = h
}

func (s *Sequencer) SetObserver(obs LeadershipObserver) {
	s.observer = obs
}

// Initialize loads the recovery record and resumes from it. Without a
// record, or with one that cannot be decoded, the sequencer starts at
// instance 1.
func (s *Sequencer) Initialize() error {
	data, err := s.persister.Load(DataID)
	if err != nil {
		return err
	}
	s.instance = 1
	s.active = true
	if data == nil {
		s.newEngine(nil, false)
		return nil
	}
	rr, err := decodeRecord(data)
	if err != nil {
		glog.V(2).Infof("ignoring recovery record: %v", err)
		s.newEngine(nil, false)
		return nil
	}
	s.instance = rr.Instance
	s.newEngine(nil, false)
	s.engine.Recover(rr.PromisedID, rr.AcceptedID, rr.AcceptedValue)
	s.engine.ObserveProposal(rr.ProposalID)
	s.saved = data
	glog.V(1).Infof("%v: recovered at instance %d, promised %v, accepted %v",
		s.uid, rr.Instance, rr.PromisedID, rr.AcceptedID)
	elog.Log(e.NewEventWithMetric(e.Recovered, rr.Instance).On(string(s.uid)))
	if rr.Proposal != nil {
		s.proposal = rr.Proposal
		s.advocate.SetProposal(s.instance, rr.Proposal.RequestID, rr.Proposal.Value)
	}
	return nil
}

func (s *Sequencer) ID() grp.ID                   { return s.uid }
func (s *Sequencer) Instance() uint64             { return s.instance }
func (s *Sequencer) Leader() grp.ID               { return s.leader }
func (s *Sequencer) IsLeader() bool               { return s.engine.Leader() }
func (s *Sequencer) ProposalID() paxos.ProposalID { return s.engine.ProposalID() }
func (s *Sequencer) Engine() *paxos.Engine        { return s.engine }
func (s *Sequencer) Advocate() *Advocate          { return s.advocate }
func (s *Sequencer) Active() bool                 { return s.active }

// Proposal returns the local proposal bound to the current instance.
func (s *Sequencer) Proposal() *Proposal {
	return s.proposal
}

// SetActive turns voting on or off. An inactive sequencer drops protocol
// messages but still passes allow-listed ones through.
func (s *Sequencer) SetActive(active bool) {
	if s.active == active {
		return
	}
	glog.V(2).Infof("%v: active=%v at instance %d", s.uid, active, s.instance)
	s.active = active
}

// SetProposal binds value to instance, which must be the current one, and
// starts advocating it.
func (s *Sequencer) SetProposal(requestID string, value []byte, instance uint64) error {
	if instance != s.instance {
		return ErrInstanceMismatch
	}
	if !s.active {
		return ErrInactive
	}
	if s.proposal != nil {
		if s.proposal.RequestID == requestID {
			return nil
		}
		return ErrProposalPending
	}
	s.proposal = &Proposal{RequestID: requestID, Value: value}
	s.dirty = true
	elog.Log(e.NewEventWithMetric(e.ProposalSet, s.instance).On(string(s.uid)))
	s.advocate.SetProposal(s.instance, requestID, value)
	s.checkPersistence()
	return nil
}

// NextInstance moves to the next instance, or to setTo if it is non-zero.
// Forcing may move the counter backwards. The acceptor's promise carries
// over to the new engine; leadership carries over only when moving
// forward, since a phase 1 never covers earlier instances.
func (s *Sequencer) NextInstance(setTo uint64) {
	s.advocate.Cancel()
	prev, prevInstance := s.engine, s.instance
	if setTo == 0 {
		s.instance++
	} else {
		s.instance = setTo
		glog.V(2).Infof("%v: instance forced from %d to %d", s.uid, prevInstance, setTo)
		elog.Log(e.NewEventWithMetric(e.InstanceForced, setTo).On(string(s.uid)))
	}
	s.proposal = nil
	s.newEngine(prev, s.instance > prevInstance)
	s.dirty = true
	s.checkPersistence()
}

func (s *Sequencer) newEngine(prev *paxos.Engine, forward bool) {
	m := &messenger{s: s, instance: s.instance}
	eng := paxos.NewEngine(s.uid, int(s.gm.Quorum()), m)
	m.engine = eng
	if prev != nil {
		eng.Recover(prev.PromisedID(), paxos.ProposalID{}, nil)
		eng.SetNextNumber(prev.NextNumber())
		if forward && prev.Leader() {
			eng.AssumeLeadership(prev.ProposalID())
		}
	}
	s.engine = eng
}

// ChangeLeader records who is believed to lead and lets the advocate
// re-send to it.
func (s *Sequencer) ChangeLeader(id grp.ID) {
	if s.leader == id {
		return
	}
	glog.V(2).Infof("%v: leader %v -> %v", s.uid, s.leader, id)
	s.leader = id
	elog.Log(e.NewEvent(e.LeaderChanged).On(string(s.uid)))
	s.advocate.LeadershipChanged()
}

func (s *Sequencer) Prepare() {
	s.engine.Prepare()
	s.checkPersistence()
}

func (s *Sequencer) StepDown() {
	s.engine.StepDown()
}

func (s *Sequencer) ObserveProposal(id paxos.ProposalID) {
	s.engine.ObserveProposal(id)
}

func (s *Sequencer) BehindInSequence(observed uint64) {
	glog.V(2).Infof("%v: behind in sequence, at %d and observed %d", s.uid, s.instance, observed)
	s.handler.BehindInSequence(observed)
}

// Broadcast sends msg on the sequencer's channel.
func (s *Sequencer) Broadcast(msg net.Message) {
	s.ep.Broadcast(s.channel, msg)
}

// Receive is the sequencer's entry point for everything on its channel.
func (s *Sequencer) Receive(env net.Envelope) {
	if env.Msg == nil {
		return
	}
	if h, found := s.bypass[env.Msg.Kind()]; found {
		h(env)
		s.checkPersistence()
		return
	}
	if _, isPrepare := env.Msg.(paxos.Prepare); isPrepare && env.Instance > s.instance {
		s.BehindInSequence(env.Instance)
	}
	if !s.active {
		return
	}
	if env.Instance != s.instance {
		if glog.V(4) {
			glog.Infof("%v: dropping %v, at instance %d", s.uid, env, s.instance)
		}
		return
	}
	if !s.engine.Dispatch(env.From, env.Msg) {
		glog.V(2).Infof("%v: unknown message %v", s.uid, env)
		return
	}
	s.checkPersistence()
}

func (s *Sequencer) receiveProposalRequest(env net.Envelope) {
	req := env.Msg.(ProposalRequest)
	if !s.active || env.Instance != s.instance || !s.engine.Leader() {
		return
	}
	if s.engine.ProposedValue() == nil {
		v, err := Proposal{RequestID: req.RequestID, Value: req.Value}.Encode()
		if err != nil {
			glog.Errorf("encoding proposal %s: %v", req.RequestID, err)
			return
		}
		s.engine.SetProposal(v)
	}
	s.ep.Unicast(env.From, s.channel, ProposalAck{RequestID: req.RequestID})
}

func (s *Sequencer) receiveProposalAck(env net.Envelope) {
	s.advocate.ProposalAcknowledged(env.Msg.(ProposalAck).RequestID)
}

func (s *Sequencer) sendProposal(instance uint64, p Proposal) {
	if instance != s.instance || !s.active {
		return
	}
	v, err := p.Encode()
	if err != nil {
		glog.Errorf("encoding proposal %s: %v", p.RequestID, err)
		return
	}
	switch {
	case s.engine.Leader() && s.engine.ProposedValue() != nil:
		s.engine.ResendAccept()
	case s.engine.Leader():
		s.engine.SetProposal(v)
	case s.leader.Defined() && s.leader != s.uid:
		s.engine.SetProposal(v)
		s.ep.Unicast(s.leader, s.channel, ProposalRequest{RequestID: p.RequestID, Value: p.Value})
	default:
		// Proposed once this node wins a phase 1.
		s.engine.SetProposal(v)
	}
	s.checkPersistence()
}

func (s *Sequencer) resolved(id paxos.ProposalID, v paxos.Value) {
	instance, eng := s.instance, s.engine
	p, err := DecodeProposal(v)
	if err != nil {
		// The handler still learns the instance is used up.
		glog.V(2).Infof("%v: undecodable value resolved at instance %d: %v", s.uid, instance, err)
		p = Proposal{}
	} else {
		glog.V(2).Infof("%v: instance %d resolved to %s by %v", s.uid, instance, p.RequestID, id)
	}
	elog.Log(e.NewEventWithMetric(e.InstanceResolved, instance).On(string(s.uid)))
	s.handler.OnResolution(instance, id, p)
	if s.instance == instance && s.engine == eng {
		s.NextInstance(0)
	}
}

func (s *Sequencer) record() *RecoveryRecord {
	return &RecoveryRecord{
		Instance:      s.instance,
		Proposal:      s.proposal,
		ProposalID:    s.engine.ProposalID(),
		PromisedID:    s.engine.PromisedID(),
		AcceptedID:    s.engine.AcceptedID(),
		AcceptedValue: s.engine.AcceptedValue(),
	}
}

// checkPersistence writes the recovery record if the engine is holding
// back a message or the record changed. A record identical to one already
// in flight is not written twice.
func (s *Sequencer) checkPersistence() {
	if !s.engine.PersistenceRequired() && !s.dirty {
		return
	}
	rr := s.record()
	data, err := rr.encode()
	if err != nil {
		glog.Errorf("encoding recovery record: %v", err)
		return
	}
	if bytes.Equal(data, s.saved) {
		s.dirty = false
		s.release(rr)
		return
	}
	if bytes.Equal(data, s.submitted) {
		return
	}
	s.dirty = false
	s.submitted = data
	s.persister.Persist(DataID, data, func(err error) {
		s.persisted(rr, data, err)
	})
}

func (s *Sequencer) persisted(rr *RecoveryRecord, data []byte, err error) {
	if bytes.Equal(data, s.submitted) {
		s.submitted = nil
	}
	if err != nil {
		glog.Warningf("%v: persisting instance %d: %v", s.uid, rr.Instance, err)
		elog.Log(e.NewEventWithMetric(e.PersistFailed, rr.Instance).On(string(s.uid)))
		s.dirty = true
		return
	}
	s.saved = data
	s.release(rr)
}

// release lets the engine send what it held back, provided the saved
// record still describes the engine's acceptor state.
func (s *Sequencer) release(rr *RecoveryRecord) {
	if rr.Instance != s.instance || !s.engine.PersistenceRequired() {
		return
	}
	if rr.PromisedID != s.engine.PromisedID() || rr.AcceptedID != s.engine.AcceptedID() {
		return
	}
	s.engine.Persisted()
}

// Stop cancels the advocate.
func (s *Sequencer) Stop() {
	s.advocate.Cancel()
}

// messenger binds an engine to the instance it was created for. Calls from
// an engine that is no longer current are ignored.
type messenger struct {
	s        *Sequencer
	instance uint64
	engine   *paxos.Engine
}

func (m *messenger) current() bool {
	return m.s.engine == m.engine && m.s.instance == m.instance
}

func (m *messenger) Broadcast(msg net.Message) {
	if m.current() {
		m.s.ep.Broadcast(m.s.channel, msg)
	}
}

func (m *messenger) Unicast(to grp.ID, msg net.Message) {
	if m.current() {
		m.s.ep.Unicast(to, m.s.channel, msg)
	}
}

func (m *messenger) OnResolution(id paxos.ProposalID, v paxos.Value) {
	if m.current() {
		m.s.resolved(id, v)
	}
}

func (m *messenger) OnLeadershipAcquired() {
	if m.current() && m.s.observer != nil {
		m.s.observer.LeadershipAcquired()
	}
}

func (m *messenger) OnLeadershipLost() {
	if m.current() && m.s.observer != nil {
		m.s.observer.LeadershipLost()
	}
}
