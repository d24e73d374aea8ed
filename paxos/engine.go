package paxos

import (
	"github.com/golang/glog"

	"github.com/relab/txpaxos/grp"
	"github.com/relab/txpaxos/net"
)

// Messenger is the capability interface an Engine acts through. It is
// implemented by the layer owning the engine.
type Messenger interface {
	Broadcast(msg net.Message)
	Unicast(to grp.ID, msg net.Message)
	OnResolution(id ProposalID, value Value)
	OnLeadershipAcquired()
	OnLeadershipLost()
}

type tally struct {
	count int
	value Value
}

type Engine struct {
	uid    grp.ID
	quorum int
	msgr   Messenger

	// Proposer
	leader        bool
	proposalID    ProposalID
	nextNumber    uint64
	proposedValue Value
	promisesRcvd  map[grp.ID]bool
	highestAccID  ProposalID
	acceptNacks   map[grp.ID]bool

	// Acceptor
	promisedID      ProposalID
	acceptedID      ProposalID
	acceptedValue   Value
	pendingPromise  grp.ID
	pendingPromID   ProposalID
	pendingAccepted bool

	// Learner
	finalID    ProposalID
	finalValue Value
	acceptors  map[grp.ID]ProposalID
	tallies    map[ProposalID]*tally
}

func NewEngine(uid grp.ID, quorum int, msgr Messenger) *Engine {
	return &Engine{
		uid:          uid,
		quorum:       quorum,
		msgr:         msgr,
		nextNumber:   1,
		promisesRcvd: make(map[grp.ID]bool),
		acceptNacks:  make(map[grp.ID]bool),
		acceptors:    make(map[grp.ID]ProposalID),
		tallies:      make(map[ProposalID]*tally),
	}
}

func (e *Engine) UID() grp.ID                     { return e.uid }
func (e *Engine) Quorum() int                     { return e.quorum }
func (e *Engine) Leader() bool                    { return e.leader }
func (e *Engine) ProposalID() ProposalID          { return e.proposalID }
func (e *Engine) ProposedValue() Value            { return e.proposedValue }
func (e *Engine) PromisedID() ProposalID          { return e.promisedID }
func (e *Engine) AcceptedID() ProposalID          { return e.acceptedID }
func (e *Engine) AcceptedValue() Value            { return e.acceptedValue }
func (e *Engine) NextNumber() uint64              { return e.nextNumber }
func (e *Engine) Resolved() bool                  { return e.finalValue != nil }
func (e *Engine) FinalValue() (ProposalID, Value) { return e.finalID, e.finalValue }

// PersistenceRequired reports whether a Promise or Accepted message is held
// back until the acceptor state has been saved.
func (e *Engine) PersistenceRequired() bool {
	return e.pendingPromise.Defined() || e.pendingAccepted
}

// SetQuorum changes the quorum size. Decisions already reached stand.
func (e *Engine) SetQuorum(q int) {
	e.quorum = q
}

// Recover restores acceptor state read from durable storage.
func (e *Engine) Recover(promised, accepted ProposalID, value Value) {
	e.promisedID = promised
	e.acceptedID = accepted
	e.acceptedValue = value
	e.ObserveProposal(promised)
}

// AssumeLeadership makes the engine leader for id without running phase
// 1. The caller must know that no acceptor can have accepted a value
// below id that a phase 1 would have uncovered: id was promised by a
// quorum in an earlier instance, or its number is reserved for this node.
func (e *Engine) AssumeLeadership(id ProposalID) {
	e.leader = true
	e.proposalID = id
	e.ObserveProposal(id)
}

// SetNextNumber raises the lowest proposal number Prepare will use.
func (e *Engine) SetNextNumber(n uint64) {
	if n > e.nextNumber {
		e.nextNumber = n
	}
}

// ObserveProposal records that a proposal id has been seen, so our next
// prepare outranks it.
func (e *Engine) ObserveProposal(id ProposalID) {
	if id.Number >= e.nextNumber {
		e.nextNumber = id.Number + 1
	}
}

// SetProposal sets the value this node proposes. Only the first value
// sticks. A leader sends it for acceptance immediately.
func (e *Engine) SetProposal(v Value) {
	if e.proposedValue != nil {
		return
	}
	e.proposedValue = v
	if e.leader {
		e.msgr.Broadcast(Accept{e.proposalID, v})
	}
}

// Prepare starts phase 1 with a fresh proposal id. Leadership is given up
// until a quorum of promises arrives.
func (e *Engine) Prepare() {
	if e.leader {
		e.leader = false
		e.msgr.OnLeadershipLost()
	}
	e.proposalID = ProposalID{e.nextNumber, e.uid}
	e.nextNumber++
	e.promisesRcvd = make(map[grp.ID]bool)
	e.acceptNacks = make(map[grp.ID]bool)
	e.highestAccID = ProposalID{}
	glog.V(3).Infof("%v: preparing %v", e.uid, e.proposalID)
	e.msgr.Broadcast(Prepare{e.proposalID})
}

// ResendAccept re-broadcasts the accept for our proposal if we lead.
func (e *Engine) ResendAccept() {
	if e.leader && e.proposedValue != nil {
		e.msgr.Broadcast(Accept{e.proposalID, e.proposedValue})
	}
}

// ResendAccepted re-broadcasts our acceptor's accepted value, if any and
// if it has already been persisted.
func (e *Engine) ResendAccepted() {
	if e.acceptedValue != nil && !e.pendingAccepted {
		e.msgr.Broadcast(Accepted{e.acceptedID, e.acceptedValue})
	}
}

// StepDown gives up leadership without preparing.
func (e *Engine) StepDown() {
	if e.leader {
		e.leader = false
		e.msgr.OnLeadershipLost()
	}
}

// Persisted releases the messages held back for persistence. It must only
// be called once the state that was current when PersistenceRequired was
// observed has been saved.
func (e *Engine) Persisted() {
	if e.pendingPromise.Defined() {
		to := e.pendingPromise
		e.pendingPromise = grp.UndefinedID
		if e.pendingPromID == e.promisedID {
			e.msgr.Unicast(to, Promise{e.promisedID, e.acceptedID, e.acceptedValue})
		}
	}
	if e.pendingAccepted {
		e.pendingAccepted = false
		e.msgr.Broadcast(Accepted{e.acceptedID, e.acceptedValue})
	}
}

// Dispatch routes a synod message to the matching Recv method. It
// reports false for messages that are not synod messages.
func (e *Engine) Dispatch(from grp.ID, msg net.Message) bool {
	switch m := msg.(type) {
	case Prepare:
		e.RecvPrepare(from, m)
	case Promise:
		e.RecvPromise(from, m)
	case PrepareNack:
		e.RecvPrepareNack(from, m)
	case Accept:
		e.RecvAccept(from, m)
	case Accepted:
		e.RecvAccepted(from, m)
	case AcceptNack:
		e.RecvAcceptNack(from, m)
	default:
		return false
	}
	return true
}

func (e *Engine) RecvPrepare(from grp.ID, m Prepare) {
	e.ObserveProposal(m.ID)
	switch c := m.ID.Compare(e.promisedID); {
	case c == 0:
		if !e.pendingPromise.Defined() {
			e.msgr.Unicast(from, Promise{e.promisedID, e.acceptedID, e.acceptedValue})
		}
	case c > 0:
		e.promisedID = m.ID
		e.pendingPromise = from
		e.pendingPromID = m.ID
	default:
		e.msgr.Unicast(from, PrepareNack{m.ID, e.promisedID})
	}
}

func (e *Engine) RecvPromise(from grp.ID, m Promise) {
	e.ObserveProposal(m.AcceptedID)
	if e.leader || m.ID != e.proposalID || e.promisesRcvd[from] {
		return
	}
	e.promisesRcvd[from] = true
	if m.AcceptedValue != nil && e.highestAccID.Less(m.AcceptedID) {
		e.highestAccID = m.AcceptedID
		e.proposedValue = m.AcceptedValue
	}
	if len(e.promisesRcvd) < e.quorum {
		return
	}
	glog.V(2).Infof("%v: acquired leadership with %v", e.uid, e.proposalID)
	e.leader = true
	e.msgr.OnLeadershipAcquired()
	if e.proposedValue != nil {
		e.msgr.Broadcast(Accept{e.proposalID, e.proposedValue})
	}
}

func (e *Engine) RecvPrepareNack(from grp.ID, m PrepareNack) {
	e.ObserveProposal(m.Promised)
}

func (e *Engine) RecvAccept(from grp.ID, m Accept) {
	e.ObserveProposal(m.ID)
	if m.ID.Less(e.promisedID) {
		e.msgr.Unicast(from, AcceptNack{m.ID, e.promisedID})
		return
	}
	if m.ID == e.acceptedID && e.acceptedValue != nil {
		// Redelivery: answer again, change nothing.
		if !e.pendingAccepted {
			e.msgr.Broadcast(Accepted{e.acceptedID, e.acceptedValue})
		}
		return
	}
	e.promisedID = m.ID
	e.acceptedID = m.ID
	e.acceptedValue = m.Value
	e.pendingAccepted = true
}

func (e *Engine) RecvAcceptNack(from grp.ID, m AcceptNack) {
	e.ObserveProposal(m.Promised)
	if !e.leader || m.ID != e.proposalID {
		return
	}
	e.acceptNacks[from] = true
	if len(e.acceptNacks) >= e.quorum {
		glog.V(2).Infof("%v: lost leadership, %v outranked by %v", e.uid, e.proposalID, m.Promised)
		e.leader = false
		e.msgr.OnLeadershipLost()
	}
}

// RecvAccepted counts the latest accepted proposal per acceptor and
// resolves once a quorum agrees. OnResolution is the last call the engine
// makes while handling the message, so the owner may discard the engine
// from within it.
func (e *Engine) RecvAccepted(from grp.ID, m Accepted) {
	if e.finalValue != nil {
		return
	}
	last, seen := e.acceptors[from]
	if seen && !last.Less(m.ID) {
		return
	}
	if seen {
		if t := e.tallies[last]; t != nil {
			t.count--
			if t.count == 0 {
				delete(e.tallies, last)
			}
		}
	}
	e.acceptors[from] = m.ID
	t, found := e.tallies[m.ID]
	if !found {
		t = &tally{value: m.Value}
		e.tallies[m.ID] = t
	}
	t.count++
	if t.count < e.quorum {
		return
	}
	e.finalID = m.ID
	e.finalValue = t.value
	e.tallies = nil
	e.msgr.OnResolution(e.finalID, e.finalValue)
}
