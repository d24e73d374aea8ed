package pcommit

import (
	"bytes"
	"encoding/gob"

	"github.com/golang/glog"

	"github.com/relab/txpaxos/elog"
	e "github.com/relab/txpaxos/elog/event"
	"github.com/relab/txpaxos/grp"
	"github.com/relab/txpaxos/net"
	"github.com/relab/txpaxos/paxos"
)

// ownerNumber is the proposal number reserved for a participant's owner.
// Everybody else starts at ownerNumber+1, so the owner's vote is sent
// without a phase 1.
const ownerNumber = 1

// participantRecord is the durable state of one participant's engine.
// Proposed is the owner's own vote, saved before it is first sent so a
// restarted owner never proposes a different value under its reserved
// number.
type participantRecord struct {
	PromisedID    paxos.ProposalID
	AcceptedID    paxos.ProposalID
	AcceptedValue paxos.Value
	Proposed      paxos.Value
}

// A participant decides one member's vote in one transaction. It is the
// engine's Messenger.
type participant struct {
	tx        *Transaction
	id        grp.ID
	engine    *paxos.Engine
	proposed  paxos.Value
	proposing bool
	submitted []byte
	resolved  bool
	result    Result
}

func newParticipant(tx *Transaction, id grp.ID) *participant {
	p := &participant{tx: tx, id: id}
	p.engine = paxos.NewEngine(tx.m.uid, tx.quorum, p)
	p.engine.SetNextNumber(ownerNumber + 1)
	return p
}

func (p *participant) owned() bool {
	return p.id == p.tx.m.uid
}

func (p *participant) dataID() string {
	return dataID(p.tx.uuid, p.id)
}

func dataID(txUUID string, id grp.ID) string {
	return "pcommit/" + txUUID + "/" + string(id)
}

func (p *participant) record() participantRecord {
	return participantRecord{
		PromisedID:    p.engine.PromisedID(),
		AcceptedID:    p.engine.AcceptedID(),
		AcceptedValue: p.engine.AcceptedValue(),
		Proposed:      p.proposed,
	}
}

func (p *participant) encode() []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p.record()); err != nil {
		glog.Errorf("encoding participant %s: %v", p.dataID(), err)
		return nil
	}
	return buf.Bytes()
}

// recover restores the engine from the store, if anything was saved.
func (p *participant) recover() {
	data, err := p.tx.m.persister.Load(p.dataID())
	if err != nil {
		glog.Warningf("loading %s: %v", p.dataID(), err)
		return
	}
	if data == nil {
		return
	}
	var rec participantRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		glog.V(2).Infof("ignoring record for %s: %v", p.dataID(), err)
		return
	}
	p.engine.Recover(rec.PromisedID, rec.AcceptedID, rec.AcceptedValue)
	p.engine.SetNextNumber(ownerNumber + 1)
	p.submitted = data
	if rec.Proposed != nil && p.owned() {
		p.proposed = rec.Proposed
		p.startProposing()
	}
}

// vote sets the owner's own vote. It is sent once it has been saved.
// A repeated vote retries a failed write.
func (p *participant) vote(v paxos.Value) {
	if p.proposed == nil && p.engine.ProposedValue() == nil {
		p.proposed = v
	}
	p.checkPersistence()
}

func (p *participant) startProposing() {
	p.proposing = true
	p.engine.AssumeLeadership(paxos.ProposalID{Number: ownerNumber, UID: p.id})
	p.engine.SetProposal(p.proposed)
}

// forceAbort is run by the transaction leader once the deadline has
// passed.
func (p *participant) forceAbort() {
	p.engine.SetProposal(abortValue)
	if p.engine.Leader() {
		p.engine.ResendAccept()
	} else {
		p.engine.Prepare()
	}
	p.checkPersistence()
}

func (p *participant) retransmit() {
	p.engine.ResendAccept()
	p.engine.ResendAccepted()
	p.checkPersistence()
}

func (p *participant) receive(from grp.ID, msg net.Message) {
	if !p.engine.Dispatch(from, msg) {
		glog.V(2).Infof("%s: unexpected %v from %v", p.dataID(), msg.Kind(), from)
		return
	}
	p.checkPersistence()
}

func (p *participant) checkPersistence() {
	if p.tx.done {
		return
	}
	if !p.engine.PersistenceRequired() && (p.proposed == nil || p.proposing) {
		return
	}
	data := p.encode()
	if data == nil || bytes.Equal(data, p.submitted) {
		return
	}
	p.submitted = data
	p.tx.m.persister.Persist(p.dataID(), data, func(err error) {
		p.persisted(data, err)
	})
}

func (p *participant) persisted(data []byte, err error) {
	if p.tx.done {
		return
	}
	if err != nil {
		elog.Log(e.NewEvent(e.PersistFailed).On(string(p.tx.m.uid)))
		if bytes.Equal(data, p.submitted) {
			p.submitted = nil
		}
		return
	}
	if !bytes.Equal(data, p.encode()) {
		// A newer state is queued behind this one.
		return
	}
	if p.engine.PersistenceRequired() {
		p.engine.Persisted()
	}
	if p.proposed != nil && !p.proposing && p.owned() && p.engine.ProposedValue() == nil {
		p.startProposing()
	}
}

// Broadcast reaches the transaction's nodes, which need not be the
// current membership.
func (p *participant) Broadcast(msg net.Message) {
	for _, id := range p.tx.order {
		p.Unicast(id, msg)
	}
}

func (p *participant) Unicast(to grp.ID, msg net.Message) {
	p.tx.m.ep.Unicast(to, Channel, TxMessage{TxUUID: p.tx.uuid, Desc: p.tx.desc, Participant: p.id, Msg: msg})
}

func (p *participant) OnResolution(id paxos.ProposalID, v paxos.Value) {
	if p.resolved {
		return
	}
	p.resolved = true
	p.result = Aborted
	if bytes.Equal(v, commitValue) {
		p.result = Committed
	} else if !bytes.Equal(v, abortValue) {
		glog.V(2).Infof("%s: undecodable vote %q, counting it as abort", p.dataID(), v)
	}
	if glog.V(2) {
		glog.Infof("%s: resolved %v by %v", p.dataID(), p.result, id)
	}
	p.tx.nodeResolved(p)
}

func (p *participant) OnLeadershipAcquired() {
	glog.V(3).Infof("%s: leading", p.dataID())
}

func (p *participant) OnLeadershipLost() {
	glog.V(3).Infof("%s: no longer leading", p.dataID())
}
