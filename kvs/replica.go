package kvs

import (
	"github.com/golang/glog"

	"github.com/relab/txpaxos/config"
	"github.com/relab/txpaxos/durable"
	"github.com/relab/txpaxos/elog"
	e "github.com/relab/txpaxos/elog/event"
	"github.com/relab/txpaxos/grp"
	"github.com/relab/txpaxos/liveness"
	"github.com/relab/txpaxos/loop"
	"github.com/relab/txpaxos/multipaxos"
	"github.com/relab/txpaxos/net"
	"github.com/relab/txpaxos/paxos"
)

type pendingProposal struct {
	instance uint64
	replies  []func(ProposeReply)
}

// A Replica is one node of the replicated store. All methods must be
// called on the node's event loop.
type Replica struct {
	uid        grp.ID
	sched      loop.Scheduler
	ep         *net.Endpoint
	gm         grp.GroupManager
	backend    Backend
	seq        *multipaxos.Sequencer
	hb         *liveness.Heartbeater
	cu         *catchup
	adminToken string
	pending    map[string]*pendingProposal
}

func NewReplica(gm grp.GroupManager, ep *net.Endpoint, rt *net.Router, sched loop.Scheduler,
	store durable.Store, backend Backend, cfg *config.Config) *Replica {
	r := &Replica{
		uid:        gm.ID(),
		sched:      sched,
		ep:         ep,
		gm:         gm,
		backend:    backend,
		adminToken: cfg.GetString("adminToken", config.DefAdminToken),
		pending:    make(map[string]*pendingProposal),
	}
	r.seq = multipaxos.NewSequencer(PaxosChannel, ep, gm, sched, durable.NewPersister(store, sched), r,
		cfg.GetDuration("advocateRetryInterval", config.DefAdvocateRetryInterval))
	r.hb = liveness.NewHeartbeater(r.seq, sched, cfg)
	r.seq.SetObserver(r.hb)
	r.seq.Allow(net.KindHeartbeat, r.hb.Receive)
	r.cu = &catchup{
		r:     r,
		retry: cfg.GetDuration("catchupRetryDelay", config.DefCatchupRetryDelay),
	}
	ep.SetInstanceFunc(r.seq.Instance)

	for _, k := range []net.Kind{
		net.KindPrepare, net.KindPromise, net.KindPrepareNack,
		net.KindAccept, net.KindAccepted, net.KindAcceptNack,
		net.KindHeartbeat, net.KindProposalRequest, net.KindProposalAck,
	} {
		rt.Handle(PaxosChannel, k, r.seq.Receive)
	}
	rt.Handle(CatchupChannel, net.KindCatchupRequest, r.cu.receiveRequest)
	rt.Handle(CatchupChannel, net.KindCatchupData, r.cu.receiveData)
	rt.Handle(ClientChannel, net.KindProposeValue, r.receiveProposeValue)
	rt.Handle(ClientChannel, net.KindQueryValue, r.receiveQueryValue)
	return r
}

// Init recovers the sequencer and the replicated membership. It must run
// before the node delivers messages.
func (r *Replica) Init() error {
	if err := r.seq.Initialize(); err != nil {
		return err
	}
	rec, found, err := r.backend.Get(ConfigKey)
	if err != nil {
		return err
	}
	if found {
		r.reloadMembership(rec.Value)
	}
	return nil
}

func (r *Replica) Start() {
	r.hb.Start()
	if r.backend.LastInstance()+1 < r.seq.Instance() {
		r.BehindInSequence(r.seq.Instance())
	}
}

func (r *Replica) Stop() {
	r.hb.Stop()
	r.seq.Stop()
	r.cu.stopTimer()
	for id, pp := range r.pending {
		pp.answer(newReply(id, pp.instance, ErrStopped))
	}
	r.pending = make(map[string]*pendingProposal)
}

func (r *Replica) ID() grp.ID                         { return r.uid }
func (r *Replica) Instance() uint64                   { return r.seq.Instance() }
func (r *Replica) Leader() grp.ID                     { return r.seq.Leader() }
func (r *Replica) IsLeader() bool                     { return r.seq.IsLeader() }
func (r *Replica) State() State                       { return r.cu.state }
func (r *Replica) Backend() Backend                   { return r.backend }
func (r *Replica) Sequencer() *multipaxos.Sequencer   { return r.seq }
func (r *Replica) Heartbeater() *liveness.Heartbeater { return r.hb }

// Propose submits a write for the current instance. reply is called once
// the instance resolves, or at once if the write is refused.
func (r *Replica) Propose(pv ProposeValue, reply func(ProposeReply)) {
	if IsReserved(pv.Key) && (r.adminToken == "" || pv.Token != r.adminToken) {
		glog.V(2).Infof("%v: refusing write of reserved key %q", r.uid, pv.Key)
		reply(newReply(pv.RequestID, 0, ErrAccessDenied))
		return
	}
	r.propose(pv.RequestID, op{Key: pv.Key, Value: pv.Value}, reply)
}

// ProposeMembership replaces the group's membership through the same
// sequence as ordinary writes.
func (r *Replica) ProposeMembership(m grp.Membership, requestID string, reply func(ProposeReply)) {
	data, err := m.Encode()
	if err != nil {
		reply(newReply(requestID, 0, err))
		return
	}
	r.propose(requestID, op{Key: ConfigKey, Value: data}, reply)
}

func (r *Replica) propose(requestID string, o op, reply func(ProposeReply)) {
	data, err := o.encode()
	if err != nil {
		reply(newReply(requestID, 0, err))
		return
	}
	instance := r.seq.Instance()
	if err := r.seq.SetProposal(requestID, data, instance); err != nil {
		reply(newReply(requestID, instance, err))
		return
	}
	pp, found := r.pending[requestID]
	if !found {
		pp = &pendingProposal{instance: instance}
		r.pending[requestID] = pp
	}
	pp.replies = append(pp.replies, reply)
}

// Query reads the local state.
func (r *Replica) Query(key string) QueryResult {
	rec, found, err := r.backend.Get(key)
	if err != nil {
		glog.Errorf("%v: reading %q: %v", r.uid, key, err)
	}
	return QueryResult{Key: key, Value: rec.Value, Instance: rec.Instance, Found: found}
}

func (r *Replica) receiveProposeValue(env net.Envelope) {
	from := env.From
	r.Propose(env.Msg.(ProposeValue), func(pr ProposeReply) {
		r.ep.Unicast(from, ClientChannel, pr)
	})
}

func (r *Replica) receiveQueryValue(env net.Envelope) {
	r.ep.Unicast(env.From, ClientChannel, r.Query(env.Msg.(QueryValue).Key))
}

// OnResolution applies a decided write.
func (r *Replica) OnResolution(instance uint64, id paxos.ProposalID, p multipaxos.Proposal) {
	if o, err := decodeOp(p.Value); err != nil {
		glog.V(2).Infof("%v: undecodable write in instance %d: %v", r.uid, instance, err)
		if err := r.backend.SetLastInstance(instance); err != nil {
			glog.Errorf("%v: %v", r.uid, err)
		}
	} else {
		r.commit(Record{Key: o.Key, Value: o.Value, Instance: instance})
	}
	r.answerPending(instance, p.RequestID)
}

// BehindInSequence starts catching up.
func (r *Replica) BehindInSequence(observed uint64) {
	r.answerPending(r.seq.Instance()-1, "")
	r.cu.behind(observed)
}

// answerPending replies to every local proposal made for an instance up
// to and including upTo. Only winner succeeded.
func (r *Replica) answerPending(upTo uint64, winner string) {
	for id, pp := range r.pending {
		if pp.instance > upTo {
			continue
		}
		delete(r.pending, id)
		if id == winner {
			pp.answer(newReply(id, upTo, nil))
		} else {
			pp.answer(newReply(id, pp.instance, ErrSuperseded))
		}
	}
}

func (pp *pendingProposal) answer(pr ProposeReply) {
	for _, reply := range pp.replies {
		reply(pr)
	}
}

func (r *Replica) apply(rec Record) {
	applied, err := r.backend.Merge(rec)
	r.applied(rec, applied, err)
}

// commit applies a decided write and records its instance as applied.
func (r *Replica) commit(rec Record) {
	applied, err := r.backend.Apply(rec)
	r.applied(rec, applied, err)
}

func (r *Replica) applied(rec Record, applied bool, err error) {
	if err != nil {
		glog.Errorf("%v: %v", r.uid, err)
		return
	}
	if glog.V(3) {
		glog.Infof("%v: %q at instance %d applied=%v", r.uid, rec.Key, rec.Instance, applied)
	}
	if applied && rec.Key == ConfigKey {
		r.reloadMembership(rec.Value)
	}
}

func (r *Replica) reloadMembership(data []byte) {
	m, err := grp.DecodeMembership(data)
	if err != nil {
		glog.V(2).Infof("%v: ignoring membership record: %v", r.uid, err)
		return
	}
	nm, err := m.NodeMap()
	if err != nil {
		glog.V(2).Infof("%v: ignoring membership record: %v", r.uid, err)
		return
	}
	r.gm.SetNodeMap(nm)
	elog.Log(e.NewEventWithMetric(e.MembershipChanged, uint64(nm.Len())).On(string(r.uid)))
}
