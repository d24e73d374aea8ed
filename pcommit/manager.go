package pcommit

import (
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/relab/txpaxos/config"
	"github.com/relab/txpaxos/durable"
	"github.com/relab/txpaxos/elog"
	e "github.com/relab/txpaxos/elog/event"
	"github.com/relab/txpaxos/grp"
	"github.com/relab/txpaxos/loop"
	"github.com/relab/txpaxos/net"
)

var (
	ErrNotOwner       = errors.New("only the owner may propose commit for a participant")
	ErrBeforeDeadline = errors.New("transaction deadline has not passed")
	ErrNotParticipant = errors.New("not a participant of the transaction")
	ErrInvalidResult  = errors.New("result must be committed or aborted")
	ErrDescMismatch   = errors.New("transaction is known with other participants or threshold")
	ErrInvalidDesc    = errors.New("descriptor needs nodes, a majority quorum and a threshold within them")
)

// Sender is the part of a net.Endpoint the manager sends through.
type Sender interface {
	ID() grp.ID
	Unicast(to grp.ID, channel string, msg net.Message)
}

// A Transaction tracks the votes of one Paxos Commit run.
type Transaction struct {
	m            *Manager
	uuid         string
	desc         Descriptor
	deadline     time.Time
	quorum       int
	threshold    int
	participants map[grp.ID]*participant
	order        []grp.ID
	numCommitted int
	numAborted   int
	result       Result
	done         bool
}

func (tx *Transaction) UUID() string           { return tx.uuid }
func (tx *Transaction) Descriptor() Descriptor { return tx.desc }
func (tx *Transaction) Deadline() time.Time    { return tx.deadline }
func (tx *Transaction) Result() Result         { return tx.result }

// nodeResolved counts a decided vote and settles the transaction once the
// threshold rule gives an answer.
func (tx *Transaction) nodeResolved(p *participant) {
	if tx.done {
		return
	}
	if p.result == Committed {
		tx.numCommitted++
	} else {
		tx.numAborted++
	}
	r := Decide(tx.numCommitted, tx.numAborted, len(tx.participants), tx.threshold)
	if r != Unset {
		tx.m.settle(tx, r)
	}
}

// Manager runs Paxos Commit for every transaction a node takes part in.
// All methods must be called on the node's event loop.
type Manager struct {
	uid       grp.ID
	ep        Sender
	gm        grp.GroupManager
	sched     loop.Scheduler
	persister *durable.Persister
	timeout   time.Duration
	interval  time.Duration
	threshold int
	txs       map[string]*Transaction
	results   *ResultsCache
	watchers  map[string][]func(Result)
	onResult  func(txUUID string, r Result)
	timer     loop.Timer
	gen       uint64
}

func NewManager(ep Sender, gm grp.GroupManager, sched loop.Scheduler, persister *durable.Persister, cfg *config.Config) *Manager {
	m := &Manager{
		uid:       ep.ID(),
		ep:        ep,
		gm:        gm,
		sched:     sched,
		persister: persister,
		timeout:   cfg.GetDuration("txTimeout", config.DefTxTimeout),
		interval:  cfg.GetDuration("txHeartbeatInterval", config.DefTxHeartbeatInterval),
		threshold: cfg.GetInt("txThreshold", config.DefTxThreshold),
		txs:       make(map[string]*Transaction),
		results:   NewResultsCache(cfg.GetInt("txResultsCacheSize", config.DefTxResultsCacheSize)),
		watchers:  make(map[string][]func(Result)),
	}
	m.results.OnEvict = m.forget
	return m
}

// Register installs the manager's handlers on rt.
func (m *Manager) Register(rt *net.Router) {
	rt.Handle(Channel, net.KindTxMessage, m.Receive)
	rt.Handle(Channel, net.KindTxResult, m.Receive)
}

// SetResultHandler sets a function called once for every transaction this
// node sees settled.
func (m *Manager) SetResultHandler(f func(txUUID string, r Result)) {
	m.onResult = f
}

func (m *Manager) Results() *ResultsCache { return m.results }

// Transaction returns an unsettled transaction.
func (m *Manager) Transaction(txUUID string) (*Transaction, bool) {
	tx, found := m.txs[txUUID]
	return tx, found
}

// Lookup returns the result known for txUUID, which is Unset while the
// transaction is undecided or unknown.
func (m *Manager) Lookup(txUUID string) Result {
	if r, found := m.results.Get(txUUID); found {
		return r
	}
	if tx, found := m.txs[txUUID]; found {
		return tx.result
	}
	return Unset
}

// Watch calls f with the transaction's result once it is known.
func (m *Manager) Watch(txUUID string, f func(Result)) {
	if r, found := m.results.Get(txUUID); found {
		f(r)
		return
	}
	m.watchers[txUUID] = append(m.watchers[txUUID], f)
}

// LocalDescriptor describes a transaction over this node's current
// membership with the configured threshold.
func (m *Manager) LocalDescriptor() Descriptor {
	return NewDescriptor(m.gm.NodeMap().IDs(), m.threshold)
}

// ProposeResult sets this node's own vote for a transaction. A transaction
// already known from a peer's message keeps that message's descriptor;
// otherwise the local descriptor is used.
func (m *Manager) ProposeResult(txUUID string, r Result) (Result, error) {
	return m.propose(nil, txUUID, m.uid, r)
}

// ProposeFor proposes a vote for one participant. Only the participant
// itself may vote commit; anybody may propose abort once the deadline has
// passed.
func (m *Manager) ProposeFor(txUUID string, participant grp.ID, r Result) (Result, error) {
	return m.propose(nil, txUUID, participant, r)
}

// ProposeIn is ProposeFor for a transaction with the given descriptor. It
// fails with ErrDescMismatch if the transaction is known with another one.
func (m *Manager) ProposeIn(desc Descriptor, txUUID string, participant grp.ID, r Result) (Result, error) {
	return m.propose(&desc, txUUID, participant, r)
}

func (m *Manager) propose(desc *Descriptor, txUUID string, participant grp.ID, r Result) (Result, error) {
	if r != Committed && r != Aborted {
		return Unset, ErrInvalidResult
	}
	if cached, d, found := m.results.Entry(txUUID); found {
		if desc != nil && !desc.Equal(d) {
			return Unset, ErrDescMismatch
		}
		return cached, nil
	}
	tx, found := m.txs[txUUID]
	switch {
	case found && desc != nil && !desc.Equal(tx.desc):
		return Unset, ErrDescMismatch
	case !found && desc == nil:
		local := m.LocalDescriptor()
		desc = &local
	}
	if !found {
		if !desc.valid() {
			return Unset, ErrInvalidDesc
		}
		if !desc.Contains(m.uid) || !desc.Contains(participant) {
			return Unset, ErrNotParticipant
		}
		tx = m.transaction(txUUID, *desc)
	}
	p, found := tx.participants[participant]
	if !found {
		return Unset, ErrNotParticipant
	}
	switch {
	case participant == m.uid:
		p.vote(r.value())
	case r == Committed:
		return Unset, ErrNotOwner
	case m.sched.Now().Before(tx.deadline):
		return Unset, ErrBeforeDeadline
	default:
		p.forceAbort()
	}
	return m.Lookup(txUUID), nil
}

// transaction returns the transaction for txUUID, creating it from desc
// if it is unseen.
func (m *Manager) transaction(txUUID string, desc Descriptor) *Transaction {
	if tx, found := m.txs[txUUID]; found {
		return tx
	}
	tx := &Transaction{
		m:            m,
		uuid:         txUUID,
		desc:         desc,
		deadline:     m.sched.Now().Add(m.timeout),
		quorum:       desc.Quorum,
		threshold:    desc.Threshold,
		participants: make(map[grp.ID]*participant),
		order:        desc.Nodes,
	}
	m.txs[txUUID] = tx
	for _, id := range tx.order {
		p := newParticipant(tx, id)
		tx.participants[id] = p
	}
	glog.V(2).Infof("%v: transaction %s with %d participants, quorum %d, threshold %d",
		m.uid, txUUID, len(tx.order), tx.quorum, tx.threshold)
	elog.Log(e.NewEvent(e.TxCreated).On(string(m.uid)))
	for _, id := range tx.order {
		tx.participants[id].recover()
	}
	return tx
}

// forget drops the durable state of a transaction evicted from the
// results cache.
func (m *Manager) forget(txUUID string, desc Descriptor) {
	for _, id := range desc.Nodes {
		m.persister.Remove(dataID(txUUID, id))
	}
}

func (m *Manager) settle(tx *Transaction, r Result) {
	tx.result = r
	tx.done = true
	delete(m.txs, tx.uuid)
	m.results.Put(tx.uuid, tx.desc, r)
	glog.V(1).Infof("%v: transaction %s %v", m.uid, tx.uuid, r)
	if r == Committed {
		elog.Log(e.NewEvent(e.TxCommitted).On(string(m.uid)))
	} else {
		elog.Log(e.NewEvent(e.TxAborted).On(string(m.uid)))
	}
	if m.onResult != nil {
		m.onResult(tx.uuid, r)
	}
	m.notify(tx.uuid, r)
}

func (m *Manager) notify(txUUID string, r Result) {
	watchers := m.watchers[txUUID]
	delete(m.watchers, txUUID)
	for _, f := range watchers {
		f(r)
	}
}

func (m *Manager) Receive(env net.Envelope) {
	switch msg := env.Msg.(type) {
	case TxMessage:
		m.receiveTxMessage(env.From, msg)
	case TxResult:
		m.receiveTxResult(env.From, msg)
	}
}

func (m *Manager) receiveTxMessage(from grp.ID, msg TxMessage) {
	if msg.Msg == nil || !msg.Desc.valid() || !msg.Desc.Contains(m.uid) {
		glog.V(2).Infof("%v: dropping malformed message for %s from %v", m.uid, msg.TxUUID, from)
		return
	}
	if r, desc, found := m.results.Entry(msg.TxUUID); found {
		if from != m.uid && desc.Equal(msg.Desc) {
			m.ep.Unicast(from, Channel, TxResult{TxUUID: msg.TxUUID, Desc: desc, Result: r})
		}
		return
	}
	if !msg.Desc.Contains(msg.Participant) {
		glog.V(2).Infof("%v: dropping message for unknown participant %v of %s", m.uid, msg.Participant, msg.TxUUID)
		return
	}
	if tx, found := m.txs[msg.TxUUID]; found && !tx.desc.Equal(msg.Desc) {
		glog.V(2).Infof("%v: dropping message for %s from %v: descriptor differs", m.uid, msg.TxUUID, from)
		return
	}
	tx := m.transaction(msg.TxUUID, msg.Desc)
	p := tx.participants[msg.Participant]
	if glog.V(4) {
		glog.Infof("%v: %s/%v %v from %v", m.uid, msg.TxUUID, msg.Participant, msg.Msg.Kind(), from)
	}
	p.receive(from, msg.Msg)
}

// receiveTxResult accepts an outcome only for the transaction this node
// knows, or would build, from the same descriptor.
func (m *Manager) receiveTxResult(from grp.ID, msg TxResult) {
	if msg.Result != Committed && msg.Result != Aborted {
		return
	}
	if !msg.Desc.valid() || !msg.Desc.Contains(m.uid) {
		return
	}
	if _, _, found := m.results.Entry(msg.TxUUID); found {
		return
	}
	if tx, found := m.txs[msg.TxUUID]; found {
		if !tx.desc.Equal(msg.Desc) {
			glog.V(2).Infof("%v: ignoring result for %s from %v: descriptor differs", m.uid, msg.TxUUID, from)
			return
		}
		m.settle(tx, msg.Result)
		return
	}
	m.results.Put(msg.TxUUID, msg.Desc, msg.Result)
	if m.onResult != nil {
		m.onResult(msg.TxUUID, msg.Result)
	}
	m.notify(msg.TxUUID, msg.Result)
}

// Heartbeat drives transactions whose deadline has passed. The
// transaction leader forces abort on every undecided participant; other
// nodes only repeat what they have already sent.
func (m *Manager) Heartbeat(now time.Time, isTxLeader bool) {
	for _, uuid := range m.pendingUUIDs() {
		tx, found := m.txs[uuid]
		if !found || now.Before(tx.deadline) {
			continue
		}
		for _, id := range tx.order {
			if tx.done {
				break
			}
			p := tx.participants[id]
			switch {
			case p.resolved:
				p.engine.ResendAccepted()
			case isTxLeader:
				p.forceAbort()
			default:
				p.retransmit()
			}
		}
	}
}

func (m *Manager) pendingUUIDs() []string {
	uuids := make([]string, 0, len(m.txs))
	for uuid := range m.txs {
		uuids = append(uuids, uuid)
	}
	return uuids
}

// Start runs Heartbeat every txHeartbeatInterval. isTxLeader is asked on
// each tick.
func (m *Manager) Start(isTxLeader func() bool) {
	m.Stop()
	gen := m.gen
	var tick func()
	tick = func() {
		if gen != m.gen {
			return
		}
		m.Heartbeat(m.sched.Now(), isTxLeader())
		m.timer = m.sched.AfterFunc(m.interval, tick)
	}
	m.timer = m.sched.AfterFunc(m.interval, tick)
}

func (m *Manager) Stop() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
