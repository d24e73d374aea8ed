package liveness

import (
	"time"

	"github.com/golang/glog"

	"github.com/relab/txpaxos/config"
	"github.com/relab/txpaxos/elog"
	e "github.com/relab/txpaxos/elog/event"
	"github.com/relab/txpaxos/grp"
	"github.com/relab/txpaxos/loop"
	"github.com/relab/txpaxos/net"
	"github.com/relab/txpaxos/paxos"
)

// A Heartbeater elects and tracks the leader of a Multi-Paxos node. While
// the node leads it pulses heartbeats; otherwise it polls for heartbeats
// from the leader and asks the node to prepare when none arrive within the
// liveness window.
//
// Two nodes may both believe they lead for up to a window. Safety never
// depends on this type.
type Heartbeater struct {
	node          Node
	sched         loop.Scheduler
	pulseInterval time.Duration
	pollInterval  time.Duration
	window        time.Duration

	enabled    bool
	leaderPID  paxos.ProposalID
	lastSeen   time.Time
	acquiring  bool
	preparedAt time.Time

	pulseTimer loop.Timer
	pollTimer  loop.Timer
	gen        uint64
}

func NewHeartbeater(node Node, sched loop.Scheduler, cfg *config.Config) *Heartbeater {
	return &Heartbeater{
		node:          node,
		sched:         sched,
		pulseInterval: cfg.GetDuration("hbPulseInterval", config.DefHbPulseInterval),
		pollInterval:  cfg.GetDuration("hbPollInterval", config.DefHbPollInterval),
		window:        cfg.GetDuration("livenessWindow", config.DefLivenessWindow),
	}
}

// Start enables pulse and poll.
func (hb *Heartbeater) Start() {
	glog.V(1).Info("starting heartbeater")
	hb.SetEnabled(true)
}

func (hb *Heartbeater) Stop() {
	hb.SetEnabled(false)
}

func (hb *Heartbeater) Enabled() bool {
	return hb.enabled
}

// SetEnabled turns pulse and poll on or off. Heartbeats are still
// received while disabled.
func (hb *Heartbeater) SetEnabled(enabled bool) {
	if hb.enabled == enabled {
		return
	}
	hb.enabled = enabled
	hb.stopTimers()
	if !enabled {
		return
	}
	hb.lastSeen = hb.sched.Now()
	hb.acquiring = false
	hb.armPoll()
	if hb.node.IsLeader() {
		hb.pulse()
	}
}

func (hb *Heartbeater) pulse() {
	hb.pulseTimer = nil
	if !hb.enabled || !hb.node.IsLeader() {
		return
	}
	hb.node.Broadcast(Heartbeat{ProposalID: hb.node.ProposalID()})
	gen := hb.gen
	hb.pulseTimer = hb.sched.AfterFunc(hb.pulseInterval, func() {
		if gen == hb.gen {
			hb.pulse()
		}
	})
}

// Receive handles a Heartbeat envelope.
func (hb *Heartbeater) Receive(env net.Envelope) {
	m, ok := env.Msg.(Heartbeat)
	if !ok {
		return
	}
	hb.ReceiveHeartbeat(env, m.ProposalID)
}

// ReceiveHeartbeat moves the node forward if the sender is at a later
// instance, and follows the sender if its proposal id outranks the
// current leader's.
func (hb *Heartbeater) ReceiveHeartbeat(env net.Envelope, pid paxos.ProposalID) {
	if env.Instance > hb.node.Instance() {
		hb.node.NextInstance(env.Instance)
		hb.node.BehindInSequence(env.Instance)
	}
	switch c := pid.Compare(hb.leaderPID); {
	case c > 0:
		hb.leaderPID = pid
		hb.lastSeen = hb.sched.Now()
		hb.acquiring = false
		hb.node.ObserveProposal(pid)
		if env.From != hb.node.ID() && hb.node.IsLeader() {
			glog.V(2).Infof("%v: stepping down for %v", hb.node.ID(), pid)
			hb.node.StepDown()
		}
		hb.leadershipChange(env.From)
	case c == 0:
		hb.lastSeen = hb.sched.Now()
	}
}

// LeadershipAcquired is called by the node when its engine wins phase 1.
func (hb *Heartbeater) LeadershipAcquired() {
	hb.leaderPID = hb.node.ProposalID()
	hb.lastSeen = hb.sched.Now()
	hb.acquiring = false
	elog.Log(e.NewEvent(e.LeadershipAcquired).On(string(hb.node.ID())))
	hb.leadershipChange(hb.node.ID())
	if hb.pulseTimer != nil {
		hb.pulseTimer.Stop()
	}
	hb.pulse()
}

// LeadershipLost is called by the node when its engine gives up leading.
func (hb *Heartbeater) LeadershipLost() {
	elog.Log(e.NewEvent(e.LeadershipLost).On(string(hb.node.ID())))
	if hb.pulseTimer != nil {
		hb.pulseTimer.Stop()
		hb.pulseTimer = nil
	}
	if hb.node.Leader() == hb.node.ID() {
		hb.leadershipChange(grp.UndefinedID)
	}
}

func (hb *Heartbeater) leadershipChange(to grp.ID) {
	from := hb.node.Leader()
	if from == to {
		return
	}
	glog.V(2).Infof("%v: leadership changed from %v to %v", hb.node.ID(), from, to)
	hb.node.ChangeLeader(to)
}

func (hb *Heartbeater) stopTimers() {
	hb.gen++
	if hb.pulseTimer != nil {
		hb.pulseTimer.Stop()
		hb.pulseTimer = nil
	}
	if hb.pollTimer != nil {
		hb.pollTimer.Stop()
		hb.pollTimer = nil
	}
}
