package multipaxos

import (
	"time"

	"github.com/golang/glog"

	"github.com/relab/txpaxos/loop"
)

// advocateTarget is the part of the Sequencer the Advocate drives.
type advocateTarget interface {
	// sendProposal pushes p towards the leader: a leader re-sends its
	// accept, anybody else forwards p to the leader it knows about.
	sendProposal(instance uint64, p Proposal)
}

// An Advocate keeps re-sending the local proposal for one instance until
// the leader acknowledges it. Proposals never survive an instance change.
type Advocate struct {
	target   advocateTarget
	sched    loop.Scheduler
	interval time.Duration

	instance uint64
	proposal *Proposal
	timer    loop.Timer
	gen      uint64
}

func NewAdvocate(target advocateTarget, sched loop.Scheduler, interval time.Duration) *Advocate {
	return &Advocate{
		target:   target,
		sched:    sched,
		interval: interval,
	}
}

// SetProposal arms the advocate. Only the first proposal for an instance
// is kept; later calls are ignored until Cancel.
func (a *Advocate) SetProposal(instance uint64, requestID string, value []byte) {
	if a.proposal != nil {
		return
	}
	a.instance = instance
	a.proposal = &Proposal{RequestID: requestID, Value: value}
	a.send()
}

// Pending returns the proposal being advocated, if any.
func (a *Advocate) Pending() *Proposal {
	return a.proposal
}

// Armed reports whether the retry timer is running.
func (a *Advocate) Armed() bool {
	return a.timer != nil
}

// ProposalAcknowledged stops the retries once the leader has the
// proposal. Resolution is not awaited.
func (a *Advocate) ProposalAcknowledged(requestID string) {
	if a.proposal == nil || a.proposal.RequestID != requestID {
		return
	}
	glog.V(3).Infof("proposal %s acknowledged", requestID)
	a.stopTimer()
}

// LeadershipChanged re-sends the proposal. A new leader knows nothing
// about proposals forwarded to its predecessor.
func (a *Advocate) LeadershipChanged() {
	if a.proposal == nil {
		return
	}
	a.stopTimer()
	a.send()
}

func (a *Advocate) Cancel() {
	a.stopTimer()
	a.proposal = nil
	a.instance = 0
}

func (a *Advocate) send() {
	a.target.sendProposal(a.instance, *a.proposal)
	a.gen++
	gen := a.gen
	a.timer = a.sched.AfterFunc(a.interval, func() {
		if gen != a.gen || a.proposal == nil {
			return
		}
		a.timer = nil
		a.send()
	})
}

func (a *Advocate) stopTimer() {
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
