package kvs

import (
	"time"

	"github.com/golang/glog"

	"github.com/relab/txpaxos/elog"
	e "github.com/relab/txpaxos/elog/event"
	"github.com/relab/txpaxos/loop"
	"github.com/relab/txpaxos/net"
)

type State uint8

const (
	Synced State = iota
	CatchingUp
)

func (s State) String() string {
	switch s {
	case Synced:
		return "Synced"
	case CatchingUp:
		return "CatchingUp"
	}
	return "Unknown"
}

// catchup fetches the records a replica has missed. While it runs the
// replica does not vote.
type catchup struct {
	r      *Replica
	state  State
	target uint64
	retry  time.Duration
	timer  loop.Timer
	gen    uint64
	rounds int
}

// behind is called with an instance some peer has reached. The replica
// needs every decision before it.
func (cu *catchup) behind(observed uint64) {
	if observed > cu.target {
		cu.target = observed
	}
	if cu.state == CatchingUp {
		return
	}
	last := cu.r.backend.LastInstance()
	if last+1 >= cu.target {
		return
	}
	glog.V(1).Infof("%v: catching up from %d to %d", cu.r.uid, last, cu.target)
	elog.Log(e.NewEventWithMetric(e.CatchUpStart, last).On(string(cu.r.uid)))
	cu.state = CatchingUp
	cu.rounds = 0
	cu.r.seq.SetActive(false)
	cu.r.hb.SetEnabled(false)
	cu.request()
}

// request asks the leader on the first round and everybody after that.
func (cu *catchup) request() {
	req := CatchupRequest{LastKnownInstance: cu.r.backend.LastInstance()}
	leader := cu.r.seq.Leader()
	if cu.rounds == 0 && leader.Defined() && leader != cu.r.uid {
		cu.r.ep.Unicast(leader, CatchupChannel, req)
	} else {
		cu.r.ep.Broadcast(CatchupChannel, req)
	}
	cu.rounds++
	elog.Log(e.NewEventWithMetric(e.CatchUpSentReq, req.LastKnownInstance).On(string(cu.r.uid)))

	cu.stopTimer()
	gen := cu.gen
	cu.timer = cu.r.sched.AfterFunc(cu.retry, func() {
		if gen != cu.gen || cu.state != CatchingUp {
			return
		}
		cu.timer = nil
		glog.V(2).Infof("%v: no catch-up data, asking again", cu.r.uid)
		cu.request()
	})
}

func (cu *catchup) receiveRequest(env net.Envelope) {
	req := env.Msg.(CatchupRequest)
	if env.From == cu.r.uid || cu.state != Synced {
		return
	}
	last := cu.r.backend.LastInstance()
	if last <= req.LastKnownInstance {
		return
	}
	recs, err := cu.r.backend.Since(req.LastKnownInstance)
	if err != nil {
		glog.Errorf("%v: collecting catch-up data: %v", cu.r.uid, err)
		return
	}
	elog.Log(e.NewEventWithMetric(e.CatchUpSentResp, uint64(len(recs))).On(string(cu.r.uid)))
	cu.r.ep.Unicast(env.From, CatchupChannel, CatchupData{
		FromInstance: req.LastKnownInstance,
		LastInstance: last,
		Records:      recs,
	})
}

func (cu *catchup) receiveData(env net.Envelope) {
	d := env.Msg.(CatchupData)
	last := cu.r.backend.LastInstance()
	if cu.state != CatchingUp || d.FromInstance != last || d.LastInstance <= last {
		if glog.V(3) {
			glog.Infof("%v: discarding catch-up data from %d, at %d", cu.r.uid, d.FromInstance, last)
		}
		return
	}
	elog.Log(e.NewEventWithMetric(e.CatchUpRecvResp, uint64(len(d.Records))).On(string(cu.r.uid)))
	for _, rec := range d.Records {
		cu.r.apply(rec)
	}
	if err := cu.r.backend.SetLastInstance(d.LastInstance); err != nil {
		glog.Errorf("%v: %v", cu.r.uid, err)
		return
	}
	if next := d.LastInstance + 1; next > cu.r.seq.Instance() {
		cu.r.seq.NextInstance(next)
	}
	if d.LastInstance+1 < cu.target {
		cu.request()
		return
	}
	cu.done()
}

func (cu *catchup) done() {
	glog.V(1).Infof("%v: caught up through %d", cu.r.uid, cu.r.backend.LastInstance())
	elog.Log(e.NewEventWithMetric(e.CatchUpDone, cu.r.backend.LastInstance()).On(string(cu.r.uid)))
	cu.state = Synced
	cu.stopTimer()
	cu.r.seq.SetActive(true)
	cu.r.hb.SetEnabled(true)
}

func (cu *catchup) stopTimer() {
	cu.gen++
	if cu.timer != nil {
		cu.timer.Stop()
		cu.timer = nil
	}
}
