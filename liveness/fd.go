package liveness

import (
	"github.com/golang/glog"
)

func (hb *Heartbeater) armPoll() {
	gen := hb.gen
	hb.pollTimer = hb.sched.AfterFunc(hb.pollInterval, func() {
		if gen == hb.gen {
			hb.poll()
		}
	})
}

// poll suspects the leader once no heartbeat has been seen for a whole
// window. While an attempt to lead is outstanding, the next prepare waits
// for another window.
func (hb *Heartbeater) poll() {
	hb.pollTimer = nil
	if !hb.enabled {
		return
	}
	hb.armPoll()
	if hb.node.IsLeader() {
		return
	}
	now := hb.sched.Now()
	if now.Sub(hb.lastSeen) < hb.window {
		return
	}
	if hb.acquiring && now.Sub(hb.preparedAt) < hb.window {
		return
	}
	if glog.V(2) {
		glog.Infof("%v: no heartbeat from %v since %v, preparing",
			hb.node.ID(), hb.node.Leader(), hb.lastSeen.Format("15:04:05.000"))
	}
	hb.acquiring = true
	hb.preparedAt = now
	hb.node.Prepare()
}
