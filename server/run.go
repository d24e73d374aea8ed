package server

import (
	"time"

	"github.com/relab/txpaxos/config"
	"github.com/relab/txpaxos/elog"
	e "github.com/relab/txpaxos/elog/event"
)

// startLogThroughput logs the number of instances resolved per sampling
// interval.
func (s *Server) startLogThroughput() {
	interval := s.config.GetDuration("throughputSamplingInterval", config.DefThroughputSamplingInterval)
	if interval == 0 {
		return
	}
	s.stopThroughput = make(chan bool)
	s.throughputDone = make(chan struct{})
	go func(stop <-chan bool, done chan<- struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		prev := s.instance()
		for {
			select {
			case <-ticker.C:
				current := s.instance()
				elog.Log(e.NewEventWithMetric(e.ThroughputSample, current-prev).On(string(s.id)))
				prev = current
			case <-stop:
				return
			}
		}
	}(s.stopThroughput, s.throughputDone)
}

func (s *Server) stopLogThroughput() {
	if s.stopThroughput == nil {
		return
	}
	close(s.stopThroughput)
	<-s.throughputDone
	s.stopThroughput = nil
}

func (s *Server) instance() uint64 {
	var instance uint64
	s.Do(func() { instance = s.replica.Instance() })
	return instance
}
