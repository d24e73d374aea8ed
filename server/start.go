package server

import (
	"github.com/golang/glog"
)

// Start all of the submodules. The event loop runs before the network so
// that nothing delivered is lost.
func (s *Server) Start() {
	glog.V(1).Info("starting submodules")
	s.loopStart()
	s.networkStart()
	s.Do(func() {
		s.replica.Start()
		s.txmgr.Start(s.replica.IsLeader)
	})
	s.clientHandlerStart()
	s.startLogThroughput()
}

func (s *Server) loopStart() {
	s.subModulesStopSync.Add(1)
	s.loop.Start()
}

func (s *Server) networkStart() {
	s.subModulesStopSync.Add(1)
	s.tr.Start()
}

func (s *Server) clientHandlerStart() {
	if s.clientHandler == nil {
		return
	}
	s.subModulesStopSync.Add(1)
	s.clientHandler.Start()
}
