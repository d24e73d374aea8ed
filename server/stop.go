package server

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/relab/txpaxos/elog"
	e "github.com/relab/txpaxos/elog/event"
)

const shutdownTimeout = 500 * time.Millisecond

var ErrShutdownTimeout = fmt.Errorf("stopping txpaxos submodules timed out (waited %v)", shutdownTimeout)

// Stop all of the submodules and close the storage.
func (s *Server) Stop() error {
	elog.Log(e.NewEvent(e.ShutdownStart).On(string(s.id)))
	glog.V(1).Info("starting shutdown procedure")

	s.stopLogThroughput()
	if s.clientHandler != nil {
		s.clientHandler.Stop()
	}
	s.tr.Stop()
	s.Do(func() {
		glog.V(2).Infoln("last applied instance is", s.backend.LastInstance())
		s.txmgr.Stop()
		s.replica.Stop()
	})
	s.loop.Stop()

	stopped := make(chan bool)
	go func() {
		glog.V(1).Info("waiting for submodules to report stopped")
		s.subModulesStopSync.Wait()
		stopped <- true
	}()

	var err error
	select {
	case <-stopped:
		glog.V(1).Info("clean exit")
	case <-time.After(shutdownTimeout):
		glog.Error(ErrShutdownTimeout)
		err = ErrShutdownTimeout
	}
	s.closeStorage()
	return err
}
