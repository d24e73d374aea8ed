// Package txpaxos runs one replica of a Multi-Paxos replicated key/value
// store with Paxos Commit transactions.
package txpaxos

import (
	"github.com/golang/glog"

	"github.com/relab/txpaxos/config"
	"github.com/relab/txpaxos/elog"
	e "github.com/relab/txpaxos/elog/event"
	"github.com/relab/txpaxos/grp"
	"github.com/relab/txpaxos/server"
)

// Replica holds the state of a replicated service.
type Replica struct {
	started     bool
	id          grp.ID
	config      *config.Config
	initialized bool
	server      *server.Server
}

// Create a new replica. The id must be one of the nodes listed in the
// `nodes` config value.
func NewReplica(id grp.ID, config *config.Config) *Replica {
	return &Replica{
		id:     id,
		config: config,
	}
}

// Initialize the state: open the storage and recover from it.
func (r *Replica) Init() error {
	glog.V(1).Info("initializing txpaxos node")
	s, err := server.NewServer(r.id, r.config)
	if err != nil {
		return err
	}
	if err := s.InitModules(); err != nil {
		return err
	}
	r.server = s
	r.initialized = true
	return nil
}

// Launch the server and all modules.
func (r *Replica) Start() error {
	if !r.initialized {
		return ErrNodeNotInitialized
	}
	if r.started {
		return ErrCanNotStartAlreadyRunningNode
	}

	elog.Log(e.NewEvent(e.Start).On(string(r.id)))
	glog.V(1).Info("starting node")

	r.server.Start()
	r.started = true
	return nil
}

// Halt the server and all modules.
func (r *Replica) Stop() error {
	if !r.started {
		return ErrCanNotStopNonRunningNode
	}
	r.started = false
	glog.V(1).Info("stopping node")
	err := r.server.Stop()
	elog.Log(e.NewEvent(e.Exit).On(string(r.id)))
	elog.Flush()
	return err
}

// Server gives access to the running modules, e.g. to read the store's
// state on the event loop with Server().Do.
func (r *Replica) Server() *server.Server {
	return r.server
}
