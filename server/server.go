package server

import (
	"sync"

	"github.com/relab/txpaxos/client"
	"github.com/relab/txpaxos/config"
	"github.com/relab/txpaxos/durable"
	"github.com/relab/txpaxos/grp"
	"github.com/relab/txpaxos/kvs"
	"github.com/relab/txpaxos/loop"
	"github.com/relab/txpaxos/net"
	"github.com/relab/txpaxos/pcommit"
)

const eventQueueSize = 1024

// A Server is one node of the replicated store. It owns the node's event
// loop and wires the network, the replica, the transaction manager and the
// client handler to it.
type Server struct {
	id     grp.ID
	config *config.Config
	nodes  *grp.NodeMap

	loop               *loop.Loop
	rt                 *net.Router
	grpmgr             *grp.GrpMgr
	tr                 *net.TCPTransport
	ep                 *net.Endpoint
	store              durable.Store
	backend            kvs.Backend
	replica            *kvs.Replica
	txmgr              *pcommit.Manager
	clientHandler      *client.ClientHandlerTCP
	stopThroughput     chan bool
	throughputDone     chan struct{}
	subModulesStopSync *sync.WaitGroup
}

// NewServer creates the server for node id. The node must be listed in the
// `nodes` config value.
func NewServer(id grp.ID, conf *config.Config) (*Server, error) {
	s := &Server{
		id:                 id,
		config:             conf,
		rt:                 net.NewRouter(),
		subModulesStopSync: new(sync.WaitGroup),
	}
	if err := s.initNodeMap(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) ID() grp.ID                              { return s.id }
func (s *Server) Replica() *kvs.Replica                   { return s.replica }
func (s *Server) TxManager() *pcommit.Manager             { return s.txmgr }
func (s *Server) ClientHandler() *client.ClientHandlerTCP { return s.clientHandler }

// PaxosAddr is the address the node listens on for other replicas.
func (s *Server) PaxosAddr() string {
	return s.tr.Addr()
}

// ClientAddr is the address the node listens on for clients, or empty if
// it has no client port.
func (s *Server) ClientAddr() string {
	if s.clientHandler == nil {
		return ""
	}
	return s.clientHandler.Addr()
}

// Do runs f on the node's event loop and waits for it to return.
func (s *Server) Do(f func()) {
	done := make(chan struct{})
	s.loop.Post(func() {
		defer close(done)
		f()
	})
	<-done
}
