package server

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/relab/txpaxos/client"
	"github.com/relab/txpaxos/config"
	"github.com/relab/txpaxos/durable"
	"github.com/relab/txpaxos/grp"
	"github.com/relab/txpaxos/kvs"
	"github.com/relab/txpaxos/loop"
	"github.com/relab/txpaxos/net"
	"github.com/relab/txpaxos/pcommit"
)

var ErrNotMember = errors.New("node is not listed in `nodes`")

// InitModules creates all of the modules and recovers the durable state.
// Nothing is delivered to the node before Start.
func (s *Server) InitModules() error {
	glog.V(1).Info("initializing submodules")
	if glog.V(2) {
		s.logInitInfo()
	}
	s.loop = loop.NewLoop(eventQueueSize, s.subModulesStopSync)
	s.grpmgr = grp.NewGrpMgr(s.id, s.nodes)
	if err := s.initStorage(); err != nil {
		return err
	}
	if err := s.initNetwork(); err != nil {
		s.closeStorage()
		return err
	}
	s.initReplica()
	s.initTxManager()
	if err := s.replica.Init(); err != nil {
		s.tr.Stop()
		s.closeStorage()
		return errors.Wrap(err, "recovering replica")
	}
	if err := s.initClientHandler(); err != nil {
		s.tr.Stop()
		s.closeStorage()
		return err
	}
	return nil
}

func (s *Server) logInitInfo() {
	glog.Infoln("\n----------------------------------------------",
		"\ninitalization values summary",
		"\nid is", s.id,
		"\nThere are", s.nodes.Len(), "nodes, quorum is", s.nodes.Quorum(),
		"\nstorage:", s.config.GetString("storageBackend", config.DefStorageBackend),
		"in", s.config.GetString("storageDir", config.DefStorageDir),
		"\nliveness values:",
		s.config.GetDuration("hbPulseInterval", config.DefHbPulseInterval),
		s.config.GetDuration("hbPollInterval", config.DefHbPollInterval),
		s.config.GetDuration("livenessWindow", config.DefLivenessWindow),
		"\ntransactions: timeout", s.config.GetDuration("txTimeout", config.DefTxTimeout),
		"threshold", s.config.GetInt("txThreshold", config.DefTxThreshold),
		"\nthroughput sampling interval:", s.config.GetDuration(
			"throughputSamplingInterval",
			config.DefThroughputSamplingInterval,
		),
		"\n----------------------------------------------")
}

// Parses the config value `nodes`
func (s *Server) initNodeMap() error {
	nodeMap, err := s.config.GetNodeMap("nodes")
	if err != nil {
		return err
	}
	if !nodeMap.Contains(s.id) {
		return errors.Wrapf(ErrNotMember, "node %v", s.id)
	}
	s.nodes = nodeMap
	return nil
}

func (s *Server) initStorage() error {
	backend := s.config.GetString("storageBackend", config.DefStorageBackend)
	switch strings.TrimSpace(strings.ToLower(backend)) {
	case "mem":
		s.store = durable.NewMemStore()
		s.backend = kvs.NewMemBackend()
		return nil
	case "bolt":
	default:
		return errors.Errorf("unknown storage backend %q given as config value for `storageBackend`", backend)
	}

	dir := filepath.Join(s.config.GetString("storageDir", config.DefStorageDir), string(s.id))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	store, err := durable.OpenBoltStore(filepath.Join(dir, "state.db"))
	if err != nil {
		return err
	}
	kv, err := kvs.OpenBoltBackend(filepath.Join(dir, "kv.db"))
	if err != nil {
		store.Close()
		return err
	}
	s.store, s.backend = store, kv
	return nil
}

func (s *Server) closeStorage() {
	if err := s.backend.Close(); err != nil {
		glog.Errorln("closing key/value backend:", err)
	}
	if err := s.store.Close(); err != nil {
		glog.Errorln("closing durable store:", err)
	}
}

func (s *Server) initNetwork() error {
	tr, err := net.NewTCPTransport(s.id, s.nodes, s.deliver,
		s.config.GetDuration("dialTimeout", config.DefDialTimeout),
		s.config.GetInt("sendQueueSize", config.DefSendQueueSize),
		s.subModulesStopSync)
	if err != nil {
		return errors.Wrap(err, "starting replica listener")
	}
	s.tr = tr
	s.grpmgr.Subscribe("transport", tr.SetNodeMap)
	s.ep = net.NewEndpoint(s.grpmgr, tr)
	return nil
}

// deliver is called from the transport's connection goroutines.
func (s *Server) deliver(env net.Envelope) {
	s.loop.Post(func() {
		if !s.rt.Dispatch(env) && bool(glog.V(3)) {
			glog.Infoln("no handler for", env)
		}
	})
}

func (s *Server) initReplica() {
	s.replica = kvs.NewReplica(s.grpmgr, s.ep, s.rt, s.loop, s.store, s.backend, s.config)
}

func (s *Server) initTxManager() {
	s.txmgr = pcommit.NewManager(s.ep, s.grpmgr, s.loop, durable.NewPersister(s.store, s.loop), s.config)
	s.txmgr.Register(s.rt)
}

func (s *Server) initClientHandler() error {
	me, _ := s.nodes.LookupNode(s.id)
	if me.ClientAddr == "" {
		glog.V(1).Info("no client port configured; not serving clients")
		return nil
	}
	ch, err := client.NewClientHandlerTCP(me.ClientAddr, s.loop, &executor{s: s}, s.subModulesStopSync)
	if err != nil {
		return errors.Wrap(err, "starting client listener")
	}
	s.clientHandler = ch
	return nil
}
