package net

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/relab/txpaxos/grp"
)

var (
	ErrIDIsEqual    = errors.New("id is equal to this node")
	ErrIDNotMember  = errors.New("id is not a member of the current configuration")
	errNodeNotFound = errors.New("can't connect, node not found in nodemap")
)

const reconnectWait = 250 * time.Millisecond

// TCPTransport sends gob-encoded envelopes over one outgoing TCP
// connection per peer and accepts incoming connections from peers. Outgoing
// connections are dialed lazily and re-dialed after failures; messages are
// dropped rather than queued when a peer is unreachable or slow.
type TCPTransport struct {
	id          grp.ID
	listener    net.Listener
	deliver     func(Envelope)
	dialTimeout time.Duration
	queueSize   int

	// Envelopes to ourselves, handed to deliver in send order.
	local chan Envelope
	done  chan struct{}

	mu      sync.Mutex
	nodeMap *grp.NodeMap
	peers   map[grp.ID]*peer
	inbound map[*Connection]bool
	closed  bool

	stopCheckIn *sync.WaitGroup
}

// NewTCPTransport listens on the paxos address of id in nm. Received
// envelopes are handed to deliver from the connection goroutines.
func NewTCPTransport(id grp.ID, nm *grp.NodeMap, deliver func(Envelope),
	dialTimeout time.Duration, queueSize int, stopCheckIn *sync.WaitGroup) (*TCPTransport, error) {
	me, found := nm.LookupNode(id)
	if !found {
		return nil, errNodeNotFound
	}
	listener, err := net.Listen("tcp", me.PaxosAddr())
	if err != nil {
		return nil, err
	}
	return &TCPTransport{
		id:          id,
		listener:    listener,
		deliver:     deliver,
		dialTimeout: dialTimeout,
		queueSize:   queueSize,
		local:       make(chan Envelope, queueSize),
		done:        make(chan struct{}),
		nodeMap:     nm,
		peers:       make(map[grp.ID]*peer),
		inbound:     make(map[*Connection]bool),
		stopCheckIn: stopCheckIn,
	}, nil
}

func (t *TCPTransport) Addr() string {
	return t.listener.Addr().String()
}

// Start handling new connections from other replicas.
func (t *TCPTransport) Start() {
	glog.V(1).Info("starting")
	go t.handleLocal()
	go func() {
		defer t.stopCheckIn.Done()
		for {
			conn, err := t.listener.Accept()
			if err != nil {
				if IsSocketClosed(err) {
					glog.V(1).Info("replica listener closed; exiting")
					return
				}
				glog.Error(err)
				continue
			}
			go t.greet(NewConnection(conn))
		}
	}()
}

func (t *TCPTransport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.done)
	t.listener.Close()
	for id, p := range t.peers {
		p.close()
		delete(t.peers, id)
	}
	for c := range t.inbound {
		c.Close()
	}
}

func (t *TCPTransport) handleLocal() {
	for {
		select {
		case env := <-t.local:
			t.deliver(env)
		case <-t.done:
			return
		}
	}
}

func (t *TCPTransport) greet(c *Connection) {
	glog.V(2).Infoln("received", c)
	cid, err := c.waitForID()
	if err != nil {
		glog.Errorln("error receiving id,", err)
		c.Close()
		return
	}
	if err = t.validateID(cid); err != nil {
		glog.Warningln("id rejected,", err)
		c.sendIDResp(false, err.Error())
		c.Close()
		return
	}
	if err = c.sendIDResp(true, ""); err != nil {
		glog.Errorln("error sending id resp,", err)
		c.Close()
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		c.Close()
		return
	}
	t.inbound[c] = true
	t.mu.Unlock()

	t.handleIn(cid, c)
}

func (t *TCPTransport) handleIn(cid grp.ID, c *Connection) {
	glog.V(2).Infof("%v: starting to handle incoming from %v", c, cid)
	defer func() {
		c.Close()
		t.mu.Lock()
		delete(t.inbound, c)
		t.mu.Unlock()
	}()
	for {
		env, err := c.ReadEnvelope()
		if err != nil {
			if err != io.EOF && !IsSocketClosed(err) {
				glog.Errorf("%v: %v", c, err)
			}
			return
		}
		// The handshake authenticated the peer; never trust the header.
		env.From = cid
		t.deliver(env)
	}
}

func (t *TCPTransport) validateID(cid grp.ID) error {
	if cid == t.id {
		return ErrIDIsEqual
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.nodeMap.Contains(cid) {
		return ErrIDNotMember
	}
	return nil
}

// Send queues env for delivery to node to. Sends to ourselves bypass the
// network but keep their order.
func (t *TCPTransport) Send(to grp.ID, env Envelope) {
	if to == t.id {
		select {
		case t.local <- env:
		default:
			if glog.V(4) {
				glog.Infof("send to self was blocking, dropping message")
			}
		}
		return
	}
	p, err := t.getPeer(to)
	if err != nil {
		glog.V(3).Infof("dropping %v to %v: %v", env, to, err)
		return
	}
	select {
	case p.outgoing <- env:
	default:
		if glog.V(4) {
			glog.Infof("send to %v was blocking, dropping message", to)
		}
	}
}

// SetNodeMap installs a new membership. Connections to removed or moved
// nodes are closed.
func (t *TCPTransport) SetNodeMap(nm *grp.NodeMap) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, p := range t.peers {
		if n, found := nm.LookupNode(id); !found || n.PaxosAddr() != p.node.PaxosAddr() {
			p.close()
			delete(t.peers, id)
		}
	}
	t.nodeMap = nm
}

func (t *TCPTransport) getPeer(id grp.ID) (*peer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, errors.New("transport closed")
	}
	if p, found := t.peers[id]; found {
		return p, nil
	}
	node, found := t.nodeMap.LookupNode(id)
	if !found {
		return nil, errNodeNotFound
	}
	p := &peer{
		self:        t.id,
		node:        node,
		dialTimeout: t.dialTimeout,
		outgoing:    make(chan Envelope, t.queueSize),
		stop:        make(chan bool),
	}
	t.peers[id] = p
	go p.handleOut()
	return p, nil
}

type peer struct {
	self        grp.ID
	node        grp.Node
	dialTimeout time.Duration
	outgoing    chan Envelope
	stop        chan bool
	conn        *Connection
	lastFail    time.Time
}

func (p *peer) close() {
	close(p.stop)
}

func (p *peer) handleOut() {
	glog.V(2).Infof("starting to handle outgoing to %v", p.node.UID)
	defer func() {
		if p.conn != nil {
			p.conn.Close()
		}
	}()
	for {
		select {
		case env := <-p.outgoing:
			p.write(env)
		case <-p.stop:
			glog.V(2).Infof("stopped sending to %v", p.node.UID)
			return
		}
	}
}

func (p *peer) write(env Envelope) {
	if p.conn == nil {
		if time.Since(p.lastFail) < reconnectWait {
			return
		}
		c, err := Dial(p.node, p.self, p.dialTimeout)
		if err != nil {
			glog.V(2).Infoln(err)
			p.lastFail = time.Now()
			return
		}
		glog.V(2).Infof("connected to %v", p.node.UID)
		p.conn = c
	}
	if err := p.conn.WriteEnvelope(env); err != nil {
		glog.V(2).Infof("closing connection to %v due to: %v", p.node.UID, err)
		p.conn.Close()
		p.conn = nil
		p.lastFail = time.Now()
	}
}
