package client

import (
	"net"
	"sync"

	"github.com/golang/glog"

	"github.com/relab/txpaxos/loop"
	gnet "github.com/relab/txpaxos/net"
)

// ClientHandlerTCP accepts client connections and hands their requests to
// an Executor on the node's event loop. The last response sent to each
// client is kept, so a retransmitted request is answered without being
// executed twice.
type ClientHandlerTCP struct {
	addr        string
	listener    net.Listener
	sched       loop.Scheduler
	exec        Executor
	reqChan     chan *Request
	respChan    chan *Response
	mu          sync.Mutex
	clients     map[string]*ClientConn
	replies     map[string]*Response
	stop        chan bool
	exited      chan struct{}
	stopCheckIn *sync.WaitGroup
}

// NewClientHandlerTCP listens on addr. stopCheckIn is marked done when the
// handler has exited.
func NewClientHandlerTCP(addr string, sched loop.Scheduler, exec Executor,
	stopCheckIn *sync.WaitGroup) (*ClientHandlerTCP, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &ClientHandlerTCP{
		addr:        listener.Addr().String(),
		listener:    listener,
		sched:       sched,
		exec:        exec,
		reqChan:     make(chan *Request, 64),
		respChan:    make(chan *Response, 512),
		clients:     make(map[string]*ClientConn),
		replies:     make(map[string]*Response),
		stop:        make(chan bool),
		exited:      make(chan struct{}),
		stopCheckIn: stopCheckIn,
	}, nil
}

// Addr is the address the handler listens on.
func (ch *ClientHandlerTCP) Addr() string {
	return ch.addr
}

// Start handling new client connections. Spawns two goroutines, one for
// handshaking with new connections, and the other for handling requests and
// responses.
func (ch *ClientHandlerTCP) Start() {
	go func() {
		glog.V(1).Info("start listening for clients on ", ch.addr)
		for {
			conn, err := ch.listener.Accept()
			if err != nil {
				if gnet.IsSocketClosed(err) {
					glog.V(1).Info("client listener closed; exiting")
					return
				}
				glog.Errorln(err)
				continue
			}
			glog.V(2).Infoln("received connection from", conn.RemoteAddr())
			go ch.greetClient(conn)
		}
	}()

	go func() {
		glog.V(1).Info("start handling requests and responses")
		defer ch.stopCheckIn.Done()
		defer close(ch.exited)

		for {
			select {
			case req := <-ch.reqChan:
				ch.handleRequest(req)
			case resp := <-ch.respChan:
				ch.handleResponse(resp)
			case <-ch.stop:
				ch.listener.Close()
				ch.mu.Lock()
				for _, cc := range ch.clients {
					cc.Close()
				}
				ch.mu.Unlock()
				glog.V(1).Info("exiting")
				return
			}
		}
	}()
}

// ForwardResponse routes a response back to the connection its request
// came from. It runs on the event loop and never blocks: the handler
// goroutine may itself be waiting to post onto the loop. Responses that
// find the queue full, or arrive after Stop, are dropped and the client
// retransmits.
func (ch *ClientHandlerTCP) ForwardResponse(resp *Response) {
	select {
	case ch.respChan <- resp:
	case <-ch.exited:
	default:
		glog.Warningf("response queue full, dropping response to %v", resp.GetId())
	}
}

// Shut down the ClientHandler module.
func (ch *ClientHandlerTCP) Stop() {
	ch.stop <- true
}

// Do the handshake with a new potential client connection.
func (ch *ClientHandlerTCP) greetClient(conn net.Conn) {
	var req Request
	if err := read(conn, &req); err != nil {
		glog.Warning("greetClient: read error, closing: ", err)
		conn.Close()
		return
	}
	if req.GetType() != Request_HELLO {
		glog.Warning("greetClient: request was not handshake, closing")
		conn.Close()
		return
	}
	if req.IsIDInvalid() {
		glog.Warning("greetClient: invalid id, closing")
		conn.Close()
		return
	}

	glog.V(2).Infof("greetClient: id %v accepted, replying and serving", req.GetId())
	resp := NewResponse(&req)
	if err := write(conn, resp); err != nil {
		glog.Warning("greetClient: write error, closing: ", err)
		conn.Close()
		return
	}
	cc := NewClientConn(conn, ch.reqChan)
	ch.mu.Lock()
	if old, found := ch.clients[req.GetId()]; found {
		old.Close()
	}
	ch.clients[req.GetId()] = cc
	ch.mu.Unlock()
	go cc.Serve()
}

func (ch *ClientHandlerTCP) handleRequest(req *Request) {
	if glog.V(3) {
		glog.Infoln("received", req.SimpleString())
	}
	if req.GetType() == Request_HELLO {
		glog.Warning("handshake on an established connection, ignoring")
		return
	}

	if lastReply, found := ch.replies[req.GetId()]; found && req.GetSeq() == lastReply.GetSeq() {
		// Seq equals last reply, retransmit
		if cc, found := ch.client(req.GetId()); found && cc.Connected() {
			cc.WriteAsync(lastReply)
		}
		return
	}

	ch.sched.Post(func() {
		ch.exec.Execute(req, ch.ForwardResponse)
	})
}

func (ch *ClientHandlerTCP) handleResponse(resp *Response) {
	ch.replies[resp.GetId()] = resp
	cc, found := ch.client(resp.GetId())
	if !found || !cc.Connected() {
		return
	}
	if glog.V(3) {
		glog.Infoln("client found and connected, sending", resp.SimpleString())
	}
	cc.WriteAsync(resp)
}

func (ch *ClientHandlerTCP) client(id string) (*ClientConn, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	cc, found := ch.clients[id]
	return cc, found
}
