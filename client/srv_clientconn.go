package client

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

const writeTimeout = 500 * time.Millisecond

// A ClientConn is the server-side represention of a connection between a
// replica and a client.
type ClientConn struct {
	conn     net.Conn
	addr     string
	reqChan  chan<- *Request
	respChan chan *Response
	closed   chan struct{}
	once     sync.Once
}

// NewClientConn wraps an accepted connection. Requests read from it are
// sent on reqch.
func NewClientConn(c net.Conn, reqch chan<- *Request) *ClientConn {
	return &ClientConn{
		conn:     c,
		addr:     c.RemoteAddr().String(),
		reqChan:  reqch,
		respChan: make(chan *Response, 512),
		closed:   make(chan struct{}),
	}
}

// Serve reads requests until the connection fails.
func (cc *ClientConn) Serve() {
	glog.V(1).Infoln("starting to serve client", cc)
	var err error
	defer func() {
		if err != io.EOF && errors.Cause(err) != io.EOF {
			glog.Warningf("client %v: %v", cc, err)
		}
		cc.Close()
	}()

	go cc.handleRespChan()

	for {
		var req Request
		if err = read(cc.conn, &req); err != nil {
			return
		}
		if req.IsIDInvalid() {
			err = errors.New("invalid id: " + req.GetId())
			return
		}
		select {
		case cc.reqChan <- &req:
		case <-cc.closed:
			return
		}
	}
}

func (cc *ClientConn) handleRespChan() {
	for {
		select {
		case resp := <-cc.respChan:
			cc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := write(cc.conn, resp); err != nil {
				glog.Warningln("error writing response to client:", err)
				cc.Close()
				return
			}
		case <-cc.closed:
			return
		}
	}
}

// WriteAsync queues a response. It is dropped if the connection is gone
// or its queue is full; the client will retry.
func (cc *ClientConn) WriteAsync(resp *Response) {
	select {
	case cc.respChan <- resp:
	case <-cc.closed:
	default:
		glog.Warningf("client %v: response queue full, dropping %v", cc, resp.SimpleString())
	}
}

func (cc *ClientConn) Connected() bool {
	select {
	case <-cc.closed:
		return false
	default:
		return true
	}
}

func (cc *ClientConn) Close() {
	cc.once.Do(func() {
		close(cc.closed)
		cc.conn.Close()
	})
}

func (cc *ClientConn) String() string {
	return cc.addr
}
